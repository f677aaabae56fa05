// Package upload runs batches of independent file uploads.
package upload

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"medoai/internal/blob"
	"medoai/internal/files"
	"medoai/internal/logger"
	"medoai/internal/models"
)

// Source is one selected file.
type Source struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// Outcome is the settled state of one task.
type Outcome struct {
	Index    int                  `json:"index"`
	Name     string               `json:"name"`
	Progress int                  `json:"progress"`
	Record   *models.UploadedFile `json:"record,omitempty"`
	Err      error                `json:"-"`
}

// Result aggregates a settled batch.
type Result struct {
	Outcomes  []Outcome
	Succeeded int
	Total     int
}

// Summary renders the "k of n succeeded" line.
func (r Result) Summary() string {
	return fmt.Sprintf("%d of %d succeeded", r.Succeeded, r.Total)
}

type EventKind string

const (
	EventProgress EventKind = "progress"
	EventSettled  EventKind = "file"
)

// Event is a progress tick or a settled task. Events for one task arrive in
// order; across tasks there is no ordering.
type Event struct {
	Kind     EventKind
	Index    int
	Progress int
	Outcome  *Outcome
}

// Saver stores one file end to end.
type Saver interface {
	Save(ctx context.Context, userID string, f files.NewFile, progress blob.ProgressFunc) (*models.UploadedFile, error)
}

type Pipeline struct {
	saver Saver
	limit int
	log   *logger.Logger
}

// New builds a pipeline. limit caps concurrent tasks; zero means one goroutine per file.
func New(saver Saver, limit int, log *logger.Logger) *Pipeline {
	return &Pipeline{saver: saver, limit: limit, log: log.With("service", "upload.Pipeline")}
}

// Run uploads every source concurrently and waits for all of them to settle.
// A failed task never cancels the others. onEvent is called from a single
// goroutine, so it may write to a response without locking.
func (p *Pipeline) Run(ctx context.Context, userID string, sources []Source, onEvent func(Event)) Result {
	outcomes := make([]Outcome, len(sources))
	events := make(chan Event, len(sources)*4)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range events {
			if onEvent != nil {
				onEvent(ev)
			}
		}
	}()

	var g errgroup.Group
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}
	for i, src := range sources {
		g.Go(func() error {
			out := p.runTask(ctx, userID, i, src, events)
			outcomes[i] = out
			settled := out
			events <- Event{Kind: EventSettled, Index: i, Progress: out.Progress, Outcome: &settled}
			return nil
		})
	}
	_ = g.Wait()
	close(events)
	<-drained

	res := Result{Outcomes: outcomes, Total: len(sources)}
	for _, o := range outcomes {
		if o.Err == nil {
			res.Succeeded++
		}
	}
	p.log.Info("upload batch settled", "user_id", userID, "succeeded", res.Succeeded, "total", res.Total)
	return res
}

func (p *Pipeline) runTask(ctx context.Context, userID string, index int, src Source, events chan<- Event) Outcome {
	out := Outcome{Index: index, Name: src.Name}
	if err := CheckSize(src.Size); err != nil {
		out.Err = err
		return out
	}
	if src.Open == nil {
		out.Err = fmt.Errorf("file %s has no content", src.Name)
		return out
	}
	rc, err := src.Open()
	if err != nil {
		out.Err = fmt.Errorf("open %s: %w", src.Name, err)
		return out
	}
	defer rc.Close()

	last := -1
	rec, err := p.saver.Save(ctx, userID, files.NewFile{
		Name:        src.Name,
		ContentType: src.ContentType,
		Size:        src.Size,
		Reader:      rc,
	}, func(done, total int64) {
		pct := blob.Percent(done, total)
		if pct == last {
			return
		}
		last = pct
		out.Progress = pct
		events <- Event{Kind: EventProgress, Index: index, Progress: pct}
	})
	if err != nil {
		p.log.Warn("upload task failed", "user_id", userID, "file", src.Name, "error", err)
		out.Err = err
		return out
	}
	out.Record = rec
	out.Progress = 100
	return out
}

package worker

import (
	"context"
	"fmt"
)

// Job is one unit of work owned by a user.
type Job struct {
	UserID string
	Ctx    context.Context
	Run    func(ctx context.Context) error

	done chan error
	stop bool
}

func (j Job) execute() (err error) {
	ctx := j.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	// the caller may have gone away while the job waited in the queue
	if err := ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return j.Run(ctx)
}

func (j Job) finish(err error) {
	if j.done != nil {
		j.done <- err
	}
}

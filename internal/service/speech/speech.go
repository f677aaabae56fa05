package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"medoai/internal/config"
	"medoai/internal/logger"
	"medoai/internal/service/ai"
)

const (
	recognizeTimeout = 3 * time.Minute
	maxRetries       = 3
)

// recognizer is the slice of the Speech client used here.
type recognizer interface {
	LongRunningRecognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error)
	Close() error
}

type clientRecognizer struct {
	client *speech.Client
}

func (c *clientRecognizer) LongRunningRecognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
	op, err := c.client.LongRunningRecognize(ctx, req)
	if err != nil {
		return nil, err
	}
	return op.Wait(ctx)
}

func (c *clientRecognizer) Close() error { return c.client.Close() }

// Transcriber sends recorded audio to Google Cloud Speech.
type Transcriber struct {
	rec          recognizer
	languageCode string
	log          *logger.Logger
}

func New(ctx context.Context, cfg config.SpeechConfig, log *logger.Logger) (*Transcriber, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &Transcriber{
		rec:          &clientRecognizer{client: c},
		languageCode: cfg.LanguageCode,
		log:          log.With("service", "speech.Transcriber"),
	}, nil
}

func (t *Transcriber) Close() error {
	if t == nil || t.rec == nil {
		return nil
	}
	return t.rec.Close()
}

func (t *Transcriber) Transcribe(ctx context.Context, audio ai.Media) (string, error) {
	if len(audio.Data) == 0 {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, recognizeTimeout)
	defer cancel()

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               t.languageCode,
			Encoding:                   encodingFor(audio.MIMEType),
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio.Data},
		},
	}

	var (
		resp *speechpb.LongRunningRecognizeResponse
		err  error
	)
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err = t.rec.LongRunningRecognize(ctx, req)
		if err == nil || !retryable(err) || attempt == maxRetries {
			break
		}
		backoff := time.Duration(1<<attempt) * 500 * time.Millisecond
		t.log.Warn("speech recognize retry", "attempt", attempt+1, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}
	if err != nil {
		return "", fmt.Errorf("speech longrunningrecognize: %w", err)
	}
	return joinTranscript(resp), nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted, codes.Internal:
		return true
	}
	return false
}

func encodingFor(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(mimeType)
	switch {
	case strings.Contains(m, "webm"):
		return speechpb.RecognitionConfig_WEBM_OPUS
	case strings.Contains(m, "ogg"), strings.Contains(m, "opus"):
		return speechpb.RecognitionConfig_OGG_OPUS
	case strings.Contains(m, "wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3"), strings.Contains(m, "mpeg"):
		return speechpb.RecognitionConfig_MP3
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func joinTranscript(resp *speechpb.LongRunningRecognizeResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		if txt := strings.TrimSpace(r.Alternatives[0].Transcript); txt != "" {
			parts = append(parts, txt)
		}
	}
	return strings.Join(parts, " ")
}

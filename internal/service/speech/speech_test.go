package speech

import (
	"context"
	"testing"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"medoai/internal/logger"
	"medoai/internal/service/ai"
)

type fakeRecognizer struct {
	errs  []error
	resp  *speechpb.LongRunningRecognizeResponse
	calls int
	last  *speechpb.LongRunningRecognizeRequest
}

func (f *fakeRecognizer) LongRunningRecognize(_ context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
	f.calls++
	f.last = req
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.resp, nil
}

func (f *fakeRecognizer) Close() error { return nil }

func result(text string) *speechpb.SpeechRecognitionResult {
	return &speechpb.SpeechRecognitionResult{
		Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: text}},
	}
}

func TestTranscribeJoinsResults(t *testing.T) {
	rec := &fakeRecognizer{resp: &speechpb.LongRunningRecognizeResponse{
		Results: []*speechpb.SpeechRecognitionResult{result(" مرحبا "), nil, result(""), result("بالعالم")},
	}}
	tr := &Transcriber{rec: rec, languageCode: "ar-SA", log: logger.Nop()}

	text, err := tr.Transcribe(context.Background(), ai.Media{MIMEType: "audio/webm", Data: []byte("opus")})
	require.NoError(t, err)
	assert.Equal(t, "مرحبا بالعالم", text)
	assert.Equal(t, speechpb.RecognitionConfig_WEBM_OPUS, rec.last.Config.Encoding)
	assert.Equal(t, "ar-SA", rec.last.Config.LanguageCode)
}

func TestTranscribeRetriesUnavailable(t *testing.T) {
	rec := &fakeRecognizer{
		errs: []error{status.Error(codes.Unavailable, "busy")},
		resp: &speechpb.LongRunningRecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{result("ok")}},
	}
	tr := &Transcriber{rec: rec, languageCode: "en-US", log: logger.Nop()}

	text, err := tr.Transcribe(context.Background(), ai.Media{MIMEType: "audio/ogg", Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 2, rec.calls)
}

func TestTranscribeDoesNotRetryInvalidArgument(t *testing.T) {
	rec := &fakeRecognizer{errs: []error{status.Error(codes.InvalidArgument, "bad audio")}}
	tr := &Transcriber{rec: rec, log: logger.Nop()}

	_, err := tr.Transcribe(context.Background(), ai.Media{MIMEType: "audio/wav", Data: []byte("x")})
	require.Error(t, err)
	assert.Equal(t, 1, rec.calls)
}

func TestTranscribeEmptyAudio(t *testing.T) {
	rec := &fakeRecognizer{}
	tr := &Transcriber{rec: rec, log: logger.Nop()}
	text, err := tr.Transcribe(context.Background(), ai.Media{MIMEType: "audio/webm"})
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Zero(t, rec.calls)
}

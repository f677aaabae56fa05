package ai

import (
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func TestParseDataURI(t *testing.T) {
	m, err := ParseDataURI("data:image/PNG;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.MIMEType != "image/png" || string(m.Data) != "hello" {
		t.Fatalf("unexpected media %+v", m)
	}
	if got := m.DataURI(); got != "data:image/png;base64,aGVsbG8=" {
		t.Fatalf("data uri mismatch: %s", got)
	}
}

func TestParseDataURIRejectsMalformed(t *testing.T) {
	for _, in := range []string{
		"",
		"image/png;base64,aGVsbG8=",
		"data:image/png,aGVsbG8=",
		"data:;base64,aGVsbG8=",
		"data:image/png;base64",
		"data:image/png;base64,@@@",
	} {
		if _, err := ParseDataURI(in); !errors.Is(err, ErrInvalidDataURI) {
			t.Fatalf("expected ErrInvalidDataURI for %q, got %v", in, err)
		}
	}
}

func TestBuildMessagesWithMedia(t *testing.T) {
	msgs := buildMessages(CompletionRequest{
		Instruction: "explain",
		JSONShape:   `{"response": string}`,
		Media: []Media{
			{MIMEType: "image/jpeg", Data: []byte{1}},
			{MIMEType: "application/pdf", Data: []byte{2}, Name: "doc.pdf"},
			{MIMEType: "audio/webm", Data: []byte{3}},
		},
	})
	if len(msgs) != 2 || msgs[0].Role != schema.System {
		t.Fatalf("expected system + user message, got %d", len(msgs))
	}
	parts := msgs[1].MultiContent
	if len(parts) != 4 {
		t.Fatalf("expected 4 parts, got %d", len(parts))
	}
	if parts[1].Type != schema.ChatMessagePartTypeImageURL || parts[2].Type != schema.ChatMessagePartTypeFileURL || parts[3].Type != schema.ChatMessagePartTypeAudioURL {
		t.Fatalf("unexpected part types: %v %v %v", parts[1].Type, parts[2].Type, parts[3].Type)
	}
}

func TestBuildMessagesTextOnly(t *testing.T) {
	msgs := buildMessages(CompletionRequest{Instruction: "hi"})
	if len(msgs) != 1 || msgs[0].Content != "hi" || len(msgs[0].MultiContent) != 0 {
		t.Fatalf("unexpected messages %+v", msgs)
	}
}

package flows

import (
	"context"
	"fmt"
	"strings"

	"medoai/internal/service/ai"
	"medoai/internal/upload"
)

const (
	summaryFallbackArabic  = "عذراً، لم أتمكن من تلخيص النص."
	summaryFallbackEnglish = "Sorry, I could not summarize the text."
)

type TranscribeInput struct {
	AudioDataURI string
}

type TranscribeOutput struct {
	Text string `json:"text"`
}

type SummarizeInput struct {
	Text     string
	Language Language
}

type SummarizeOutput struct {
	Summary string `json:"summary"`
}

// SummaryFallback is the apology returned for an empty summary.
func SummaryFallback(lang Language) string {
	if lang == LanguageEnglish {
		return summaryFallbackEnglish
	}
	return summaryFallbackArabic
}

// Transcribe converts recorded audio to text. The text may be empty.
func (s *Service) Transcribe(ctx context.Context, in TranscribeInput) (TranscribeOutput, error) {
	media, err := ai.ParseDataURI(in.AudioDataURI)
	if err != nil {
		return TranscribeOutput{}, &ValidationError{Field: "audioDataUri", Reason: err.Error()}
	}
	if !strings.HasPrefix(media.MIMEType, "audio/") {
		return TranscribeOutput{}, &ValidationError{Field: "audioDataUri", Reason: fmt.Sprintf("expected audio, got %s", media.MIMEType)}
	}
	if len(media.Data) == 0 {
		return TranscribeOutput{}, &ValidationError{Field: "audioDataUri", Reason: "audio is empty"}
	}
	if err := upload.CheckSize(int64(len(media.Data))); err != nil {
		return TranscribeOutput{}, fmt.Errorf("audioDataUri: %w", err)
	}
	text, err := s.transcriber.Transcribe(ctx, media)
	if err != nil {
		return TranscribeOutput{}, fmt.Errorf("transcribe audio: %w", err)
	}
	return TranscribeOutput{Text: strings.TrimSpace(text)}, nil
}

// SummarizeTranscribedText summarizes a transcript in the requested language.
func (s *Service) SummarizeTranscribedText(ctx context.Context, in SummarizeInput) (SummarizeOutput, error) {
	lang, err := ParseLanguage(string(in.Language))
	if err != nil {
		return SummarizeOutput{}, err
	}
	if strings.TrimSpace(in.Text) == "" {
		return SummarizeOutput{}, &ValidationError{Field: "text", Reason: "text is required"}
	}
	instruction, err := render(ctx, summarizeTemplate, map[string]any{
		"language": string(lang),
		"text":     in.Text,
	})
	if err != nil {
		return SummarizeOutput{}, err
	}
	raw, err := s.completer.Complete(ctx, ai.CompletionRequest{Instruction: instruction, JSONShape: summaryShape})
	if err != nil {
		return SummarizeOutput{}, fmt.Errorf("summarize completion: %w", err)
	}
	var out SummarizeOutput
	if !decodeJSON(raw, &out) || strings.TrimSpace(out.Summary) == "" {
		s.log.Warn("summary returned no output", "language", lang)
		out.Summary = SummaryFallback(lang)
	}
	return out, nil
}

// completerTranscriber sends the audio to the model with no instruction.
type completerTranscriber struct {
	completer ai.Completer
}

func (t *completerTranscriber) Transcribe(ctx context.Context, audio ai.Media) (string, error) {
	return t.completer.Complete(ctx, ai.CompletionRequest{Media: []ai.Media{audio}})
}

package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"medoai/internal/service/ai"
	"medoai/internal/upload"
)

const (
	chatFallbackArabic  = "عذراً، لم أتمكن من معالجة طلبك."
	chatFallbackEnglish = "Sorry, I could not process your request."
)

type ChatInput struct {
	Task        Task
	Difficulty  Difficulty
	Message     string
	FileDataURI string
	Language    Language
}

type ChatOutput struct {
	Response string `json:"response"`
}

// ChatFallback is the apology returned when the model produces nothing usable.
func ChatFallback(lang Language) string {
	if lang == LanguageEnglish {
		return chatFallbackEnglish
	}
	return chatFallbackArabic
}

// Chat answers one explain, solve, generate or summarize request.
func (s *Service) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	if !in.Task.valid() {
		return ChatOutput{}, &ValidationError{Field: "task", Reason: fmt.Sprintf("unsupported task %q", in.Task)}
	}
	if in.Difficulty != "" && !in.Difficulty.valid() {
		return ChatOutput{}, &ValidationError{Field: "difficulty", Reason: fmt.Sprintf("unsupported difficulty %q", in.Difficulty)}
	}
	lang, err := ParseLanguage(string(in.Language))
	if err != nil {
		return ChatOutput{}, err
	}
	media, err := attachment(in.FileDataURI)
	if err != nil {
		return ChatOutput{}, err
	}
	if strings.TrimSpace(in.Message) == "" && media == nil {
		return ChatOutput{}, &ValidationError{Field: "message", Reason: "message or file is required"}
	}

	difficulty := in.Difficulty
	if in.Task == TaskGenerate && difficulty == "" {
		difficulty = DifficultyMedium
	}
	instruction, err := render(ctx, chatTemplate, map[string]any{
		"task":         string(in.Task),
		"difficulty":   string(difficulty),
		"message":      in.Message,
		"hasFile":      media != nil,
		"languageName": lang.name(),
	})
	if err != nil {
		return ChatOutput{}, err
	}

	req := ai.CompletionRequest{Instruction: instruction, JSONShape: chatShape, AllowTools: true}
	if media != nil {
		req.Media = []ai.Media{*media}
	}
	raw, err := s.completer.Complete(ctx, req)
	if err != nil {
		return ChatOutput{}, fmt.Errorf("chat completion: %w", err)
	}

	var out ChatOutput
	if !decodeJSON(raw, &out) {
		// a plain-text reply is still an answer
		out.Response = strings.TrimSpace(raw)
	}
	if strings.TrimSpace(out.Response) == "" {
		s.log.Warn("chat returned no output", "task", in.Task)
		out.Response = ChatFallback(lang)
	}
	return out, nil
}

// attachment decodes an optional image or PDF data URI.
func attachment(uri string) (*ai.Media, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, nil
	}
	media, err := ai.ParseDataURI(uri)
	if err != nil {
		return nil, &ValidationError{Field: "fileDataUri", Reason: err.Error()}
	}
	if err := upload.CheckAttachment(int64(len(media.Data)), media.MIMEType); err != nil {
		if errors.Is(err, upload.ErrEmptyFile) {
			return nil, &ValidationError{Field: "fileDataUri", Reason: "file is empty"}
		}
		return nil, &ValidationError{Field: "fileDataUri", Reason: err.Error()}
	}
	return &media, nil
}

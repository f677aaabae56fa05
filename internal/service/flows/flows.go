package flows

import (
	"context"
	"fmt"

	"medoai/internal/logger"
	"medoai/internal/service/ai"
)

type Task string

const (
	TaskExplain   Task = "explain"
	TaskSolve     Task = "solve"
	TaskGenerate  Task = "generate"
	TaskSummarize Task = "summarize"
)

func (t Task) valid() bool {
	switch t {
	case TaskExplain, TaskSolve, TaskGenerate, TaskSummarize:
		return true
	}
	return false
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

type Language string

const (
	LanguageArabic  Language = "ar"
	LanguageEnglish Language = "en"
)

// ParseLanguage maps an empty value to Arabic and rejects anything other than ar or en.
func ParseLanguage(raw string) (Language, error) {
	switch Language(raw) {
	case "":
		return LanguageArabic, nil
	case LanguageArabic, LanguageEnglish:
		return Language(raw), nil
	}
	return "", &ValidationError{Field: "language", Reason: fmt.Sprintf("unsupported language %q", raw)}
}

func (l Language) name() string {
	if l == LanguageEnglish {
		return "English"
	}
	return "Arabic"
}

type Mode string

const (
	ModeStatic      Mode = "static"
	ModeInteractive Mode = "interactive"
)

// ValidationError reports input rejected before any model call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio ai.Media) (string, error)
}

// Service runs the prompt flows. Each flow is one completion call.
type Service struct {
	completer   ai.Completer
	transcriber Transcriber
	log         *logger.Logger
}

// NewService builds the flows. A nil transcriber sends audio to the completer.
func NewService(completer ai.Completer, transcriber Transcriber, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{completer: completer, transcriber: transcriber, log: log.With("service", "flows")}
	if s.transcriber == nil {
		s.transcriber = &completerTranscriber{completer: completer}
	}
	return s
}

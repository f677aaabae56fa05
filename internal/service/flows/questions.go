package flows

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"medoai/internal/models"
	"medoai/internal/service/ai"
)

const (
	MinQuestionCount = 1
	MaxQuestionCount = 20
)

type QuestionsInput struct {
	Context       string
	FileDataURI   string
	QuestionCount int
	Difficulty    Difficulty
	Language      Language
	Mode          Mode
}

// QuestionsOutput carries whichever list matches the requested mode.
type QuestionsOutput struct {
	Mode        Mode
	Static      []models.StaticQuestion
	Interactive []models.InteractiveQuestion
}

// MarshalJSON writes {"mode": ..., "questions": [...]} for either mode.
func (o QuestionsOutput) MarshalJSON() ([]byte, error) {
	var questions any = o.Static
	if o.Mode == ModeInteractive {
		questions = o.Interactive
	}
	if o.Len() == 0 {
		questions = []struct{}{}
	}
	return json.Marshal(struct {
		Mode      Mode `json:"mode"`
		Questions any  `json:"questions"`
	}{o.Mode, questions})
}

// Len is the number of questions returned.
func (o QuestionsOutput) Len() int {
	if o.Mode == ModeInteractive {
		return len(o.Interactive)
	}
	return len(o.Static)
}

// GenerateQuestions builds a static or interactive question set from text and
// an optional image or PDF. Missing output is an empty set, not an error.
func (s *Service) GenerateQuestions(ctx context.Context, in QuestionsInput) (QuestionsOutput, error) {
	if in.QuestionCount < MinQuestionCount || in.QuestionCount > MaxQuestionCount {
		return QuestionsOutput{}, &ValidationError{
			Field:  "questionCount",
			Reason: fmt.Sprintf("must be between %d and %d", MinQuestionCount, MaxQuestionCount),
		}
	}
	if !in.Difficulty.valid() {
		return QuestionsOutput{}, &ValidationError{Field: "difficulty", Reason: fmt.Sprintf("unsupported difficulty %q", in.Difficulty)}
	}
	lang, err := ParseLanguage(string(in.Language))
	if err != nil {
		return QuestionsOutput{}, err
	}
	mode := in.Mode
	switch mode {
	case "":
		mode = ModeStatic
	case ModeStatic, ModeInteractive:
	default:
		return QuestionsOutput{}, &ValidationError{Field: "mode", Reason: fmt.Sprintf("unsupported mode %q", in.Mode)}
	}
	media, err := attachment(in.FileDataURI)
	if err != nil {
		return QuestionsOutput{}, err
	}
	if strings.TrimSpace(in.Context) == "" && media == nil {
		return QuestionsOutput{}, &ValidationError{Field: "context", Reason: "context or file is required"}
	}

	instruction, err := render(ctx, questionsTemplate, map[string]any{
		"context":       in.Context,
		"hasFile":       media != nil,
		"questionCount": in.QuestionCount,
		"difficulty":    string(in.Difficulty),
		"interactive":   mode == ModeInteractive,
		"languageName":  lang.name(),
	})
	if err != nil {
		return QuestionsOutput{}, err
	}
	req := ai.CompletionRequest{Instruction: instruction, JSONShape: staticQuestionsShape}
	if mode == ModeInteractive {
		req.JSONShape = interactiveQuestionsShape
	}
	if media != nil {
		req.Media = []ai.Media{*media}
	}

	raw, err := s.completer.Complete(ctx, req)
	if err != nil {
		return QuestionsOutput{}, fmt.Errorf("question completion: %w", err)
	}

	out := QuestionsOutput{Mode: mode}
	if mode == ModeInteractive {
		var parsed struct {
			Questions []modelQuestion `json:"questions"`
		}
		if decodeJSON(raw, &parsed) {
			out.Interactive = keepValid(parsed.Questions)
			if dropped := len(parsed.Questions) - len(out.Interactive); dropped > 0 {
				s.log.Warn("dropped malformed interactive questions", "dropped", dropped)
			}
		}
		if len(out.Interactive) > in.QuestionCount {
			out.Interactive = out.Interactive[:in.QuestionCount]
		}
	} else {
		var parsed struct {
			Questions []models.StaticQuestion `json:"questions"`
		}
		if decodeJSON(raw, &parsed) {
			for _, q := range parsed.Questions {
				if strings.TrimSpace(q.Question) != "" {
					out.Static = append(out.Static, q)
				}
			}
		}
		if len(out.Static) > in.QuestionCount {
			out.Static = out.Static[:in.QuestionCount]
		}
	}
	if out.Len() == 0 {
		s.log.Warn("question generation returned no questions", "mode", mode, "requested", in.QuestionCount)
	}
	return out, nil
}

// modelQuestion is an interactive question as the model returned it. A
// missing correctAnswerIndex stays nil instead of reading as option 0.
type modelQuestion struct {
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CorrectAnswerIndex *int     `json:"correctAnswerIndex"`
	Explanation        string   `json:"explanation"`
}

func keepValid(qs []modelQuestion) []models.InteractiveQuestion {
	var kept []models.InteractiveQuestion
	for _, raw := range qs {
		if raw.CorrectAnswerIndex == nil {
			continue
		}
		q := models.InteractiveQuestion{
			Question:           raw.Question,
			Options:            raw.Options,
			CorrectAnswerIndex: *raw.CorrectAnswerIndex,
			Explanation:        raw.Explanation,
		}
		if q.Valid() {
			kept = append(kept, q)
		}
	}
	return kept
}

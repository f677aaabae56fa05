package quiz

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"medoai/internal/models"
	"medoai/internal/service/flows"
)

type State string

const (
	StateConfiguring State = "configuring"
	StateGenerating  State = "generating"
	StateAnswering   State = "answering"
	StateScored      State = "scored"
)

var (
	ErrNotFound       = errors.New("quiz not found")
	ErrInvalidState   = errors.New("invalid quiz state")
	ErrOutOfRange     = errors.New("index out of range")
	ErrIncomplete     = errors.New("not every question is answered")
	ErrNoQuestions    = errors.New("no questions generated")
	ErrGenerationBusy = errors.New("quiz is already generating")
	ErrFileRequired   = errors.New("quiz needs its source file again")
)

// Settings are the generator inputs chosen while configuring. The file
// itself is never persisted; HasFile remembers that one was given.
type Settings struct {
	Context       string           `json:"context"`
	FileDataURI   string           `json:"-"`
	HasFile       bool             `json:"hasFile"`
	QuestionCount int              `json:"questionCount"`
	Difficulty    flows.Difficulty `json:"difficulty"`
	Language      flows.Language   `json:"language"`
}

// Mark is the per-question outcome shown after scoring.
type Mark struct {
	QuestionIndex int  `json:"questionIndex"`
	Selected      int  `json:"selected"`
	Correct       int  `json:"correct"`
	IsCorrect     bool `json:"isCorrect"`
}

type Result struct {
	Score int    `json:"score"`
	Total int    `json:"total"`
	Marks []Mark `json:"marks"`
}

// Session is one interactive quiz owned by a user.
type Session struct {
	ID        string                       `json:"id"`
	UserID    string                       `json:"userId"`
	State     State                        `json:"state"`
	Settings  Settings                     `json:"settings"`
	Questions []models.InteractiveQuestion `json:"questions"`
	Answers   map[int]int                  `json:"answers"`
	Result    *Result                      `json:"result,omitempty"`
	UpdatedAt time.Time                    `json:"updatedAt"`

	// NeedsFile is set when the stored settings cannot regenerate without
	// the source file being uploaded again.
	NeedsFile bool `json:"needsFile"`
	// Generation counts generation runs so a late result from an earlier
	// run is never installed.
	Generation int `json:"generation"`
}

// Configure stores new settings. Only valid while configuring.
func (s *Session) Configure(settings Settings) error {
	if s.State != StateConfiguring {
		return fmt.Errorf("%w: configure in %s", ErrInvalidState, s.State)
	}
	if settings.FileDataURI != "" {
		settings.HasFile = true
	}
	s.Settings = settings
	s.refreshNeedsFile()
	return nil
}

func (s *Session) refreshNeedsFile() {
	s.NeedsFile = s.State == StateConfiguring && s.Settings.HasFile &&
		s.Settings.FileDataURI == "" && strings.TrimSpace(s.Settings.Context) == ""
}

func (s *Session) beginGenerating() error {
	switch s.State {
	case StateConfiguring:
	case StateGenerating:
		return ErrGenerationBusy
	default:
		return fmt.Errorf("%w: generate in %s", ErrInvalidState, s.State)
	}
	if s.NeedsFile {
		return ErrFileRequired
	}
	s.State = StateGenerating
	s.Generation++
	return nil
}

// finishGenerating installs the returned questions. An empty set returns the
// session to configuring.
func (s *Session) finishGenerating(questions []models.InteractiveQuestion) error {
	if s.State != StateGenerating {
		return fmt.Errorf("%w: finish generating in %s", ErrInvalidState, s.State)
	}
	s.Answers = map[int]int{}
	s.Result = nil
	if len(questions) == 0 {
		s.Questions = nil
		s.State = StateConfiguring
		return ErrNoQuestions
	}
	s.Questions = questions
	s.State = StateAnswering
	return nil
}

func (s *Session) abortGenerating() {
	if s.State == StateGenerating {
		s.State = StateConfiguring
	}
}

// Answer records or overwrites the choice for one question.
func (s *Session) Answer(questionIndex, optionIndex int) error {
	if s.State != StateAnswering {
		return fmt.Errorf("%w: answer in %s", ErrInvalidState, s.State)
	}
	if questionIndex < 0 || questionIndex >= len(s.Questions) {
		return fmt.Errorf("%w: question %d", ErrOutOfRange, questionIndex)
	}
	if optionIndex < 0 || optionIndex >= len(s.Questions[questionIndex].Options) {
		return fmt.Errorf("%w: option %d", ErrOutOfRange, optionIndex)
	}
	if s.Answers == nil {
		s.Answers = map[int]int{}
	}
	s.Answers[questionIndex] = optionIndex
	return nil
}

// CanShowResults is true once every returned question has an answer.
func (s *Session) CanShowResults() bool {
	if s.State == StateScored {
		return true
	}
	return s.State == StateAnswering && len(s.Questions) > 0 && len(s.Answers) == len(s.Questions)
}

// Score grades the answers and moves the session to scored. Calling it again
// returns the same result.
func (s *Session) Score() (Result, error) {
	if !s.CanShowResults() {
		if s.State == StateAnswering {
			return Result{}, fmt.Errorf("%w: %d of %d", ErrIncomplete, len(s.Answers), len(s.Questions))
		}
		return Result{}, fmt.Errorf("%w: score in %s", ErrInvalidState, s.State)
	}
	res := grade(s.Questions, s.Answers)
	s.Result = &res
	s.State = StateScored
	return res, nil
}

// Restart discards the questions and returns to configuring.
func (s *Session) Restart() {
	s.State = StateConfiguring
	s.Questions = nil
	s.Answers = map[int]int{}
	s.Result = nil
	s.refreshNeedsFile()
}

func grade(questions []models.InteractiveQuestion, answers map[int]int) Result {
	res := Result{Total: len(questions), Marks: make([]Mark, 0, len(questions))}
	for i, q := range questions {
		selected, ok := answers[i]
		if !ok {
			selected = -1
		}
		m := Mark{
			QuestionIndex: i,
			Selected:      selected,
			Correct:       q.CorrectAnswerIndex,
			IsCorrect:     ok && selected == q.CorrectAnswerIndex,
		}
		if m.IsCorrect {
			res.Score++
		}
		res.Marks = append(res.Marks, m)
	}
	return res
}

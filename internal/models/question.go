package models

// StaticQuestion is a question with a free-form answer.
type StaticQuestion struct {
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	Explanation string `json:"explanation"`
}

// InteractiveQuestion is a four-option multiple choice question.
type InteractiveQuestion struct {
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex"`
	Explanation        string   `json:"explanation"`
}

const InteractiveOptionCount = 4

// Valid reports whether the question has exactly four options and an in-range answer index.
func (q InteractiveQuestion) Valid() bool {
	if q.Question == "" || len(q.Options) != InteractiveOptionCount {
		return false
	}
	return q.CorrectAnswerIndex >= 0 && q.CorrectAnswerIndex < len(q.Options)
}

package models

// QuestionKind represents the input style of a clarifying question.
type QuestionKind string

const (
	// QuestionChoice indicates a single-choice question.
	QuestionChoice QuestionKind = "choice"
	// QuestionMultiSelect indicates a multiple-selection question.
	QuestionMultiSelect QuestionKind = "multi_select"
	// QuestionText indicates a free-text question.
	QuestionText QuestionKind = "text"
)

// Valid returns true if the kind is a known value.
func (k QuestionKind) Valid() bool {
	switch k {
	case QuestionChoice, QuestionMultiSelect, QuestionText:
		return true
	default:
		return false
	}
}

// Question is one clarifying question posed during the requirements phase.
type Question struct {
	// ID is the unique identifier for this question.
	ID string `json:"id"`
	// Text is the question shown to the user.
	Text string `json:"text"`
	// Kind controls how the answer is collected.
	Kind QuestionKind `json:"kind"`
	// Options lists the selectable values for choice and multi-select kinds.
	Options []string `json:"options,omitempty"`
}

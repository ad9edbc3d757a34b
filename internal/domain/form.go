package domain

import (
	"slices"
	"strings"
)

// QuestionType tags the closed set of question kinds a form can contain.
// Scoring dispatches on this tag rather than on the Go type of a value.
type QuestionType string

// Supported question types.
const (
	// QuestionNumeric answers carry a single integer.
	QuestionNumeric QuestionType = "NUMERIC"

	// QuestionOpenEnded answers carry free text.
	QuestionOpenEnded QuestionType = "OPEN_ENDED"

	// QuestionMultipleChoice answers carry a set of option labels drawn from
	// the question's option universe.
	QuestionMultipleChoice QuestionType = "MULTIPLE_CHOICE"
)

// Valid reports whether t is one of the supported question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionNumeric, QuestionOpenEnded, QuestionMultipleChoice:
		return true
	default:
		return false
	}
}

// String returns the wire representation of the question type.
func (t QuestionType) String() string { return string(t) }

// Question is a single prompt within a form.
// Questions are immutable once the owning form is published.
type Question struct {
	// ID uniquely identifies the question within its form.
	ID string `json:"id" yaml:"id"`

	// Type selects the scoring strategy used to compare answers.
	Type QuestionType `json:"type" yaml:"type"`

	// Prompt is the text shown to respondents. It plays no part in scoring.
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`

	// Options is the ordered option universe for MULTIPLE_CHOICE questions.
	// It is empty for every other type.
	Options []string `json:"options,omitempty" yaml:"options,omitempty"`
}

// HasOption reports whether label belongs to the question's option universe.
func (q Question) HasOption(label string) bool {
	return slices.Contains(q.Options, label)
}

// Form is a published questionnaire. The affinity engine treats it as
// read-only input.
type Form struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Questions   []Question `json:"questions" yaml:"questions"`
}

// Question looks up a question by identifier.
func (f Form) Question(id string) (Question, bool) {
	for _, q := range f.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// QuestionAnswer is one respondent's answer to one question.
//
// Exactly one value field is meaningful and it must match Type: Numeric for
// NUMERIC, Text for OPEN_ENDED and Choices for MULTIPLE_CHOICE. A nil value
// means the respondent skipped the question, which scoring treats as
// "no signal" rather than as zero or an empty string.
type QuestionAnswer struct {
	QuestionID string       `json:"question_id" yaml:"question_id"`
	Type       QuestionType `json:"type" yaml:"type"`
	Numeric    *int64       `json:"numeric,omitempty" yaml:"numeric,omitempty"`
	Text       *string      `json:"text,omitempty" yaml:"text,omitempty"`
	Choices    []string     `json:"choices,omitempty" yaml:"choices,omitempty"`
}

// NewNumericAnswer builds a populated NUMERIC answer.
func NewNumericAnswer(questionID string, value int64) QuestionAnswer {
	return QuestionAnswer{QuestionID: questionID, Type: QuestionNumeric, Numeric: &value}
}

// NewTextAnswer builds a populated OPEN_ENDED answer.
func NewTextAnswer(questionID, text string) QuestionAnswer {
	return QuestionAnswer{QuestionID: questionID, Type: QuestionOpenEnded, Text: &text}
}

// NewChoiceAnswer builds a MULTIPLE_CHOICE answer selecting the given labels.
func NewChoiceAnswer(questionID string, labels ...string) QuestionAnswer {
	return QuestionAnswer{QuestionID: questionID, Type: QuestionMultipleChoice, Choices: slices.Clone(labels)}
}

// NewSkippedAnswer records that a respondent saw a question but gave no value.
func NewSkippedAnswer(questionID string, t QuestionType) QuestionAnswer {
	return QuestionAnswer{QuestionID: questionID, Type: t}
}

// HasValue reports whether the answer carries a usable value for its type.
// Blank text and empty selections count as absent, so an empty
// MULTIPLE_CHOICE selection is scored like a skip: no signal against any
// other answer, rather than a Jaccard score of 0.
func (qa QuestionAnswer) HasValue() bool {
	switch qa.Type {
	case QuestionNumeric:
		return qa.Numeric != nil
	case QuestionOpenEnded:
		return qa.Text != nil && strings.TrimSpace(*qa.Text) != ""
	case QuestionMultipleChoice:
		return len(qa.Choices) > 0
	default:
		return false
	}
}

// ValueType returns the type implied by whichever value field is set, or
// the empty type when none or more than one is set. An empty selection
// counts as unset.
func (qa QuestionAnswer) ValueType() QuestionType {
	var (
		found QuestionType
		count int
	)
	if qa.Numeric != nil {
		found, count = QuestionNumeric, count+1
	}
	if qa.Text != nil {
		found, count = QuestionOpenEnded, count+1
	}
	if len(qa.Choices) > 0 {
		found, count = QuestionMultipleChoice, count+1
	}
	if count != 1 {
		return ""
	}
	return found
}

// ConsistentValue reports whether the populated value field agrees with the
// declared Type. An answer with no populated value is consistent.
func (qa QuestionAnswer) ConsistentValue() bool {
	if qa.Numeric == nil && qa.Text == nil && len(qa.Choices) == 0 {
		return true
	}
	return qa.ValueType() == qa.Type
}

// Answer is one respondent's completed submission to a form.
type Answer struct {
	ProfileID string           `json:"profile_id" yaml:"profile_id"`
	FormID    string           `json:"form_id" yaml:"form_id"`
	Responses []QuestionAnswer `json:"responses" yaml:"responses"`
}

// Response returns the respondent's answer to the given question, if any.
func (a Answer) Response(questionID string) (QuestionAnswer, bool) {
	for _, qa := range a.Responses {
		if qa.QuestionID == questionID {
			return qa, true
		}
	}
	return QuestionAnswer{}, false
}

// Profile identifies a user. Only the username is used, and only to label
// exported results.
type Profile struct {
	ID       string `json:"id" yaml:"id"`
	Username string `json:"username" yaml:"username"`
}

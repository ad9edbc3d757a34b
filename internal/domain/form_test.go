package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuestionType_Valid(t *testing.T) {
	assert.True(t, QuestionNumeric.Valid())
	assert.True(t, QuestionOpenEnded.Valid())
	assert.True(t, QuestionMultipleChoice.Valid())
	assert.False(t, QuestionType("RATING").Valid())
	assert.False(t, QuestionType("").Valid())
}

func TestForm_Question(t *testing.T) {
	form := Form{
		ID: "f1",
		Questions: []Question{
			{ID: "q1", Type: QuestionNumeric},
			{ID: "q2", Type: QuestionMultipleChoice, Options: []string{"X", "Y"}},
		},
	}

	q, ok := form.Question("q2")
	assert.True(t, ok)
	assert.Equal(t, QuestionMultipleChoice, q.Type)
	assert.True(t, q.HasOption("Y"))
	assert.False(t, q.HasOption("Z"))

	_, ok = form.Question("missing")
	assert.False(t, ok)
}

func TestQuestionAnswer_HasValue(t *testing.T) {
	blank := "   "
	tests := []struct {
		name   string
		answer QuestionAnswer
		want   bool
	}{
		{"numeric set", NewNumericAnswer("q", 0), true},
		{"numeric skipped", NewSkippedAnswer("q", QuestionNumeric), false},
		{"text set", NewTextAnswer("q", "hiking"), true},
		{"text blank", QuestionAnswer{QuestionID: "q", Type: QuestionOpenEnded, Text: &blank}, false},
		{"choices set", NewChoiceAnswer("q", "X"), true},
		{"choices empty", NewChoiceAnswer("q"), false},
		{"unknown type", QuestionAnswer{QuestionID: "q", Type: "RATING"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.answer.HasValue())
		})
	}
}

func TestQuestionAnswer_ConsistentValue(t *testing.T) {
	text := "hello"
	var n int64 = 3

	tests := []struct {
		name   string
		answer QuestionAnswer
		want   bool
	}{
		{"numeric matches", NewNumericAnswer("q", 4), true},
		{"skipped is consistent", NewSkippedAnswer("q", QuestionOpenEnded), true},
		{"empty choices slice is consistent", QuestionAnswer{Type: QuestionNumeric, Numeric: &n, Choices: []string{}}, true},
		{"text under numeric tag", QuestionAnswer{Type: QuestionNumeric, Text: &text}, false},
		{"two values populated", QuestionAnswer{Type: QuestionNumeric, Numeric: &n, Text: &text}, false},
		{"choices under text tag", QuestionAnswer{Type: QuestionOpenEnded, Choices: []string{"X"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.answer.ConsistentValue())
		})
	}
}

func TestNewChoiceAnswer_CopiesLabels(t *testing.T) {
	labels := []string{"X", "Y"}
	qa := NewChoiceAnswer("q", labels...)
	labels[0] = "Z"

	assert.Equal(t, []string{"X", "Y"}, qa.Choices)
}

func TestAnswer_Response(t *testing.T) {
	a := Answer{
		ProfileID: "alice",
		FormID:    "f1",
		Responses: []QuestionAnswer{NewNumericAnswer("q1", 5)},
	}

	qa, ok := a.Response("q1")
	assert.True(t, ok)
	assert.Equal(t, int64(5), *qa.Numeric)

	_, ok = a.Response("q2")
	assert.False(t, ok)
}

package units

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-affinity/internal/domain"
	"github.com/ahrav/go-affinity/internal/ports"
)

var surveyWords = []string{"tea", "coffee", "hiking", "reading", "music", "travel", "code", "chess"}

// generatedSurvey builds a deterministic mixed-type survey with n
// respondents. Roughly one answer in five is skipped.
func generatedSurvey(seed int64, n int) (domain.Form, []domain.Answer) {
	rng := rand.New(rand.NewSource(seed))
	options := []string{"W", "X", "Y", "Z"}
	form := domain.Form{
		ID: fmt.Sprintf("gen-%d", seed),
		Questions: []domain.Question{
			{ID: "age_band", Type: domain.QuestionNumeric},
			{ID: "rating", Type: domain.QuestionNumeric},
			{ID: "hobby", Type: domain.QuestionOpenEnded},
			{ID: "picks", Type: domain.QuestionMultipleChoice, Options: options},
		},
	}

	answers := make([]domain.Answer, 0, n)
	for i := range n {
		a := domain.Answer{ProfileID: fmt.Sprintf("p%03d", i), FormID: form.ID}
		for _, q := range form.Questions {
			if rng.Intn(5) == 0 {
				a.Responses = append(a.Responses, domain.NewSkippedAnswer(q.ID, q.Type))
				continue
			}
			switch q.Type {
			case domain.QuestionNumeric:
				a.Responses = append(a.Responses, domain.NewNumericAnswer(q.ID, int64(rng.Intn(6))))
			case domain.QuestionOpenEnded:
				words := make([]string, 1+rng.Intn(3))
				for w := range words {
					words[w] = surveyWords[rng.Intn(len(surveyWords))]
				}
				a.Responses = append(a.Responses, domain.NewTextAnswer(q.ID, strings.Join(words, " ")))
			case domain.QuestionMultipleChoice:
				var picks []string
				for _, o := range options {
					if rng.Intn(2) == 0 {
						picks = append(picks, o)
					}
				}
				a.Responses = append(a.Responses, domain.NewChoiceAnswer(q.ID, picks...))
			}
		}
		answers = append(answers, a)
	}
	return form, answers
}

// runAffinityUnits executes the full unit chain the way the application
// pipeline does.
func runAffinityUnits(t *testing.T, form domain.Form, answers []domain.Answer, threshold float64, workers int) *domain.AffinityResult {
	t.Helper()

	validation, err := NewSubmissionValidationUnit("validate")
	require.NoError(t, err)
	matrixCfg := DefaultSimilarityMatrixConfig()
	matrixCfg.Workers = workers
	matrix, err := NewSimilarityMatrixUnit("matrix", matrixCfg)
	require.NoError(t, err)
	cluster, err := NewGroupFormationUnit("cluster", GroupFormationConfig{Threshold: threshold})
	require.NoError(t, err)
	rep, err := NewRepresentativeUnit("representative")
	require.NoError(t, err)
	assemble, err := NewAffinityResultUnit("result")
	require.NoError(t, err)

	state := domain.With(domain.With(domain.NewState(), domain.KeyForm, form), domain.KeyAnswers, answers)
	for _, u := range []ports.Unit{validation, matrix, cluster, rep, assemble} {
		state, err = u.Execute(context.Background(), state)
		require.NoError(t, err, "unit %s", u.Name())
	}

	result, ok := domain.Get(state, domain.KeyResult)
	require.True(t, ok)
	return result
}

func TestAffinityUnits_NumericSurveyExample(t *testing.T) {
	form, answers := numericSurvey()
	result := runAffinityUnits(t, form, answers, 0.5, 0)

	assert.Equal(t, "survey", result.FormID)
	assert.Equal(t, 0.5, result.Threshold)
	assert.Equal(t, []domain.AffinityGroup{
		{FormID: "survey", Representative: "A", Members: []string{"A", "B"}},
		{FormID: "survey", Representative: "C", Members: []string{"C"}},
	}, result.Groups)
}

func TestAffinityUnits_SkipAllBecomesSingleton(t *testing.T) {
	form, answers := numericSurvey()
	answers = append(answers, domain.Answer{ProfileID: "D", FormID: form.ID, Responses: []domain.QuestionAnswer{
		domain.NewSkippedAnswer("q1", domain.QuestionNumeric),
		domain.NewSkippedAnswer("q2", domain.QuestionNumeric),
	}})

	result := runAffinityUnits(t, form, answers, 0.5, 0)

	g, ok := result.GroupFor("D")
	require.True(t, ok)
	assert.Equal(t, []string{"D"}, g.Members)
	assert.Equal(t, "D", g.Representative)
	assert.Len(t, result.Groups, 3)
}

// TestAffinityProperties checks the structural invariants of a result over
// randomly generated surveys.
func TestAffinityProperties(t *testing.T) {
	cfg := &quick.Config{MaxCount: 40}

	t.Run("partition and self-containment", func(t *testing.T) {
		err := quick.Check(func(seed int64, size uint8) bool {
			form, answers := generatedSurvey(seed, 1+int(size%25))
			result := runAffinityUnits(t, form, answers, 0.6, 0)

			seen := make(map[string]int)
			for _, g := range result.Groups {
				if len(g.Members) == 0 || !g.Contains(g.Representative) {
					return false
				}
				for _, m := range g.Members {
					seen[m]++
				}
			}
			if len(seen) != len(answers) {
				return false
			}
			for _, a := range answers {
				if seen[a.ProfileID] != 1 {
					return false
				}
			}
			return true
		}, cfg)
		assert.NoError(t, err)
	})

	t.Run("symmetry and range", func(t *testing.T) {
		err := quick.Check(func(seed int64) bool {
			form, answers := generatedSurvey(seed, 12)
			result := runAffinityUnits(t, form, answers, 0.5, 0)
			for _, a := range answers {
				if _, ok := result.Matrix.Get(a.ProfileID, a.ProfileID); ok {
					return false
				}
				for _, b := range answers {
					ab, okAB := result.Matrix.Get(a.ProfileID, b.ProfileID)
					ba, okBA := result.Matrix.Get(b.ProfileID, a.ProfileID)
					if okAB != okBA || ab != ba || ab < 0 || ab > 1 {
						return false
					}
				}
			}
			return true
		}, cfg)
		assert.NoError(t, err)
	})

	t.Run("idempotent and parallel-safe", func(t *testing.T) {
		err := quick.Check(func(seed int64) bool {
			form, answers := generatedSurvey(seed, 15)
			first := runAffinityUnits(t, form, answers, 0.5, 0)
			second := runAffinityUnits(t, form, answers, 0.5, 0)
			parallel := runAffinityUnits(t, form, answers, 0.5, 4)
			return assert.ObjectsAreEqual(first, second) && assert.ObjectsAreEqual(first, parallel)
		}, cfg)
		assert.NoError(t, err)
	})

	t.Run("threshold monotonicity", func(t *testing.T) {
		err := quick.Check(func(seed int64, a, b uint8) bool {
			t1 := 0.05 + 0.9*float64(a)/255
			t2 := 0.05 + 0.9*float64(b)/255
			if t1 > t2 {
				t1, t2 = t2, t1
			}
			form, answers := generatedSurvey(seed, 15)
			low := runAffinityUnits(t, form, answers, t1, 0)
			high := runAffinityUnits(t, form, answers, t2, 0)

			for _, g := range high.Groups {
				parent, ok := low.GroupFor(g.Members[0])
				if !ok {
					return false
				}
				for _, m := range g.Members {
					if !slices.Contains(parent.Members, m) {
						return false
					}
				}
			}
			return len(high.Groups) >= len(low.Groups)
		}, cfg)
		assert.NoError(t, err)
	})
}

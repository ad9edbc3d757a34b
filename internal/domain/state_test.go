package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewState verifies that a new State instance is initialized correctly.
func TestNewState(t *testing.T) {
	state := NewState()

	assert.NotNil(t, state.data, "NewState() should initialize the data map.")
	assert.Empty(t, state.data, "NewState() should create an empty state.")
}

// TestState_Get covers typed retrieval of the values the affinity pipeline
// stores and the handling of missing keys.
func TestState_Get(t *testing.T) {
	tests := []struct {
		name   string
		setup  func() State
		assert func(t *testing.T, state State)
	}{
		{
			name: "get threshold",
			setup: func() State {
				return With(NewState(), KeyThreshold, 0.5)
			},
			assert: func(t *testing.T, state State) {
				got, ok := Get(state, KeyThreshold)
				assert.True(t, ok, "Get() should find an existing key.")
				assert.Equal(t, 0.5, got)
			},
		},
		{
			name:  "get non-existent key",
			setup: NewState,
			assert: func(t *testing.T, state State) {
				_, ok := Get(state, KeyForm)
				assert.False(t, ok, "Get() should not find a non-existent key.")
			},
		},
		{
			name: "get answers with skipped values",
			setup: func() State {
				answers := []Answer{
					{ProfileID: "a", FormID: "f", Responses: []QuestionAnswer{NewNumericAnswer("q1", 3)}},
					{ProfileID: "b", FormID: "f", Responses: []QuestionAnswer{NewSkippedAnswer("q1", QuestionNumeric)}},
				}
				return With(NewState(), KeyAnswers, answers)
			},
			assert: func(t *testing.T, state State) {
				got, ok := Get(state, KeyAnswers)
				require.True(t, ok)
				require.Len(t, got, 2)
				require.NotNil(t, got[0].Responses[0].Numeric)
				assert.Equal(t, int64(3), *got[0].Responses[0].Numeric)
				assert.Nil(t, got[1].Responses[0].Numeric, "Skipped values must stay absent after copying.")
			},
		},
		{
			name: "get similarity matrix",
			setup: func() State {
				m := NewSimilarityMatrix("f")
				m.Set("b", "a", 0.75)
				return With(NewState(), KeySimilarityMatrix, m)
			},
			assert: func(t *testing.T, state State) {
				got, ok := Get(state, KeySimilarityMatrix)
				require.True(t, ok)
				v, defined := got.Get("a", "b")
				assert.True(t, defined)
				assert.Equal(t, 0.75, v)
				assert.Equal(t, "f", got.FormID)
			},
		},
		{
			name: "get result pointer",
			setup: func() State {
				result := &AffinityResult{FormID: "f", Threshold: 0.5}
				return With(NewState(), KeyResult, result)
			},
			assert: func(t *testing.T, state State) {
				got, ok := Get(state, KeyResult)
				require.True(t, ok)
				require.NotNil(t, got)
				assert.Equal(t, "f", got.FormID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assert(t, tt.setup())
		})
	}
}

// TestState_With verifies that With is copy-on-write.
func TestState_With(t *testing.T) {
	original := NewState()

	updated := With(original, KeyThreshold, 0.4)

	_, ok := Get(original, KeyThreshold)
	assert.False(t, ok, "With() should not modify the original state.")

	got, ok := Get(updated, KeyThreshold)
	require.True(t, ok)
	assert.Equal(t, 0.4, got)

	updated2 := With(updated, KeyThreshold, 0.9)
	v, _ := Get(updated, KeyThreshold)
	assert.Equal(t, 0.4, v, "With() should not modify the previous state when updating.")
	v2, _ := Get(updated2, KeyThreshold)
	assert.Equal(t, 0.9, v2)
}

// TestState_WithMultiple tests the batch update functionality of a State instance.
func TestState_WithMultiple(t *testing.T) {
	original := NewState()
	form := Form{ID: "f", Questions: []Question{{ID: "q1", Type: QuestionNumeric}}}

	updated := original.WithMultiple(map[string]any{
		KeyForm.name:      form,
		KeyThreshold.name: 0.5,
	})

	assert.Empty(t, original.Keys(), "WithMultiple() should not modify the original state.")

	gotForm, ok := Get(updated, KeyForm)
	require.True(t, ok)
	assert.Equal(t, form, gotForm)

	threshold, ok := Get(updated, KeyThreshold)
	require.True(t, ok)
	assert.Equal(t, 0.5, threshold)
	assert.ElementsMatch(t, []string{KeyForm.name, KeyThreshold.name}, updated.Keys())
}

// TestState_Immutability verifies that modifications to retrieved or source
// values do not leak into the State.
func TestState_Immutability(t *testing.T) {
	t.Run("source slice mutation", func(t *testing.T) {
		ids := []string{"a", "b", "c"}
		state := With(NewState(), KeyRespondents, ids)

		ids[0] = "modified"

		got, ok := Get(state, KeyRespondents)
		require.True(t, ok)
		assert.Equal(t, "a", got[0])
	})

	t.Run("retrieved matrix mutation", func(t *testing.T) {
		m := NewSimilarityMatrix("f")
		m.Set("a", "b", 0.5)
		state := With(NewState(), KeySimilarityMatrix, m)

		got, _ := Get(state, KeySimilarityMatrix)
		got.Set("a", "b", 0.1)
		got.Set("a", "c", 0.9)

		again, _ := Get(state, KeySimilarityMatrix)
		v, _ := again.Get("a", "b")
		assert.Equal(t, 0.5, v)
		assert.Equal(t, 1, again.Len())
	})

	t.Run("nested components mutation", func(t *testing.T) {
		state := With(NewState(), KeyComponents, [][]string{{"a", "b"}, {"c"}})

		got, _ := Get(state, KeyComponents)
		got[0][0] = "z"

		again, _ := Get(state, KeyComponents)
		assert.Equal(t, "a", again[0][0])
	})
}

// TestState_String verifies that String produces a debug representation.
func TestState_String(t *testing.T) {
	state := With(NewState(), KeyFormID, "f1")
	assert.Contains(t, state.String(), "State")
}

// TestState_ConcurrentAccess verifies that independent writers derive
// independent states from a shared base.
func TestState_ConcurrentAccess(t *testing.T) {
	baseState := With(NewState(), KeyFormID, "initial")

	const numWriters = 50
	states := make([]State, numWriters)
	done := make(chan bool, numWriters)

	for i := 0; i < numWriters; i++ {
		go func(id int) {
			defer func() { done <- true }()

			writerKey := Key[int]{fmt.Sprintf("writer_%d", id)}
			states[id] = With(baseState, writerKey, id)

			formID, ok := Get(baseState, KeyFormID)
			assert.True(t, ok, "Writer %d: Base should have the form id.", id)
			assert.Equal(t, "initial", formID, "Writer %d: Base should be unchanged.", id)
		}(i)
	}

	for i := 0; i < numWriters; i++ {
		<-done
	}

	for i := 0; i < numWriters; i++ {
		assert.Len(t, states[i].Keys(), 2, "State %d should have 2 keys.", i)
	}
}

// TestState_ExecutionContext verifies round-tripping execution metadata.
func TestState_ExecutionContext(t *testing.T) {
	ctx := ExecutionContext{
		PipelineID:  "affinity",
		FormID:      "form-1",
		ExecutionID: "exec-1",
	}

	state := NewState().WithExecutionContext(ctx)

	got, ok := state.GetExecutionContext()
	require.True(t, ok)
	assert.Equal(t, ctx, got)

	_, ok = NewState().GetExecutionContext()
	assert.False(t, ok, "An empty state has no execution context.")
}

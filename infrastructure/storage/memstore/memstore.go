// Package memstore keeps forms, answers and profiles in memory. It backs
// tests and the one-shot CLI, where a dataset is loaded once and read many
// times.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ahrav/go-affinity/internal/domain"
	"github.com/ahrav/go-affinity/internal/ports"
)

var (
	_ ports.FormRepository    = (*Store)(nil)
	_ ports.AnswerRepository  = (*Store)(nil)
	_ ports.ProfileRepository = (*Store)(nil)
)

// Store is a concurrency-safe in-memory repository. Values are copied on
// the way in and out, so callers never share slices with the store.
type Store struct {
	mu       sync.RWMutex
	forms    map[string]domain.Form
	answers  map[string]map[string]domain.Answer // form ID -> profile ID -> answer
	profiles map[string]domain.Profile
}

// New creates an empty store.
func New() *Store {
	return &Store{
		forms:    make(map[string]domain.Form),
		answers:  make(map[string]map[string]domain.Answer),
		profiles: make(map[string]domain.Profile),
	}
}

// SaveForm inserts or replaces a form.
func (s *Store) SaveForm(_ context.Context, form domain.Form) error {
	if form.ID == "" {
		return fmt.Errorf("%w: form id is empty", domain.ErrInvalidConfiguration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.forms[form.ID] = cloneForm(form)
	return nil
}

// SaveAnswer stores a submission. A later submission from the same
// profile for the same form replaces the earlier one.
func (s *Store) SaveAnswer(_ context.Context, answer domain.Answer) error {
	if answer.FormID == "" || answer.ProfileID == "" {
		return fmt.Errorf("%w: answer needs a form id and a profile id", domain.ErrInvalidAnswer)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.forms[answer.FormID]; !ok {
		return fmt.Errorf("form %s: %w", answer.FormID, domain.ErrFormNotFound)
	}
	byProfile, ok := s.answers[answer.FormID]
	if !ok {
		byProfile = make(map[string]domain.Answer)
		s.answers[answer.FormID] = byProfile
	}
	byProfile[answer.ProfileID] = cloneAnswer(answer)
	return nil
}

// SaveProfile inserts or replaces a profile.
func (s *Store) SaveProfile(_ context.Context, profile domain.Profile) error {
	if profile.ID == "" {
		return fmt.Errorf("%w: profile id is empty", domain.ErrInvalidConfiguration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.ID] = profile
	return nil
}

// GetForm returns the form or an error wrapping domain.ErrFormNotFound.
func (s *Store) GetForm(_ context.Context, formID string) (domain.Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	form, ok := s.forms[formID]
	if !ok {
		return domain.Form{}, fmt.Errorf("form %s: %w", formID, domain.ErrFormNotFound)
	}
	return cloneForm(form), nil
}

// ListAnswers returns the form's submissions ordered by profile ID.
func (s *Store) ListAnswers(_ context.Context, formID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byProfile := s.answers[formID]
	answers := make([]domain.Answer, 0, len(byProfile))
	for _, a := range byProfile {
		answers = append(answers, cloneAnswer(a))
	}
	slices.SortFunc(answers, func(a, b domain.Answer) int {
		return strings.Compare(a.ProfileID, b.ProfileID)
	})
	return answers, nil
}

// GetProfiles returns the known profiles among ids.
func (s *Store) GetProfiles(_ context.Context, ids []string) (map[string]domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.Profile, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func cloneForm(f domain.Form) domain.Form {
	questions := make([]domain.Question, len(f.Questions))
	for i, q := range f.Questions {
		q.Options = slices.Clone(q.Options)
		questions[i] = q
	}
	f.Questions = questions
	return f
}

func cloneAnswer(a domain.Answer) domain.Answer {
	responses := make([]domain.QuestionAnswer, len(a.Responses))
	for i, qa := range a.Responses {
		qa.Choices = slices.Clone(qa.Choices)
		if qa.Numeric != nil {
			n := *qa.Numeric
			qa.Numeric = &n
		}
		if qa.Text != nil {
			t := *qa.Text
			qa.Text = &t
		}
		responses[i] = qa
	}
	a.Responses = responses
	return a
}

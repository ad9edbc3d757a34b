package units

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-affinity/internal/domain"
	"github.com/ahrav/go-affinity/internal/ports"
)

var _ ports.Unit = (*SubmissionValidationUnit)(nil)

// SubmissionValidationUnit checks a form and its submissions for structural
// integrity before any scoring happens, so that a corrupt input fails loudly
// instead of silently skewing the similarity matrix.
//
// A type disagreement between an answer and its question is reported as a
// *domain.ScoringError. Every other defect is collected into one
// *domain.ValidationError wrapping domain.ErrInvalidAnswer, or
// domain.ErrInvalidConfiguration for defects in the form itself.
type SubmissionValidationUnit struct {
	name   string
	tracer trace.Tracer
}

// NewSubmissionValidationUnit creates a validation stage.
func NewSubmissionValidationUnit(name string) (*SubmissionValidationUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	return &SubmissionValidationUnit{
		name:   name,
		tracer: otel.Tracer("submission-validation-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *SubmissionValidationUnit) Name() string { return u.name }

// Execute validates domain.KeyForm and domain.KeyAnswers and returns the
// state unchanged on success.
func (u *SubmissionValidationUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := u.tracer.Start(ctx, "SubmissionValidationUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "submission_validation"),
			attribute.String("unit.id", u.name),
		),
	)
	defer span.End()

	form, ok := domain.Get(state, domain.KeyForm)
	if !ok {
		err := domain.MissingKeyError(domain.KeyForm, "SubmissionValidationUnit.Execute")
		span.RecordError(err)
		return state, err
	}
	answers, ok := domain.Get(state, domain.KeyAnswers)
	if !ok {
		err := domain.MissingKeyError(domain.KeyAnswers, "SubmissionValidationUnit.Execute")
		span.RecordError(err)
		return state, err
	}

	span.SetAttributes(
		attribute.String("affinity.form_id", form.ID),
		attribute.Int("affinity.respondents", len(answers)),
		attribute.Int("affinity.questions", len(form.Questions)),
	)

	if err := ValidateForm(form); err != nil {
		span.RecordError(err)
		return state, err
	}
	if err := ValidateSubmissions(form, answers); err != nil {
		span.RecordError(err)
		return state, err
	}
	return state, nil
}

// Validate has nothing to check; the unit carries no configuration.
func (u *SubmissionValidationUnit) Validate() error { return nil }

// ValidateForm checks that every question has a unique identifier and a
// supported type, and that MULTIPLE_CHOICE questions offer options.
func ValidateForm(form domain.Form) error {
	verr := domain.NewValidationError("Form", domain.ErrInvalidConfiguration)
	if form.ID == "" {
		verr.AddError("form id is empty")
	}

	seen := make(map[string]struct{}, len(form.Questions))
	for i, q := range form.Questions {
		if q.ID == "" {
			verr.AddErrorf("question %d has an empty id", i)
			continue
		}
		if _, dup := seen[q.ID]; dup {
			verr.AddErrorf("duplicate question id %s", q.ID)
		}
		seen[q.ID] = struct{}{}

		if !q.Type.Valid() {
			verr.AddErrorf("question %s has unsupported type %q", q.ID, q.Type)
		}
		if q.Type == domain.QuestionMultipleChoice && len(q.Options) == 0 {
			verr.AddErrorf("question %s offers no options", q.ID)
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// ValidateSubmissions checks every answer against form.
func ValidateSubmissions(form domain.Form, answers []domain.Answer) error {
	if len(answers) > MaxRespondents {
		return fmt.Errorf("%w: %d exceeds limit of %d", ErrTooManyRespondents, len(answers), MaxRespondents)
	}

	verr := domain.NewValidationError("Answer", domain.ErrInvalidAnswer)
	profiles := make(map[string]struct{}, len(answers))

	for _, a := range answers {
		if a.ProfileID == "" {
			verr.AddError("submission with empty profile id")
			continue
		}
		if _, dup := profiles[a.ProfileID]; dup {
			verr.AddErrorf("duplicate submission from profile %s", a.ProfileID)
		}
		profiles[a.ProfileID] = struct{}{}

		if a.FormID != form.ID {
			verr.AddErrorf("profile %s answered form %s, not %s", a.ProfileID, a.FormID, form.ID)
		}

		questions := make(map[string]struct{}, len(a.Responses))
		for _, qa := range a.Responses {
			if _, dup := questions[qa.QuestionID]; dup {
				verr.AddErrorf("profile %s answered question %s more than once", a.ProfileID, qa.QuestionID)
			}
			questions[qa.QuestionID] = struct{}{}

			q, ok := form.Question(qa.QuestionID)
			if !ok {
				verr.AddErrorf("profile %s answered unknown question %s", a.ProfileID, qa.QuestionID)
				continue
			}

			if qa.Type != q.Type {
				return domain.NewTypeMismatchError(q.ID, a.ProfileID, q.Type, qa.Type)
			}
			if !qa.ConsistentValue() {
				return fmt.Errorf("value %s: %w", describeAnswer(qa),
					domain.NewTypeMismatchError(q.ID, a.ProfileID, q.Type, qa.ValueType()))
			}

			switch q.Type {
			case domain.QuestionMultipleChoice:
				for _, label := range qa.Choices {
					if !q.HasOption(label) {
						verr.AddErrorf("profile %s selected %q, which question %s does not offer", a.ProfileID, label, q.ID)
					}
				}
			case domain.QuestionOpenEnded:
				if qa.Text != nil && len(*qa.Text) > MaxStringLength {
					verr.AddErrorf("profile %s answer to %s is %d bytes, limit %d",
						a.ProfileID, q.ID, len(*qa.Text), MaxStringLength)
				}
			}
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// Package application wires the affinity units into a pipeline and exposes
// the operations callers use: compute a result, read a respondent's active
// group, and export a result.
package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-affinity/internal/domain"
	"github.com/ahrav/go-affinity/internal/ports"
)

// ErrNoActiveResult is returned when no result has been computed for a form.
var ErrNoActiveResult = errors.New("no active affinity result")

// ErrNotRespondent is returned when a profile is not a member of any group
// of the active result.
var ErrNotRespondent = errors.New("profile is not a respondent of the form")

// ServiceDeps collects the collaborators of an AffinityService. Forms and
// Answers are required; the rest are optional.
type ServiceDeps struct {
	Forms    ports.FormRepository
	Answers  ports.AnswerRepository
	Profiles ports.ProfileRepository
	// Store remembers the last result per form. Without it, ActiveGroup
	// always reports ErrNoActiveResult.
	Store     ports.ActiveGroupStore
	Observer  ports.ComputeObserver
	Exporters []ports.ResultExporter
}

// AffinityService computes affinity results for forms. Concurrent
// ComputeAffinity calls for the same form share one computation.
type AffinityService struct {
	forms     ports.FormRepository
	answers   ports.AnswerRepository
	profiles  ports.ProfileRepository
	store     ports.ActiveGroupStore
	observer  ports.ComputeObserver
	exporters map[string]ports.ResultExporter
	pipeline  ports.Pipeline
	tracer    trace.Tracer
	sf        singleflight.Group
}

// NewAffinityService creates a service that runs pipeline for every
// computation.
func NewAffinityService(deps ServiceDeps, pipeline ports.Pipeline) (*AffinityService, error) {
	if deps.Forms == nil || deps.Answers == nil {
		return nil, fmt.Errorf("%w: form and answer repositories are required", domain.ErrInvalidConfiguration)
	}
	if pipeline == nil {
		return nil, fmt.Errorf("%w: pipeline is required", domain.ErrInvalidConfiguration)
	}

	exporters := make(map[string]ports.ResultExporter, len(deps.Exporters))
	for _, e := range deps.Exporters {
		exporters[e.Format()] = e
	}

	return &AffinityService{
		forms:     deps.Forms,
		answers:   deps.Answers,
		profiles:  deps.Profiles,
		store:     deps.Store,
		observer:  deps.Observer,
		exporters: exporters,
		pipeline:  pipeline,
		tracer:    otel.Tracer("affinity-service"),
	}, nil
}

// NewAffinityServiceFromConfig builds the default pipeline from cfg, or
// loads cfg.PipelineFile when set, and creates a service around it.
func NewAffinityServiceFromConfig(ctx context.Context, cfg AffinityConfig, deps ServiceDeps) (*AffinityService, error) {
	loader, err := NewPipelineLoader(NewDefaultUnitRegistry())
	if err != nil {
		return nil, err
	}

	var pipeline *Pipeline
	if cfg.PipelineFile != "" {
		pipeline, err = loader.LoadFromFile(ctx, cfg.PipelineFile)
	} else {
		var def *PipelineDefinition
		def, err = DefaultPipelineDefinition(cfg)
		if err == nil {
			pipeline, err = loader.Build(ctx, def)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build affinity pipeline: %w", err)
	}

	return NewAffinityService(deps, pipeline)
}

// ComputeAffinity loads the form and its submissions, computes a fresh
// result and records it as the form's active result.
//
// It fails with domain.ErrFormNotFound when the form does not exist and
// with domain.ErrNoAnswers when nobody has answered it. Concurrent calls for
// one form share a computation, but each caller receives its own copy and
// may stop waiting when its ctx is done without affecting the others.
func (s *AffinityService) ComputeAffinity(ctx context.Context, formID string) (*domain.AffinityResult, error) {
	// Detached: one caller's cancellation must not fail the others.
	ch := s.sf.DoChan(formID, func() (any, error) {
		return s.computeAndStore(context.WithoutCancel(ctx), formID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		result := res.Val.(*domain.AffinityResult).Clone()
		return &result, nil
	}
}

func (s *AffinityService) computeAndStore(ctx context.Context, formID string) (*domain.AffinityResult, error) {
	ctx, span := s.tracer.Start(ctx, "AffinityService.ComputeAffinity",
		trace.WithAttributes(attribute.String("affinity.form_id", formID)))
	defer span.End()

	form, err := s.forms.GetForm(ctx, formID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "form lookup failed")
		return nil, fmt.Errorf("failed to load form %s: %w", formID, err)
	}

	answers, err := s.answers.ListAnswers(ctx, formID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "answer lookup failed")
		return nil, fmt.Errorf("failed to load answers for form %s: %w", formID, err)
	}

	result, err := s.ComputeAffinityFor(ctx, form, answers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "computation failed")
		return nil, err
	}

	if s.store != nil {
		if err := s.store.SetActive(ctx, *result); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "store failed")
			return nil, fmt.Errorf("failed to store active result for form %s: %w", formID, err)
		}
	}

	span.SetAttributes(attribute.Int("affinity.group_count", len(result.Groups)))
	return result, nil
}

// ComputeAffinityFor runs the pipeline over an already loaded form and its
// submissions. It performs no I/O and does not touch the active store.
func (s *AffinityService) ComputeAffinityFor(ctx context.Context, form domain.Form, answers []domain.Answer) (_ *domain.AffinityResult, err error) {
	if len(answers) == 0 {
		return nil, fmt.Errorf("form %s: %w", form.ID, domain.ErrNoAnswers)
	}

	start := time.Now()
	var result *domain.AffinityResult
	if s.observer != nil {
		s.observer.ComputeStarted(ctx, form.ID, len(answers))
		defer func() {
			s.observer.ComputeFinished(ctx, form.ID, result, err, time.Since(start))
		}()
	}

	state := domain.With(domain.With(domain.NewState(), domain.KeyForm, form), domain.KeyAnswers, answers).
		WithExecutionContext(domain.ExecutionContext{
			PipelineID:  s.pipeline.ID(),
			FormID:      form.ID,
			ExecutionID: uuid.NewString(),
		})

	final, err := s.pipeline.Execute(ctx, state)
	if err != nil {
		return nil, err
	}

	result, ok := domain.Get(final, domain.KeyResult)
	if !ok || result == nil {
		err = domain.MissingKeyError(domain.KeyResult, "AffinityService.ComputeAffinityFor")
		return nil, err
	}
	return result, nil
}

// ActiveGroup returns the group containing profileID in the form's active
// result.
func (s *AffinityService) ActiveGroup(ctx context.Context, formID, profileID string) (domain.AffinityGroup, error) {
	result, err := s.ActiveResult(ctx, formID)
	if err != nil {
		return domain.AffinityGroup{}, err
	}

	group, ok := result.GroupFor(profileID)
	if !ok {
		return domain.AffinityGroup{}, fmt.Errorf("form %s, profile %s: %w", formID, profileID, ErrNotRespondent)
	}
	return group, nil
}

// ActiveResult returns the form's active result.
func (s *AffinityService) ActiveResult(ctx context.Context, formID string) (domain.AffinityResult, error) {
	if s.store == nil {
		return domain.AffinityResult{}, fmt.Errorf("form %s: %w", formID, ErrNoActiveResult)
	}

	result, ok, err := s.store.Active(ctx, formID)
	if err != nil {
		return domain.AffinityResult{}, fmt.Errorf("failed to read active result for form %s: %w", formID, err)
	}
	if !ok {
		return domain.AffinityResult{}, fmt.Errorf("form %s: %w", formID, ErrNoActiveResult)
	}
	return result, nil
}

// ExportResult renders result to w in the named format. Members are
// labelled with usernames when a profile repository is configured.
func (s *AffinityService) ExportResult(ctx context.Context, result domain.AffinityResult, w io.Writer, format string) error {
	exporter, ok := s.exporters[format]
	if !ok {
		return fmt.Errorf("export format %q: %w", format, ports.ErrUnsupportedFormat)
	}

	var profiles map[string]domain.Profile
	if s.profiles != nil {
		var err error
		profiles, err = s.profiles.GetProfiles(ctx, result.Respondents())
		if err != nil {
			return fmt.Errorf("failed to load profiles for export: %w", err)
		}
	}

	if err := exporter.Export(w, result.Export(profiles)); err != nil {
		return fmt.Errorf("failed to export result as %s: %w", format, err)
	}
	return nil
}

// ExportFormats lists the configured export formats.
func (s *AffinityService) ExportFormats() []string {
	return slices.Sorted(maps.Keys(s.exporters))
}

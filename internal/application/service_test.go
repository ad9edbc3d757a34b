package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-affinity/infrastructure/cache"
	"github.com/ahrav/go-affinity/infrastructure/export"
	"github.com/ahrav/go-affinity/infrastructure/storage/memstore"
	"github.com/ahrav/go-affinity/internal/domain"
	"github.com/ahrav/go-affinity/internal/ports"
)

func numericSurvey() (domain.Form, []domain.Answer) {
	form := domain.Form{
		ID:    "survey",
		Title: "Two ratings",
		Questions: []domain.Question{
			{ID: "q1", Type: domain.QuestionNumeric},
			{ID: "q2", Type: domain.QuestionNumeric},
		},
	}
	mk := func(id string, v1, v2 int64) domain.Answer {
		return domain.Answer{ProfileID: id, FormID: form.ID, Responses: []domain.QuestionAnswer{
			domain.NewNumericAnswer("q1", v1),
			domain.NewNumericAnswer("q2", v2),
		}}
	}
	return form, []domain.Answer{mk("A", 5, 5), mk("B", 5, 4), mk("C", 1, 1)}
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []int
	finished []error
}

func (o *recordingObserver) ComputeStarted(_ context.Context, _ string, respondents int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, respondents)
}

func (o *recordingObserver) ComputeFinished(_ context.Context, _ string, _ *domain.AffinityResult, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, err)
}

type serviceFixture struct {
	svc      *AffinityService
	repo     *memstore.Store
	store    *cache.MemoryStore
	observer *recordingObserver
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	ctx := context.Background()

	repo := memstore.New()
	form, answers := numericSurvey()
	require.NoError(t, repo.SaveForm(ctx, form))
	for _, a := range answers {
		require.NoError(t, repo.SaveAnswer(ctx, a))
	}
	require.NoError(t, repo.SaveForm(ctx, domain.Form{ID: "empty", Questions: form.Questions}))
	require.NoError(t, repo.SaveProfile(ctx, domain.Profile{ID: "A", Username: "ada"}))

	store := cache.NewMemoryStore(0)
	observer := &recordingObserver{}

	svc, err := NewAffinityServiceFromConfig(ctx, DefaultConfig().Affinity, ServiceDeps{
		Forms:     repo,
		Answers:   repo,
		Profiles:  repo,
		Store:     store,
		Observer:  observer,
		Exporters: export.All(),
	})
	require.NoError(t, err)

	return serviceFixture{svc: svc, repo: repo, store: store, observer: observer}
}

func TestAffinityService_ComputeAffinity(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	result, err := f.svc.ComputeAffinity(ctx, "survey")
	require.NoError(t, err)

	assert.Equal(t, []domain.AffinityGroup{
		{FormID: "survey", Representative: "A", Members: []string{"A", "B"}},
		{FormID: "survey", Representative: "C", Members: []string{"C"}},
	}, result.Groups)

	score, ok := result.Matrix.Get("A", "B")
	require.True(t, ok)
	assert.InDelta(t, 0.875, score, 1e-9)

	active, ok, err := f.store.Active(ctx, "survey")
	require.NoError(t, err)
	require.True(t, ok, "computed result becomes active")
	assert.Equal(t, result.Groups, active.Groups)

	assert.Equal(t, []int{3}, f.observer.started)
	assert.Equal(t, []error{nil}, f.observer.finished)

	again, err := f.svc.ComputeAffinity(ctx, "survey")
	require.NoError(t, err)
	assert.Equal(t, result, again, "recomputation is idempotent")
}

func TestAffinityService_ComputeAffinityErrors(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.ComputeAffinity(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrFormNotFound)

	_, err = f.svc.ComputeAffinity(ctx, "empty")
	assert.ErrorIs(t, err, domain.ErrNoAnswers)

	require.NoError(t, f.repo.SaveAnswer(ctx, domain.Answer{ProfileID: "D", FormID: "survey", Responses: []domain.QuestionAnswer{
		domain.NewTextAnswer("q1", "five"),
	}}))
	_, err = f.svc.ComputeAffinity(ctx, "survey")
	assert.ErrorIs(t, err, domain.ErrScoringTypeMismatch)

	var serr *domain.ScoringError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "D", serr.ProfileID)

	_, ok, err := f.store.Active(ctx, "survey")
	require.NoError(t, err)
	assert.False(t, ok, "failed computations leave no active result")

	require.Len(t, f.observer.finished, 1)
	assert.ErrorIs(t, f.observer.finished[0], domain.ErrScoringTypeMismatch)
}

func TestAffinityService_ComputeAffinityFor(t *testing.T) {
	f := newServiceFixture(t)
	form, answers := numericSurvey()

	result, err := f.svc.ComputeAffinityFor(context.Background(), form, answers)
	require.NoError(t, err)
	assert.Len(t, result.Groups, 2)

	_, ok, err := f.store.Active(context.Background(), form.ID)
	require.NoError(t, err)
	assert.False(t, ok, "ComputeAffinityFor does not touch the store")

	_, err = f.svc.ComputeAffinityFor(context.Background(), form, nil)
	assert.ErrorIs(t, err, domain.ErrNoAnswers)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.svc.ComputeAffinityFor(ctx, form, answers)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAffinityService_ActiveGroup(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.ActiveGroup(ctx, "survey", "A")
	assert.ErrorIs(t, err, ErrNoActiveResult)

	_, err = f.svc.ComputeAffinity(ctx, "survey")
	require.NoError(t, err)

	group, err := f.svc.ActiveGroup(ctx, "survey", "B")
	require.NoError(t, err)
	assert.Equal(t, "A", group.Representative)
	assert.Equal(t, []string{"A", "B"}, group.Members)

	_, err = f.svc.ActiveGroup(ctx, "survey", "Z")
	assert.ErrorIs(t, err, ErrNotRespondent)
}

func TestAffinityService_ExportResult(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	result, err := f.svc.ComputeAffinity(ctx, "survey")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.svc.ExportResult(ctx, *result, &buf, export.FormatJSON))

	var rec domain.ExportRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "survey", rec.FormID)
	require.Len(t, rec.Groups, 2)
	assert.Equal(t, domain.ExportMember{ProfileID: "A", Username: "ada"}, rec.Groups[0].Representative)
	assert.Equal(t, []domain.PairScore{
		{A: "A", B: "B", Score: 0.875},
		{A: "A", B: "C", Score: 0},
		{A: "B", B: "C", Score: 0.125},
	}, rec.Matrix)

	err = f.svc.ExportResult(ctx, *result, &buf, "csv")
	assert.ErrorIs(t, err, ports.ErrUnsupportedFormat)

	assert.Equal(t, []string{"json", "yaml"}, f.svc.ExportFormats())
}

// countingAnswers delays ListAnswers so concurrent callers overlap.
type countingAnswers struct {
	ports.AnswerRepository
	calls atomic.Int32
}

func (c *countingAnswers) ListAnswers(ctx context.Context, formID string) ([]domain.Answer, error) {
	c.calls.Add(1)
	time.Sleep(20 * time.Millisecond)
	return c.AnswerRepository.ListAnswers(ctx, formID)
}

func TestAffinityService_ConcurrentComputeShared(t *testing.T) {
	ctx := context.Background()
	repo := memstore.New()
	form, answers := numericSurvey()
	require.NoError(t, repo.SaveForm(ctx, form))
	for _, a := range answers {
		require.NoError(t, repo.SaveAnswer(ctx, a))
	}

	counting := &countingAnswers{AnswerRepository: repo}
	svc, err := NewAffinityServiceFromConfig(ctx, DefaultConfig().Affinity, ServiceDeps{Forms: repo, Answers: counting})
	require.NoError(t, err)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.ComputeAffinity(ctx, "survey")
			assert.NoError(t, err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Less(t, counting.calls.Load(), int32(5))
}

// gatedAnswers blocks ListAnswers until release is closed or the call's
// context is done.
type gatedAnswers struct {
	ports.AnswerRepository
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	calls   atomic.Int32
}

func (g *gatedAnswers) ListAnswers(ctx context.Context, formID string) ([]domain.Answer, error) {
	g.calls.Add(1)
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.AnswerRepository.ListAnswers(ctx, formID)
}

func TestAffinityService_CancelledCallerDoesNotFailOthers(t *testing.T) {
	ctx := context.Background()
	repo := memstore.New()
	form, answers := numericSurvey()
	require.NoError(t, repo.SaveForm(ctx, form))
	for _, a := range answers {
		require.NoError(t, repo.SaveAnswer(ctx, a))
	}

	gate := &gatedAnswers{AnswerRepository: repo, entered: make(chan struct{}), release: make(chan struct{})}
	svc, err := NewAffinityServiceFromConfig(ctx, DefaultConfig().Affinity, ServiceDeps{Forms: repo, Answers: gate})
	require.NoError(t, err)

	cancelCtx, cancel := context.WithCancel(ctx)
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.ComputeAffinity(cancelCtx, "survey")
		firstErr <- err
	}()
	<-gate.entered

	type outcome struct {
		result *domain.AffinityResult
		err    error
	}
	others := make(chan outcome, 2)
	for range 2 {
		go func() {
			r, err := svc.ComputeAffinity(ctx, "survey")
			others <- outcome{r, err}
		}()
	}
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(gate.release)
	a, b := <-others, <-others
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	assert.Equal(t, int32(1), gate.calls.Load(), "callers share one computation")
	assert.Equal(t, a.result, b.result)

	a.result.Groups[0].Members[0] = "Z"
	clear(a.result.Matrix.Scores)
	assert.Equal(t, []string{"A", "B"}, b.result.Groups[0].Members, "each caller owns its result")
	assert.Equal(t, 3, b.result.Matrix.Len())
}

func TestNewAffinityService_Validation(t *testing.T) {
	_, err := NewAffinityService(ServiceDeps{}, NewPipeline("p"))
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	repo := memstore.New()
	_, err = NewAffinityService(ServiceDeps{Forms: repo, Answers: repo}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	svc, err := NewAffinityService(ServiceDeps{Forms: repo, Answers: repo}, NewPipeline("p"))
	require.NoError(t, err)
	_, err = svc.ActiveResult(context.Background(), "f")
	assert.True(t, errors.Is(err, ErrNoActiveResult), "no store means no active result")
}

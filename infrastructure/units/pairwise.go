package units

import (
	"errors"
	"fmt"

	"github.com/ahrav/go-affinity/internal/domain"
)

// PairwiseAggregator combines the per-question scores of two respondents
// into one composite similarity.
//
// Questions are visited in form order. A question either respondent did not
// answer, or skipped, contributes no signal and is excluded. When no question
// yields a score the pair has no overlap: Aggregate reports ok == false with
// a nil error, which is a defined outcome and distinct from a similarity of 0.
type PairwiseAggregator struct {
	scorer     *QuestionScorer
	aggregator domain.Aggregator
}

// NewPairwiseAggregator wires a scorer to an aggregation rule. A nil
// aggregator defaults to MeanAggregator.
func NewPairwiseAggregator(scorer *QuestionScorer, aggregator domain.Aggregator) *PairwiseAggregator {
	if aggregator == nil {
		aggregator = MeanAggregator{}
	}
	return &PairwiseAggregator{scorer: scorer, aggregator: aggregator}
}

// respondent is an Answer indexed by question identifier.
type respondent struct {
	id        string
	responses map[string]domain.QuestionAnswer
}

func indexAnswer(a domain.Answer) respondent {
	r := respondent{id: a.ProfileID, responses: make(map[string]domain.QuestionAnswer, len(a.Responses))}
	for _, qa := range a.Responses {
		r.responses[qa.QuestionID] = qa
	}
	return r
}

// Aggregate scores respondents a and b over form. ranges supplies the
// NUMERIC normalization ranges, normally from ResolveNumericRanges over the
// full answer set; missing entries use the scorer's fallback.
func (p *PairwiseAggregator) Aggregate(form domain.Form, ranges NumericRanges, a, b domain.Answer) (float64, bool, error) {
	return p.aggregate(form, ranges, indexAnswer(a), indexAnswer(b))
}

func (p *PairwiseAggregator) aggregate(form domain.Form, ranges NumericRanges, a, b respondent) (float64, bool, error) {
	scores := make([]float64, 0, len(form.Questions))
	for _, q := range form.Questions {
		qa, okA := a.responses[q.ID]
		if !okA {
			qa = domain.NewSkippedAnswer(q.ID, q.Type)
		}
		qb, okB := b.responses[q.ID]
		if !okB {
			qb = domain.NewSkippedAnswer(q.ID, q.Type)
		}

		score, ok, err := p.scorer.Score(q.Type, qa, qb, ranges[q.ID])
		if err != nil {
			return 0, false, attributeProfile(err, qa, a.id, b.id)
		}
		if ok {
			scores = append(scores, score)
		}
	}

	if len(scores) == 0 {
		return 0, false, nil
	}

	similarity, err := p.aggregator.Aggregate(scores)
	if err != nil {
		return 0, false, fmt.Errorf("aggregate %s/%s: %w", a.id, b.id, err)
	}
	return clampUnit(similarity), true, nil
}

// attributeProfile fills in which respondent submitted the offending answer.
// The scorer works below the respondent level and leaves ProfileID empty.
func attributeProfile(err error, qa domain.QuestionAnswer, idA, idB string) error {
	var se *domain.ScoringError
	if !errors.As(err, &se) {
		return err
	}
	attributed := *se
	attributed.ProfileID = idB
	if qa.Type != se.Expected || !qa.ConsistentValue() {
		attributed.ProfileID = idA
	}
	return &attributed
}

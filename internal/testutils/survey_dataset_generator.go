package testutils

import (
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"time"

	"github.com/ahrav/go-affinity/internal/domain"
)

// GenerateSurveyDataset creates a synthetic survey with the given number
// of respondents. The seed parameter controls randomization; a fixed seed
// always yields the same dataset.
//
// Respondents are assigned to Personas round-robin and answer near their
// persona's profile, with roughly one answer in ten skipped.
func GenerateSurveyDataset(respondents int, seed int64) *SurveyDataset {
	rng := rand.New(rand.NewSource(seed))

	form := domain.Form{
		ID:    fmt.Sprintf("weekend-%d", seed),
		Title: "How do you spend your weekend?",
		Questions: []domain.Question{
			{ID: QuestionOutdoors, Type: domain.QuestionNumeric, Prompt: "How much do you enjoy being outdoors? (1-5)"},
			{ID: QuestionSocial, Type: domain.QuestionNumeric, Prompt: "How social are your weekends? (1-5)"},
			{ID: QuestionBudget, Type: domain.QuestionNumeric, Prompt: "How much do you spend on a weekend? (1-5)"},
			{ID: QuestionWeekend, Type: domain.QuestionOpenEnded, Prompt: "Describe your ideal weekend."},
			{ID: QuestionCuisine, Type: domain.QuestionMultipleChoice, Prompt: "Favourite cuisines", Options: slices.Clone(CuisineOptions)},
		},
	}

	dataset := &SurveyDataset{
		Metadata: DatasetMetadata{
			Name:        "Synthetic weekend survey",
			Version:     "1.0.0",
			Source:      "generated",
			Description: fmt.Sprintf("%d respondents drawn from %d personas", respondents, len(Personas)),
			Seed:        seed,
		},
		Form:     form,
		Profiles: make([]domain.Profile, 0, respondents),
		Answers:  make([]domain.Answer, 0, respondents),
	}

	for i := range respondents {
		persona := Personas[i%len(Personas)]
		id := fmt.Sprintf("p%04d", i)

		dataset.Profiles = append(dataset.Profiles, domain.Profile{
			ID:       id,
			Username: fmt.Sprintf("%s.%s%d", persona.Name, lastNames[rng.Intn(len(lastNames))], i),
		})
		dataset.Answers = append(dataset.Answers, generateAnswer(rng, form, persona, id))
	}
	return dataset
}

// GenerateSurveyDatasetDefault creates a dataset with a time-based seed.
func GenerateSurveyDatasetDefault(respondents int) *SurveyDataset {
	return GenerateSurveyDataset(respondents, time.Now().UnixNano())
}

func generateAnswer(rng *rand.Rand, form domain.Form, persona Persona, profileID string) domain.Answer {
	answer := domain.Answer{ProfileID: profileID, FormID: form.ID}
	rating := 0

	for _, q := range form.Questions {
		if rng.Intn(10) == 0 {
			answer.Responses = append(answer.Responses, domain.NewSkippedAnswer(q.ID, q.Type))
			if q.Type == domain.QuestionNumeric {
				rating++
			}
			continue
		}

		switch q.Type {
		case domain.QuestionNumeric:
			v := persona.Ratings[rating] + int64(rng.Intn(3)-1)
			answer.Responses = append(answer.Responses, domain.NewNumericAnswer(q.ID, min(max(v, 1), 5)))
			rating++
		case domain.QuestionOpenEnded:
			words := make([]string, 2+rng.Intn(3))
			for i := range words {
				words[i] = persona.Words[rng.Intn(len(persona.Words))]
			}
			answer.Responses = append(answer.Responses, domain.NewTextAnswer(q.ID, strings.Join(words, " ")))
		case domain.QuestionMultipleChoice:
			picks := slices.Clone(persona.Picks)
			if rng.Intn(3) == 0 {
				picks = append(picks, q.Options[rng.Intn(len(q.Options))])
			}
			slices.Sort(picks)
			answer.Responses = append(answer.Responses, domain.NewChoiceAnswer(q.ID, slices.Compact(picks)...))
		}
	}
	return answer
}

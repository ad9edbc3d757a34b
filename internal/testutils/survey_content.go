package testutils

// Persona is an archetype respondents are sampled from. Respondents drawn
// from the same persona answer alike, so generated surveys have clusters
// for the engine to recover.
type Persona struct {
	Name string

	// Ratings holds the persona's typical answer per numeric question, on
	// the 1..5 scale.
	Ratings []int64

	// Words is the vocabulary used for open-ended answers.
	Words []string

	// Picks are the options the persona tends to select.
	Picks []string
}

// SurveyQuestion IDs used by the generator.
const (
	QuestionOutdoors = "outdoors"
	QuestionSocial   = "social"
	QuestionBudget   = "budget"
	QuestionWeekend  = "weekend"
	QuestionCuisine  = "cuisine"
)

// CuisineOptions is the option universe of the cuisine question.
var CuisineOptions = []string{"italian", "japanese", "mexican", "indian", "vegan", "bbq"}

// Personas used by GenerateSurveyDataset, in the order respondents are
// assigned to them.
var Personas = []Persona{
	{
		Name:    "trail",
		Ratings: []int64{5, 2, 2},
		Words:   []string{"hiking", "camping", "mountains", "trail", "running", "kayak"},
		Picks:   []string{"mexican", "bbq"},
	},
	{
		Name:    "city",
		Ratings: []int64{1, 5, 4},
		Words:   []string{"concerts", "bars", "museums", "brunch", "theatre", "friends"},
		Picks:   []string{"italian", "japanese"},
	},
	{
		Name:    "homebody",
		Ratings: []int64{2, 1, 1},
		Words:   []string{"reading", "baking", "movies", "gaming", "knitting", "tea"},
		Picks:   []string{"indian", "vegan"},
	},
}

var lastNames = []string{"ito", "okafor", "silva", "novak", "haddad", "lindqvist", "moreau", "kaur"}

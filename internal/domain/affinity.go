package domain

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"
)

// PairKey identifies an unordered pair of distinct respondents.
// A always sorts before B so that (a, b) and (b, a) share one key.
type PairKey struct {
	A string
	B string
}

// NewPairKey returns the canonical key for the unordered pair {a, b}.
func NewPairKey(a, b string) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{A: a, B: b}
}

// PairScore is one defined entry of a similarity matrix in plain form.
type PairScore struct {
	A     string  `json:"a" yaml:"a"`
	B     string  `json:"b" yaml:"b"`
	Score float64 `json:"score" yaml:"score"`
}

// SimilarityMatrix maps unordered respondent pairs to a similarity in [0,1]
// for a single form. Pairs that share no comparable answers are absent,
// which is distinct from a measured similarity of zero. A profile paired
// with itself is never defined.
//
// Scores is exported so the matrix survives State deep copies; callers
// should go through Get and Set, which canonicalise pair order.
type SimilarityMatrix struct {
	FormID string
	Scores map[PairKey]float64
}

// NewSimilarityMatrix returns an empty matrix for the given form.
func NewSimilarityMatrix(formID string) SimilarityMatrix {
	return SimilarityMatrix{FormID: formID, Scores: make(map[PairKey]float64)}
}

// Get returns the similarity of a and b and whether it is defined.
func (m SimilarityMatrix) Get(a, b string) (float64, bool) {
	if a == b {
		return 0, false
	}
	v, ok := m.Scores[NewPairKey(a, b)]
	return v, ok
}

// Set records the similarity of a and b. Self pairs are ignored.
func (m *SimilarityMatrix) Set(a, b string, score float64) {
	if a == b {
		return
	}
	if m.Scores == nil {
		m.Scores = make(map[PairKey]float64)
	}
	m.Scores[NewPairKey(a, b)] = score
}

// Len returns the number of defined pairs.
func (m SimilarityMatrix) Len() int { return len(m.Scores) }

// Pairs returns every defined entry ordered by (A, B) ascending.
func (m SimilarityMatrix) Pairs() []PairScore {
	out := make([]PairScore, 0, len(m.Scores))
	for k, v := range m.Scores {
		out = append(out, PairScore{A: k.A, B: k.B, Score: v})
	}
	slices.SortFunc(out, func(x, y PairScore) int {
		if c := strings.Compare(x.A, y.A); c != 0 {
			return c
		}
		return strings.Compare(x.B, y.B)
	})
	return out
}

type matrixJSON struct {
	FormID string      `json:"form_id"`
	Pairs  []PairScore `json:"pairs"`
}

// MarshalJSON renders the matrix as a sorted pair list so output is stable.
func (m SimilarityMatrix) MarshalJSON() ([]byte, error) {
	return json.Marshal(matrixJSON{FormID: m.FormID, Pairs: m.Pairs()})
}

// UnmarshalJSON restores a matrix produced by MarshalJSON.
func (m *SimilarityMatrix) UnmarshalJSON(data []byte) error {
	var raw matrixJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = NewSimilarityMatrix(raw.FormID)
	for _, p := range raw.Pairs {
		m.Set(p.A, p.B, p.Score)
	}
	return nil
}

// AffinityGroup is one connected set of respondents with its representative.
// Members are sorted ascending and always include the representative.
type AffinityGroup struct {
	FormID         string   `json:"form_id" yaml:"form_id"`
	Representative string   `json:"representative" yaml:"representative"`
	Members        []string `json:"members" yaml:"members"`
}

// Contains reports whether profileID is a member of the group.
func (g AffinityGroup) Contains(profileID string) bool {
	_, found := slices.BinarySearch(g.Members, profileID)
	return found
}

// AffinityResult is the complete outcome of one affinity computation.
// It is produced fresh on every request and never mutated afterwards.
type AffinityResult struct {
	FormID    string           `json:"form_id"`
	Threshold float64          `json:"threshold"`
	Groups    []AffinityGroup  `json:"groups"`
	Matrix    SimilarityMatrix `json:"matrix"`
}

// Clone returns a copy of r that shares no slices or maps with it.
func (r AffinityResult) Clone() AffinityResult {
	out := r
	out.Groups = slices.Clone(r.Groups)
	for i := range out.Groups {
		out.Groups[i].Members = slices.Clone(out.Groups[i].Members)
	}
	out.Matrix = SimilarityMatrix{FormID: r.Matrix.FormID, Scores: maps.Clone(r.Matrix.Scores)}
	return out
}

// GroupFor returns the group containing profileID. Because groups partition
// the respondents, at most one group matches.
func (r AffinityResult) GroupFor(profileID string) (AffinityGroup, bool) {
	for _, g := range r.Groups {
		if g.Contains(profileID) {
			return g, true
		}
	}
	return AffinityGroup{}, false
}

// Respondents returns every member of every group, ascending.
func (r AffinityResult) Respondents() []string {
	var ids []string
	for _, g := range r.Groups {
		ids = append(ids, g.Members...)
	}
	slices.Sort(ids)
	return ids
}

// ExportMember labels a profile identifier for presentation.
type ExportMember struct {
	ProfileID string `json:"profile_id" yaml:"profile_id"`
	Username  string `json:"username,omitempty" yaml:"username,omitempty"`
}

// ExportGroup is the plain-record form of an AffinityGroup.
type ExportGroup struct {
	Representative ExportMember   `json:"representative" yaml:"representative"`
	Members        []ExportMember `json:"members" yaml:"members"`
}

// ExportRecord is an AffinityResult flattened into plain records so any
// serializer renders it deterministically: groups in result order, members
// ascending, matrix pairs ordered by (a, b).
type ExportRecord struct {
	FormID    string        `json:"form_id" yaml:"form_id"`
	Threshold float64       `json:"threshold" yaml:"threshold"`
	Groups    []ExportGroup `json:"groups" yaml:"groups"`
	Matrix    []PairScore   `json:"matrix" yaml:"matrix"`
}

// Export flattens the result, labelling members with usernames from
// profiles. Profiles missing from the map are exported without a username.
func (r AffinityResult) Export(profiles map[string]Profile) ExportRecord {
	label := func(id string) ExportMember {
		return ExportMember{ProfileID: id, Username: profiles[id].Username}
	}

	groups := make([]ExportGroup, 0, len(r.Groups))
	for _, g := range r.Groups {
		members := make([]ExportMember, 0, len(g.Members))
		for _, id := range g.Members {
			members = append(members, label(id))
		}
		groups = append(groups, ExportGroup{
			Representative: label(g.Representative),
			Members:        members,
		})
	}

	return ExportRecord{
		FormID:    r.FormID,
		Threshold: r.Threshold,
		Groups:    groups,
		Matrix:    r.Matrix.Pairs(),
	}
}

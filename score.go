package gazetteer

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// SearchOptions configures a single search call.
type SearchOptions struct {
	// FuzzyDistance enables typo tolerance: tokens within this Levenshtein
	// distance of the query count as weak matches. 0 disables it. Capped
	// at 3.
	FuzzyDistance int
}

// maxFuzzyDistance caps FuzzyDistance to keep the per-token edit distance
// scans cheap.
const maxFuzzyDistance = 3

// maxQueryLen truncates pathological inputs before edit distance work.
const maxQueryLen = 256

// Scoring constants. The relative ranking these weights produce is the
// contract, so they are not to be simplified or rounded.
const (
	exactTokenScore    = 200.0
	prefixTokenScore   = 140.0
	substringScore     = 100.0
	exactNameBonus     = 200.0
	prefixNameBonus    = 80.0
	substringNameBonus = 40.0
	homeCountryBonus   = 10.0
	shortNameBonusMax  = 30.0
	scriptTokenBoost   = 1.2

	// fuzzyBaseScore keeps typo-tolerant matches below the prefix tier.
	fuzzyBaseScore = 80.0
)

// matchScore rates how well a single token matches a query: exact beats
// prefix beats substring, and shorter tokens or earlier occurrences rate
// higher within a tier. Returns 0 for no match.
func matchScore(token, q string) float64 {
	if token == "" || q == "" {
		return 0
	}
	if token == q {
		return exactTokenScore
	}
	tokenLen := math.Min(float64(utf8.RuneCountInString(token)), 50)
	if strings.HasPrefix(token, q) {
		return prefixTokenScore - tokenLen*0.5
	}
	if idx := strings.Index(token, q); idx >= 0 {
		pos := float64(utf8.RuneCountInString(token[:idx]))
		return substringScore - pos*1.5 - tokenLen*0.2
	}
	return 0
}

// fuzzyScore rates a near-miss token when typo tolerance is on. Only called
// for tokens matchScore already rejected, so it can never outrank or reorder
// exact-path results.
func fuzzyScore(token, q string, maxDist int) float64 {
	if utf8.RuneCountInString(q) <= 2 {
		return 0
	}
	dist := levenshtein.ComputeDistance(token, q)
	if dist > maxDist {
		return 0
	}
	tokenLen := math.Min(float64(utf8.RuneCountInString(token)), 50)
	return fuzzyBaseScore - float64(dist)*15 - tokenLen*0.2
}

// queryInfo is the per-call normalized query.
type queryInfo struct {
	lower     string
	phonetic  string
	hasScript bool
	fuzzyDist int
}

// scoreCity computes the relevance of one indexed city. A result of 0 means
// no match.
func (g *Gazetteer) scoreCity(c *indexedCity, q queryInfo) float64 {
	var bestToken, bestPhonetic float64
	for _, t := range c.tokens {
		s := matchScore(t, q.lower)
		if s == 0 && q.fuzzyDist > 0 {
			s = fuzzyScore(t, q.lower, q.fuzzyDist)
		}
		if s > bestToken {
			bestToken = s
		}
	}
	for _, t := range c.phonetic {
		if s := matchScore(t, q.phonetic); s > bestPhonetic {
			bestPhonetic = s
		}
	}

	// A script query should prefer the literal script token over a phonetic
	// coincidence; a Latin query has no such bias.
	var best float64
	if q.hasScript {
		best = math.Max(bestToken*scriptTokenBoost, bestPhonetic)
	} else {
		best = math.Max(bestToken, bestPhonetic)
	}

	// The bonuses below shape ranking among matches; a city with no token
	// match at all stays at 0 so implausible candidates never surface.
	if best <= 0 {
		return 0
	}

	nameLower := strings.ToLower(c.record.Name)
	if nameLower == q.lower {
		best += exactNameBonus
	}
	if strings.HasPrefix(nameLower, q.lower) {
		best += prefixNameBonus
	}
	if strings.Contains(nameLower, q.lower) {
		best += substringNameBonus
	}
	if g.cfg.homeCountry != "" && strings.Contains(strings.ToLower(c.record.Country), g.cfg.homeCountry) {
		best += homeCountryBonus
	}
	nameLen := math.Min(float64(utf8.RuneCountInString(c.record.Name)), shortNameBonusMax)
	best += shortNameBonusMax - nameLen

	return best
}

// scoredCity is transient per-query state, discarded after ranking.
type scoredCity struct {
	record CityRecord
	score  float64
}

// Search returns up to limit city records ranked by relevance to query.
// The query may be in any script; empty or whitespace-only queries and
// non-positive limits return nil without touching the index. The first call
// triggers the one-time dataset load; a load failure is returned as an error
// (and cached), distinct from "no matches".
func (g *Gazetteer) Search(query string, limit int, opts ...SearchOptions) ([]CityRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}
	if runes := []rune(query); len(runes) > maxQueryLen {
		query = string(runes[:maxQueryLen])
	}

	var options SearchOptions
	if len(opts) > 0 {
		options = opts[0]
	}
	if options.FuzzyDistance > maxFuzzyDistance {
		options.FuzzyDistance = maxFuzzyDistance
	}

	if err := g.ensureLoaded(); err != nil {
		return nil, err
	}

	q := queryInfo{
		lower:     strings.ToLower(query),
		phonetic:  g.cfg.translit(query),
		hasScript: hasScriptChars(query),
		fuzzyDist: options.FuzzyDistance,
	}

	// The capacity hint is clamped to the dataset size; limit itself may be
	// arbitrarily large and must not feed an allocation.
	scored := make([]scoredCity, 0, min(limit, len(g.cities)))
	for i := range g.cities {
		if s := g.scoreCity(&g.cities[i], q); s > 0 {
			scored = append(scored, scoredCity{record: g.cities[i].record, score: s})
		}
	}

	// Score descending, shorter name first on ties. The stable sort keeps
	// dataset order as the final tiebreaker, so results are deterministic.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return utf8.RuneCountInString(scored[i].record.Name) < utf8.RuneCountInString(scored[j].record.Name)
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	results := make([]CityRecord, len(scored))
	for i, s := range scored {
		results[i] = s.record
	}
	return results, nil
}

// SearchDefault is Search with the default result limit.
func (g *Gazetteer) SearchDefault(query string) ([]CityRecord, error) {
	return g.Search(query, DefaultLimit)
}

// Resolve returns the single best match for a typed location string. It is
// the best-effort path used when a user never picked a suggestion.
func (g *Gazetteer) Resolve(query string) (CityRecord, bool, error) {
	results, err := g.Search(query, 1)
	if err != nil || len(results) == 0 {
		return CityRecord{}, false, err
	}
	return results[0], true, nil
}

// Package rank scores beans against a free-text query.
package rank

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/selfagency/beans-vscode-sub002/internal/bean"
)

// Tier weights. Any identity hit outranks any title hit, which outranks
// content, which outranks metadata.
const (
	IdentityExact     = 1000
	IdentityPrefix    = 500
	IdentitySubstring = 300

	TitleExact     = 200
	TitlePrefix    = 150
	TitleSubstring = 100

	BodyMatch = 20
	TagMatch  = 15

	MetadataMatch = 10
)

func normalize(q string) string { return strings.ToLower(strings.TrimSpace(q)) }

// tier returns exact, prefix or substring weight for the best match of q in s.
func tier(s, q string, exact, prefix, substr int) int {
	s = strings.ToLower(s)
	switch {
	case s == "":
		return 0
	case s == q:
		return exact
	case strings.HasPrefix(s, q):
		return prefix
	case strings.Contains(s, q):
		return substr
	}
	return 0
}

func contains(s, q string) bool {
	return s != "" && strings.Contains(strings.ToLower(s), q)
}

// Score sums the tier weights b earns for query. An empty query scores 0.
func Score(b bean.Bean, query string) int {
	q := normalize(query)
	if q == "" {
		return 0
	}

	score := max(
		tier(b.ID, q, IdentityExact, IdentityPrefix, IdentitySubstring),
		tier(b.ShortCode(), q, IdentityExact, IdentityPrefix, IdentitySubstring),
	)
	score += tier(b.Title, q, TitleExact, TitlePrefix, TitleSubstring)

	if contains(b.Body, q) {
		score += BodyMatch
	}
	if slices.ContainsFunc(b.Tags, func(tag string) bool { return contains(tag, q) }) {
		score += TagMatch
	}
	if contains(string(b.Status), q) || contains(string(b.Type), q) || contains(string(b.Priority), q) {
		score += MetadataMatch
	}
	return score
}

// MatchesQuery is the plain filter predicate. It is true for an empty query.
func MatchesQuery(b bean.Bean, query string) bool {
	q := normalize(query)
	if q == "" {
		return true
	}
	if contains(b.ID, q) || contains(b.ShortCode(), q) || contains(b.Title, q) || contains(b.Body, q) {
		return true
	}
	match := func(s string) bool { return contains(s, q) }
	return slices.ContainsFunc(b.Tags, match) ||
		slices.ContainsFunc(b.Blocking, match) ||
		slices.ContainsFunc(b.BlockedBy, match)
}

// Scored pairs a bean with its score.
type Scored struct {
	Bean  bean.Bean `json:"bean"`
	Score int       `json:"score"`
}

// Rank returns a stably ordered copy of beans: score descending, then
// priority, status display order and title.
func Rank(beans []bean.Bean, query string) []bean.Bean {
	scored := RankScored(beans, query)
	out := make([]bean.Bean, len(scored))
	for i, s := range scored {
		out[i] = s.Bean
	}
	return out
}

// RankScored is Rank with scores attached.
func RankScored(beans []bean.Bean, query string) []Scored {
	scored := make([]Scored, len(beans))
	for i, b := range beans {
		scored[i] = Scored{Bean: b, Score: Score(b, query)}
	}
	col := collate.New(language.Und)
	slices.SortStableFunc(scored, func(a, b Scored) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		if c := bean.PriorityRank(a.Bean.Priority) - bean.PriorityRank(b.Bean.Priority); c != 0 {
			return c
		}
		if c := bean.StatusRank(a.Bean.Status) - bean.StatusRank(b.Bean.Status); c != 0 {
			return c
		}
		return col.CompareString(a.Bean.Title, b.Bean.Title)
	})
	return scored
}

// Search keeps beans scoring above zero and ranks them. An empty query
// keeps everything.
func Search(beans []bean.Bean, query string) []Scored {
	if normalize(query) == "" {
		return RankScored(beans, query)
	}
	hits := make([]bean.Bean, 0, len(beans))
	for _, b := range beans {
		if Score(b, query) > 0 {
			hits = append(hits, b)
		}
	}
	return RankScored(hits, query)
}

package search

import (
	"fmt"
	"strings"

	"kidshelf/discovery/internal/domain"
)

// bookSeedQueries back an empty book query: a fixed spread of children's
// subjects so browsing without a search term still yields breadth.
var bookSeedQueries = []domain.QueryExpression{
	{Query: "subject:juvenile", Juvenile: true},
	{Query: `subject:"early reader"`, Juvenile: true},
	{Query: `subject:"picture book"`, Juvenile: true},
	{Query: `subject:"board book"`, Juvenile: true},
	{Query: `subject:"children's"`, Juvenile: true},
	{Query: `subject:"juvenile fiction"`, Juvenile: true},
	{Query: `subject:"juvenile nonfiction"`, Juvenile: true},
}

// bookQueryTemplates combine each lexical variant of the user's term with a
// child-biasing subject clause. Slice order is priority order: the pool
// builder issues upstream calls in exactly this sequence.
var bookQueryTemplates = []string{
	"%s subject:juvenile",
	"intitle:%s subject:juvenile",
	`%s subject:"children's"`,
	`%s subject:"picture book"`,
	`%s subject:"early reader"`,
	`%s subject:"board book"`,
	`%s subject:"juvenile fiction"`,
	`%s subject:"juvenile nonfiction"`,
	`%s subject:"children's literature"`,
	`%s subject:"juvenile literature"`,
}

// ExpandBooks turns a raw search term into upstream-ready query
// expressions. Pure function; no network, no state.
func ExpandBooks(rawQuery string) []domain.QueryExpression {
	term := strings.ToLower(strings.TrimSpace(rawQuery))
	if term == "" {
		return append([]domain.QueryExpression(nil), bookSeedQueries...)
	}

	variants := termVariants(term)
	expressions := make([]domain.QueryExpression, 0, len(variants)*len(bookQueryTemplates))
	seen := make(map[string]struct{}, cap(expressions))
	for _, template := range bookQueryTemplates {
		for _, variant := range variants {
			query := fmt.Sprintf(template, variant)
			if _, dup := seen[query]; dup {
				continue
			}
			seen[query] = struct{}{}
			expressions = append(expressions, domain.QueryExpression{Query: query, Juvenile: true})
		}
	}
	return expressions
}

// termVariants generates lexical variants of a single-word term:
// plural ("s"), depluralized, and "y"→"ies". Multi-word terms and very
// short terms pass through unchanged.
func termVariants(term string) []string {
	variants := []string{term}
	if strings.ContainsAny(term, " \t") || len(term) < 3 {
		return variants
	}
	switch {
	case strings.HasSuffix(term, "ies"):
		variants = append(variants, strings.TrimSuffix(term, "ies")+"y")
	case strings.HasSuffix(term, "y"):
		variants = append(variants, strings.TrimSuffix(term, "y")+"ies")
	case strings.HasSuffix(term, "s"):
		variants = append(variants, strings.TrimSuffix(term, "s"))
	default:
		variants = append(variants, term+"s")
	}
	return dedupeStrings(variants)
}

// Video categories the browse view pages through when no query is given.
// The music category carries the stricter kids-music channel checks.
var defaultVideoQueries = []domain.VideoQuery{
	{Query: "bedtime stories for kids", CategoryID: videoCategoryEntertainment},
	{Query: "nursery rhymes kids songs", CategoryID: videoCategoryMusic, Music: true},
	{Query: "learning videos for kids", CategoryID: videoCategoryEducation},
}

const (
	videoCategoryMusic         = "10"
	videoCategoryEntertainment = "24"
	videoCategoryEducation     = "27"
)

// videoCategoryPhrases maps a normalized category keyword to the one fixed
// search phrase used upstream for it.
var videoCategoryPhrases = map[string]domain.VideoQuery{
	"stories":      {Query: "bedtime stories for kids", CategoryID: videoCategoryEntertainment},
	"songs_rhymes": {Query: "nursery rhymes kids songs", CategoryID: videoCategoryMusic, Music: true},
	"learning":     {Query: "learning videos for kids", CategoryID: videoCategoryEducation},
	"cartoons":     {Query: "cartoons for kids", CategoryID: videoCategoryEntertainment},
	"science":      {Query: "science experiments for kids", CategoryID: videoCategoryEducation},
	"animals":      {Query: "animal videos for kids", CategoryID: videoCategoryEducation},
}

// ExpandVideos maps a category keyword or free-text term to upstream video
// queries. Empty input returns the fixed browse categories.
func ExpandVideos(rawQuery string) []domain.VideoQuery {
	term := strings.ToLower(strings.TrimSpace(rawQuery))
	if term == "" {
		return append([]domain.VideoQuery(nil), defaultVideoQueries...)
	}
	if mapped, ok := videoCategoryPhrases[normalizeCategoryKeyword(term)]; ok {
		return []domain.VideoQuery{mapped}
	}
	return []domain.VideoQuery{{Query: term + " for kids"}}
}

func normalizeCategoryKeyword(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	term = strings.ReplaceAll(term, "-", "_")
	term = strings.ReplaceAll(term, " ", "_")
	return term
}

func dedupeStrings(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

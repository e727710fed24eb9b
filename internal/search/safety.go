package search

import (
	"regexp"
	"strings"

	"kidshelf/discovery/internal/domain"
)

// maturityNotMature is the upstream sentinel for a book that carries no
// mature-content flag.
const maturityNotMature = "NOT_MATURE"

// BookAcceptable reports whether a book record passes the maturity check.
// An absent rating counts as safe; upstream only flags known-mature volumes.
func BookAcceptable(record domain.BookRecord) bool {
	rating := strings.TrimSpace(record.MaturityRating)
	return rating == "" || rating == maturityNotMature
}

var negativeContentPattern = regexp.MustCompile(`(?i)\b(violen(ce|t)|murder|kill(ing|er)?|crime|criminal|horror|scary|terror|blood(y)?|guns?|weapons?|drugs?|suicide|self[- ]harm|nud(e|ity)|explicit|adult content|18\+)\b`)

var (
	kidsMusicPositivePattern = regexp.MustCompile(`(?i)\b(nursery rhymes?|kids'? songs?|children'?s songs?|baby songs?|lullab(y|ies)|sing[- ]?along|abc song|phonics songs?|counting songs?)\b`)
	kidsMusicNegativePattern = regexp.MustCompile(`(?i)\b(explicit|official music video|official video|lyrics?|club|remix(es)?|dj|bass boosted|uncensored|parental advisory)\b`)
)

// trustedMusicChannels bypass the kids-music pattern checks for results
// drawn from the upstream music category.
var trustedMusicChannels = map[string]struct{}{
	"super simple songs":         {},
	"cocomelon - nursery rhymes": {},
	"little baby bum":            {},
	"pinkfong baby shark":        {},
	"chuchu tv":                  {},
	"dave and ava":               {},
	"mother goose club":          {},
}

// VideoAcceptable applies the pre-pool safety checks to a video record:
// the generic negative-content screen, plus the music-category channel and
// pattern checks. The final made-for-kids confirmation runs later, after
// pool assembly, because it needs a batched upstream lookup.
func VideoAcceptable(record domain.VideoRecord, music bool) bool {
	text := record.Title + " " + record.Description
	if negativeContentPattern.MatchString(text) {
		return false
	}
	if !music {
		return true
	}
	if trustedMusicChannel(record.Channel) {
		return true
	}
	return kidsMusicPositivePattern.MatchString(text) && !kidsMusicNegativePattern.MatchString(text)
}

func trustedMusicChannel(channel string) bool {
	name := strings.ToLower(strings.TrimSpace(channel))
	if name == "" {
		return false
	}
	if _, ok := trustedMusicChannels[name]; ok {
		return true
	}
	// Channel names often carry suffixes like "Kids' Songs & Stories";
	// match on the trusted prefix as well.
	for trusted := range trustedMusicChannels {
		if strings.HasPrefix(name, trusted) {
			return true
		}
	}
	return false
}

package search

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"kidshelf/discovery/internal/domain"
	"kidshelf/discovery/internal/providers/books"
	"kidshelf/discovery/internal/providers/videos"
)

// placeholderTitle stands in when upstream supplies no title at all.
const placeholderTitle = "Untitled"

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// normalizeBook converts a parsed book record into the canonical item
// shape, attaching classifier output. The best link prefers the most
// specific upstream field and falls back to a constructed canonical URL.
func normalizeBook(record domain.BookRecord, buckets []domain.Bucket) domain.Item {
	title := record.Title
	if strings.TrimSpace(title) == "" {
		title = placeholderTitle
	}
	snippet := record.Snippet
	if snippet == "" {
		snippet = record.Description
	}
	return domain.Item{
		ID:         record.ID,
		Title:      title,
		Authors:    record.Authors,
		Categories: record.Categories,
		Buckets:    buckets,
		Thumbnail:  record.Thumbnail,
		Link:       bestBookLink(record),
		Snippet:    snippet,
		Mature:     !BookAcceptable(record),
	}
}

func bestBookLink(record domain.BookRecord) string {
	for _, link := range []string{record.PreviewLink, record.CanonicalLink, record.InfoLink} {
		if strings.TrimSpace(link) != "" {
			return link
		}
	}
	return books.CanonicalLink(record.ID)
}

func normalizeVideo(record domain.VideoRecord) domain.Item {
	title := record.Title
	if strings.TrimSpace(title) == "" {
		title = placeholderTitle
	}
	return domain.Item{
		ID:          record.ID,
		Title:       title,
		Channel:     record.Channel,
		Thumbnail:   record.Thumbnail,
		Link:        videos.WatchLink(record.ID),
		Snippet:     record.Description,
		PublishedAt: record.PublishedAt,
	}
}

// bookDedupeKey returns the identity key used by the per-request seen set.
// Records with an upstream id key on it; title-only records fall back to a
// folded title+firstAuthor key. An empty key means the record has no
// identity at all and the pool builder skips it.
func bookDedupeKey(record domain.BookRecord) string {
	if id := strings.TrimSpace(record.ID); id != "" {
		return "id:" + id
	}
	title := foldText(record.Title)
	if title == "" {
		return ""
	}
	author := ""
	if len(record.Authors) > 0 {
		author = foldText(record.Authors[0])
	}
	return "title:" + title + "|" + author
}

func videoDedupeKey(record domain.VideoRecord) string {
	if id := strings.TrimSpace(record.ID); id != "" {
		return "id:" + id
	}
	return ""
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldText lowercases, strips diacritics, and collapses to word tokens so
// that cosmetic differences between catalogs do not defeat dedup.
func foldText(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return ""
	}
	if folded, _, err := transform.String(foldTransformer, value); err == nil {
		value = folded
	}
	return strings.Join(tokenPattern.FindAllString(value, -1), " ")
}

// combinedBookText is the classifier's free-text input.
func combinedBookText(record domain.BookRecord) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{record.Title, record.Description, record.Snippet} {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " ")
}

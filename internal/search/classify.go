package search

import (
	"regexp"
	"strings"

	"kidshelf/discovery/internal/domain"
)

// classifyInput carries pre-lowered category strings and free text so each
// rule predicate stays allocation-free.
type classifyInput struct {
	categories []string
	text       string
}

type bucketRule struct {
	bucket domain.Bucket
	match  func(in classifyInput) bool
}

var (
	youngAdultTextPattern = regexp.MustCompile(`\byoung[-\s]?adult\b`)
	literatureTextPattern = regexp.MustCompile(`(children'?s|juvenile)\s+literature`)
	biographyTextPattern  = regexp.MustCompile(`\b(biography|autobiography|life of|who (is|was))\b`)
	poetryHumorPattern    = regexp.MustCompile(`\b(poems?|poetry|rhymes?|rhyming|verses?|limericks?|jokes?|humor|humour|funny|laugh(ing)?|giggles?)\b`)
	earlyReadersPattern   = regexp.MustCompile(`\b(picture books?|board books?|early readers?|beginning readers?|leveled readers?|sight words)\b`)
	middleGradePattern    = regexp.MustCompile(`\b(middle grade|ages?\s*8\s*(-|to)\s*12|ages?\s*9\s*(-|to)\s*12|grades?\s*4\s*(-|to)\s*7)\b`)
	educationPattern      = regexp.MustCompile(`\b(education(al)?|curriculum|phonics|sight words)\b`)
	childTermPattern      = regexp.MustCompile(`\b(children'?s?|juvenile|kids?)\b`)
)

// bucketRules is evaluated in order; every matching rule contributes its
// label. Predicates are independent, so one item can land in several
// buckets. Keeping the set as a table makes each rule testable on its own.
var bucketRules = []bucketRule{
	{domain.BucketYoungAdult, func(in classifyInput) bool {
		return categoryContains(in.categories, "young adult") || youngAdultTextPattern.MatchString(in.text)
	}},
	{domain.BucketJuvenileFiction, func(in classifyInput) bool {
		return categoryContains(in.categories, "juvenile fiction")
	}},
	{domain.BucketJuvenileNonfiction, func(in classifyInput) bool {
		return categoryContains(in.categories, "juvenile nonfiction")
	}},
	{domain.BucketLiterature, func(in classifyInput) bool {
		if categoryContains(in.categories, "juvenile literature") || categoryContains(in.categories, "children's literature") {
			return true
		}
		if literatureTextPattern.MatchString(in.text) {
			return true
		}
		for _, category := range in.categories {
			if strings.Contains(category, "literature") && childTermPattern.MatchString(category) {
				return true
			}
		}
		return false
	}},
	{domain.BucketBiography, func(in classifyInput) bool {
		if categoryContains(in.categories, "juvenile biography") {
			return true
		}
		if categoryContains(in.categories, "biography & autobiography") {
			if juvenileFlagged(in.categories) || childTermPattern.MatchString(in.text) {
				return true
			}
		}
		return biographyTextPattern.MatchString(in.text)
	}},
	{domain.BucketPoetryHumor, func(in classifyInput) bool {
		return categoryContains(in.categories, "juvenile poetry") ||
			categoryContains(in.categories, "juvenile humor") ||
			categoryContains(in.categories, "juvenile humour") ||
			poetryHumorPattern.MatchString(in.text)
	}},
	{domain.BucketEarlyReaders, func(in classifyInput) bool {
		return anyCategoryMatches(in.categories, earlyReadersPattern) || earlyReadersPattern.MatchString(in.text)
	}},
	{domain.BucketMiddleGrade, func(in classifyInput) bool {
		return anyCategoryMatches(in.categories, middleGradePattern) || middleGradePattern.MatchString(in.text)
	}},
	{domain.BucketEducation, func(in classifyInput) bool {
		return anyCategoryMatches(in.categories, educationPattern) || educationPattern.MatchString(in.text)
	}},
	// Catch-all: anything upstream filed under a juvenile subject keeps at
	// least one bucket even when no specific rule fired.
	{domain.BucketJuvenileOther, func(in classifyInput) bool {
		return juvenileFlagged(in.categories)
	}},
}

// Classify assigns topical buckets from upstream category strings and the
// item's free text (title plus description/snippet). Pure function:
// identical inputs always yield the identical bucket list. A nil result
// means "uncategorized", not an error.
func Classify(categories []string, text string) []domain.Bucket {
	in := classifyInput{
		categories: lowerAll(categories),
		text:       strings.ToLower(text),
	}
	var buckets []domain.Bucket
	for _, rule := range bucketRules {
		if rule.match(in) {
			buckets = append(buckets, rule.bucket)
		}
	}
	return buckets
}

// HasBucket reports whether label is in buckets.
func HasBucket(buckets []domain.Bucket, label domain.Bucket) bool {
	for _, bucket := range buckets {
		if bucket == label {
			return true
		}
	}
	return false
}

func categoryContains(categories []string, substr string) bool {
	for _, category := range categories {
		if strings.Contains(category, substr) {
			return true
		}
	}
	return false
}

func anyCategoryMatches(categories []string, pattern *regexp.Regexp) bool {
	for _, category := range categories {
		if pattern.MatchString(category) {
			return true
		}
	}
	return false
}

func juvenileFlagged(categories []string) bool {
	for _, category := range categories {
		if strings.HasPrefix(category, "juvenile") {
			return true
		}
	}
	return false
}

func lowerAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	for i, value := range values {
		out[i] = strings.ToLower(strings.TrimSpace(value))
	}
	return out
}

package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kidshelf/discovery/internal/domain"
)

func TestBookAcceptable(t *testing.T) {
	assert.True(t, BookAcceptable(domain.BookRecord{MaturityRating: "NOT_MATURE"}))
	// Absent rating counts as safe.
	assert.True(t, BookAcceptable(domain.BookRecord{}))
	assert.False(t, BookAcceptable(domain.BookRecord{MaturityRating: "MATURE"}))
}

func TestVideoAcceptableNegativeContent(t *testing.T) {
	assert.False(t, VideoAcceptable(domain.VideoRecord{
		Title: "Scary horror stories",
	}, false))
	assert.False(t, VideoAcceptable(domain.VideoRecord{
		Title:       "Fun time",
		Description: "contains explicit language",
	}, false))
	assert.True(t, VideoAcceptable(domain.VideoRecord{
		Title: "Dinosaur facts for curious kids",
	}, false))
}

func TestVideoAcceptableMusicCategory(t *testing.T) {
	// Trusted channel bypasses the pattern checks.
	assert.True(t, VideoAcceptable(domain.VideoRecord{
		Title:   "Wheels on the Bus",
		Channel: "Super Simple Songs",
	}, true))

	// Trusted channel match also works on prefixed names.
	assert.True(t, VideoAcceptable(domain.VideoRecord{
		Title:   "Twinkle Twinkle",
		Channel: "Little Baby Bum - Nursery Rhymes & Kids Songs",
	}, true))

	// Unknown channel needs a positive kids-music signal.
	assert.True(t, VideoAcceptable(domain.VideoRecord{
		Title:   "Nursery rhymes collection for toddlers",
		Channel: "Some Channel",
	}, true))
	assert.False(t, VideoAcceptable(domain.VideoRecord{
		Title:   "Best pop hits 2024",
		Channel: "Some Channel",
	}, true))

	// Negative music markers override a positive signal.
	assert.False(t, VideoAcceptable(domain.VideoRecord{
		Title:   "Kids songs remix dj set",
		Channel: "Some Channel",
	}, true))
}

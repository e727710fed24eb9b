package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kidshelf/discovery/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name       string
		categories []string
		text       string
		want       []domain.Bucket
	}{
		{
			name:       "young adult from category",
			categories: []string{"Young Adult Fiction"},
			want:       []domain.Bucket{domain.BucketYoungAdult},
		},
		{
			name: "young adult from text",
			text: "A thrilling young-adult adventure",
			want: []domain.Bucket{domain.BucketYoungAdult},
		},
		{
			name:       "juvenile fiction",
			categories: []string{"Juvenile Fiction / Animals"},
			want:       []domain.Bucket{domain.BucketJuvenileFiction, domain.BucketJuvenileOther},
		},
		{
			name:       "juvenile nonfiction",
			categories: []string{"Juvenile Nonfiction"},
			want:       []domain.Bucket{domain.BucketJuvenileNonfiction, domain.BucketJuvenileOther},
		},
		{
			name:       "literature from category",
			categories: []string{"Children's literature"},
			want:       []domain.Bucket{domain.BucketLiterature},
		},
		{
			name:       "biography needs juvenile context",
			categories: []string{"Biography & Autobiography"},
			text:       "the life of a children's author",
			want:       []domain.Bucket{domain.BucketBiography},
		},
		{
			name: "biography from who-was text",
			text: "Who Was Neil Armstrong?",
			want: []domain.Bucket{domain.BucketBiography},
		},
		{
			name:       "poetry and humor",
			categories: []string{"Juvenile Poetry"},
			want:       []domain.Bucket{domain.BucketPoetryHumor, domain.BucketJuvenileOther},
		},
		{
			name: "funny text lands in poetry humor",
			text: "A very funny collection of jokes",
			want: []domain.Bucket{domain.BucketPoetryHumor},
		},
		{
			name: "early readers from text",
			text: "A classic picture book for bedtime",
			want: []domain.Bucket{domain.BucketEarlyReaders},
		},
		{
			name: "middle grade from age range",
			text: "Perfect for ages 8-12",
			want: []domain.Bucket{domain.BucketMiddleGrade},
		},
		{
			name: "education from phonics",
			text: "Phonics practice for beginning readers",
			want: []domain.Bucket{domain.BucketEducation, domain.BucketEarlyReaders},
		},
		{
			name:       "juvenile catch-all",
			categories: []string{"Juvenile audience"},
			want:       []domain.Bucket{domain.BucketJuvenileOther},
		},
		{
			name:       "no match",
			categories: []string{"Computers"},
			text:       "An introduction to databases",
			want:       nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.categories, tc.text)
			assert.ElementsMatch(t, tc.want, got)
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	categories := []string{"Juvenile Fiction", "Juvenile Poetry"}
	text := "funny rhymes for ages 8-12"
	first := Classify(categories, text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Classify(categories, text))
	}
}

func TestHasBucket(t *testing.T) {
	buckets := []domain.Bucket{domain.BucketJuvenileFiction, domain.BucketPoetryHumor}
	assert.True(t, HasBucket(buckets, domain.BucketPoetryHumor))
	assert.False(t, HasBucket(buckets, domain.BucketYoungAdult))
	assert.False(t, HasBucket(nil, domain.BucketYoungAdult))
}

package simpleblog_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tendant/simple-blog/pkg/simpleblog"
)

func TestQueryDefaultsToPublished(t *testing.T) {
	q := simpleblog.NewQuery()

	assert.True(t, q.Matches(simpleblog.Header{ID: "a", State: simpleblog.ContentStatePublished}))
	assert.False(t, q.Matches(simpleblog.Header{ID: "b", State: simpleblog.ContentStateUnpublished}))
	assert.False(t, q.Matches(simpleblog.Header{ID: "c", State: simpleblog.ContentStateDeleted}))
}

func TestQueryExplicitStates(t *testing.T) {
	q := simpleblog.NewQuery(simpleblog.WithStates(
		simpleblog.ContentStateUnpublished,
		simpleblog.ContentStateDeleted,
	))

	assert.False(t, q.Matches(simpleblog.Header{State: simpleblog.ContentStatePublished}))
	assert.True(t, q.Matches(simpleblog.Header{State: simpleblog.ContentStateUnpublished}))
	assert.True(t, q.Matches(simpleblog.Header{State: simpleblog.ContentStateDeleted}))
}

func TestQueryByID(t *testing.T) {
	q := simpleblog.NewQuery(simpleblog.WithIDs("a", "c"))

	assert.True(t, q.Matches(simpleblog.Header{ID: "a", State: simpleblog.ContentStatePublished}))
	assert.False(t, q.Matches(simpleblog.Header{ID: "b", State: simpleblog.ContentStatePublished}))
}

func TestQueryDateRange(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	q := simpleblog.NewQuery(simpleblog.WithDateRange(from, to))

	inside := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	outside := time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)

	assert.True(t, q.Matches(simpleblog.Header{State: simpleblog.ContentStatePublished, PublishedDate: &inside}))
	assert.True(t, q.Matches(simpleblog.Header{State: simpleblog.ContentStatePublished, PublishedDate: &from}), "range is inclusive at the lower bound")
	assert.True(t, q.Matches(simpleblog.Header{State: simpleblog.ContentStatePublished, PublishedDate: &to}), "range is inclusive at the upper bound")
	assert.False(t, q.Matches(simpleblog.Header{State: simpleblog.ContentStatePublished, PublishedDate: &outside}))
	assert.False(t, q.Matches(simpleblog.Header{State: simpleblog.ContentStatePublished}), "missing published date never matches a date filter")
}

func TestQueryTags(t *testing.T) {
	q := simpleblog.NewQuery(simpleblog.WithTags("Go", "storage"))

	assert.True(t, q.Matches(simpleblog.Header{State: simpleblog.ContentStatePublished, Tags: []string{"go"}}), "tag match is case-insensitive")
	assert.True(t, q.Matches(simpleblog.Header{State: simpleblog.ContentStatePublished, Tags: []string{"misc", "STORAGE"}}))
	assert.False(t, q.Matches(simpleblog.Header{State: simpleblog.ContentStatePublished, Tags: []string{"golang"}}), "tags compare as whole values, not substrings")
	assert.False(t, q.Matches(simpleblog.Header{State: simpleblog.ContentStatePublished}))
}

func TestQueryHeaderSubset(t *testing.T) {
	q := simpleblog.NewQuery(simpleblog.WithHeaders(simpleblog.Header{ID: "a"}))

	assert.True(t, q.Matches(simpleblog.Header{ID: "a", State: simpleblog.ContentStatePublished}))
	assert.False(t, q.Matches(simpleblog.Header{ID: "b", State: simpleblog.ContentStatePublished}))
}

func TestQueryFiltersCombine(t *testing.T) {
	published := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	q := simpleblog.NewQuery(
		simpleblog.WithIDs("a"),
		simpleblog.WithTags("go"),
		simpleblog.WithDateRange(
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		),
	)

	match := simpleblog.Header{
		ID:            "a",
		State:         simpleblog.ContentStatePublished,
		Tags:          []string{"go"},
		PublishedDate: &published,
	}
	assert.True(t, q.Matches(match))

	wrongTag := match
	wrongTag.Tags = []string{"rust"}
	assert.False(t, q.Matches(wrongTag))
}

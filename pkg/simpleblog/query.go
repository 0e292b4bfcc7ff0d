package simpleblog

import (
	"strings"
	"time"
)

// Query describes the filters applied by Search. All populated filters are
// ANDed together. An empty state list defaults to published-only: listings
// never expose unpublished or deleted content unless asked for explicitly.
type Query struct {
	States  []ContentState
	IDs     []string
	From    *time.Time
	To      *time.Time
	Tags    []string
	Headers []Header
}

// QueryOption configures a Query.
type QueryOption func(*Query)

// NewQuery builds a Query from the supplied options.
func NewQuery(opts ...QueryOption) Query {
	var q Query
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// WithStates sets the state allow-list.
func WithStates(states ...ContentState) QueryOption {
	return func(q *Query) {
		q.States = states
	}
}

// WithIDs sets the id allow-list.
func WithIDs(ids ...string) QueryOption {
	return func(q *Query) {
		q.IDs = ids
	}
}

// WithDateRange filters on the published date, inclusive at both ends.
func WithDateRange(from, to time.Time) QueryOption {
	return func(q *Query) {
		q.From = &from
		q.To = &to
	}
}

// WithTags filters on tag intersection, case-insensitively.
func WithTags(tags ...string) QueryOption {
	return func(q *Query) {
		q.Tags = tags
	}
}

// WithHeaders restricts matching to an explicit header subset.
func WithHeaders(headers ...Header) QueryOption {
	return func(q *Query) {
		q.Headers = headers
	}
}

// Matches reports whether h passes every populated filter. Every backend
// routes its Search through this so filter semantics cannot drift between
// implementations.
func (q Query) Matches(h Header) bool {
	states := q.States
	if len(states) == 0 {
		states = []ContentState{ContentStatePublished}
	}
	if !stateIn(states, h.State) {
		return false
	}
	if len(q.IDs) > 0 && !stringIn(q.IDs, h.ID) {
		return false
	}
	if q.From != nil || q.To != nil {
		if h.PublishedDate == nil {
			return false
		}
		if q.From != nil && h.PublishedDate.Before(*q.From) {
			return false
		}
		if q.To != nil && h.PublishedDate.After(*q.To) {
			return false
		}
	}
	if len(q.Tags) > 0 && !tagsIntersect(q.Tags, h.Tags) {
		return false
	}
	if len(q.Headers) > 0 {
		found := false
		for _, sub := range q.Headers {
			if sub.ID == h.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func stateIn(states []ContentState, state ContentState) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

func stringIn(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// tagsIntersect reports whether any header tag appears in the query tag
// set, compared case-insensitively as exact values.
func tagsIntersect(queryTags, headerTags []string) bool {
	for _, ht := range headerTags {
		for _, qt := range queryTags {
			if strings.EqualFold(ht, qt) {
				return true
			}
		}
	}
	return false
}

// Package sessioncache provides a TTL-evicting SessionStore implementation
// backed by an in-process cache. One Store serves one caller/session scope.
package sessioncache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tendant/simple-blog/pkg/simpleblog/auth"
)

// Store implements auth.SessionStore on top of patrickmn/go-cache. Entries
// fall out of the cache after the configured TTL even if nothing sweeps
// them, which keeps an abandoned session from resolving forever.
type Store struct {
	cache *gocache.Cache
}

var _ auth.SessionStore = (*Store)(nil)

// New creates a session store whose entries expire after ttl.
func New(ttl time.Duration) *Store {
	return &Store{cache: gocache.New(ttl, 2*ttl)}
}

func (s *Store) Get(key string) (string, bool) {
	value, ok := s.cache.Get(key)
	if !ok {
		return "", false
	}
	str, ok := value.(string)
	return str, ok
}

func (s *Store) Set(key, value string) {
	s.cache.Set(key, value, gocache.DefaultExpiration)
}

func (s *Store) Remove(key string) {
	s.cache.Delete(key)
}

func (s *Store) Available() bool {
	return s.cache != nil
}

package pipeline

import (
	"context"
	"errors"
)

// Resolver finds or creates the group record for one key. It returns
// ErrOwnerNotFound when the key has no owner, and reports whether it
// created a new record.
type Resolver func(ctx context.Context) (handle any, created bool, err error)

type groupEntry struct {
	handle any
	err    error
}

// GroupCache memoizes group resolution for the duration of one run.
// Found handles and owner-not-found results are cached; other resolver
// errors are not, so a later item retries the lookup.
type GroupCache struct {
	entries map[string]groupEntry
	created int
}

// NewGroupCache creates an empty cache.
func NewGroupCache() *GroupCache {
	return &GroupCache{entries: make(map[string]groupEntry)}
}

// Resolve returns the cached handle for key, calling resolve on a miss.
func (c *GroupCache) Resolve(ctx context.Context, key string, resolve Resolver) (any, error) {
	if e, ok := c.entries[key]; ok {
		return e.handle, e.err
	}

	handle, created, err := resolve(ctx)
	switch {
	case errors.Is(err, ErrOwnerNotFound):
		c.entries[key] = groupEntry{err: err}
		return nil, err
	case err != nil:
		return nil, err
	}

	if created {
		c.created++
	}
	c.entries[key] = groupEntry{handle: handle}
	return handle, nil
}

// Len returns the number of cached keys.
func (c *GroupCache) Len() int {
	return len(c.entries)
}

// Created returns how many group records the resolvers created.
func (c *GroupCache) Created() int {
	return c.created
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package seriamp

import (
	"sync"
)

// ResponseCache holds the most recently seen device status.
//
// Merges are last-write-wins per field. When the identity field of an incoming
// set differs from the cached one, the cache is replaced wholesale.
type ResponseCache struct {
	mu       sync.RWMutex
	identity string
	fields   *FieldSet
}

// NewResponseCache creates an empty cache. identity names the field that
// identifies the device model; empty disables replacement.
func NewResponseCache(identity string) *ResponseCache {
	return &ResponseCache{identity: identity}
}

// Merge folds fs into the cache and reports whether the cache was replaced
func (c *ResponseCache) Merge(fs FieldSet) (replaced bool) {
	if fs.Len() == 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fields == nil {
		clone := fs.Clone()
		c.fields = &clone
		return false
	}

	if c.identity != "" {
		incoming, ok := fs.Get(c.identity)
		cached, had := c.fields.Get(c.identity)
		if ok && had && incoming != cached {
			clone := fs.Clone()
			c.fields = &clone
			return true
		}
	}

	c.fields.Merge(fs)
	return false
}

// Snapshot returns a copy of the cached fields
func (c *ResponseCache) Snapshot() FieldSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fields == nil {
		return FieldSet{}
	}
	return c.fields.Clone()
}

// Empty reports whether nothing has been merged yet
func (c *ResponseCache) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fields == nil
}

// Reset discards the cached fields
func (c *ResponseCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fields = nil
}

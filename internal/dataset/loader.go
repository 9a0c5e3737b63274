// Package dataset obtains the species occurrence bundle: a zip archive of
// occurrence records and coverage rasters, fetched from a remote source and
// cached locally so later runs work offline.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/lox/specdist/internal/models"
	"github.com/lox/specdist/internal/store"
)

// ErrDataUnavailable means the remote source failed and no cached bundle
// exists. Fatal for the run; retry policy is the caller's call.
var ErrDataUnavailable = errors.New("dataset unavailable")

// Loader returns the dataset bundle, preferring the local cache and falling
// back to the remote source.
type Loader struct {
	store  *store.Store
	source Source
}

// NewLoader wires a cache store to a remote source.
func NewLoader(st *store.Store, source Source) *Loader {
	return &Loader{store: st, source: source}
}

// Load returns the cached bundle if one exists, otherwise fetches, caches,
// and returns it. A fetch failure with no cache is ErrDataUnavailable.
func (l *Loader) Load(ctx context.Context) (*models.Bundle, error) {
	raw, fetchedAt, err := l.store.LoadRawBundle()
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	if raw != nil {
		bundle, err := ParseBundle(raw)
		if err != nil {
			// A corrupt cache should not strand the user; refetch.
			log.Printf("cached bundle unreadable, refetching: %v", err)
			return l.Refresh(ctx)
		}
		bundle.FetchedAt = fetchedAt
		return bundle, nil
	}
	return l.Refresh(ctx)
}

// Refresh fetches the bundle from the remote source unconditionally and
// replaces the cache.
func (l *Loader) Refresh(ctx context.Context) (*models.Bundle, error) {
	raw, err := l.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}

	bundle, err := ParseBundle(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}

	if err := l.store.SaveBundle(raw, bundle); err != nil {
		return nil, fmt.Errorf("cache bundle: %w", err)
	}
	log.Printf("fetched bundle: %d records, %d coverages", len(bundle.Records), len(bundle.Coverages))
	return bundle, nil
}

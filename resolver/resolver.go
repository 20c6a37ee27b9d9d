// resolver/resolver.go
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Themichaelreimer/medistat/cache"
	"github.com/Themichaelreimer/medistat/utils"
)

// Backend is the slice of the database the resolver needs. Satisfied by
// *database.Store.
type Backend interface {
	GetOrCreateTag(ctx context.Context, name string) (int64, error)
	GetOrCreateSeries(ctx context.Context, tagIDs []int64) (int64, error)
}

// Resolver collapses repeated tag combinations into stable series ids with
// a read-through cache in front of the backing store. Tags and series are
// append-only and immutable once created, so cache entries never expire
// and are never revalidated; if another process's cache diverges from the
// store the ids it hands out are stale but still valid rows.
type Resolver struct {
	Cache   cache.Cache
	Backend Backend
}

func New(c cache.Cache, b Backend) *Resolver {
	return &Resolver{Cache: c, Backend: b}
}

func tagCacheKey(name string) string {
	return "tag:" + utils.CleanString(name)
}

// seriesCacheKey builds a composite key from the sorted sanitized tag
// names, which is what removes permutation sensitivity.
func seriesCacheKey(sortedNames []string) string {
	cleaned := make([]string, len(sortedNames))
	for i, name := range sortedNames {
		cleaned[i] = utils.CleanString(name)
	}
	return "series:" + strings.Join(cleaned, "_")
}

// ResolveTag returns the id of the tag with the exact given name, creating
// it on first sight.
func (r *Resolver) ResolveTag(ctx context.Context, name string) (int64, error) {
	key := tagCacheKey(name)
	if cached, ok, err := r.Cache.Get(ctx, key); err != nil {
		return 0, fmt.Errorf("tag cache get failed: %w", err)
	} else if ok {
		id, err := strconv.ParseInt(string(cached), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt cached tag id for %q: %w", name, err)
		}
		return id, nil
	}

	id, err := r.Backend.GetOrCreateTag(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve tag %q: %w", name, err)
	}
	if err := r.Cache.Set(ctx, key, []byte(strconv.FormatInt(id, 10)), 0); err != nil {
		return 0, fmt.Errorf("tag cache set failed: %w", err)
	}
	return id, nil
}

// ResolveSeries returns the id of the series identified by exactly the
// given tag names, creating tags and series as needed. Name order does not
// matter: {"Male","Canada","Births"} and {"Births","Male","Canada"}
// resolve to the identical series. Two concurrent first-encounters of the
// same set can still create two series rows with identical tags; the
// pipeline accepts that race.
func (r *Resolver) ResolveSeries(ctx context.Context, tagNames []string) (int64, error) {
	if len(tagNames) == 0 {
		return 0, fmt.Errorf("cannot resolve a series with no tags")
	}

	sorted := make([]string, len(tagNames))
	copy(sorted, tagNames)
	sort.Strings(sorted)

	key := seriesCacheKey(sorted)
	if cached, ok, err := r.Cache.Get(ctx, key); err != nil {
		return 0, fmt.Errorf("series cache get failed: %w", err)
	} else if ok {
		id, err := strconv.ParseInt(string(cached), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt cached series id for %q: %w", key, err)
		}
		return id, nil
	}

	tagIDs := make([]int64, len(sorted))
	for i, name := range sorted {
		id, err := r.ResolveTag(ctx, name)
		if err != nil {
			return 0, err
		}
		tagIDs[i] = id
	}

	id, err := r.Backend.GetOrCreateSeries(ctx, tagIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve series %v: %w", sorted, err)
	}
	if err := r.Cache.Set(ctx, key, []byte(strconv.FormatInt(id, 10)), 0); err != nil {
		return 0, fmt.Errorf("series cache set failed: %w", err)
	}
	return id, nil
}

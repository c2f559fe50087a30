// Package tags resolves free-text tag names to tag ids for one import run.
// Unknown names are created on commit with a color derived from the name;
// during a dry run nothing is created and unknown names resolve to nothing.
package tags

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/moneta-app/moneta-api/internal/domain/import/repository"
)

// Resolver caches the user's tags for the duration of one run. Not safe for
// concurrent use; each run builds its own.
type Resolver struct {
	store  repository.TagStore
	userID uuid.UUID
	byName map[string]repository.TagRef
}

// NewResolver seeds the cache from the persisted tag store.
func NewResolver(ctx context.Context, store repository.TagStore, userID uuid.UUID) (*Resolver, error) {
	existing, err := store.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("seed tag cache: %w", err)
	}
	byName := make(map[string]repository.TagRef, len(existing))
	for _, t := range existing {
		byName[strings.ToLower(t.Name)] = t
	}
	return &Resolver{store: store, userID: userID, byName: byName}, nil
}

// Resolve maps names to tag ids in order. On a cache miss: dry-run drops
// the name (no fabricated id, no write); commit creates the tag with its
// derived color and caches it so later rows in the run reuse the id.
func (r *Resolver) Resolve(ctx context.Context, names []string, dryRun bool) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(names))
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if tag, ok := r.byName[key]; ok {
			ids = append(ids, tag.ID)
			continue
		}
		if dryRun {
			continue
		}
		tag, err := r.store.Create(ctx, r.userID, strings.TrimSpace(name), ColorFor(name))
		if err != nil {
			return nil, fmt.Errorf("create tag %q: %w", name, err)
		}
		r.byName[key] = tag
		ids = append(ids, tag.ID)
	}
	return ids, nil
}

// ResolveFixed resolves one well-known tag (card type, "splitwise") with a
// caller-fixed color instead of a derived one.
func (r *Resolver) ResolveFixed(ctx context.Context, name, color string, dryRun bool) (uuid.UUID, bool, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if tag, ok := r.byName[key]; ok {
		return tag.ID, true, nil
	}
	if dryRun {
		return uuid.Nil, false, nil
	}
	tag, err := r.store.Create(ctx, r.userID, strings.TrimSpace(name), color)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("create tag %q: %w", name, err)
	}
	r.byName[key] = tag
	return tag.ID, true, nil
}

// Known reports whether a name is already in the cache.
func (r *Resolver) Known(name string) bool {
	_, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// ColorFor derives a stable display color from a tag name. Each RGB channel
// is clamped into [50, 200] so the swatch is neither washed out nor black.
func ColorFor(name string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(name))))
	r := 50 + int(sum[0])%151
	g := 50 + int(sum[1])%151
	b := 50 + int(sum[2])%151
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

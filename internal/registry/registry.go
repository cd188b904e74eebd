// Package registry keeps the per-author name registry that lets consistency
// checks span chapters.
//
// A [Store] persists one []types.TrackedName per author. [MemStore] keeps it
// in process; the postgres and redisstore subpackages persist it across
// restarts. [Merge] and [AddVariant] are the only ways entries change, and
// both return a new slice instead of mutating their input.
//
// Callers serialise load-modify-save cycles per author with a [KeyedMutex].
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/MrWong99/quillmate/internal/analysis/consistency"
	"github.com/MrWong99/quillmate/pkg/types"
)

var (
	// ErrRegistryUnavailable is wrapped by every store failure. Callers
	// degrade to an empty registry instead of failing the analysis.
	ErrRegistryUnavailable = errors.New("name registry unavailable")

	// ErrNameNotFound is returned by [AddVariant] for an unknown canonical name.
	ErrNameNotFound = errors.New("tracked name not found")

	// ErrVariantConflict is returned by [AddVariant] when the variant already
	// belongs to a different tracked name.
	ErrVariantConflict = errors.New("variant belongs to another tracked name")
)

// Store persists author registries. Implementations must be safe for
// concurrent use and must wrap failures in [ErrRegistryUnavailable].
type Store interface {
	// Load returns the registry of authorID. An author without a registry
	// yields an empty slice and a nil error.
	Load(ctx context.Context, authorID string) ([]types.TrackedName, error)

	// Save replaces the registry of authorID.
	Save(ctx context.Context, authorID string, names []types.TrackedName) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// Merge registers every extracted name that is not yet known. A name is known
// when it matches a canonical name or variant case-insensitively. Names that
// were flagged as inconsistent are not registered: they stay flagged until
// the author accepts them with [AddVariant] or fixes the text. New entries
// record chapter as FirstSeenChapter. added is the number of new entries.
func Merge(names []types.TrackedName, extracted []types.NamedEntity, flags []types.ConsistencyFlag, chapter int) (merged []types.TrackedName, added int) {
	merged = Clone(names)

	known := make(map[string]struct{})
	for _, tn := range merged {
		known[consistency.Normalize(tn.CanonicalName)] = struct{}{}
		for _, v := range tn.Variants {
			known[consistency.Normalize(v)] = struct{}{}
		}
	}
	for _, f := range flags {
		known[consistency.Normalize(f.CandidateName)] = struct{}{}
	}

	for _, e := range extracted {
		key := consistency.Normalize(e.Name)
		if key == "" {
			continue
		}
		if _, ok := known[key]; ok {
			continue
		}
		known[key] = struct{}{}
		merged = append(merged, types.TrackedName{
			CanonicalName:    e.Name,
			Kind:             e.Kind,
			FirstSeenChapter: chapter,
			Variants:         []string{e.Name},
		})
		added++
	}
	return merged, added
}

// AddVariant records variant as an accepted spelling of canonical. Adding a
// variant that is already present is a no-op.
func AddVariant(names []types.TrackedName, canonical, variant string) ([]types.TrackedName, error) {
	if consistency.Normalize(variant) == "" {
		return nil, fmt.Errorf("registry: add variant: empty variant")
	}
	out := Clone(names)
	want := consistency.Normalize(canonical)
	idx := slices.IndexFunc(out, func(tn types.TrackedName) bool {
		return consistency.Normalize(tn.CanonicalName) == want
	})
	if idx < 0 {
		return nil, fmt.Errorf("registry: add variant to %q: %w", canonical, ErrNameNotFound)
	}

	v := consistency.Normalize(variant)
	for i, tn := range out {
		if !slices.ContainsFunc(tn.Variants, func(s string) bool { return consistency.Normalize(s) == v }) &&
			consistency.Normalize(tn.CanonicalName) != v {
			continue
		}
		if i == idx {
			return out, nil
		}
		return nil, fmt.Errorf("registry: add variant %q: already a variant of %q: %w", variant, tn.CanonicalName, ErrVariantConflict)
	}
	out[idx].Variants = append(out[idx].Variants, variant)
	return out, nil
}

// Clone returns a deep copy of names. The result is never nil.
func Clone(names []types.TrackedName) []types.TrackedName {
	out := make([]types.TrackedName, len(names))
	for i, tn := range names {
		tn.Variants = slices.Clone(tn.Variants)
		if !slices.Contains(tn.Variants, tn.CanonicalName) && tn.CanonicalName != "" {
			tn.Variants = append([]string{tn.CanonicalName}, tn.Variants...)
		}
		out[i] = tn
	}
	return out
}

// Package viewcache caches rendered board views keyed by board version.
//
// A board render only changes when the board version changes, so many
// clients repeatedly issuing "look" can share one render per version.
// Entries are stored under "<namespace>:<version>" and are only ever written
// with text that was produced at exactly that version.
package viewcache

import (
	"context"
	"errors"
	"fmt"
)

// ErrStale is returned by a RenderFunc when the board moved past the
// requested version before it could be rendered. Stale renders are never cached.
var ErrStale = errors.New("render does not match requested version")

// RenderFunc renders the board at the requested version. It must return
// ErrStale (possibly wrapped) instead of text from any other version.
type RenderFunc func(ctx context.Context) (string, error)

// ViewCache stores rendered board views by version.
type ViewCache interface {
	// View returns the cached render for version, or calls render on a miss
	// and caches its result. Concurrent misses for the same version should
	// render only once.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - version: Board version the caller wants to see
	//   - render: Function producing the view on a miss
	//
	// Returns:
	//   - The rendered view
	//   - An error if the backend or render fails (render errors are wrapped)
	View(ctx context.Context, version uint64, render RenderFunc) (string, error)

	// Purge removes every entry in this cache's namespace.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//
	// Returns:
	//   - The number of entries removed
	//   - An error if the operation fails
	Purge(ctx context.Context) (int, error)
}

// Key returns the storage key for a version within a namespace.
func Key(namespace string, version uint64) string {
	return fmt.Sprintf("%s:%d", namespace, version)
}

// nopCache renders on every call.
type nopCache struct{}

// NewNop returns a ViewCache that never stores anything.
func NewNop() ViewCache {
	return nopCache{}
}

// View implements ViewCache.
func (nopCache) View(ctx context.Context, _ uint64, render RenderFunc) (string, error) {
	return render(ctx)
}

// Purge implements ViewCache.
func (nopCache) Purge(context.Context) (int, error) {
	return 0, nil
}

// Package module resolves worker module references against a fixed module
// root directory. References are always resolved relative to the root, never
// relative to the caller's working directory, mirroring how a module loader
// resolves sibling resources relative to the requesting module.
package module

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/maypok86/otter/v2"
)

// DefaultModule is the conventional name of the worker module that the
// singleton launch operation starts.
const DefaultModule = "worker.mjs"

// Cache sizing for resolved module paths. Module files rarely move, so a
// short TTL keeps stale entries bounded without re-statting on every launch.
const (
	defaultCacheSize = 256
	defaultCacheTTL  = 30 * time.Second
)

// ErrNotFound is returned when a module reference does not exist under the root.
var ErrNotFound = errors.New("module not found")

// ErrEscapesRoot is returned when a module reference would resolve outside
// the module root.
var ErrEscapesRoot = errors.New("module reference escapes module root")

// Locator resolves module references to absolute paths under a root directory.
type Locator struct {
	root  string
	cache *otter.Cache[string, string]
}

// NewLocator creates a Locator rooted at dir. The root itself must exist.
func NewLocator(dir string) (*Locator, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute module root: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat module root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("module root %s is not a directory", abs)
	}

	cache, err := otter.New[string, string](&otter.Options[string, string]{
		MaximumSize:      defaultCacheSize,
		ExpiryCalculator: otter.ExpiryWriting[string, string](defaultCacheTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create resolution cache: %w", err)
	}

	return &Locator{root: abs, cache: cache}, nil
}

// Root returns the absolute module root directory.
func (l *Locator) Root() string {
	return l.root
}

// Resolve maps a module reference to an absolute path under the root and
// verifies the file exists. Absolute references and references that traverse
// out of the root are rejected.
func (l *Locator) Resolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrNotFound)
	}

	if path, ok := l.cache.GetIfPresent(ref); ok {
		return path, nil
	}

	if !filepath.IsLocal(ref) {
		return "", fmt.Errorf("%w: %q", ErrEscapesRoot, ref)
	}

	path := filepath.Join(l.root, ref)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %q", ErrNotFound, ref)
		}
		return "", fmt.Errorf("stat module %q: %w", ref, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %q is a directory", ErrNotFound, ref)
	}

	l.cache.Set(ref, path)
	return path, nil
}

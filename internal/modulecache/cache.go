// Package modulecache amortizes WebAssembly module compilation across
// requests using a hash-keyed, on-disk, host-architecture-scoped store,
// per spec.md §4.2.
package modulecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

// Cache wraps a directory-scoped wazero.CompilationCache with explicit,
// hash-keyed bookkeeping so identical bytes are not recompiled across
// requests or process restarts. The CompilationCache itself must be
// wired into the wazero.Runtime that calls LoadOrCompile, via
// wazero.NewRuntimeConfig().WithCompilationCache(...) — a Runtime built
// with plain wazero.NewRuntime never consults it, however many times
// CompileModule is called, so Cache is built before the Runtime it
// serves rather than the other way around.
type Cache struct {
	root     string // <cache-root>/<runtime-version>
	logger   *zap.Logger
	compCach wazero.CompilationCache
}

// New opens (creating if necessary) a module cache rooted at
// filepath.Join(cacheRoot, wazero.RuntimeVersion()), matching spec.md
// §3's "the runtime-version segment isolates incompatible artifact
// formats." Call CompilationCache to obtain the cache to pass into
// wazero.NewRuntimeConfig before constructing the Runtime.
func New(cacheRoot string, logger *zap.Logger) (*Cache, error) {
	root := filepath.Join(cacheRoot, wazero.RuntimeVersion())
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("modulecache: create cache dir: %w", err)
	}

	cc, err := wazero.NewCompilationCacheWithDir(root)
	if err != nil {
		return nil, fmt.Errorf("modulecache: open compilation cache: %w", err)
	}

	return &Cache{
		root:     root,
		logger:   logger,
		compCach: cc,
	}, nil
}

// CompilationCache returns the underlying wazero.CompilationCache, to be
// passed to wazero.NewRuntimeConfig().WithCompilationCache before the
// Runtime is created.
func (c *Cache) CompilationCache() wazero.CompilationCache {
	return c.compCach
}

// Close releases the underlying compilation cache.
func (c *Cache) Close(ctx context.Context) error {
	return c.compCach.Close(ctx)
}

// hash returns the hex-encoded SHA-256 fingerprint of b.
func hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (c *Cache) markerPath(h string) string {
	return filepath.Join(c.root, h+".seen")
}

// LoadOrCompile compiles b against runtime, which must have been built
// with this Cache's CompilationCache wired in via WithCompilationCache
// so that an identical-bytes compile under the same runtime version
// skips recompilation entirely. The marker file is the cache's own
// explicit, hash-keyed bookkeeping layered on top of wazero's opaque
// storage format: its absence means this is the first time this hash
// has been seen (an I/O-absent miss, logged at INFO); its presence but a
// failing compile means the underlying cache entry is corrupt or was
// produced by an incompatible build (logged at WARN, and retried once
// after removing the stale marker).
func (c *Cache) LoadOrCompile(ctx context.Context, runtime wazero.Runtime, b []byte) (wazero.CompiledModule, error) {
	h := hash(b)
	marker := c.markerPath(h)

	if _, err := os.Stat(marker); err != nil {
		c.logger.Info("compiling module", zap.String("hash", h))
		return c.compileAndMark(ctx, runtime, b, marker, h)
	}

	mod, err := runtime.CompileModule(ctx, b)
	if err != nil {
		c.logger.Warn("cached module corrupted, recompiling",
			zap.String("hash", h), zap.Error(err))
		_ = os.Remove(marker)
		return c.compileAndMark(ctx, runtime, b, marker, h)
	}
	return mod, nil
}

func (c *Cache) compileAndMark(ctx context.Context, runtime wazero.Runtime, b []byte, marker, h string) (wazero.CompiledModule, error) {
	mod, err := runtime.CompileModule(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("modulecache: compile: %w", err)
	}
	if werr := os.WriteFile(marker, []byte(h), 0o644); werr != nil {
		c.logger.Warn("failed to persist cache marker", zap.String("hash", h), zap.Error(werr))
	}
	return mod, nil
}

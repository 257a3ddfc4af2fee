// Package sandbox builds and runs per-request WebAssembly guest
// instances: one wazero.Runtime shared across the process lifetime,
// WASI and the Lambda bridge wired in once, and a fresh module
// instance per request.
package sandbox

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wasmcgi/wcgi/internal/lambdaproto"
	"github.com/wasmcgi/wcgi/internal/modulecache"
)

const startFunc = "_start"

// Harness owns one wazero.Runtime and the host modules resolved against
// it (WASI and, if enabled, the Lambda bridge). It is safe for
// concurrent use: guest instances are created per-request, but the
// Runtime and its host modules are shared, matching spec.md §5's
// "different requests may execute in parallel on different workers"
// model — Go's goroutine-per-request is that model's natural
// expression.
type Harness struct {
	runtime     wazero.Runtime
	cache       *modulecache.Cache
	logger      *zap.Logger
	lambdaMode  bool
	wasiCloser  api.Closer
	lambdaClose api.Closer
}

// New builds a Harness, including its own wazero.Runtime and a
// modulecache.Cache wired into it. The CompilationCache must exist
// before the Runtime does: a Runtime only consults a compilation cache
// it was constructed with via
// wazero.NewRuntimeConfig().WithCompilationCache(...), so this builds
// the cache first and passes it into the RuntimeConfig, matching the
// corpus's own cache-then-runtime construction order. When lambdaMode
// is true the lambda0 host module is instantiated alongside WASI so
// guest imports against either namespace resolve; per spec.md §4.4 the
// two live in distinct module namespaces, so registration order never
// matters.
func New(ctx context.Context, cacheRoot string, logger *zap.Logger, lambdaMode bool) (*Harness, error) {
	cache, err := modulecache.New(cacheRoot, logger)
	if err != nil {
		return nil, fmt.Errorf("sandbox: open module cache: %w", err)
	}

	rtConfig := wazero.NewRuntimeConfig().
		WithCompilationCache(cache.CompilationCache()).
		WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)

	wasiCloser, err := wasi_snapshot_preview1.Instantiate(ctx, rt)
	if err != nil {
		cache.Close(ctx)
		rt.Close(ctx)
		return nil, fmt.Errorf("sandbox: instantiate wasi: %w", err)
	}

	h := &Harness{
		runtime:    rt,
		cache:      cache,
		logger:     logger,
		lambdaMode: lambdaMode,
		wasiCloser: wasiCloser,
	}

	if lambdaMode {
		lambdaCloser, err := lambdaproto.InstantiateHostModule(ctx, rt)
		if err != nil {
			wasiCloser.Close(ctx)
			cache.Close(ctx)
			rt.Close(ctx)
			return nil, fmt.Errorf("sandbox: instantiate lambda0: %w", err)
		}
		h.lambdaClose = lambdaCloser
	}

	return h, nil
}

// Close tears down the module cache, the shared Runtime, and its host
// modules.
func (h *Harness) Close(ctx context.Context) error {
	if h.lambdaClose != nil {
		h.lambdaClose.Close(ctx)
	}
	if h.wasiCloser != nil {
		h.wasiCloser.Close(ctx)
	}
	_ = h.cache.Close(ctx)
	return h.runtime.Close(ctx)
}

// RunOptions configures a single guest invocation.
type RunOptions struct {
	// Name is the module instance name; must be unique among modules
	// simultaneously instantiated on this Runtime.
	Name string
	// WorkDir is preopened at guest root "/".
	WorkDir string
	// Env is passed as CGI-style WithEnv pairs; empty in Lambda mode.
	Env []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Bridge carries the Lambda request/response slot for this
	// invocation; nil in CGI mode.
	Bridge *lambdaproto.Bridge
	// Timeout, when non-zero, bounds _start's execution. Zero disables
	// the deadline (spec.md §9's default: no deadline unless the
	// operator opts in via WCGI_GUEST_TIMEOUT).
	Timeout time.Duration
}

// Run compiles (via the shared module cache) and executes bytes as a
// WASI guest, calling its _start export. Stdout/stderr/the Lambda
// response slot are populated as side effects on RunOptions' fields;
// Run itself returns only the terminal error, if any.
func (h *Harness) Run(ctx context.Context, wasmBytes []byte, opts RunOptions) error {
	compiled, err := h.cache.LoadOrCompile(ctx, h.runtime, wasmBytes)
	if err != nil {
		return fmt.Errorf("sandbox: compile module: %w", err)
	}

	cfg := wazero.NewModuleConfig().
		WithName(opts.Name).
		WithFSConfig(wazero.NewFSConfig().WithDirMount(opts.WorkDir, "/")).
		WithStdin(opts.Stdin).
		WithStdout(opts.Stdout).
		WithStderr(opts.Stderr)
	for _, kv := range opts.Env {
		k, v := splitEnv(kv)
		cfg = cfg.WithEnv(k, v)
	}

	runCtx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, opts.Timeout)
		defer cancel()
	}
	if opts.Bridge != nil {
		runCtx = lambdaproto.ContextWithBridge(runCtx, opts.Bridge)
	}

	mod, err := h.runtime.InstantiateModule(runCtx, compiled, cfg)
	if err != nil {
		return fmt.Errorf("sandbox: instantiate guest: %w", err)
	}
	defer mod.Close(ctx)

	start := mod.ExportedFunction(startFunc)
	if start == nil {
		return fmt.Errorf("sandbox: guest module %q has no %s export", opts.Name, startFunc)
	}

	if _, err := start.Call(runCtx); err != nil {
		if runCtx.Err() != nil {
			return fmt.Errorf("sandbox: guest %s timed out: %w", opts.Name, runCtx.Err())
		}
		return fmt.Errorf("sandbox: guest %s trapped: %w", opts.Name, err)
	}

	return nil
}

func splitEnv(kv string) (key, value string) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:]
		}
	}
	return kv, ""
}

// UniqueName derives a module instance name from a request-scoped
// identifier, joined under the script's base name so logs and traps
// read naturally (e.g. "echo.sh-7f3a").
func UniqueName(scriptName, requestID string) string {
	base := filepath.Base(scriptName)
	if base == "." || base == "/" {
		base = "wgi-bin"
	}
	return base + "-" + requestID
}

package lambdaproto

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// HostModule is the import namespace the guest resolves lambda0
// functions against, per spec.md §4.6.
const HostModule = "lambda0"

const (
	funcLambdaEvent        = "lambda_event"
	funcLambdaEventSize    = "lambda_event_size"
	funcLambdaSendResponse = "lambda_send_response"
)

// Bridge holds the serialized request bytes (immutable after
// construction) and a slot for the guest's response. It is the shared
// mutable state spec.md §9 describes: a mutex-protected record. In Go a
// *Bridge is already a reference-counted-enough handle (the garbage
// collector retires it once nothing references it), so no explicit
// refcounting is needed.
//
// The three lambda0 host functions are registered once, for the whole
// process lifetime, by InstantiateHostModule — not per Bridge — because a
// wazero.Runtime can only hold one instantiated module per name at a
// time, and concurrent Lambda requests share one Runtime (spec.md §5:
// "different requests may execute in parallel on different workers").
// Per-request identity is carried through context.Context instead: each
// invocation's ctx is tagged with its own *Bridge via ContextWithBridge,
// and the shared host functions recover it with bridgeFromContext. This
// is the Go-idiomatic analogue of spec.md §9's "clone the handle into
// each callback closure" — the closure is fixed, the handle travels on
// the call's context instead.
type Bridge struct {
	mu          sync.Mutex
	requestJSON []byte
	response    *Response
}

// NewBridge serializes req once; its bytes are read-only for the rest of
// the bridge's lifetime.
func NewBridge(req *Request) (*Bridge, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("lambdaproto: marshal request: %w", err)
	}
	return &Bridge{requestJSON: b}, nil
}

// Response returns the guest-posted response, or nil if the guest never
// called lambda_send_response.
func (b *Bridge) Response() *Response {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.response
}

type bridgeContextKey struct{}

// ContextWithBridge attaches b to ctx so the shared lambda0 host
// functions can recover it during this invocation.
func ContextWithBridge(ctx context.Context, b *Bridge) context.Context {
	return context.WithValue(ctx, bridgeContextKey{}, b)
}

func bridgeFromContext(ctx context.Context) *Bridge {
	b, _ := ctx.Value(bridgeContextKey{}).(*Bridge)
	return b
}

// InstantiateHostModule registers the lambda0 host functions into
// runtime once. Call it a single time per Runtime (e.g. alongside
// wasi_snapshot_preview1.Instantiate), not per request.
func InstantiateHostModule(ctx context.Context, runtime wazero.Runtime) (api.Closer, error) {
	builder := runtime.NewHostModuleBuilder(HostModule)

	builder.NewFunctionBuilder().
		WithFunc(lambdaEvent).
		Export(funcLambdaEvent)

	builder.NewFunctionBuilder().
		WithFunc(lambdaEventSize).
		Export(funcLambdaEventSize)

	builder.NewFunctionBuilder().
		WithFunc(lambdaSendResponse).
		Export(funcLambdaSendResponse)

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("lambdaproto: instantiate host module: %w", err)
	}
	return mod, nil
}

// lambdaEvent copies up to ln bytes of the serialized request into the
// guest buffer at ptr, returning the number of bytes written.
func lambdaEvent(ctx context.Context, mod api.Module, ptr, ln uint32) uint32 {
	b := bridgeFromContext(ctx)
	if b == nil {
		return 0
	}

	b.mu.Lock()
	data := b.requestJSON
	b.mu.Unlock()

	n := uint32(len(data))
	if n > ln {
		n = ln
	}
	if n == 0 {
		return 0
	}
	if !mod.Memory().Write(ptr, data[:n]) {
		return 0
	}
	return n
}

// lambdaEventSize returns the byte length of the serialized request.
func lambdaEventSize(ctx context.Context, mod api.Module) uint32 {
	b := bridgeFromContext(ctx)
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint32(len(b.requestJSON))
}

// lambdaSendResponse parses the guest buffer [ptr, ptr+ln) as a
// Response, storing it in the shared slot (last write wins). Returns 0
// on success, -1 on parse failure.
func lambdaSendResponse(ctx context.Context, mod api.Module, ptr, ln uint32) int32 {
	b := bridgeFromContext(ctx)
	if b == nil {
		return -1
	}

	raw, ok := mod.Memory().Read(ptr, ln)
	if !ok {
		return -1
	}
	// Memory().Read returns a view into guest linear memory; copy before
	// the guest can mutate it out from under us.
	payload := make([]byte, len(raw))
	copy(payload, raw)

	resp, err := ParseResponse(payload)
	if err != nil {
		return -1
	}

	b.mu.Lock()
	b.response = resp
	b.mu.Unlock()
	return 0
}

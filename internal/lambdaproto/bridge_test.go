package lambdaproto

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
)

// memoryOnlyModule is a hand-assembled minimal WebAssembly binary
// exporting a single one-page linear memory named "memory" and nothing
// else. It exists purely so bridge tests have a real api.Module to read
// and write guest memory against, without needing a compiled guest
// program.
var memoryOnlyModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic + version
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 memory, min 1 page
	0x07, 0x0a, 0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00, // export "memory"
}

func TestBridgeEventAndEventSize(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, memoryOnlyModule)
	require.NoError(t, err)
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	require.NoError(t, err)
	defer mod.Close(ctx)

	r := httptest.NewRequest(http.MethodGet, "/fn?q=v", nil)
	req := BuildRequest(r, nil)
	bridge, err := NewBridge(req)
	require.NoError(t, err)
	ctx = ContextWithBridge(ctx, bridge)

	size := lambdaEventSize(ctx, mod)
	require.Equal(t, uint32(len(bridge.requestJSON)), size)

	written := lambdaEvent(ctx, mod, 0, size)
	require.Equal(t, size, written)

	got, ok := mod.Memory().Read(0, size)
	require.True(t, ok)
	require.Equal(t, bridge.requestJSON, got)
}

func TestBridgeSendResponseSuccessAndMalformed(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, memoryOnlyModule)
	require.NoError(t, err)
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	require.NoError(t, err)
	defer mod.Close(ctx)

	r := httptest.NewRequest(http.MethodGet, "/fn", nil)
	bridge, err := NewBridge(BuildRequest(r, nil))
	require.NoError(t, err)
	ctx = ContextWithBridge(ctx, bridge)

	payload := []byte(`{"statusCode":201,"headers":{},"body":"ok","isBase64Encoded":false}`)
	require.True(t, mod.Memory().Write(0, payload))

	rc := lambdaSendResponse(ctx, mod, 0, uint32(len(payload)))
	require.Equal(t, int32(0), rc)
	require.NotNil(t, bridge.Response())
	require.Equal(t, 201, bridge.Response().StatusCode)

	require.True(t, mod.Memory().Write(0, []byte("not json")))
	rc = lambdaSendResponse(ctx, mod, 0, 8)
	require.Equal(t, int32(-1), rc)

	// last-write-wins: the prior successful response is still in the slot
	require.Equal(t, 201, bridge.Response().StatusCode)
}

func TestBridgeResponseNilWhenNeverSent(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/fn", nil)
	bridge, err := NewBridge(BuildRequest(r, nil))
	require.NoError(t, err)
	require.Nil(t, bridge.Response())
}

func TestLambdaFunctionsWithoutBridgeInContextAreNoops(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, memoryOnlyModule)
	require.NoError(t, err)
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	require.NoError(t, err)
	defer mod.Close(ctx)

	require.Equal(t, uint32(0), lambdaEventSize(ctx, mod))
	require.Equal(t, uint32(0), lambdaEvent(ctx, mod, 0, 10))
	require.Equal(t, int32(-1), lambdaSendResponse(ctx, mod, 0, 0))
}

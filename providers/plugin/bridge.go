// Package plugin implements a resource.Resource whose Evaluate is
// delegated to a sandboxed WebAssembly module, grounded on the teacher's
// wazero-based host provider bridge.
package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/latticectl/lattice/internal/txn"
)

// Module wraps one compiled WASM resource plugin. It is the resource.
// Provider shared by every plugin.Resource using the same module: the
// runtime and instance are created once by Prefetch.
type Module struct {
	name    string
	binary  []byte
	timeout time.Duration

	runtime wazero.Runtime
	mod     api.Module

	memory api.Memory
	malloc api.Function
	free   api.Function
	evalFn api.Function
}

// NewModule returns a Module wrapping the given compiled WASM binary. The
// module must export "malloc", "free" and "evaluate" functions following
// the (ptr, len) in / packed (ptr<<32|len) out calling convention.
func NewModule(name string, binary []byte, timeout time.Duration) *Module {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Module{name: name, binary: binary, timeout: timeout}
}

func (m *Module) Name() string { return "plugin:" + m.name }

// Prefetch compiles and instantiates the WASM module once per Module.
func (m *Module) Prefetch(ctx context.Context) error {
	if m.mod != nil {
		return nil
	}

	runtime := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return txn.NewPermanentError("failed to instantiate WASI", err).WithOperation("prefetch")
	}

	mod, err := runtime.Instantiate(ctx, m.binary)
	if err != nil {
		runtime.Close(ctx)
		return txn.NewPermanentError("failed to instantiate module", err).WithOperation("prefetch")
	}

	memory := mod.Memory()
	if memory == nil {
		runtime.Close(ctx)
		return txn.NewPermanentError("module does not export memory", nil).WithOperation("prefetch")
	}
	malloc := mod.ExportedFunction("malloc")
	if malloc == nil {
		runtime.Close(ctx)
		return txn.NewPermanentError("module does not export malloc", nil).WithOperation("prefetch")
	}
	free := mod.ExportedFunction("free")
	if free == nil {
		runtime.Close(ctx)
		return txn.NewPermanentError("module does not export free", nil).WithOperation("prefetch")
	}
	evalFn := mod.ExportedFunction("evaluate")
	if evalFn == nil {
		runtime.Close(ctx)
		return txn.NewPermanentError("module does not export evaluate", nil).WithOperation("prefetch")
	}

	m.runtime = runtime
	m.mod = mod
	m.memory = memory
	m.malloc = malloc
	m.free = free
	m.evalFn = evalFn
	return nil
}

// Close tears down the runtime and its module instance.
func (m *Module) Close(ctx context.Context) error {
	if m.runtime == nil {
		return nil
	}
	return m.runtime.Close(ctx)
}

// call invokes the module's evaluate function with input marshaled as
// JSON and returns its JSON-encoded response.
func (m *Module) call(ctx context.Context, input any) ([]byte, error) {
	if m.evalFn == nil {
		return nil, fmt.Errorf("plugin: Prefetch was never called")
	}

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("plugin: marshaling input: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var inputPtr, inputLen uint32
	if len(inputJSON) > 0 {
		results, err := m.malloc.Call(ctx, uint64(len(inputJSON)))
		if err != nil {
			return nil, fmt.Errorf("plugin: malloc failed: %w", err)
		}
		inputPtr = uint32(results[0])
		inputLen = uint32(len(inputJSON))
		defer m.free.Call(ctx, uint64(inputPtr))

		if !m.memory.Write(inputPtr, inputJSON) {
			return nil, fmt.Errorf("plugin: failed to write input to module memory")
		}
	}

	results, err := m.evalFn.Call(ctx, uint64(inputPtr), uint64(inputLen))
	if err != nil {
		return nil, txn.NewTransientError("evaluate call failed", err).WithOperation("evaluate")
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("plugin: evaluate returned no results")
	}

	packed := results[0]
	outPtr := uint32(packed >> 32)
	outLen := uint32(packed & 0xFFFFFFFF)
	if outLen == 0 {
		return []byte("{}"), nil
	}

	output, ok := m.memory.Read(outPtr, outLen)
	if !ok {
		return nil, fmt.Errorf("plugin: failed to read output from module memory")
	}
	out := make([]byte, len(output))
	copy(out, output)
	m.free.Call(ctx, uint64(outPtr))

	return out, nil
}

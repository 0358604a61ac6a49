package shader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/dchest/blake2b"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"

	"github.com/gogpu/dispatch/internal/cache"
)

// ErrSPIRVLength is returned when the compiler output is not a whole number
// of 32-bit words.
var ErrSPIRVLength = errors.New("shader: SPIR-V output is not word aligned")

// DefaultCacheSize is the number of compiled modules kept by the package
// compiler.
const DefaultCacheSize = 64

// Key identifies normalized shader text.
type Key [32]byte

// KeyOf hashes text with surrounding whitespace removed. text is expected
// to be the output of Normalize.
func KeyOf(text []byte) Key {
	return blake2b.Sum256(bytes.TrimSpace(text))
}

// Module is a compiled WGSL shader.
type Module struct {
	// SPIRV holds the little-endian SPIR-V words.
	SPIRV []uint32

	// EntryPoints lists the compute entry points in declaration order.
	EntryPoints []string
}

// HasEntryPoint reports whether the module declares compute entry point
// name.
func (m *Module) HasEntryPoint(name string) bool {
	return slices.Contains(m.EntryPoints, name)
}

func (m *Module) clone() *Module {
	return &Module{
		SPIRV:       slices.Clone(m.SPIRV),
		EntryPoints: slices.Clone(m.EntryPoints),
	}
}

// Compiler compiles WGSL to SPIR-V and keeps recent results.
// Failed compilations are not cached.
type Compiler struct {
	modules *cache.Cache[Key, *Module]
}

// NewCompiler creates a compiler caching up to size modules.
// A size of 0 or less disables eviction.
func NewCompiler(size int) *Compiler {
	return &Compiler{modules: cache.New[Key, *Module](size)}
}

// Compile parses, validates and translates wgsl. The returned module is
// owned by the caller.
func (c *Compiler) Compile(wgsl []byte) (*Module, error) {
	key := KeyOf(wgsl)
	if m, ok := c.modules.Get(key); ok {
		return m.clone(), nil
	}
	m, err := compile(string(wgsl))
	if err != nil {
		return nil, err
	}
	c.modules.Set(key, m)
	return m.clone(), nil
}

// Stats returns the compiler's cache statistics.
func (c *Compiler) Stats() cache.Stats { return c.modules.Stats() }

var defaultCompiler = NewCompiler(DefaultCacheSize)

// Compile compiles wgsl through the package compiler. The returned error
// carries the compiler diagnostics as its message.
func Compile(wgsl []byte) (*Module, error) {
	return defaultCompiler.Compile(wgsl)
}

// compile runs the naga stages one by one so the entry points can be read
// from the IR before SPIR-V generation.
func compile(source string) (*Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("lowering error: %w", err)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if len(verrs) > 0 {
		return nil, fmt.Errorf("validation failed: %w", &verrs[0])
	}

	var entries []string
	for _, ep := range module.EntryPoints {
		if ep.Stage == ir.StageCompute {
			entries = append(entries, ep.Name)
		}
	}

	opts := naga.DefaultOptions()
	spirvBytes, err := naga.GenerateSPIRV(module, spirv.Options{Version: opts.SPIRVVersion})
	if err != nil {
		return nil, err
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrSPIRVLength, len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return &Module{SPIRV: words, EntryPoints: entries}, nil
}

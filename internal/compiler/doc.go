// Package compiler turns WebAssembly text into a live module instance.
//
// The Adapter wraps two external engines behind one call:
//
//  1. wat -> wasm (wasmtime.Wat2Wasm)
//  2. wasm -> instance, instantiated with an empty import table
//
// Every failure, including a panic from the engine bindings, is returned as
// a failed state.CompileResult carrying a *CompileError. Compile never
// returns an error value of its own and never panics.
//
// Each successful compile gets its own wasmtime store. Exports from an older
// compile stay callable after a newer one lands, which is what lets the
// session environment merge exports across compiles.
package compiler

// Package vm implements the Rill virtual machine.
//
// This package contains:
//   - Tagged value representation and the shared Table type
//   - Instruction set, Chunk, and function prototypes
//   - Stack-based interpreter with call frames and upvalue cells
//   - Predefined natives, disassembler, and chunk fingerprint
package vm

package vm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode so equal chunks encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Wire forms hashed by Fingerprint. They exist only to be digested; chunks
// are never decoded from them.

type wireChunk struct {
	Instructions []wireInstruction `cbor:"1,keyasint"`
	Constants    []wireConstant    `cbor:"2,keyasint"`
	Prototypes   []wireProto       `cbor:"3,keyasint"`
}

type wireInstruction struct {
	Op uint8  `cbor:"1,keyasint"`
	A  uint16 `cbor:"2,keyasint,omitempty"`
	B  bool   `cbor:"3,keyasint,omitempty"`
}

type wireConstant struct {
	Kind uint8  `cbor:"1,keyasint"`
	Bits uint64 `cbor:"2,keyasint,omitempty"`
	Text string `cbor:"3,keyasint,omitempty"`
}

type wireProto struct {
	Params    uint8    `cbor:"1,keyasint"`
	CodeStart int      `cbor:"2,keyasint"`
	Upvalues  []uint32 `cbor:"3,keyasint,omitempty"` // source<<16 | index
}

// Fingerprint returns the hex sha256 of the chunk's canonical CBOR encoding.
// Two compilations of the same program have the same fingerprint.
func (c *Chunk) Fingerprint() (string, error) {
	w := wireChunk{
		Instructions: make([]wireInstruction, len(c.Instructions)),
		Constants:    make([]wireConstant, len(c.Constants)),
		Prototypes:   make([]wireProto, len(c.Prototypes)),
	}
	for i, in := range c.Instructions {
		w.Instructions[i] = wireInstruction{Op: uint8(in.Op), A: in.A, B: in.B}
	}
	for i, k := range c.Constants {
		wc := wireConstant{Kind: uint8(k.kind), Bits: k.bits}
		if s, ok := k.AsString(); ok {
			wc.Text = s
		}
		w.Constants[i] = wc
	}
	for i, p := range c.Prototypes {
		wp := wireProto{Params: p.Params, CodeStart: p.CodeStart}
		for _, uv := range p.Upvalues {
			wp.Upvalues = append(wp.Upvalues, uint32(uv.Source)<<16|uint32(uv.Index))
		}
		w.Prototypes[i] = wp
	}

	data, err := cborEncMode.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("encode chunk: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

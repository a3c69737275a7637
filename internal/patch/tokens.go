// Copyright 2024 The dxbcpatch Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package patch

import (
	"encoding/binary"

	"github.com/r5reborn/dxbcpatch/internal/dxbc"
	"github.com/r5reborn/dxbcpatch/internal/sm5"
)

// TokenStream is an SHEX/SHDR chunk payload viewed as a sequence of 32-bit
// tokens, read and written directly through the owning blob so every pass
// mutates in place without ever resizing a chunk.
type TokenStream struct {
	blob []byte
	off  int
	size int
}

// newTokenStream wraps the payload of one bytecode chunk.
func newTokenStream(blob []byte, payloadOffset, payloadSize int) *TokenStream {
	return &TokenStream{blob: blob, off: payloadOffset, size: payloadSize}
}

// Len returns the number of 32-bit tokens in the stream.
func (ts *TokenStream) Len() int { return ts.size / 4 }

// Get reads the token at dword index i.
func (ts *TokenStream) Get(i int) uint32 {
	return binary.LittleEndian.Uint32(ts.blob[ts.off+i*4:])
}

// Set overwrites the token at dword index i.
func (ts *TokenStream) Set(i int, v uint32) {
	binary.LittleEndian.PutUint32(ts.blob[ts.off+i*4:], v)
}

// bytecodeChunks returns a TokenStream for every SHEX or SHDR chunk in blob.
func bytecodeChunks(blob []byte) ([]*TokenStream, error) {
	chunks, err := dxbc.AllChunks(blob)
	if err != nil {
		return nil, err
	}
	var streams []*TokenStream
	for _, c := range chunks {
		if c.FourCC.String() == "SHEX" || c.FourCC.String() == "SHDR" {
			streams = append(streams, newTokenStream(blob, c.PayloadOffset, c.PayloadSize))
		}
	}
	return streams, nil
}

// streamHeaderTokens is the fixed two-token chunk preamble (program
// type/version, total length in DWORDs) preceding the instruction stream.
const streamHeaderTokens = 2

// instr is one decoded instruction's position within a token stream.
type instr struct {
	Op     sm5.Opcode
	Pos    int // dword index of the instruction token
	Length int // instruction length in dwords, including the instruction token
}

// instructions walks ts from the start of the instruction stream to its end,
// decoding one instruction token at a time and advancing by its declared
// length. It never looks inside an instruction's operands.
func instructions(ts *TokenStream) []instr {
	var out []instr
	pos := streamHeaderTokens
	for pos < ts.Len() {
		op, length := sm5.DecodeInstruction(ts.Get(pos))
		out = append(out, instr{Op: op, Pos: pos, Length: length})
		pos += length
	}
	return out
}

// operand is a decoded operand together with the absolute dword positions of
// its index/immediate dwords, so a pass can write a single value back
// without recomputing the operand's layout.
type operand struct {
	sm5.Operand
	Indices  []uint32
	IndexPos []int
	Pos      int // dword index of the operand token itself
}

// readOperand decodes the operand token at pos and the index or immediate
// dwords that follow it (skipping an extended operand token, if present),
// returning the dword index immediately past the operand.
func readOperand(ts *TokenStream, pos int) (operand, int) {
	base := sm5.DecodeOperand(ts.Get(pos))
	cursor := pos + 1
	if base.Extended {
		cursor++
	}

	n := base.Footprint() - 1
	if base.Extended {
		n--
	}

	indices := make([]uint32, n)
	idxPos := make([]int, n)
	for i := 0; i < n; i++ {
		idxPos[i] = cursor
		indices[i] = ts.Get(cursor)
		cursor++
	}

	return operand{Operand: base, Indices: indices, IndexPos: idxPos, Pos: pos}, cursor
}

// operandsOf decodes every operand in in's body (the dwords between the
// instruction token and the instruction's declared end), in order.
func operandsOf(ts *TokenStream, in instr) []operand {
	var ops []operand
	p := in.Pos + 1
	end := in.Pos + in.Length
	for p < end {
		o, next := readOperand(ts, p)
		ops = append(ops, o)
		p = next
	}
	return ops
}

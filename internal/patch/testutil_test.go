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
	"github.com/r5reborn/dxbcpatch/internal/rdef"
	"github.com/r5reborn/dxbcpatch/internal/sm5"
)

// --- container assembly -----------------------------------------------

// buildContainer assembles a DXBC blob from (fourCC, payload) pairs, in
// order.
func buildContainer(chunks [][2]interface{}) []byte {
	n := len(chunks)
	headerAndTable := dxbc.HeaderSize + 4*n

	offsets := make([]int, n)
	size := headerAndTable
	for i, c := range chunks {
		offsets[i] = size
		payload := c[1].([]byte)
		size += 8 + len(payload)
	}

	blob := make([]byte, size)
	copy(blob[0:4], dxbc.Magic[:])
	binary.LittleEndian.PutUint32(blob[24:28], uint32(size))
	binary.LittleEndian.PutUint32(blob[28:32], uint32(n))

	for i, c := range chunks {
		binary.LittleEndian.PutUint32(blob[dxbc.HeaderSize+4*i:], uint32(offsets[i]))
		fourCC := c[0].(string)
		payload := c[1].([]byte)
		copy(blob[offsets[i]:offsets[i]+4], fourCC)
		binary.LittleEndian.PutUint32(blob[offsets[i]+4:], uint32(len(payload)))
		copy(blob[offsets[i]+8:], payload)
	}
	return blob
}

// --- RDEF assembly -------------------------------------------------------

type rdefCBuffer struct {
	Name     string
	Size     uint32
	VarCount uint32
}

type rdefBinding struct {
	Name      string
	Class     rdef.ResourceClass
	BindPoint uint32
}

func buildRDEFPayload(cbufs []rdefCBuffer, bindings []rdefBinding) []byte {
	const header = 28
	const cbufRecSize = 24
	const bindRecSize = 32

	cbufTableOff := header
	bindTableOff := cbufTableOff + len(cbufs)*cbufRecSize
	stringOff := bindTableOff + len(bindings)*bindRecSize

	var pool []byte
	cbufNameOff := make([]uint32, len(cbufs))
	for i, c := range cbufs {
		cbufNameOff[i] = uint32(stringOff + len(pool))
		pool = append(pool, []byte(c.Name+"\x00")...)
	}
	bindNameOff := make([]uint32, len(bindings))
	for i, b := range bindings {
		bindNameOff[i] = uint32(stringOff + len(pool))
		pool = append(pool, []byte(b.Name+"\x00")...)
	}

	total := stringOff + len(pool)
	payload := make([]byte, total)
	binary.LittleEndian.PutUint32(payload[0:4], uint32(len(cbufs)))
	binary.LittleEndian.PutUint32(payload[4:8], uint32(cbufTableOff))
	binary.LittleEndian.PutUint32(payload[8:12], uint32(len(bindings)))
	binary.LittleEndian.PutUint32(payload[12:16], uint32(bindTableOff))

	for i, c := range cbufs {
		rec := payload[cbufTableOff+i*cbufRecSize : cbufTableOff+(i+1)*cbufRecSize]
		binary.LittleEndian.PutUint32(rec[0:4], cbufNameOff[i])
		binary.LittleEndian.PutUint32(rec[4:8], c.VarCount)
		binary.LittleEndian.PutUint32(rec[12:16], c.Size)
	}
	for i, b := range bindings {
		rec := payload[bindTableOff+i*bindRecSize : bindTableOff+(i+1)*bindRecSize]
		binary.LittleEndian.PutUint32(rec[0:4], bindNameOff[i])
		binary.LittleEndian.PutUint32(rec[4:8], uint32(b.Class))
		binary.LittleEndian.PutUint32(rec[20:24], b.BindPoint)
	}
	copy(payload[stringOff:], pool)
	return payload
}

// --- SHEX assembly -------------------------------------------------------

// buildSHEXPayload concatenates already-encoded instructions behind the
// fixed two-token chunk preamble.
func buildSHEXPayload(instrs ...[]uint32) []byte {
	tokens := []uint32{0, 0}
	for _, in := range instrs {
		tokens = append(tokens, in...)
	}
	tokens[1] = uint32(len(tokens))

	buf := make([]byte, len(tokens)*4)
	for i, t := range tokens {
		binary.LittleEndian.PutUint32(buf[i*4:], t)
	}
	return buf
}

func buildInstr(op sm5.Opcode, operands ...[]uint32) []uint32 {
	var body []uint32
	for _, o := range operands {
		body = append(body, o...)
	}
	length := 1 + len(body)
	tok := sm5.EncodeInstruction(op, length, 0)
	return append([]uint32{tok}, body...)
}

func opToken(numComponents uint32, mode sm5.ComponentMode, componentBits uint32, operandType uint32, indexDim uint32) uint32 {
	return (numComponents & 0x3) |
		(uint32(mode)&0x3)<<2 |
		(componentBits << 4) |
		(operandType&0xFF)<<12 |
		(indexDim&0x3)<<20
}

func opTempMask(reg, mask uint32) []uint32 {
	return []uint32{opToken(2, sm5.ModeMask, mask, uint32(sm5.Temp), 1), reg}
}

func opTempW(reg uint32) []uint32 { return opTempMask(reg, 0b1000) }

func opCBuffer(buf, elem, mask uint32) []uint32 {
	return []uint32{opToken(2, sm5.ModeMask, mask, uint32(sm5.CBuffer), 2), buf, elem}
}

func opCBufferW(buf, elem uint32) []uint32 { return opCBuffer(buf, elem, 0b1000) }

func opImmScalar(v uint32) []uint32 {
	return []uint32{sm5.ImmediateScalarToken, v}
}

func opResource(slot uint32) []uint32 {
	return []uint32{opToken(0, sm5.ModeMask, 0, uint32(sm5.Resource), 1), slot}
}

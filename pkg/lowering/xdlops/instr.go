// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xdlops

import "fmt"

// Instr enumerates the accelerated matrix-multiply-accumulate (MFMA) instructions.
type Instr int

const (
	InstrInvalid Instr = iota

	MFMAF32_32x32x1F32
	MFMAF32_32x32x2F32
	MFMAF32_16x16x1F32
	MFMAF32_16x16x4F32
	MFMAF32_4x4x1F32

	MFMAF32_32x32x4F16
	MFMAF32_32x32x8F16
	MFMAF32_16x16x4F16
	MFMAF32_16x16x16F16
	MFMAF32_4x4x4F16

	MFMAF32_32x32x2BF16
	MFMAF32_32x32x4BF16
	MFMAF32_16x16x2BF16
	MFMAF32_16x16x8BF16
	MFMAF32_4x4x2BF16

	MFMAI32_32x32x4I8
	MFMAI32_32x32x8I8
	MFMAI32_16x16x4I8
	MFMAI32_16x16x16I8
	MFMAI32_4x4x4I8

	numInstr
)

var instrNames = [numInstr]string{
	InstrInvalid: "invalid",

	MFMAF32_32x32x1F32: "mfma_f32_32x32x1f32",
	MFMAF32_32x32x2F32: "mfma_f32_32x32x2f32",
	MFMAF32_16x16x1F32: "mfma_f32_16x16x1f32",
	MFMAF32_16x16x4F32: "mfma_f32_16x16x4f32",
	MFMAF32_4x4x1F32:   "mfma_f32_4x4x1f32",

	MFMAF32_32x32x4F16:  "mfma_f32_32x32x4f16",
	MFMAF32_32x32x8F16:  "mfma_f32_32x32x8f16",
	MFMAF32_16x16x4F16:  "mfma_f32_16x16x4f16",
	MFMAF32_16x16x16F16: "mfma_f32_16x16x16f16",
	MFMAF32_4x4x4F16:    "mfma_f32_4x4x4f16",

	MFMAF32_32x32x2BF16: "mfma_f32_32x32x2bf16",
	MFMAF32_32x32x4BF16: "mfma_f32_32x32x4bf16",
	MFMAF32_16x16x2BF16: "mfma_f32_16x16x2bf16",
	MFMAF32_16x16x8BF16: "mfma_f32_16x16x8bf16",
	MFMAF32_4x4x2BF16:   "mfma_f32_4x4x2bf16",

	MFMAI32_32x32x4I8:  "mfma_i32_32x32x4i8",
	MFMAI32_32x32x8I8:  "mfma_i32_32x32x8i8",
	MFMAI32_16x16x4I8:  "mfma_i32_16x16x4i8",
	MFMAI32_16x16x16I8: "mfma_i32_16x16x16i8",
	MFMAI32_4x4x4I8:    "mfma_i32_4x4x4i8",
}

// String implements fmt.Stringer, with the mnemonic of the instruction.
func (i Instr) String() string {
	if i < 0 || i >= numInstr {
		return fmt.Sprintf("Instr(%d)", int(i))
	}
	return instrNames[i]
}

// Imm holds the immediate modifiers of one MFMA issue: they select which input block
// is broadcast and how, and so which output fragment an issue produces.
type Imm struct {
	CBSZ, ABID, BLGP int
}

// String implements fmt.Stringer.
func (imm Imm) String() string {
	return fmt.Sprintf("cbsz=%d abid=%d blgp=%d", imm.CBSZ, imm.ABID, imm.BLGP)
}

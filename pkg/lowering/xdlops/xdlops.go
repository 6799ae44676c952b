// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xdlops selects the accelerated wave-level matrix-multiply-accumulate primitive
// (MFMA instruction) for a block GEMM.
//
// Selection is a pure function of (element type, MPerWave, NPerWave): a lookup into an
// immutable table of Primitive descriptors.
package xdlops

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gemmlower/pkg/lowering/tiling"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// ErrNoPrimitive is returned (wrapped) by Select when no primitive serves the request.
var ErrNoPrimitive = errors.New("no xdlops primitive")

// Primitive describes a selected MFMA instruction and how a wave uses it.
type Primitive struct {
	Instr Instr

	// DType of the input operands, and AccDType of the accumulators.
	DType, AccDType dtypes.DType

	// MPerWave and NPerWave is the wave tile served by this primitive (at most 64x64).
	MPerWave, NPerWave int

	// M, N, K is the native shape of one instruction.
	M, N, K int

	// KBase is the number of elements of each lane's input argument: the minimum K
	// granularity a kpack must be a multiple of.
	KBase int

	NumInputBlocks  int
	NumOutputBlocks int
	ThreadsPerBlock int

	// RegsPerBlock is the number of accumulator registers per output block.
	RegsPerBlock int

	// RegsPerFragment is the number of accumulator registers produced by one issue.
	RegsPerFragment int

	// Fragments has the immediates of each issue: one accumulator vector per fragment.
	Fragments []Imm

	Cycles int
}

// IsKReduction returns whether the reduction dimension is split across the input blocks
// (more than one input block feeding a single output block).
func (p *Primitive) IsKReduction() bool {
	return p.NumOutputBlocks == 1 && p.NumInputBlocks > 1
}

// NumFragments is the number of accumulator vectors one invocation works on.
func (p *Primitive) NumFragments() int {
	return len(p.Fragments)
}

// AccumulatorSize is the number of accumulator elements held by each lane.
func (p *Primitive) AccumulatorSize() int {
	return len(p.Fragments) * p.RegsPerFragment
}

// String implements fmt.Stringer.
func (p *Primitive) String() string {
	return fmt.Sprintf("%s[%s %dx%d: k_base=%d, input_blks=%d, output_blks=%d, threads_blk=%d, %d x %d regs]",
		p.Instr, p.DType, p.MPerWave, p.NPerWave, p.KBase, p.NumInputBlocks, p.NumOutputBlocks,
		p.ThreadsPerBlock, len(p.Fragments), p.RegsPerFragment)
}

// family are the properties shared by every wave shape an instruction serves.
type family struct {
	instr                             Instr
	m, n, k, kBase                    int
	inputBlks, outputBlks, threadsBlk int
	regsBlk, regsFragment, cycles     int
}

type shapeKey struct {
	dtype              dtypes.DType
	mPerWave, nPerWave int
}

var table = make(map[shapeKey]Primitive)

// register adds the standard set of wave shapes for one element type, given the
// instruction families:
//
//   - twoBlk32: 32x32 instruction with 2 output blocks.
//   - reduce32: 32x32 instruction with 1 output block (K reduction).
//   - fourBlk16: 16x16 instruction with 4 output blocks.
//   - reduce16: 16x16 instruction with 1 output block (K reduction).
//   - broadcast4: 4x4 instruction, 4x64 per issue.
func register(dtype, accDType dtypes.DType, twoBlk32, reduce32, fourBlk16, reduce16, broadcast4 family) {
	add := func(f family, mPerWave, nPerWave int, imms ...Imm) {
		table[shapeKey{dtype, mPerWave, nPerWave}] = Primitive{
			Instr: f.instr, DType: dtype, AccDType: accDType,
			MPerWave: mPerWave, NPerWave: nPerWave,
			M: f.m, N: f.n, K: f.k, KBase: f.kBase,
			NumInputBlocks: f.inputBlks, NumOutputBlocks: f.outputBlks, ThreadsPerBlock: f.threadsBlk,
			RegsPerBlock: f.regsBlk, RegsPerFragment: f.regsFragment,
			Fragments: imms,
			Cycles:    f.cycles,
		}
	}
	add(twoBlk32, 64, 64, Imm{1, 0, 0}, Imm{1, 1, 0})
	add(twoBlk32, 32, 64, Imm{1, 0, 0})
	add(twoBlk32, 64, 32, Imm{0, 0, 1})
	add(reduce32, 32, 32, Imm{})
	add(fourBlk16, 64, 16, Imm{2, 0, 0})
	add(fourBlk16, 16, 64, Imm{0, 0, 4})
	add(reduce16, 16, 16, Imm{})
	add(broadcast4, 8, 64, Imm{4, 0, 0}, Imm{4, 1, 0})
	add(broadcast4, 4, 64, Imm{4, 0, 0})
}

func init() {
	register(dtypes.Float32, dtypes.Float32,
		family{MFMAF32_32x32x1F32, 32, 32, 1, 1, 2, 2, 32, 16, 32, 64},
		family{MFMAF32_32x32x2F32, 32, 32, 2, 1, 2, 1, 32, 16, 16, 64},
		family{MFMAF32_16x16x1F32, 16, 16, 1, 1, 4, 4, 16, 4, 16, 32},
		family{MFMAF32_16x16x4F32, 16, 16, 4, 1, 4, 1, 16, 4, 4, 32},
		family{MFMAF32_4x4x1F32, 4, 64, 1, 1, 1, 1, 64, 4, 4, 8})
	register(dtypes.Float16, dtypes.Float32,
		family{MFMAF32_32x32x4F16, 32, 32, 4, 4, 2, 2, 32, 16, 32, 64},
		family{MFMAF32_32x32x8F16, 32, 32, 8, 4, 2, 1, 32, 16, 16, 64},
		family{MFMAF32_16x16x4F16, 16, 16, 4, 4, 4, 4, 16, 4, 16, 32},
		family{MFMAF32_16x16x16F16, 16, 16, 16, 4, 4, 1, 16, 4, 4, 32},
		family{MFMAF32_4x4x4F16, 4, 64, 4, 4, 1, 1, 64, 4, 4, 8})
	register(dtypes.BFloat16, dtypes.Float32,
		family{MFMAF32_32x32x2BF16, 32, 32, 2, 2, 2, 2, 32, 16, 32, 64},
		family{MFMAF32_32x32x4BF16, 32, 32, 4, 2, 2, 1, 32, 16, 16, 64},
		family{MFMAF32_16x16x2BF16, 16, 16, 2, 2, 4, 4, 16, 4, 16, 32},
		family{MFMAF32_16x16x8BF16, 16, 16, 8, 2, 4, 1, 16, 4, 4, 32},
		family{MFMAF32_4x4x2BF16, 4, 64, 2, 2, 1, 1, 64, 4, 4, 8})
	register(dtypes.Int8, dtypes.Int32,
		family{MFMAI32_32x32x4I8, 32, 32, 4, 4, 2, 2, 32, 16, 32, 64},
		family{MFMAI32_32x32x8I8, 32, 32, 8, 4, 2, 1, 32, 16, 16, 64},
		family{MFMAI32_16x16x4I8, 16, 16, 4, 4, 4, 4, 16, 4, 16, 32},
		family{MFMAI32_16x16x16I8, 16, 16, 16, 4, 4, 1, 16, 4, 4, 32},
		family{MFMAI32_4x4x4I8, 4, 64, 4, 4, 1, 1, 64, 4, 4, 8})
}

// Select returns the primitive for the element type and wave tile.
//
// Wave tiles larger than 64 in M or N are served by the 64-sized primitive, repeated
// (see tiling.Decompose); unsupported repeat configurations are returned as errors.
func Select(dtype dtypes.DType, mPerWave, nPerWave int) (Primitive, error) {
	repeats, err := tiling.Decompose(mPerWave, nPerWave)
	if err != nil {
		return Primitive{}, err
	}
	p, found := table[shapeKey{dtype, repeats.PrimitiveM, repeats.PrimitiveN}]
	if !found {
		return Primitive{}, errors.Wrapf(ErrNoPrimitive, "dtype=%s, m_per_wave=%d, n_per_wave=%d",
			dtype, mPerWave, nPerWave)
	}
	p.Fragments = slices.Clone(p.Fragments)
	return p, nil
}

// WaveShapes returns the (MPerWave, NPerWave) pairs with a native primitive for dtype,
// sorted. Repeated shapes (128x64 and 64x128) are not listed.
func WaveShapes(dtype dtypes.DType) [][2]int {
	var shapes [][2]int
	for key := range table {
		if key.dtype == dtype {
			shapes = append(shapes, [2]int{key.mPerWave, key.nPerWave})
		}
	}
	slices.SortFunc(shapes, func(a, b [2]int) int {
		if a[0] != b[0] {
			return a[0] - b[0]
		}
		return a[1] - b[1]
	})
	return shapes
}

// DTypes returns the element types with primitives.
func DTypes() []dtypes.DType {
	return []dtypes.DType{dtypes.Float32, dtypes.Float16, dtypes.BFloat16, dtypes.Int8}
}

// CheckKPack panics if kPack is incompatible with the primitive: a kPack > 1 must be a
// multiple of KBase.
//
// Tuning parameter selection guarantees this, so a failure here is an upstream bug, not
// a recoverable configuration error.
func CheckKPack(p *Primitive, kPack int) {
	if kPack > 1 && (kPack < p.KBase || kPack%p.KBase != 0) {
		exceptions.Panicf("xdlops: kpack=%d is not a multiple of k_base=%d of %s: tuning parameter "+
			"selection guarantees it, this should never happen", kPack, p.KBase, p.Instr)
	}
}

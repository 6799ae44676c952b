// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package layout computes element offsets into the staged (LDS) operand buffers and
// into the per-lane register buffers.
//
// A staged buffer holds one operand, A or B, logically as [K][M][KPack] (or [K][N][KPack]),
// flattened row-major. When KPack > 1 the buffer is addressed as if its element were a
// vector of KPack values: offsets are first computed in units of vectors and only the
// final address is multiplied by KPack. KPack == 1 is the unpacked case and no
// multiplication is folded in.
package layout

import (
	"fmt"

	"github.com/gomlx/exceptions"
)

// Coord is a logical coordinate into a staged buffer.
type Coord struct {
	// K is the reduction index.
	K int

	// Repeat is the repeat index, see tiling.Repeats.
	Repeat int

	// Lane is the offset within the repeat: the lane id for the accelerated path, or the
	// per-thread position for the threadwise path.
	Lane int

	// Pack is the index within the packed vector, in [0, KPack).
	Pack int
}

// String implements fmt.Stringer.
func (c Coord) String() string {
	return fmt.Sprintf("(k=%d, repeat=%d, lane=%d, pack=%d)", c.K, c.Repeat, c.Lane, c.Pack)
}

// StagedLayout describes the strides of an interleaved staged buffer.
type StagedLayout struct {
	// Base is added to every offset, in units of packed vectors.
	Base int

	// KStride is the distance between consecutive reduction rows: M (or N) for the matrix.
	KStride int

	// RepeatStride is the distance between consecutive repeats.
	RepeatStride int

	// PackFactor is KPack. Values <= 1 mean unpacked.
	PackFactor int
}

// Packed returns whether the final address is scaled by the pack factor.
func (l StagedLayout) Packed() bool {
	return l.PackFactor > 1
}

// VectorOffset returns the offset of the coordinate in units of packed vectors, that is,
// before the pack factor is folded in. The Pack component of the coordinate is ignored.
func (l StagedLayout) VectorOffset(c Coord) int {
	return l.Base + c.K*l.KStride + c.Repeat*l.RepeatStride + c.Lane
}

// Offset returns the linear element offset of the coordinate.
func (l StagedLayout) Offset(c Coord) int {
	return Scale(l.VectorOffset(c), l.PackFactor) + c.Pack
}

// Scale folds the pack factor onto a vector offset. It is the identity when packFactor <= 1.
func Scale(vectorOffset, packFactor int) int {
	if packFactor <= 1 {
		return vectorOffset
	}
	return vectorOffset * packFactor
}

// StagedBase converts the LDS offset of a buffer segment, given in elements, to a base in
// units of packed vectors and adds the (runtime) wave offset to it.
//
// The LDS segment is allocated KPack aligned: a misaligned offset is a bug in an upstream
// pass and panics.
func StagedBase(waveOffset, ldsOffset, packFactor int) int {
	if packFactor <= 1 {
		return waveOffset + ldsOffset
	}
	if ldsOffset%packFactor != 0 {
		exceptions.Panicf("layout: LDS buffer offset %d is not aligned to kpack=%d", ldsOffset, packFactor)
	}
	return waveOffset + ldsOffset/packFactor
}

// RegisterView is the row-major view of a flat per-thread register buffer as
// [sizes[0]][sizes[1]][sizes[2]][sizes[3]], matching the Coord components
// (K, Repeat, Lane, Pack) in order.
type RegisterView struct {
	Sizes [4]int
}

// NumElements in the register buffer.
func (v RegisterView) NumElements() int {
	return v.Sizes[0] * v.Sizes[1] * v.Sizes[2] * v.Sizes[3]
}

// Offset "merges" the coordinate into the flat register index.
func (v RegisterView) Offset(c Coord) int {
	return ((c.K*v.Sizes[1]+c.Repeat)*v.Sizes[2]+c.Lane)*v.Sizes[3] + c.Pack
}

// Coord "unmerges" a flat register index back into its coordinate.
func (v RegisterView) Coord(idx int) Coord {
	var c Coord
	c.Pack = idx % v.Sizes[3]
	idx /= v.Sizes[3]
	c.Lane = idx % v.Sizes[2]
	idx /= v.Sizes[2]
	c.Repeat = idx % v.Sizes[1]
	c.K = idx / v.Sizes[1]
	return c
}

// Iterate calls fn for every coordinate of the view in row-major order, which is also
// increasing flat register index order.
func (v RegisterView) Iterate(fn func(c Coord)) {
	var c Coord
	for c.K = 0; c.K < v.Sizes[0]; c.K++ {
		for c.Repeat = 0; c.Repeat < v.Sizes[1]; c.Repeat++ {
			for c.Lane = 0; c.Lane < v.Sizes[2]; c.Lane++ {
				for c.Pack = 0; c.Pack < v.Sizes[3]; c.Pack++ {
					fn(c)
				}
			}
		}
	}
}

// Transfer is a single element (or packed vector) move from Source to Dest.
type Transfer struct {
	Source, Dest int
}

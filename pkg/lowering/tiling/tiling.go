// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tiling holds the tile shape descriptor of a block GEMM and its decomposition of a
// wave tile into repeats of the native-size accelerated primitive.
package tiling

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	// WaveSize is the number of lanes in a wave.
	WaveSize = 64

	// MaxPrimitiveDim is the largest M or N a single primitive invocation covers.
	MaxPrimitiveDim = 64
)

// ErrUnsupportedRepeats is returned (wrapped) when a wave tile would need a repeat
// configuration other than (1,1), (2,1) or (1,2).
var ErrUnsupportedRepeats = errors.New("unsupported repeat configuration")

// Repeats is how a wave tile of MPerWave x NPerWave is covered by primitive invocations.
type Repeats struct {
	// M and N are the number of repeats along each dimension.
	M, N int

	// PrimitiveM and PrimitiveN are the per-invocation M and N: min(64, per-wave size).
	PrimitiveM, PrimitiveN int
}

// Count returns the number of primitive invocations.
func (r Repeats) Count() int {
	return r.M * r.N
}

// IsSingle returns whether no repetition is needed.
func (r Repeats) IsSingle() bool {
	return r.M == 1 && r.N == 1
}

// String implements fmt.Stringer.
func (r Repeats) String() string {
	return fmt.Sprintf("(%d,%d)x[%dx%d]", r.M, r.N, r.PrimitiveM, r.PrimitiveN)
}

func decomposeDim(name string, perWave int) (repeats, perPrimitive int, err error) {
	if perWave <= 0 {
		return 0, 0, errors.Errorf("%s_per_wave must be positive, got %d", name, perWave)
	}
	if perWave <= MaxPrimitiveDim {
		return 1, perWave, nil
	}
	if perWave%MaxPrimitiveDim != 0 {
		return 0, 0, errors.Errorf("%s_per_wave=%d > %d must be a multiple of %d",
			name, perWave, MaxPrimitiveDim, MaxPrimitiveDim)
	}
	return perWave / MaxPrimitiveDim, MaxPrimitiveDim, nil
}

// Decompose splits a wave tile into repeats of the native primitive size.
//
// Only (1,1), (2,1) and (1,2) are implemented, and a repeated tile must be 64 on the
// other side (128x64 or 64x128); anything else returns an error wrapping
// ErrUnsupportedRepeats, rather than silently mis-lowering.
func Decompose(mPerWave, nPerWave int) (Repeats, error) {
	var r Repeats
	var err error
	r.M, r.PrimitiveM, err = decomposeDim("m", mPerWave)
	if err != nil {
		return Repeats{}, err
	}
	r.N, r.PrimitiveN, err = decomposeDim("n", nPerWave)
	if err != nil {
		return Repeats{}, err
	}
	switch {
	case r.M == 1 && r.N == 1:
		return r, nil
	case r.M == 2 && r.N == 1, r.M == 1 && r.N == 2:
		// Each repeat is one native 64x64 primitive call.
		if r.PrimitiveM != MaxPrimitiveDim || r.PrimitiveN != MaxPrimitiveDim {
			return Repeats{}, errors.Wrapf(ErrUnsupportedRepeats,
				"m_per_wave=%d, n_per_wave=%d: %d x %d repeats need the other side to be %d",
				mPerWave, nPerWave, r.M, r.N, MaxPrimitiveDim)
		}
		return r, nil
	default:
		return Repeats{}, errors.Wrapf(ErrUnsupportedRepeats,
			"m_per_wave=%d, n_per_wave=%d needs %d x %d repeats", mPerWave, nPerWave, r.M, r.N)
	}
}

// TileConfig is the tile shape descriptor of a block GEMM. It is fixed at lowering time.
type TileConfig struct {
	// M, N, K of the block tile: the staged A buffer is [K][M][KPack], B is [K][N][KPack].
	M, N, K int

	// MPerWave, NPerWave is the output tile computed by one wave.
	MPerWave, NPerWave int

	// KPack is the pack factor; 0 is taken as 1.
	KPack int

	// BlockSize is the number of threads in the workgroup. If 0 it is not checked.
	BlockSize int
}

// PackFactor returns KPack, normalized so that unset means 1.
func (c TileConfig) PackFactor() int {
	if c.KPack <= 0 {
		return 1
	}
	return c.KPack
}

// NumWaves returns the number of waves tiling the block.
func (c TileConfig) NumWaves() int {
	return (c.M / c.MPerWave) * (c.N / c.NPerWave)
}

// Validate the tile configuration. It doesn't check compatibility with a primitive,
// see xdlops.Select and xdlops.CheckKPack for that.
func (c TileConfig) Validate() error {
	if c.M <= 0 || c.N <= 0 || c.K <= 0 {
		return errors.Errorf("invalid block tile m=%d, n=%d, k=%d: all must be positive", c.M, c.N, c.K)
	}
	if c.MPerWave <= 0 || c.NPerWave <= 0 {
		return errors.Errorf("invalid wave tile m_per_wave=%d, n_per_wave=%d", c.MPerWave, c.NPerWave)
	}
	if c.M%c.MPerWave != 0 || c.N%c.NPerWave != 0 {
		return errors.Errorf("block tile %dx%d is not divisible by wave tile %dx%d", c.M, c.N, c.MPerWave, c.NPerWave)
	}
	if c.KPack < 0 {
		return errors.Errorf("invalid kpack=%d", c.KPack)
	}
	if c.BlockSize != 0 && c.BlockSize != c.NumWaves()*WaveSize {
		return errors.Errorf("block_size=%d doesn't match %d waves of %d lanes", c.BlockSize, c.NumWaves(), WaveSize)
	}
	return nil
}

// Repeats validates the configuration and decomposes its wave tile.
func (c TileConfig) Repeats() (Repeats, error) {
	if err := c.Validate(); err != nil {
		return Repeats{}, err
	}
	return Decompose(c.MPerWave, c.NPerWave)
}

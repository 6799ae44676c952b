// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gather

import (
	"testing"

	"github.com/gomlx/gemmlower/pkg/lowering/layout"
	"github.com/gomlx/gemmlower/pkg/lowering/xdlops"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSelect(t *testing.T, dtype dtypes.DType, mPerWave, nPerWave int) *xdlops.Primitive {
	p, err := xdlops.Select(dtype, mPerWave, nPerWave)
	require.NoError(t, err)
	return &p
}

func TestPlanDirect(t *testing.T) {
	p := mustSelect(t, dtypes.Float32, 128, 64)
	require.Equal(t, PolicyDirect, PolicyFor(p))
	g, err := Plan(OperandA, p, Config{Stride: 128, K: 4, Repeats: 2, PrimitiveDim: 64, LDSOffset: 256})
	require.NoError(t, err)
	assert.Equal(t, PolicyDirect, g.Policy)
	assert.Equal(t, 4, g.KPerThread)
	assert.Equal(t, 8, g.NumRegisters())
	assert.Equal(t, 1, g.Elements())

	const waveOffset, lane, repeat = 32, 5, 1
	waveBase := waveOffset + 256
	for k := range 4 {
		assert.Equal(t, waveBase+1*64+5+k*128, g.SourceOffset(waveOffset, lane, repeat, k), "k=%d", k)
		assert.Equal(t, k+repeat*4, g.DestOffset(repeat, k))
	}

	transfers := g.Transfers(waveOffset, lane)
	require.Len(t, transfers, 8)
	assert.Equal(t, layout.Transfer{Source: waveBase + 5, Dest: 0}, transfers[0])
	assert.Equal(t, layout.Transfer{Source: waveBase + 64 + 5 + 3*128, Dest: 7}, transfers[7])
}

func TestPlanDirectPacked(t *testing.T) {
	p := mustSelect(t, dtypes.Float16, 64, 64)
	g, err := Plan(OperandB, p, Config{Stride: 64, K: 2, Repeats: 1, PrimitiveDim: 64, LDSOffset: 512, KPack: 8})
	require.NoError(t, err)
	assert.Equal(t, 8, g.Elements())
	assert.Equal(t, 512/8, g.Layout.Base)
	for k := range 2 {
		assert.Equal(t, (3+512/8+k*64+7)*8, g.SourceOffset(3, 7, 0, k))
	}

	// Misaligned LDS offsets are an upstream bug.
	require.Panics(t, func() {
		_, _ = Plan(OperandB, p, Config{Stride: 64, K: 2, Repeats: 1, PrimitiveDim: 64, LDSOffset: 4, KPack: 8})
	})
	// kpack must be a multiple of k_base=4 for f16.
	require.Panics(t, func() {
		_, _ = Plan(OperandB, p, Config{Stride: 64, K: 2, Repeats: 1, PrimitiveDim: 64, KPack: 2})
	})
}

func TestPlanKReduction(t *testing.T) {
	p := mustSelect(t, dtypes.Float32, 16, 16)
	require.Equal(t, PolicyKReduction, PolicyFor(p))
	require.Equal(t, 4, p.NumInputBlocks)
	require.Equal(t, 16, p.ThreadsPerBlock)

	const m = 64
	g, err := Plan(OperandA, p, Config{Stride: m, K: 16, Repeats: 1, PrimitiveDim: 16, LDSOffset: 128})
	require.NoError(t, err)
	assert.Equal(t, 4, g.KPerThread)

	const lane, waveOffset = 20, 3
	blockID, blockLane := g.BlockOf(lane)
	assert.Equal(t, 1, blockID)
	assert.Equal(t, 4, blockLane)
	base := waveOffset + 128
	var want []layout.Transfer
	for k := range g.KPerThread {
		src := (k*4+1)*m + 4 + base
		assert.Equal(t, src, g.SourceOffset(waveOffset, lane, 0, k), "k=%d", k)
		want = append(want, layout.Transfer{Source: src, Dest: k})
	}
	if diff := cmp.Diff(want, g.Transfers(waveOffset, lane)); diff != "" {
		t.Errorf("Transfers() mismatch (-want +got):\n%s", diff)
	}

	_, err = Plan(OperandA, p, Config{Stride: m, K: 6, Repeats: 1, PrimitiveDim: 16})
	require.Error(t, err)
	_, err = Plan(OperandA, p, Config{Stride: m, K: 16, Repeats: 2, PrimitiveDim: 16})
	require.Error(t, err)
}

// Every staged row of the reduction range must be read exactly once per column by the
// lanes of a wave.
func TestKReductionCoversReduction(t *testing.T) {
	p := mustSelect(t, dtypes.Float32, 32, 32)
	const m, k = 32, 8
	g, err := Plan(OperandA, p, Config{Stride: m, K: k, Repeats: 1, PrimitiveDim: 32})
	require.NoError(t, err)
	seen := make(map[int]int)
	for lane := range 64 {
		for _, tr := range g.Transfers(0, lane) {
			seen[tr.Source]++
		}
	}
	// 2 input blocks of 32 threads: each block covers all 32 columns of its rows.
	assert.Len(t, seen, k*m)
	for offset, count := range seen {
		assert.Equal(t, 1, count, "offset %d", offset)
	}
}

func TestLaneGatherString(t *testing.T) {
	p := mustSelect(t, dtypes.Float32, 64, 64)
	g, err := Plan(OperandA, p, Config{Stride: 64, K: 2, Repeats: 1, PrimitiveDim: 64})
	require.NoError(t, err)
	assert.Contains(t, g.String(), "gather A direct")
	assert.Equal(t, "B", OperandB.String())
	assert.Equal(t, "k_reduction", PolicyKReduction.String())
}

func TestPolicyStrings(t *testing.T) {
	assert.Equal(t, []string{"direct", "k_reduction"}, PolicyStrings())
	for _, p := range PolicyValues() {
		parsed, err := PolicyString(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
	_, err := PolicyString("strided")
	require.Error(t, err)
	assert.Equal(t, "Policy(7)", Policy(7).String())
	assert.False(t, Policy(7).IsAPolicy())
	assert.Equal(t, "B", OperandB.String())
}

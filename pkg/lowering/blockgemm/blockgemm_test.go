// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package blockgemm

import (
	"testing"

	"github.com/gomlx/gemmlower/pkg/lowering/gather"
	"github.com/gomlx/gemmlower/pkg/lowering/ir"
	"github.com/gomlx/gemmlower/pkg/lowering/layout"
	"github.com/gomlx/gemmlower/pkg/lowering/tiling"
	"github.com/gomlx/gemmlower/pkg/lowering/trace"
	"github.com/gomlx/gemmlower/pkg/lowering/xdlops"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedID() string { return "p0" }

func newOp(dtype dtypes.DType, m, n, k, mPerWave, nPerWave, kPack int, accumulators ...int) XdlopsGemmOp {
	return XdlopsGemmOp{
		DType:        dtype,
		Tile:         tiling.TileConfig{M: m, N: n, K: k, MPerWave: mPerWave, NPerWave: nPerWave, KPack: kPack},
		LDSOffsetA:   0,
		LDSOffsetB:   m * k * max(kPack, 1),
		Accumulators: accumulators,
	}
}

func sum(values []int) int {
	var s int
	for _, v := range values {
		s += v
	}
	return s
}

func TestLowerXdlopsSingle(t *testing.T) {
	rec := &trace.Recorder{}
	l := New().WithTracer(rec).WithIDs(fixedID)
	op := newOp(dtypes.Float32, 64, 64, 4, 64, 64, 0, 32, 32)
	prog, err := l.LowerXdlops(op)
	require.NoError(t, err)

	assert.Equal(t, "p0", prog.ID)
	assert.Equal(t, ir.KindXdlops, prog.Kind)
	assert.Equal(t, xdlops.MFMAF32_32x32x1F32, prog.Primitive.Instr)
	assert.Equal(t, gather.PolicyDirect, prog.Policy)
	assert.True(t, prog.Repeats.IsSingle())
	require.Len(t, prog.Steps, 1)
	step := prog.Steps[0]
	require.Len(t, step.Invocations, 1)
	inv := step.Invocations[0]
	assert.Equal(t, 0, inv.OffsetA)
	assert.Equal(t, 0, inv.OffsetB)
	assert.Equal(t, []int{0, 1}, inv.Accumulators)
	assert.Equal(t, 64, inv.MPerWave)
	assert.Equal(t, 64*64/tiling.WaveSize, prog.AccumulatorElements())

	assert.Equal(t, 4, step.GatherA.KPerThread)
	assert.Equal(t, 64*4, step.GatherB.Layout.Base)
	assert.Equal(t, 4, prog.RegistersA)
	assert.Equal(t, 4, prog.RegistersB)

	assert.Len(t, rec.OfKind(trace.KindPrimitiveSelected), 1)
	assert.Len(t, rec.OfKind(trace.KindStepEmitted), 1)
	selected := rec.OfKind(trace.KindPrimitiveSelected)[0]
	assert.Equal(t, "p0", selected.Program)
	instr, _ := selected.Get("instr")
	assert.Equal(t, xdlops.MFMAF32_32x32x1F32, instr)
}

func TestLowerXdlopsRepeats(t *testing.T) {
	for _, tc := range []struct {
		name               string
		mPerWave, nPerWave int
		wantA, wantB       int
	}{
		{"2x1", 128, 64, 4, 0},
		{"1x2", 64, 128, 0, 4},
	} {
		t.Run(tc.name, func(t *testing.T) {
			op := newOp(dtypes.Float32, tc.mPerWave, tc.nPerWave, 4, tc.mPerWave, tc.nPerWave, 0, 32, 32, 32, 32)
			prog, err := New().LowerXdlops(op)
			require.NoError(t, err)
			require.Len(t, prog.Steps, 1)
			invs := prog.Steps[0].Invocations
			require.Len(t, invs, 2)
			assert.Equal(t, 0, invs[0].OffsetA)
			assert.Equal(t, 0, invs[0].OffsetB)
			assert.Equal(t, tc.wantA, invs[1].OffsetA)
			assert.Equal(t, tc.wantB, invs[1].OffsetB)
			for _, inv := range invs {
				assert.Equal(t, 64, inv.MPerWave)
				assert.Equal(t, 64, inv.NPerWave)
				assert.Equal(t, tc.mPerWave, inv.M)
				assert.Equal(t, 4, inv.K)
			}
			assert.Equal(t, []int{0, 1}, invs[0].Accumulators)
			assert.Equal(t, []int{2, 3}, invs[1].Accumulators)
			assert.Equal(t, tc.mPerWave*tc.nPerWave/tiling.WaveSize, sum(op.Accumulators))
			assert.Equal(t, 2, prog.NumInvocations())

			// The repeated operand holds both repeats' registers.
			assert.Equal(t, prog.Repeats.M*4, prog.RegistersA)
			assert.Equal(t, prog.Repeats.N*4, prog.RegistersB)
			assert.Equal(t, prog.Repeats.M, prog.Steps[0].GatherA.Repeats)
		})
	}
}

func TestLowerXdlopsKReduction(t *testing.T) {
	op := newOp(dtypes.Float32, 32, 32, 8, 32, 32, 0, 16)
	prog, err := New().WithIDs(fixedID).LowerXdlops(op)
	require.NoError(t, err)
	assert.Equal(t, gather.PolicyKReduction, prog.Policy)
	assert.Equal(t, xdlops.MFMAF32_32x32x2F32, prog.Primitive.Instr)
	require.Len(t, prog.Steps, 1)
	g := prog.Steps[0].GatherA
	assert.Equal(t, 4, g.KPerThread)

	// Lane 37: block 1, position 5.
	assert.Equal(t, (0*2+1)*32+5, g.SourceOffset(0, 37, 0, 0))
	assert.Equal(t, (3*2+1)*32+5, g.SourceOffset(0, 37, 0, 3))
	assert.Equal(t, 3, g.DestOffset(0, 3))
	assert.Equal(t, 32*32/tiling.WaveSize, prog.AccumulatorElements())

	// Steps must be divisible among the input blocks.
	_, err = New().WithKStep(1).LowerXdlops(newOp(dtypes.Float32, 32, 32, 8, 32, 32, 0, 16))
	require.Error(t, err)
}

func TestLowerXdlopsKStep(t *testing.T) {
	rec := &trace.Recorder{}
	op := newOp(dtypes.Float32, 64, 64, 8, 64, 64, 0, 32, 32)
	prog, err := New().WithTracer(rec).WithKStep(2).LowerXdlops(op)
	require.NoError(t, err)
	require.Len(t, prog.Steps, 4)
	for ii, step := range prog.Steps {
		assert.Equal(t, ii*2, step.KOffset)
		assert.Equal(t, ii*2, step.GatherA.KOffset)
		assert.Equal(t, 2, step.GatherA.KPerThread)
		require.Len(t, step.Invocations, 1)
		// A lane's first load of the step is shifted by k0*M.
		assert.Equal(t, ii*2*64+9, step.GatherA.SourceOffset(0, 9, 0, 0))
	}
	assert.Equal(t, 4, prog.NumInvocations())
	assert.Len(t, rec.OfKind(trace.KindStepEmitted), 4)

	_, err = New().WithKStep(3).LowerXdlops(op)
	require.Error(t, err)
}

func TestLowerXdlopsErrors(t *testing.T) {
	// Unsupported repeats.
	_, err := New().LowerXdlops(newOp(dtypes.Float32, 128, 128, 4, 128, 128, 0, 32, 32, 32, 32))
	require.Error(t, err)
	assert.True(t, errors.Is(err, tiling.ErrUnsupportedRepeats))

	// Accumulators not matching the primitive.
	_, err = New().LowerXdlops(newOp(dtypes.Float32, 64, 64, 4, 64, 64, 0, 64))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedOperand))
	_, err = New().LowerXdlops(newOp(dtypes.Float32, 128, 64, 4, 128, 64, 0, 32, 32))
	assert.True(t, errors.Is(err, ErrMalformedOperand))

	// No primitive for the element type.
	_, err = New().LowerXdlops(newOp(dtypes.Float64, 64, 64, 4, 64, 64, 0, 32, 32))
	assert.True(t, errors.Is(err, xdlops.ErrNoPrimitive))

	// Block tile not divisible by wave tile.
	_, err = New().LowerXdlops(newOp(dtypes.Float32, 96, 64, 4, 64, 64, 0, 32, 32))
	require.Error(t, err)

	// kpack incompatible with k_base=4 of f16.
	require.Panics(t, func() {
		_, _ = New().LowerXdlops(newOp(dtypes.Float16, 64, 64, 4, 64, 64, 2, 32, 32))
	})
}

func TestLowerXdlopsDeterministic(t *testing.T) {
	op := newOp(dtypes.BFloat16, 128, 64, 8, 128, 64, 4, 32, 32, 32, 32)
	p0, err := New().WithIDs(fixedID).WithKStep(4).LowerXdlops(op)
	require.NoError(t, err)
	p1, err := New().WithIDs(fixedID).WithKStep(4).LowerXdlops(op)
	require.NoError(t, err)
	if diff := cmp.Diff(p0, p1); diff != "" {
		t.Fatalf("lowering not deterministic (-first +second):\n%s", diff)
	}

	// Invocations don't share state across steps.
	p0.Steps[0].Invocations[0].Accumulators[0] = 99
	assert.Equal(t, 0, p0.Steps[1].Invocations[0].Accumulators[0])
}

func TestSplitInvocations(t *testing.T) {
	p, err := xdlops.Select(dtypes.Float16, 64, 64)
	require.NoError(t, err)
	op := newOp(dtypes.Float16, 64, 64, 8, 64, 64, 4, 32, 32)
	invs, err := SplitInvocations(&op, tiling.Repeats{M: 1, N: 1, PrimitiveM: 64, PrimitiveN: 64}, &p, 8)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, 4, invs[0].KPack)
	assert.Equal(t, op.LDSOffsetB, invs[0].LDSOffsetB)

	_, err = SplitInvocations(&op, tiling.Repeats{M: 2, N: 2, PrimitiveM: 64, PrimitiveN: 64}, &p, 8)
	assert.True(t, errors.Is(err, tiling.ErrUnsupportedRepeats))
}

func threadwiseOp() ThreadwiseGemmOp {
	return ThreadwiseGemmOp{
		DType: dtypes.Float16, AccDType: dtypes.Float32,
		K: 4, M: 8, N: 8, KPack: 1,
		MC: 4, NC: 4,
		KPerThread: 2, MPerThread: 2, NPerThread: 2,
		MRepeatStride: 4, NRepeatStride: 4,
	}
}

func TestLowerThreadwise(t *testing.T) {
	prog, err := New().WithIDs(fixedID).LowerThreadwise(threadwiseOp())
	require.NoError(t, err)
	assert.Equal(t, ir.KindThreadwise, prog.Kind)
	assert.Nil(t, prog.Primitive)
	assert.Equal(t, 2, prog.Repeats.M)
	require.Len(t, prog.Steps, 2)
	assert.Equal(t, 2*4, prog.RegistersA)
	assert.Equal(t, []int{16}, prog.Accumulators)

	step := prog.Steps[1]
	assert.Equal(t, 2, step.KOffset)
	require.NotNil(t, step.CopyA)
	require.NotNil(t, step.Gemm)
	assert.Equal(t, [4]int{2, 2, 2, 1}, step.CopyA.Registers.Sizes)
	assert.Equal(t, dtypes.Float32, step.CopyA.DestDType)
	assert.Equal(t, ir.ThreadwiseGemm{K: 2, M: 4, N: 4, KPack: 1, DType: dtypes.Float32}, *step.Gemm)

	// Register (k=1, r=1, p=1) of the thread at offset 1.
	transfers := step.CopyA.Transfers(1)
	require.Len(t, transfers, 8)
	reg := layout.Coord{K: 1, Repeat: 1, Lane: 1}
	dest := step.CopyA.Registers.Offset(reg)
	assert.Equal(t, layout.Transfer{Source: (2+1)*8 + 1*4 + 1 + 1, Dest: dest}, transfers[dest])
}

func TestLowerThreadwisePacked(t *testing.T) {
	op := threadwiseOp()
	op.KPack = 2
	op.LDSOffsetB = op.K * op.M * 2
	prog, err := New().LowerThreadwise(op)
	require.NoError(t, err)
	assert.Equal(t, 2*4*2, prog.RegistersA)
	copyB := prog.Steps[0].CopyB
	assert.Equal(t, op.K*op.M, copyB.Source.Base)
	transfers := copyB.Transfers(0)
	require.Len(t, transfers, 16)
	assert.Equal(t, layout.Transfer{Source: op.K*op.M*2 + 1, Dest: 1}, transfers[1])
}

func TestLowerThreadwiseErrors(t *testing.T) {
	op := threadwiseOp()
	op.KPerThread = 3
	_, err := New().LowerThreadwise(op)
	require.Error(t, err)

	op = threadwiseOp()
	op.MPerThread = 3
	_, err = New().LowerThreadwise(op)
	assert.True(t, errors.Is(err, ErrMalformedOperand))

	op = threadwiseOp()
	op.N = 6
	op.NC = 8
	op.NPerThread = 2
	_, err = New().LowerThreadwise(op)
	assert.True(t, errors.Is(err, ErrMalformedOperand))
}

func TestAccumulators(t *testing.T) {
	for _, tc := range []struct {
		dtype              dtypes.DType
		mPerWave, nPerWave int
		want               []int
	}{
		{dtypes.Float32, 64, 64, []int{32, 32}},
		{dtypes.Float16, 128, 64, []int{32, 32, 32, 32}},
		{dtypes.BFloat16, 32, 32, []int{16}},
		{dtypes.Int8, 4, 64, []int{4}},
		{dtypes.Float32, 16, 16, []int{4}},
	} {
		got, err := Accumulators(tc.dtype, tc.mPerWave, tc.nPerWave)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s %dx%d", tc.dtype, tc.mPerWave, tc.nPerWave)
		assert.Equal(t, tc.mPerWave*tc.nPerWave/tiling.WaveSize, sum(got))

		// And they lower.
		op := newOp(tc.dtype, tc.mPerWave, tc.nPerWave, 8, tc.mPerWave, tc.nPerWave, 0, got...)
		_, err = New().LowerXdlops(op)
		require.NoError(t, err)
	}
	_, err := Accumulators(dtypes.Float32, 128, 128)
	assert.True(t, errors.Is(err, tiling.ErrUnsupportedRepeats))
}

func TestRepeatsNeedFullOtherSide(t *testing.T) {
	for _, shape := range [][2]int{{128, 16}, {128, 32}, {32, 128}} {
		mPerWave, nPerWave := shape[0], shape[1]
		_, err := Accumulators(dtypes.Float32, mPerWave, nPerWave)
		assert.True(t, errors.Is(err, tiling.ErrUnsupportedRepeats), "Accumulators %dx%d: %v", mPerWave, nPerWave, err)

		// Whatever accumulators are declared, the tile is refused as unsupported, never
		// lowered into 64x64 invocations overflowing the wave's accumulators.
		acc := make([]int, 4)
		for ii := range acc {
			acc[ii] = 32
		}
		op := newOp(dtypes.Float32, mPerWave, nPerWave, 4, mPerWave, nPerWave, 0, acc...)
		_, err = New().LowerXdlops(op)
		assert.True(t, errors.Is(err, tiling.ErrUnsupportedRepeats), "LowerXdlops %dx%d: %v", mPerWave, nPerWave, err)
	}

	// The helper and the lowerer agree on every supported repeated tile.
	for _, dtype := range []dtypes.DType{dtypes.Float32, dtypes.Float16, dtypes.BFloat16, dtypes.Int8} {
		for _, shape := range [][2]int{{128, 64}, {64, 128}} {
			acc, err := Accumulators(dtype, shape[0], shape[1])
			require.NoError(t, err)
			assert.Equal(t, shape[0]*shape[1]/tiling.WaveSize, sum(acc))
			op := newOp(dtype, shape[0], shape[1], 8, shape[0], shape[1], 0, acc...)
			prog, err := New().LowerXdlops(op)
			require.NoError(t, err, "%s %dx%d", dtype, shape[0], shape[1])
			assert.Equal(t, 2, prog.NumInvocations())
		}
	}

	op := newOp(dtypes.Float32, 128, 32, 4, 128, 32, 0, 32, 32)
	p, err := xdlops.Select(dtypes.Float32, 64, 32)
	require.NoError(t, err)
	_, err = SplitInvocations(&op, tiling.Repeats{M: 2, N: 1, PrimitiveM: 64, PrimitiveN: 32}, &p, 4)
	assert.True(t, errors.Is(err, tiling.ErrUnsupportedRepeats))
}

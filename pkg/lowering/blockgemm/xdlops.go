// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package blockgemm

import (
	"slices"

	"github.com/gomlx/gemmlower/pkg/lowering/gather"
	"github.com/gomlx/gemmlower/pkg/lowering/ir"
	"github.com/gomlx/gemmlower/pkg/lowering/tiling"
	"github.com/gomlx/gemmlower/pkg/lowering/trace"
	"github.com/gomlx/gemmlower/pkg/lowering/xdlops"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// XdlopsGemmOp is a block GEMM to be lowered to accelerated primitive invocations.
//
// The staged A buffer is logically [K][M][KPack] and B is [K][N][KPack], both in the
// same LDS buffer at LDSOffsetA and LDSOffsetB (in elements).
type XdlopsGemmOp struct {
	DType dtypes.DType
	Tile  tiling.TileConfig

	LDSOffsetA, LDSOffsetB int

	// Accumulators has the length of each accumulator vector of a lane, in the order
	// expected by the caller.
	Accumulators []int
}

// Validate the op, independent of the primitive.
func (op *XdlopsGemmOp) Validate() error {
	if err := op.Tile.Validate(); err != nil {
		return err
	}
	if op.LDSOffsetA < 0 || op.LDSOffsetB < 0 {
		return errors.Errorf("invalid LDS offsets (%d, %d)", op.LDSOffsetA, op.LDSOffsetB)
	}
	if len(op.Accumulators) == 0 {
		return errors.Wrapf(ErrMalformedOperand, "no accumulators given")
	}
	return nil
}

// checkAccumulators verifies the declared accumulators are numInvocations groups of the
// fragments of p.
func checkAccumulators(accumulators []int, p *xdlops.Primitive, numInvocations int) error {
	want := numInvocations * p.NumFragments()
	if len(accumulators) != want {
		return errors.Wrapf(ErrMalformedOperand, "%d accumulator vectors given, %d x %d invocations of %s need %d",
			len(accumulators), numInvocations, p.NumFragments(), p.Instr, want)
	}
	for ii, size := range accumulators {
		if size != p.RegsPerFragment {
			return errors.Wrapf(ErrMalformedOperand, "accumulator #%d has %d elements, %s produces %d per fragment",
				ii, size, p.Instr, p.RegsPerFragment)
		}
	}
	return nil
}

// SplitInvocations returns the primitive invocations covering the wave tile of op for the
// given repeats, with kPerThread the per-repeat stride into the register buffers.
//
//   - (1,1): one invocation over all accumulators, offsets (0,0).
//   - (2,1): two 64x64 invocations, the second with OffsetA = kPerThread; each takes half
//     of the accumulators, in order.
//   - (1,2): the same with OffsetB = kPerThread.
func SplitInvocations(op *XdlopsGemmOp, repeats tiling.Repeats, p *xdlops.Primitive, kPerThread int) ([]ir.Invocation, error) {
	base := ir.Invocation{
		Primitive:  *p,
		M:          op.Tile.M,
		N:          op.Tile.N,
		K:          op.Tile.K,
		KPack:      op.Tile.KPack,
		MPerWave:   op.Tile.MPerWave,
		NPerWave:   op.Tile.NPerWave,
		LDSOffsetA: op.LDSOffsetA,
		LDSOffsetB: op.LDSOffsetB,
	}
	if repeats.IsSingle() {
		if err := checkAccumulators(op.Accumulators, p, 1); err != nil {
			return nil, err
		}
		base.Accumulators = indices(0, len(op.Accumulators))
		return []ir.Invocation{base}, nil
	}

	if repeats.Count() != 2 {
		return nil, errors.Wrapf(tiling.ErrUnsupportedRepeats, "repeats %s", repeats)
	}
	p64, err := invocationPrimitive(op.DType, repeats, p)
	if err != nil {
		return nil, err
	}
	if err = checkAccumulators(op.Accumulators, &p64, 2); err != nil {
		return nil, err
	}
	base.Primitive = p64
	base.MPerWave, base.NPerWave = tiling.MaxPrimitiveDim, tiling.MaxPrimitiveDim
	perInvocation := p64.NumFragments()
	first, second := base, base
	first.Primitive.Fragments = slices.Clone(p64.Fragments)
	second.Primitive.Fragments = slices.Clone(p64.Fragments)
	first.Accumulators = indices(0, perInvocation)
	second.Accumulators = indices(perInvocation, 2*perInvocation)
	if repeats.M == 2 {
		second.OffsetA = kPerThread
	} else {
		second.OffsetB = kPerThread
	}
	return []ir.Invocation{first, second}, nil
}

// Accumulators returns the accumulator vector sizes a wave tile needs: the fragments of
// the selected primitive, once per repeat.
func Accumulators(dtype dtypes.DType, mPerWave, nPerWave int) ([]int, error) {
	repeats, err := tiling.Decompose(mPerWave, nPerWave)
	if err != nil {
		return nil, err
	}
	p, err := xdlops.Select(dtype, mPerWave, nPerWave)
	if err != nil {
		return nil, err
	}
	p, err = invocationPrimitive(dtype, repeats, &p)
	if err != nil {
		return nil, err
	}
	accumulators := make([]int, 0, repeats.Count()*p.NumFragments())
	for range repeats.Count() * p.NumFragments() {
		accumulators = append(accumulators, p.RegsPerFragment)
	}
	return accumulators, nil
}

// invocationPrimitive returns the primitive each invocation issues: the selected one for
// a single invocation, the native 64x64 one for each repeat.
func invocationPrimitive(dtype dtypes.DType, repeats tiling.Repeats, selected *xdlops.Primitive) (xdlops.Primitive, error) {
	if repeats.IsSingle() {
		p := *selected
		p.Fragments = slices.Clone(selected.Fragments)
		return p, nil
	}
	if repeats.PrimitiveM != tiling.MaxPrimitiveDim || repeats.PrimitiveN != tiling.MaxPrimitiveDim {
		return xdlops.Primitive{}, errors.Wrapf(tiling.ErrUnsupportedRepeats, "repeats %s", repeats)
	}
	return xdlops.Select(dtype, tiling.MaxPrimitiveDim, tiling.MaxPrimitiveDim)
}

func indices(from, to int) []int {
	idx := make([]int, 0, to-from)
	for ii := from; ii < to; ii++ {
		idx = append(idx, ii)
	}
	return idx
}

// LowerXdlops lowers the block GEMM to per-lane gathers and accelerated primitive
// invocations, one set per K step.
func (l *Lowerer) LowerXdlops(op XdlopsGemmOp) (*ir.Program, error) {
	if err := op.Validate(); err != nil {
		return nil, errors.WithMessage(err, "LowerXdlops")
	}
	tile := op.Tile
	id := l.newID()

	repeats, err := tiling.Decompose(tile.MPerWave, tile.NPerWave)
	if err != nil {
		return nil, errors.WithMessage(err, "LowerXdlops")
	}
	l.trace(trace.KindRepeatsDecomposed, id,
		trace.F("m_repeats", repeats.M), trace.F("n_repeats", repeats.N),
		trace.F("m_per_xdlops", repeats.PrimitiveM), trace.F("n_per_xdlops", repeats.PrimitiveN))

	p, err := xdlops.Select(op.DType, tile.MPerWave, tile.NPerWave)
	if err != nil {
		return nil, errors.WithMessage(err, "LowerXdlops")
	}
	l.trace(trace.KindPrimitiveSelected, id,
		trace.F("instr", p.Instr), trace.F("dtype", op.DType),
		trace.F("k_base", p.KBase), trace.F("num_input_blks", p.NumInputBlocks),
		trace.F("num_output_blks", p.NumOutputBlocks), trace.F("num_threads_blk", p.ThreadsPerBlock))
	xdlops.CheckKPack(&p, tile.KPack)

	policy := gather.PolicyFor(&p)
	l.trace(trace.KindPolicySelected, id, trace.F("policy", policy))

	kStep := l.kStep
	if kStep == 0 {
		kStep = tile.K
	}
	if kStep < 0 || tile.K%kStep != 0 {
		return nil, errors.Errorf("LowerXdlops: k_step=%d must divide k=%d", kStep, tile.K)
	}

	// Per repeat, each lane holds kPerThread registers of A (and of B).
	kPerThread := kStep
	if policy == gather.PolicyKReduction {
		if kStep%p.NumInputBlocks != 0 {
			return nil, errors.Errorf("LowerXdlops: k_step=%d is not divisible by the %d input blocks of %s",
				kStep, p.NumInputBlocks, p.Instr)
		}
		kPerThread = kStep / p.NumInputBlocks
	}
	invocations, err := SplitInvocations(&op, repeats, &p, kPerThread)
	if err != nil {
		return nil, errors.WithMessage(err, "LowerXdlops")
	}
	l.trace(trace.KindInvocationsSplit, id, trace.F("invocations", len(invocations)), trace.F("k_per_thread", kPerThread))

	prog := &ir.Program{
		ID:           id,
		Kind:         ir.KindXdlops,
		DType:        op.DType,
		AccDType:     p.AccDType,
		Primitive:    &p,
		Repeats:      repeats,
		Policy:       policy,
		K:            tile.K,
		KStep:        kStep,
		Accumulators: slices.Clone(op.Accumulators),
		RegistersA:   repeats.M * kPerThread * tile.PackFactor(),
		RegistersB:   repeats.N * kPerThread * tile.PackFactor(),
	}
	for kOffset := 0; kOffset < tile.K; kOffset += kStep {
		gatherA, err := gather.Plan(gather.OperandA, &p, gather.Config{
			Stride: tile.M, K: kStep, KOffset: kOffset,
			Repeats: repeats.M, PrimitiveDim: repeats.PrimitiveM,
			LDSOffset: op.LDSOffsetA, KPack: tile.KPack,
		})
		if err != nil {
			return nil, errors.WithMessage(err, "LowerXdlops")
		}
		gatherB, err := gather.Plan(gather.OperandB, &p, gather.Config{
			Stride: tile.N, K: kStep, KOffset: kOffset,
			Repeats: repeats.N, PrimitiveDim: repeats.PrimitiveN,
			LDSOffset: op.LDSOffsetB, KPack: tile.KPack,
		})
		if err != nil {
			return nil, errors.WithMessage(err, "LowerXdlops")
		}
		step := ir.Step{
			KOffset:     kOffset,
			GatherA:     &gatherA,
			GatherB:     &gatherB,
			Invocations: make([]ir.Invocation, len(invocations)),
		}
		for ii, inv := range invocations {
			inv.Accumulators = slices.Clone(inv.Accumulators)
			inv.Primitive.Fragments = slices.Clone(inv.Primitive.Fragments)
			step.Invocations[ii] = inv
		}
		prog.Steps = append(prog.Steps, step)
		l.trace(trace.KindStepEmitted, id, trace.F("k_offset", kOffset), trace.F("invocations", len(step.Invocations)))
	}
	return prog, nil
}

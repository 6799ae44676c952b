// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package gather plans the per-lane loads from the staged (LDS) operand buffers into the
// registers consumed by the accelerated primitive.
//
// There are two data distribution policies, see Policy. Either way, for a given lane the
// gather is a small loop nest whose source and destination offsets are affine in the loop
// indices: LaneGather holds its parameters and enumerates the concrete transfers.
package gather

import (
	"fmt"

	"github.com/gomlx/gemmlower/pkg/lowering/layout"
	"github.com/gomlx/gemmlower/pkg/lowering/xdlops"
	"github.com/pkg/errors"
)

// Operand identifies the matrix being gathered.
type Operand int

//go:generate go tool enumer -type=Operand -trimprefix=Operand -output=gen_operand_enumer.go gather.go

const (
	OperandA Operand = iota
	OperandB
)

// Policy is how the reduction dimension is distributed among the lanes.
type Policy int

//go:generate go tool enumer -type=Policy -trimprefix=Policy -transform=snake -output=gen_policy_enumer.go gather.go

const (
	// PolicyDirect: each lane loads the full reduction range of its own row (column),
	// once per repeat.
	PolicyDirect Policy = iota

	// PolicyKReduction: lanes are split into NumInputBlocks groups, and each group loads
	// an interleaved share of the reduction range.
	PolicyKReduction
)

// PolicyFor returns the policy required by the primitive.
func PolicyFor(p *xdlops.Primitive) Policy {
	if p.IsKReduction() {
		return PolicyKReduction
	}
	return PolicyDirect
}

// LaneGather is the gather of one operand for one K step, parametrized by lane.
type LaneGather struct {
	Operand Operand
	Policy  Policy

	// Layout of the staged buffer. Layout.Base is the static part of the base (the LDS
	// segment offset, in packed vectors); the wave offset is added at runtime.
	Layout layout.StagedLayout

	// KOffset is the first reduction row covered by this gather.
	KOffset int

	// KPerThread is the number of registers each lane loads per repeat.
	KPerThread int

	// Repeats is the number of repeats loaded (always 1 for PolicyKReduction).
	Repeats int

	// DestRepeatStride is the register distance between repeats.
	DestRepeatStride int

	// NumInputBlocks and ThreadsPerBlock partition the lanes for PolicyKReduction.
	NumInputBlocks, ThreadsPerBlock int
}

// Elements is the number of elements moved by each transfer: the pack factor.
func (g *LaneGather) Elements() int {
	return max(g.Layout.PackFactor, 1)
}

// NumRegisters is the number of register slots (each of Elements values) written per lane.
func (g *LaneGather) NumRegisters() int {
	return g.Repeats * g.DestRepeatStride
}

// BlockOf returns the input block of the lane and its position within the block.
// Only meaningful for PolicyKReduction.
func (g *LaneGather) BlockOf(lane int) (blockID, blockLane int) {
	return lane / g.ThreadsPerBlock, lane % g.ThreadsPerBlock
}

// SourceCoord returns the staged buffer coordinate read by the lane at (repeat, k).
func (g *LaneGather) SourceCoord(lane, repeat, k int) layout.Coord {
	if g.Policy == PolicyKReduction {
		blockID, blockLane := g.BlockOf(lane)
		return layout.Coord{K: g.KOffset + k*g.NumInputBlocks + blockID, Lane: blockLane}
	}
	return layout.Coord{K: g.KOffset + k, Repeat: repeat, Lane: lane}
}

// SourceOffset returns the element offset in the staged buffer read by the lane at
// (repeat, k), given the runtime wave offset (in packed vectors).
func (g *LaneGather) SourceOffset(waveOffset, lane, repeat, k int) int {
	l := g.Layout
	l.Base += waveOffset
	return l.Offset(g.SourceCoord(lane, repeat, k))
}

// DestOffset returns the register slot written at (repeat, k).
func (g *LaneGather) DestOffset(repeat, k int) int {
	return k + repeat*g.DestRepeatStride
}

// Transfers enumerates the loads of one lane, repeat-major.
func (g *LaneGather) Transfers(waveOffset, lane int) []layout.Transfer {
	transfers := make([]layout.Transfer, 0, g.Repeats*g.KPerThread)
	for repeat := range g.Repeats {
		for k := range g.KPerThread {
			transfers = append(transfers, layout.Transfer{
				Source: g.SourceOffset(waveOffset, lane, repeat, k),
				Dest:   g.DestOffset(repeat, k),
			})
		}
	}
	return transfers
}

// String implements fmt.Stringer, describing the loop nest of the gather.
func (g *LaneGather) String() string {
	l := g.Layout
	scale := ""
	if l.Packed() {
		scale = fmt.Sprintf(" * %d", l.PackFactor)
	}
	if g.Policy == PolicyKReduction {
		return fmt.Sprintf("gather %s %s: blk=lane/%d, td=lane%%%d; for k<%d: regs%s[k] = lds[((%d + k*%d + blk)*%d + td + %d + wave)%s]",
			g.Operand, g.Policy, g.ThreadsPerBlock, g.ThreadsPerBlock, g.KPerThread, g.Operand,
			g.KOffset, g.NumInputBlocks, l.KStride, l.Base, scale)
	}
	return fmt.Sprintf("gather %s %s: for r<%d, k<%d: regs%s[k + r*%d] = lds[((%d + k)*%d + lane + r*%d + %d + wave)%s]",
		g.Operand, g.Policy, g.Repeats, g.KPerThread, g.Operand, g.DestRepeatStride,
		g.KOffset, l.KStride, l.RepeatStride, l.Base, scale)
}

// Config are the parameters of one operand's gather.
type Config struct {
	// Stride is the row length of the staged buffer: M for A, N for B.
	Stride int

	// K is the number of reduction rows gathered, starting at KOffset.
	K, KOffset int

	// Repeats along the operand dimension, and PrimitiveDim the per-primitive size
	// (PrimitiveM for A, PrimitiveN for B).
	Repeats, PrimitiveDim int

	// LDSOffset of the operand segment in the staged buffer, in elements.
	LDSOffset int

	// KPack is the pack factor: 0 or 1 for unpacked.
	KPack int
}

// Plan the gather of one operand for the given primitive.
//
// An incompatible kpack (see xdlops.CheckKPack) or a misaligned LDS offset panic: both
// are guaranteed by upstream passes.
func Plan(operand Operand, p *xdlops.Primitive, cfg Config) (LaneGather, error) {
	xdlops.CheckKPack(p, cfg.KPack)
	if cfg.K <= 0 || cfg.Stride <= 0 || cfg.Repeats <= 0 {
		return LaneGather{}, errors.Errorf("gather %s: invalid config %+v", operand, cfg)
	}
	packFactor := max(cfg.KPack, 1)
	g := LaneGather{
		Operand: operand,
		Policy:  PolicyFor(p),
		Layout: layout.StagedLayout{
			Base:         layout.StagedBase(0, cfg.LDSOffset, packFactor),
			KStride:      cfg.Stride,
			RepeatStride: cfg.PrimitiveDim,
			PackFactor:   packFactor,
		},
		KOffset:         cfg.KOffset,
		Repeats:         cfg.Repeats,
		NumInputBlocks:  p.NumInputBlocks,
		ThreadsPerBlock: p.ThreadsPerBlock,
	}
	switch g.Policy {
	case PolicyKReduction:
		if cfg.Repeats != 1 {
			return LaneGather{}, errors.Errorf("gather %s: %s has no repeats, got %d (primitive %s)",
				operand, g.Policy, cfg.Repeats, p.Instr)
		}
		if cfg.K%p.NumInputBlocks != 0 {
			return LaneGather{}, errors.Errorf("gather %s: k=%d is not divisible by the %d input blocks of %s",
				operand, cfg.K, p.NumInputBlocks, p.Instr)
		}
		g.KPerThread = cfg.K / p.NumInputBlocks
	default:
		g.KPerThread = cfg.K
	}
	g.DestRepeatStride = g.KPerThread
	return g, nil
}

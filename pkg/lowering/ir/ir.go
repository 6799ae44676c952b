// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ir defines the records produced by the lowering passes.
//
// Lowering never mutates its input: it builds a new Program (or copy/fill records) that
// the caller splices into its own representation. All records are plain values, safe to
// share once built.
package ir

import (
	"fmt"
	"strings"

	"github.com/gomlx/gemmlower/pkg/lowering/gather"
	"github.com/gomlx/gemmlower/pkg/lowering/layout"
	"github.com/gomlx/gemmlower/pkg/lowering/tiling"
	"github.com/gomlx/gemmlower/pkg/lowering/xdlops"
	"github.com/gomlx/gopjrt/dtypes"
)

// Kind of the lowered block GEMM.
type Kind int

//go:generate go tool enumer -type=Kind -trimprefix=Kind -transform=snake -output=gen_kind_enumer.go ir.go

const (
	// KindXdlops is lowered to accelerated primitive invocations.
	KindXdlops Kind = iota

	// KindThreadwise is lowered to per-thread register GEMMs.
	KindThreadwise
)

// Invocation of a single accelerated primitive GEMM, consumed by instruction selection.
type Invocation struct {
	// Primitive the invocation lowers to, selected for its own MPerWave x NPerWave.
	Primitive xdlops.Primitive

	// M, N, K and KPack of the block GEMM, unchanged.
	M, N, K, KPack int

	// MPerWave, NPerWave of this invocation: forced to 64 for repeats.
	MPerWave, NPerWave int

	// LDSOffsetA and LDSOffsetB of the staged segments, unchanged.
	LDSOffsetA, LDSOffsetB int

	// OffsetA and OffsetB into the A and B register buffers.
	OffsetA, OffsetB int

	// Accumulators are the indices of the program accumulator vectors this invocation
	// reads and produces, in fragment order.
	Accumulators []int
}

// String implements fmt.Stringer.
func (inv *Invocation) String() string {
	return fmt.Sprintf("xdlops_gemm %s m=%d n=%d k=%d kpack=%d m_per_wave=%d n_per_wave=%d offsets=(%d,%d) acc=%v",
		inv.Primitive.Instr, inv.M, inv.N, inv.K, inv.KPack, inv.MPerWave, inv.NPerWave,
		inv.OffsetA, inv.OffsetB, inv.Accumulators)
}

// ThreadCopy copies a K slice of a staged operand into a thread's registers, converting
// to the accumulator element type.
type ThreadCopy struct {
	Operand gather.Operand

	// Source layout of the staged buffer; the thread offset is added to Coord.Lane.
	Source layout.StagedLayout

	// KOffset is the first reduction row of the slice.
	KOffset int

	// Registers is the view of the destination: [KPerThread][Repeats][PerThread][KPack].
	Registers layout.RegisterView

	SourceDType, DestDType dtypes.DType
}

// SourceCoord of the staged element copied to the register coordinate c.
func (c *ThreadCopy) SourceCoord(threadOffset int, reg layout.Coord) layout.Coord {
	reg.K += c.KOffset
	reg.Lane += threadOffset
	return reg
}

// Transfers enumerates the element copies for a thread, in register order.
func (c *ThreadCopy) Transfers(threadOffset int) []layout.Transfer {
	transfers := make([]layout.Transfer, 0, c.Registers.NumElements())
	c.Registers.Iterate(func(reg layout.Coord) {
		transfers = append(transfers, layout.Transfer{
			Source: c.Source.Offset(c.SourceCoord(threadOffset, reg)),
			Dest:   c.Registers.Offset(reg),
		})
	})
	return transfers
}

// String implements fmt.Stringer.
func (c *ThreadCopy) String() string {
	s := c.Registers.Sizes
	return fmt.Sprintf("copy %s: for [k,r,p,kp]<[%d,%d,%d,%d]: regs%s[unmerge(k,r,p,kp)] = %s(lds[((%d + k)*%d + r*%d + thread + p)*%d + kp])",
		c.Operand, s[0], s[1], s[2], s[3], c.Operand, c.DestDType, c.KOffset,
		c.Source.KStride, c.Source.RepeatStride, max(c.Source.PackFactor, 1))
}

// ThreadwiseGemm is C[m][n] += sum_{k,kp} A[k][m][kp] * B[k][n][kp] over a thread's registers.
type ThreadwiseGemm struct {
	K, M, N, KPack int
	DType          dtypes.DType
}

// String implements fmt.Stringer.
func (g *ThreadwiseGemm) String() string {
	return fmt.Sprintf("threadwise_gemm %s A[%d][%d][%d] x B[%d][%d][%d] -> C[%d][%d]",
		g.DType, g.K, g.M, g.KPack, g.K, g.N, g.KPack, g.M, g.N)
}

// Step is one iteration of the reduction loop. Steps run in increasing KOffset order.
type Step struct {
	KOffset int

	// Accelerated lowering: the two gathers are independent of each other.
	GatherA, GatherB *gather.LaneGather
	Invocations      []Invocation

	// Threadwise lowering.
	CopyA, CopyB *ThreadCopy
	Gemm         *ThreadwiseGemm
}

// Program is a lowered block GEMM.
type Program struct {
	// ID tags the program in trace events.
	ID string

	Kind            Kind
	DType, AccDType dtypes.DType

	// Primitive selected for the whole wave tile (KindXdlops only).
	Primitive *xdlops.Primitive
	Repeats   tiling.Repeats
	Policy    gather.Policy

	// KStep is the reduction rows per step: the loop trip count is K/KStep.
	K, KStep int

	// Accumulators has the size of each accumulator vector, per lane (or thread).
	Accumulators []int

	// RegistersA and RegistersB are the per-lane register buffer sizes, in elements.
	RegistersA, RegistersB int

	Steps []Step
}

// NumInvocations returns the total number of primitive invocations of the program.
func (p *Program) NumInvocations() int {
	var n int
	for _, step := range p.Steps {
		n += len(step.Invocations)
	}
	return n
}

// AccumulatorElements is the total number of accumulator elements per lane.
func (p *Program) AccumulatorElements() int {
	var n int
	for _, size := range p.Accumulators {
		n += size
	}
	return n
}

// String returns a textual dump of the program.
func (p *Program) String() string {
	var sb strings.Builder
	switch p.Kind {
	case KindXdlops:
		fmt.Fprintf(&sb, "program %s (%s, %s, %s, repeats %s, %s)\n", p.ID, p.Kind, p.DType, p.Primitive.Instr, p.Repeats, p.Policy)
	default:
		fmt.Fprintf(&sb, "program %s (%s, %s -> %s, repeats %s)\n", p.ID, p.Kind, p.DType, p.AccDType, p.Repeats)
	}
	fmt.Fprintf(&sb, "  registers A=%d B=%d, accumulators %v\n", p.RegistersA, p.RegistersB, p.Accumulators)
	for _, step := range p.Steps {
		fmt.Fprintf(&sb, "  step k=%d:\n", step.KOffset)
		if step.GatherA != nil {
			fmt.Fprintf(&sb, "    %s\n", step.GatherA)
		}
		if step.GatherB != nil {
			fmt.Fprintf(&sb, "    %s\n", step.GatherB)
		}
		if step.CopyA != nil {
			fmt.Fprintf(&sb, "    %s\n", step.CopyA)
		}
		if step.CopyB != nil {
			fmt.Fprintf(&sb, "    %s\n", step.CopyB)
		}
		for i := range step.Invocations {
			fmt.Fprintf(&sb, "    %s\n", &step.Invocations[i])
		}
		if step.Gemm != nil {
			fmt.Fprintf(&sb, "    %s\n", step.Gemm)
		}
	}
	return sb.String()
}

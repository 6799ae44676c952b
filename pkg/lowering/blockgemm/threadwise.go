// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package blockgemm

import (
	"github.com/gomlx/gemmlower/pkg/lowering/gather"
	"github.com/gomlx/gemmlower/pkg/lowering/ir"
	"github.com/gomlx/gemmlower/pkg/lowering/layout"
	"github.com/gomlx/gemmlower/pkg/lowering/tiling"
	"github.com/gomlx/gemmlower/pkg/lowering/trace"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// ThreadwiseGemmOp is a block GEMM to be lowered without the accelerated primitive: each
// thread copies slices of the staged A[K][M][KPack] and B[K][N][KPack] into registers
// and accumulates its C[MC][NC] tile with a register-level GEMM.
type ThreadwiseGemmOp struct {
	// DType of the staged operands, AccDType of C. Staged values are converted to
	// AccDType when copied into registers.
	DType, AccDType dtypes.DType

	K, M, N, KPack int

	// MC and NC is the per-thread C tile.
	MC, NC int

	KPerThread, MPerThread, NPerThread int

	// MRepeatStride (NRepeatStride) is the staged distance between the MPerThread
	// (NPerThread) sized pieces of the thread's C rows (columns).
	MRepeatStride, NRepeatStride int

	// LDSOffsetA and LDSOffsetB of the staged segments, in elements.
	LDSOffsetA, LDSOffsetB int
}

func (op *ThreadwiseGemmOp) packFactor() int {
	return max(op.KPack, 1)
}

// Validate the op: every tile must divide its enclosing one.
func (op *ThreadwiseGemmOp) Validate() error {
	if op.K <= 0 || op.M <= 0 || op.N <= 0 || op.KPack < 0 {
		return errors.Errorf("invalid threadwise gemm k=%d, m=%d, n=%d, kpack=%d", op.K, op.M, op.N, op.KPack)
	}
	if op.KPerThread <= 0 || op.K%op.KPerThread != 0 {
		return errors.Errorf("k=%d is not divisible by k_per_thread=%d", op.K, op.KPerThread)
	}
	check := func(name string, c, perThread, dim, repeatStride int) error {
		if c <= 0 || perThread <= 0 || c%perThread != 0 {
			return errors.Wrapf(ErrMalformedOperand, "%s thread tile of %d is not divisible by %s_per_thread=%d",
				name, c, name, perThread)
		}
		repeat := c / perThread
		if dim%repeat != 0 {
			return errors.Wrapf(ErrMalformedOperand, "%s=%d is not divisible by its %d repeats", name, dim, repeat)
		}
		if repeatStride < 0 {
			return errors.Wrapf(ErrMalformedOperand, "invalid %s repeat stride %d", name, repeatStride)
		}
		return nil
	}
	if err := check("m", op.MC, op.MPerThread, op.M, op.MRepeatStride); err != nil {
		return err
	}
	if err := check("n", op.NC, op.NPerThread, op.N, op.NRepeatStride); err != nil {
		return err
	}
	if op.LDSOffsetA < 0 || op.LDSOffsetB < 0 {
		return errors.Errorf("invalid LDS offsets (%d, %d)", op.LDSOffsetA, op.LDSOffsetB)
	}
	return nil
}

func (op *ThreadwiseGemmOp) copyOf(operand gather.Operand, kOffset int) *ir.ThreadCopy {
	stride, repeatStride, c, perThread, ldsOffset := op.M, op.MRepeatStride, op.MC, op.MPerThread, op.LDSOffsetA
	if operand == gather.OperandB {
		stride, repeatStride, c, perThread, ldsOffset = op.N, op.NRepeatStride, op.NC, op.NPerThread, op.LDSOffsetB
	}
	pf := op.packFactor()
	return &ir.ThreadCopy{
		Operand: operand,
		Source: layout.StagedLayout{
			Base:         layout.StagedBase(0, ldsOffset, pf),
			KStride:      stride,
			RepeatStride: repeatStride,
			PackFactor:   pf,
		},
		KOffset:     kOffset,
		Registers:   layout.RegisterView{Sizes: [4]int{op.KPerThread, c / perThread, perThread, pf}},
		SourceDType: op.DType,
		DestDType:   op.AccDType,
	}
}

// LowerThreadwise lowers the block GEMM to per-thread copies and register-level GEMMs,
// one of each per KPerThread rows of the reduction.
func (l *Lowerer) LowerThreadwise(op ThreadwiseGemmOp) (*ir.Program, error) {
	if err := op.Validate(); err != nil {
		return nil, errors.WithMessage(err, "LowerThreadwise")
	}
	id := l.newID()
	pf := op.packFactor()
	repeats := tiling.Repeats{M: op.MC / op.MPerThread, N: op.NC / op.NPerThread, PrimitiveM: op.MPerThread, PrimitiveN: op.NPerThread}
	l.trace(trace.KindRepeatsDecomposed, id,
		trace.F("m_repeats", repeats.M), trace.F("n_repeats", repeats.N),
		trace.F("m_per_thread", op.MPerThread), trace.F("n_per_thread", op.NPerThread))

	prog := &ir.Program{
		ID:           id,
		Kind:         ir.KindThreadwise,
		DType:        op.DType,
		AccDType:     op.AccDType,
		Repeats:      repeats,
		K:            op.K,
		KStep:        op.KPerThread,
		Accumulators: []int{op.MC * op.NC},
		RegistersA:   op.KPerThread * op.MC * pf,
		RegistersB:   op.KPerThread * op.NC * pf,
	}
	for kOffset := 0; kOffset < op.K; kOffset += op.KPerThread {
		prog.Steps = append(prog.Steps, ir.Step{
			KOffset: kOffset,
			CopyA:   op.copyOf(gather.OperandA, kOffset),
			CopyB:   op.copyOf(gather.OperandB, kOffset),
			Gemm:    &ir.ThreadwiseGemm{K: op.KPerThread, M: op.MC, N: op.NC, KPack: pf, DType: op.AccDType},
		})
		l.trace(trace.KindStepEmitted, id, trace.F("k_offset", kOffset))
	}
	return prog, nil
}

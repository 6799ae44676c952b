// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package blockgemm lowers a block-level (workgroup cooperative) GEMM over staged operands
// into per-lane (or per-thread) work.
//
// Two lowerings are provided:
//
//   - LowerXdlops: for each K step, per-lane gathers of A and B into registers followed by
//     invocations of the accelerated wave-level primitive (see package xdlops).
//   - LowerThreadwise: for each K step, per-thread copies of A and B slices into registers
//     followed by a register-level GEMM.
//
// Lowering is deterministic and all-or-nothing: it either returns a complete ir.Program or
// an error. Upstream invariant violations (e.g. a kpack incompatible with the primitive)
// panic.
package blockgemm

import (
	"github.com/gomlx/gemmlower/pkg/lowering/trace"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrMalformedOperand is returned (wrapped) when the operand or accumulator shapes of
// the op are inconsistent with its tiling.
var ErrMalformedOperand = errors.New("malformed operand")

// Lowerer holds the options of the lowering. Create it with New, configure it with the
// With* methods; it is immutable during lowering and can be reused.
type Lowerer struct {
	tracer trace.Tracer
	kStep  int
	newID  func() string
}

// New returns a Lowerer with default options: no tracing, and one K step covering the
// whole reduction range of the staged buffers.
func New() *Lowerer {
	return &Lowerer{tracer: trace.Discard, newID: uuid.NewString}
}

// WithTracer sets the tracer that receives the lowering events.
func (l *Lowerer) WithTracer(tracer trace.Tracer) *Lowerer {
	if tracer == nil {
		tracer = trace.Discard
	}
	l.tracer = tracer
	return l
}

// WithKStep sets the number of reduction rows gathered per step by LowerXdlops. The
// default (0) is a single step over the whole K. It must divide K.
func (l *Lowerer) WithKStep(kStep int) *Lowerer {
	l.kStep = kStep
	return l
}

// WithIDs sets the generator of program IDs. The default generates random UUIDs.
func (l *Lowerer) WithIDs(newID func() string) *Lowerer {
	l.newID = newID
	return l
}

func (l *Lowerer) trace(kind trace.Kind, program string, fields ...trace.Field) {
	l.tracer.Trace(trace.Event{Kind: kind, Program: program, Fields: fields})
}

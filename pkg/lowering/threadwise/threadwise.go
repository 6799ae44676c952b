// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package threadwise lowers the per-lane copy from a staged buffer to a lane's
// destination, and the fill of a buffer with a constant.
//
// The copy is a guarded (masked) store: elements falling outside the destination along
// the dimensions declared left or right out-of-bounds are not stored, instead of being
// an error.
package threadwise

import (
	"slices"

	"github.com/gomlx/gemmlower/pkg/lowering/ir"
	"github.com/gomlx/gemmlower/pkg/lowering/trace"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// ErrOutOfBounds is returned (wrapped) when a stored element falls outside the
// destination on a dimension not declared out-of-bounds.
var ErrOutOfBounds = errors.New("store out of bounds")

// CopyOp copies Length contiguous elements starting at SourceOffset of the source into
// the destination at DestCoord, the vector running along the last destination dimension.
type CopyOp struct {
	SourceDType dtypes.DType

	// SourceSize is the number of elements of the source buffer. If 0 it is not checked.
	SourceSize   int
	SourceOffset int

	Length int

	DestDType            dtypes.DType
	DestShape, DestCoord []int

	// LeftOOB and RightOOB list the destination dimensions that may have coordinates
	// below 0 or at or above their extent, respectively.
	LeftOOB, RightOOB []int

	Method ir.StoreMethod
}

func checkDims(name string, dims []int, rank int) error {
	seen := make(map[int]bool, len(dims))
	for _, dim := range dims {
		if dim < 0 || dim >= rank {
			return errors.Errorf("%s dimension %d out of range for rank %d", name, dim, rank)
		}
		if seen[dim] {
			return errors.Errorf("%s dimension %d given twice", name, dim)
		}
		seen[dim] = true
	}
	return nil
}

// Validate the op.
func (op *CopyOp) Validate() error {
	if op.Length <= 0 {
		return errors.Errorf("invalid copy length %d", op.Length)
	}
	if op.SourceOffset < 0 || (op.SourceSize > 0 && op.SourceOffset+op.Length > op.SourceSize) {
		return errors.Errorf("source range [%d, %d) out of the %d elements of the source",
			op.SourceOffset, op.SourceOffset+op.Length, op.SourceSize)
	}
	rank := len(op.DestShape)
	if rank == 0 {
		return errors.New("scalar destination, the copy needs at least one dimension")
	}
	if len(op.DestCoord) != rank {
		return errors.Errorf("destination coordinate %v doesn't match shape %v", op.DestCoord, op.DestShape)
	}
	for axis, dim := range op.DestShape {
		if dim <= 0 {
			return errors.Errorf("invalid destination shape %v, axis %d", op.DestShape, axis)
		}
	}
	if err := checkDims("left out-of-bounds", op.LeftOOB, rank); err != nil {
		return err
	}
	if err := checkDims("right out-of-bounds", op.RightOOB, rank); err != nil {
		return err
	}
	switch op.Method {
	case ir.StoreMethodSet, ir.StoreMethodAtomicAdd:
	default:
		return errors.Errorf("invalid store method %s", op.Method)
	}
	return nil
}

func tracerOrDiscard(tracer trace.Tracer) trace.Tracer {
	if tracer == nil {
		return trace.Discard
	}
	return tracer
}

// LowerCopy lowers the copy to an in-bounds load of the source followed by a guarded
// store. A nil tracer is a valid no-op.
func LowerCopy(op CopyOp, tracer trace.Tracer) (*ir.MaskedCopy, error) {
	if err := op.Validate(); err != nil {
		return nil, errors.WithMessage(err, "LowerCopy")
	}
	c := &ir.MaskedCopy{
		Load: ir.VectorLoad{Offset: op.SourceOffset, Length: op.Length, DType: op.SourceDType},
		Store: ir.BufferStore{
			Length:    op.Length,
			DType:     op.DestDType,
			DestShape: slices.Clone(op.DestShape),
			DestCoord: slices.Clone(op.DestCoord),
			LeftOOB:   slices.Clone(op.LeftOOB),
			RightOOB:  slices.Clone(op.RightOOB),
			Method:    op.Method,
		},
	}
	tracerOrDiscard(tracer).Trace(trace.Event{Kind: trace.KindCopyLowered, Fields: []trace.Field{
		trace.F("length", op.Length), trace.F("method", op.Method),
		trace.F("left_oob", op.LeftOOB), trace.F("right_oob", op.RightOOB),
	}})
	return c, nil
}

// LowerFill lowers the fill of a buffer of the given shape with value.
func LowerFill(shape []int, dtype dtypes.DType, value float64, tracer trace.Tracer) (*ir.Fill, error) {
	for axis, dim := range shape {
		if dim <= 0 {
			return nil, errors.Errorf("LowerFill: invalid shape %v, axis %d", shape, axis)
		}
	}
	f := &ir.Fill{Shape: slices.Clone(shape), DType: dtype, Value: value}
	tracerOrDiscard(tracer).Trace(trace.Event{Kind: trace.KindFillLowered, Fields: []trace.Field{
		trace.F("shape", shape), trace.F("elements", f.NumElements()),
	}})
	return f, nil
}

// Target is where one element of a guarded store lands.
type Target struct {
	// Element is the index in the stored vector.
	Element int

	// Offset is the row-major flat offset into the destination.
	Offset int
}

// StoreTargets returns the elements of the store that are within the destination, in
// vector order. Elements out-of-bounds on a declared dimension are skipped; out-of-bounds
// on any other dimension returns an error wrapping ErrOutOfBounds.
func StoreTargets(store *ir.BufferStore) ([]Target, error) {
	rank := len(store.DestShape)
	if rank == 0 || len(store.DestCoord) != rank {
		return nil, errors.Errorf("invalid store coordinate %v for shape %v", store.DestCoord, store.DestShape)
	}
	coord := slices.Clone(store.DestCoord)
	last := rank - 1
	targets := make([]Target, 0, store.Length)
elements:
	for element := range store.Length {
		coord[last] = store.DestCoord[last] + element
		offset := 0
		for axis, dim := range store.DestShape {
			x := coord[axis]
			switch {
			case x < 0 && slices.Contains(store.LeftOOB, axis):
				continue elements
			case x >= dim && slices.Contains(store.RightOOB, axis):
				continue elements
			case x < 0 || x >= dim:
				return nil, errors.Wrapf(ErrOutOfBounds, "element %d at %v, shape %v, axis %d not declared out-of-bounds",
					element, coord, store.DestShape, axis)
			}
			offset = offset*dim + x
		}
		targets = append(targets, Target{Element: element, Offset: offset})
	}
	return targets, nil
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
)

// StoreMethod is how a store combines with the destination value.
type StoreMethod int

//go:generate go tool enumer -type=StoreMethod -trimprefix=StoreMethod -transform=snake -output=gen_storemethod_enumer.go copy.go

const (
	// StoreMethodSet overwrites the destination.
	StoreMethodSet StoreMethod = iota

	// StoreMethodAtomicAdd adds to the destination.
	StoreMethodAtomicAdd
)

// VectorLoad of Length contiguous elements, trusted to be in bounds.
type VectorLoad struct {
	Offset, Length int
	DType          dtypes.DType
}

// IsVector returns whether more than one element is loaded.
func (l *VectorLoad) IsVector() bool {
	return l.Length > 1
}

// String implements fmt.Stringer.
func (l *VectorLoad) String() string {
	if l.IsVector() {
		return fmt.Sprintf("in_bounds_load vector<%dx%s> src[%d]", l.Length, l.DType, l.Offset)
	}
	return fmt.Sprintf("in_bounds_load %s src[%d]", l.DType, l.Offset)
}

// BufferStore of Length elements along the last destination dimension, with out-of-bounds
// guards on the listed dimensions.
type BufferStore struct {
	Length int
	DType  dtypes.DType

	DestShape, DestCoord []int

	// LeftOOB dimensions may have coordinates < 0, RightOOB ones coordinates >= extent:
	// those elements are not stored.
	LeftOOB, RightOOB []int

	Method StoreMethod
}

// String implements fmt.Stringer.
func (s *BufferStore) String() string {
	return fmt.Sprintf("buffer_store %s x%d dst%v[%v] left_oob=%v right_oob=%v",
		s.Method, s.Length, s.DestShape, s.DestCoord, s.LeftOOB, s.RightOOB)
}

// MaskedCopy is a lowered per-lane copy: a load followed by a guarded store.
type MaskedCopy struct {
	Load  VectorLoad
	Store BufferStore
}

// String implements fmt.Stringer.
func (c *MaskedCopy) String() string {
	return fmt.Sprintf("%s; %s", &c.Load, &c.Store)
}

// Fill stores Value to every element of a buffer of the given shape.
type Fill struct {
	Shape []int
	DType dtypes.DType
	Value float64
}

// NumElements of the filled buffer.
func (f *Fill) NumElements() int {
	n := 1
	for _, dim := range f.Shape {
		n *= dim
	}
	return n
}

// String implements fmt.Stringer.
func (f *Fill) String() string {
	return fmt.Sprintf("fill %s%v = %g", f.DType, f.Shape, f.Value)
}

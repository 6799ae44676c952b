// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package emulate

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// Buffer is a flat host buffer of one of the supported element types.
//
// Data holds one of []float32, []float64, []float16.Float16, []bfloat16.BFloat16,
// []int8 or []int32, matching DType.
type Buffer struct {
	DType dtypes.DType
	Data  any
}

// NewBuffer returns a zero initialized buffer of size elements.
func NewBuffer(dtype dtypes.DType, size int) (*Buffer, error) {
	b := &Buffer{DType: dtype}
	switch dtype {
	case dtypes.Float32:
		b.Data = make([]float32, size)
	case dtypes.Float64:
		b.Data = make([]float64, size)
	case dtypes.Float16:
		b.Data = make([]float16.Float16, size)
	case dtypes.BFloat16:
		b.Data = make([]bfloat16.BFloat16, size)
	case dtypes.Int8:
		b.Data = make([]int8, size)
	case dtypes.Int32:
		b.Data = make([]int32, size)
	default:
		return nil, errors.Errorf("emulate: dtype %s not supported", dtype)
	}
	return b, nil
}

// FromValues returns a buffer of the given dtype with the values converted.
func FromValues[T constraints.Integer | constraints.Float](dtype dtypes.DType, values []T) (*Buffer, error) {
	b, err := NewBuffer(dtype, len(values))
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		b.Set(i, float64(v))
	}
	return b, nil
}

// Len returns the number of elements.
func (b *Buffer) Len() int {
	switch data := b.Data.(type) {
	case []float32:
		return len(data)
	case []float64:
		return len(data)
	case []float16.Float16:
		return len(data)
	case []bfloat16.BFloat16:
		return len(data)
	case []int8:
		return len(data)
	case []int32:
		return len(data)
	}
	return 0
}

// At returns the element i converted to float64.
func (b *Buffer) At(i int) float64 {
	switch data := b.Data.(type) {
	case []float32:
		return float64(data[i])
	case []float64:
		return data[i]
	case []float16.Float16:
		return float64(data[i].Float32())
	case []bfloat16.BFloat16:
		return float64(data[i].Float32())
	case []int8:
		return float64(data[i])
	case []int32:
		return float64(data[i])
	}
	exceptions.Panicf("emulate: buffer data of type %T", b.Data)
	return 0
}

// Set element i to v, converted to the buffer dtype. Integer dtypes truncate toward zero
// and saturate at their range; NaN is stored as 0.
func (b *Buffer) Set(i int, v float64) {
	switch data := b.Data.(type) {
	case []float32:
		data[i] = float32(v)
	case []float64:
		data[i] = v
	case []float16.Float16:
		data[i] = float16.Fromfloat32(float32(v))
	case []bfloat16.BFloat16:
		data[i] = bfloat16.FromFloat32(float32(v))
	case []int8:
		data[i] = saturate[int8](v, math.MinInt8, math.MaxInt8)
	case []int32:
		data[i] = saturate[int32](v, math.MinInt32, math.MaxInt32)
	default:
		exceptions.Panicf("emulate: buffer data of type %T", b.Data)
	}
}

// saturate converts v to T, clamping it to [lo, hi].
func saturate[T constraints.Signed](v float64, lo, hi T) T {
	switch {
	case math.IsNaN(v):
		return 0
	case v <= float64(lo):
		return lo
	case v >= float64(hi):
		return hi
	}
	return T(v)
}

// Values returns a copy of the buffer converted to float64.
func (b *Buffer) Values() []float64 {
	values := make([]float64, b.Len())
	for i := range values {
		values[i] = b.At(i)
	}
	return values
}

func (b *Buffer) checkRange(name string, offset, length int) error {
	if offset < 0 || offset+length > b.Len() {
		return errors.Errorf("emulate: %s range [%d, %d) out of the %d elements of the buffer",
			name, offset, offset+length, b.Len())
	}
	return nil
}

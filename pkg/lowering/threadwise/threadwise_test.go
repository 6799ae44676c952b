// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package threadwise

import (
	"testing"

	"github.com/gomlx/gemmlower/pkg/lowering/ir"
	"github.com/gomlx/gemmlower/pkg/lowering/trace"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorCopy() CopyOp {
	return CopyOp{
		SourceDType: dtypes.Float32, SourceSize: 16, SourceOffset: 4, Length: 4,
		DestDType: dtypes.Float16,
		DestShape: []int{2, 3, 6},
		DestCoord: []int{1, 2, 4},
		LeftOOB:   []int{1, 2},
		RightOOB:  []int{1, 2},
		Method:    ir.StoreMethodSet,
	}
}

func TestLowerCopy(t *testing.T) {
	rec := &trace.Recorder{}
	c, err := LowerCopy(vectorCopy(), rec)
	require.NoError(t, err)
	assert.True(t, c.Load.IsVector())
	assert.Equal(t, ir.VectorLoad{Offset: 4, Length: 4, DType: dtypes.Float32}, c.Load)
	assert.Equal(t, dtypes.Float16, c.Store.DType)
	assert.Equal(t, ir.StoreMethodSet, c.Store.Method)
	require.Len(t, rec.OfKind(trace.KindCopyLowered), 1)

	op := vectorCopy()
	op.Length = 1
	c, err = LowerCopy(op, nil)
	require.NoError(t, err)
	assert.False(t, c.Load.IsVector())
}

func TestStoreTargetsClips(t *testing.T) {
	// Length-4 store at the last axis coordinate 4 of 6: elements 2 and 3 are past the
	// right edge of a declared out-of-bounds dimension and are dropped.
	c, err := LowerCopy(vectorCopy(), nil)
	require.NoError(t, err)
	targets, err := StoreTargets(&c.Store)
	require.NoError(t, err)
	want := []Target{
		{Element: 0, Offset: (1*3+2)*6 + 4},
		{Element: 1, Offset: (1*3+2)*6 + 5},
	}
	if diff := cmp.Diff(want, targets); diff != "" {
		t.Fatalf("unexpected targets (-want +got):\n%s", diff)
	}

	// Negative coordinates on a left out-of-bounds dimension.
	op := vectorCopy()
	op.DestCoord = []int{0, 0, -3}
	c, err = LowerCopy(op, nil)
	require.NoError(t, err)
	targets, err = StoreTargets(&c.Store)
	require.NoError(t, err)
	assert.Equal(t, []Target{{Element: 3, Offset: 0}}, targets)

	// The whole vector outside on axis 1.
	op = vectorCopy()
	op.DestCoord = []int{0, 3, 0}
	c, err = LowerCopy(op, nil)
	require.NoError(t, err)
	targets, err = StoreTargets(&c.Store)
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestStoreTargetsOutOfBounds(t *testing.T) {
	op := vectorCopy()
	op.RightOOB = []int{1}
	c, err := LowerCopy(op, nil)
	require.NoError(t, err)
	_, err = StoreTargets(&c.Store)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfBounds))

	op = vectorCopy()
	op.DestCoord = []int{2, 0, 0}
	c, err = LowerCopy(op, nil)
	require.NoError(t, err)
	_, err = StoreTargets(&c.Store)
	assert.True(t, errors.Is(err, ErrOutOfBounds))
}

func TestCopyValidate(t *testing.T) {
	for name, modify := range map[string]func(op *CopyOp){
		"zero length":     func(op *CopyOp) { op.Length = 0 },
		"source overflow": func(op *CopyOp) { op.SourceOffset = 14 },
		"scalar dest":     func(op *CopyOp) { op.DestShape, op.DestCoord = nil, nil },
		"rank mismatch":   func(op *CopyOp) { op.DestCoord = []int{0, 0} },
		"bad dim":         func(op *CopyOp) { op.LeftOOB = []int{3} },
		"duplicated dim":  func(op *CopyOp) { op.RightOOB = []int{2, 2} },
		"bad method":      func(op *CopyOp) { op.Method = ir.StoreMethod(7) },
		"empty axis":      func(op *CopyOp) { op.DestShape = []int{2, 0, 6} },
	} {
		t.Run(name, func(t *testing.T) {
			op := vectorCopy()
			modify(&op)
			_, err := LowerCopy(op, nil)
			require.Error(t, err)
		})
	}
}

func TestLowerFill(t *testing.T) {
	rec := &trace.Recorder{}
	f, err := LowerFill([]int{2, 3}, dtypes.Int32, 7, rec)
	require.NoError(t, err)
	assert.Equal(t, 6, f.NumElements())
	assert.Contains(t, f.String(), "[2 3] = 7")
	events := rec.OfKind(trace.KindFillLowered)
	require.Len(t, events, 1)
	n, _ := events[0].Get("elements")
	assert.Equal(t, 6, n)

	_, err = LowerFill([]int{2, -1}, dtypes.Int32, 0, nil)
	require.Error(t, err)
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package emulate executes lowered records over host buffers.
//
// It is a reference interpreter used to check the offset arithmetic of the lowering:
// per-lane gathers, threadwise copies and GEMMs, guarded stores and fills. Accelerated
// primitive invocations are not executed, only the gathers feeding them.
package emulate

import (
	"github.com/gomlx/gemmlower/internal/lanepool"
	"github.com/gomlx/gemmlower/pkg/lowering/gather"
	"github.com/gomlx/gemmlower/pkg/lowering/ir"
	"github.com/gomlx/gemmlower/pkg/lowering/threadwise"
	"github.com/gomlx/gemmlower/pkg/lowering/tiling"
	"github.com/pkg/errors"
)

// GatherLane executes the gather of one lane from the staged buffer lds into regs.
// Each transfer moves g.Elements() values.
func GatherLane(g *gather.LaneGather, waveOffset, lane int, lds, regs *Buffer) error {
	elements := g.Elements()
	if err := regs.checkRange("registers", 0, g.NumRegisters()*elements); err != nil {
		return err
	}
	for _, t := range g.Transfers(waveOffset, lane) {
		if err := lds.checkRange("staged", t.Source, elements); err != nil {
			return errors.WithMessagef(err, "%s", g)
		}
		for e := range elements {
			regs.Set(t.Dest*elements+e, lds.At(t.Source+e))
		}
	}
	return nil
}

// GatherWave executes the gather for every lane of a wave, lanes in parallel, and
// returns the register buffer of each lane.
func GatherWave(pool *lanepool.Pool, g *gather.LaneGather, waveOffset int, lds *Buffer) ([]*Buffer, error) {
	regs := make([]*Buffer, tiling.WaveSize)
	for lane := range regs {
		var err error
		regs[lane], err = NewBuffer(lds.DType, g.NumRegisters()*g.Elements())
		if err != nil {
			return nil, err
		}
	}
	err := pool.Run(tiling.WaveSize, func(lane int) error {
		return GatherLane(g, waveOffset, lane, lds, regs[lane])
	})
	if err != nil {
		return nil, err
	}
	return regs, nil
}

// ThreadCopy executes the copy of a thread's slice of the staged buffer into regs,
// converting to the register dtype.
func ThreadCopy(c *ir.ThreadCopy, threadOffset int, lds, regs *Buffer) error {
	if err := regs.checkRange("registers", 0, c.Registers.NumElements()); err != nil {
		return err
	}
	for _, t := range c.Transfers(threadOffset) {
		if err := lds.checkRange("staged", t.Source, 1); err != nil {
			return errors.WithMessagef(err, "%s", c)
		}
		regs.Set(t.Dest, lds.At(t.Source))
	}
	return nil
}

// ThreadwiseGemm executes C[m][n] += sum_{k,kp} A[k][m][kp] * B[k][n][kp].
func ThreadwiseGemm(g *ir.ThreadwiseGemm, a, b, c *Buffer) error {
	kPack := max(g.KPack, 1)
	if err := a.checkRange("A", 0, g.K*g.M*kPack); err != nil {
		return err
	}
	if err := b.checkRange("B", 0, g.K*g.N*kPack); err != nil {
		return err
	}
	if err := c.checkRange("C", 0, g.M*g.N); err != nil {
		return err
	}
	for m := range g.M {
		for n := range g.N {
			acc := c.At(m*g.N + n)
			for k := range g.K {
				for kp := range kPack {
					acc += a.At((k*g.M+m)*kPack+kp) * b.At((k*g.N+n)*kPack+kp)
				}
			}
			c.Set(m*g.N+n, acc)
		}
	}
	return nil
}

// RunThreadwise executes a threadwise program for one thread, accumulating into c
// (the thread's [MC][NC] tile, in the program's accumulator dtype).
func RunThreadwise(prog *ir.Program, threadOffsetA, threadOffsetB int, lds, c *Buffer) error {
	if prog.Kind != ir.KindThreadwise {
		return errors.Errorf("emulate: RunThreadwise on a %s program", prog.Kind)
	}
	for _, step := range prog.Steps {
		regsA, err := NewBuffer(prog.AccDType, prog.RegistersA)
		if err != nil {
			return err
		}
		regsB, err := NewBuffer(prog.AccDType, prog.RegistersB)
		if err != nil {
			return err
		}
		if err = ThreadCopy(step.CopyA, threadOffsetA, lds, regsA); err != nil {
			return err
		}
		if err = ThreadCopy(step.CopyB, threadOffsetB, lds, regsB); err != nil {
			return err
		}
		if err = ThreadwiseGemm(step.Gemm, regsA, regsB, c); err != nil {
			return errors.WithMessagef(err, "step k=%d", step.KOffset)
		}
	}
	return nil
}

// ThreadOffsets of one thread into the staged A and B.
type ThreadOffsets struct {
	A, B int
}

// RunThreadwiseBlock executes a threadwise program for every thread, in parallel, and
// returns the C tile of each thread.
func RunThreadwiseBlock(pool *lanepool.Pool, prog *ir.Program, threads []ThreadOffsets, lds *Buffer) ([]*Buffer, error) {
	tiles := make([]*Buffer, len(threads))
	for ii := range tiles {
		var err error
		tiles[ii], err = NewBuffer(prog.AccDType, prog.AccumulatorElements())
		if err != nil {
			return nil, err
		}
	}
	err := pool.Run(len(threads), func(thread int) error {
		return RunThreadwise(prog, threads[thread].A, threads[thread].B, lds, tiles[thread])
	})
	if err != nil {
		return nil, err
	}
	return tiles, nil
}

// MaskedCopy executes a lowered copy from src to dst. Elements clipped by the store
// guards are not written.
func MaskedCopy(c *ir.MaskedCopy, src, dst *Buffer) error {
	if err := src.checkRange("source", c.Load.Offset, c.Load.Length); err != nil {
		return err
	}
	targets, err := threadwise.StoreTargets(&c.Store)
	if err != nil {
		return err
	}
	for _, t := range targets {
		if err = dst.checkRange("destination", t.Offset, 1); err != nil {
			return err
		}
		v := src.At(c.Load.Offset + t.Element)
		switch c.Store.Method {
		case ir.StoreMethodAtomicAdd:
			dst.Set(t.Offset, dst.At(t.Offset)+v)
		default:
			dst.Set(t.Offset, v)
		}
	}
	return nil
}

// Fill executes a lowered fill of dst.
func Fill(f *ir.Fill, dst *Buffer) error {
	if dst.Len() != f.NumElements() {
		return errors.Errorf("emulate: fill of %v needs %d elements, buffer has %d", f.Shape, f.NumElements(), dst.Len())
	}
	for i := range dst.Len() {
		dst.Set(i, f.Value)
	}
	return nil
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gemmlower/pkg/lowering/gather"
	"github.com/gomlx/gemmlower/pkg/lowering/ir"
	"github.com/gomlx/gemmlower/pkg/lowering/tiling"
	"github.com/pkg/errors"
)

// report lowers the block GEMM of cfg and writes the plan to w.
func report(w io.Writer, cfg config) error {
	prog, err := lower(cfg)
	if err != nil {
		return err
	}
	if cfg.Lane >= tiling.WaveSize {
		return errors.Errorf("-lane=%d must be < %d", cfg.Lane, tiling.WaveSize)
	}

	p := prog.Primitive
	fmt.Fprintln(w, titleStyle.Render("Plan"))
	table := newPlanTable(nil, lipgloss.Right, lipgloss.Left)
	table.AddRow(false, "program", prog.ID)
	table.AddRow(false, "dtype", fmt.Sprintf("%s -> %s", prog.DType, prog.AccDType))
	table.AddRow(false, "primitive", p.Instr.String())
	table.AddRow(false, "native shape", fmt.Sprintf("%dx%dx%d", p.M, p.N, p.K))
	table.AddRow(false, "k_base", strconv.Itoa(p.KBase))
	table.AddRow(false, "blocks", fmt.Sprintf("%d input, %d output, %d threads each", p.NumInputBlocks, p.NumOutputBlocks, p.ThreadsPerBlock))
	table.AddRow(false, "repeats", prog.Repeats.String())
	table.AddRow(false, "policy", prog.Policy.String())
	table.AddRow(false, "# steps", humanize.Comma(int64(len(prog.Steps))))
	table.AddRow(false, "# invocations", humanize.Comma(int64(prog.NumInvocations())))
	table.AddRow(false, "accumulators", fmt.Sprintf("%v", prog.Accumulators))
	accBytes := uint64(prog.AccumulatorElements()*prog.AccDType.Size()) * tiling.WaveSize
	table.AddRow(false, "accumulators / wave", fmt.Sprintf("%s elements, %s",
		humanize.Comma(int64(prog.AccumulatorElements()*tiling.WaveSize)), humanize.Bytes(accBytes)))
	table.AddRow(false, "registers / lane", fmt.Sprintf("A=%d, B=%d", prog.RegistersA, prog.RegistersB))
	fmt.Fprintln(w, table.Render())

	fmt.Fprintln(w, titleStyle.Render("Invocations"))
	table = newPlanTable([]string{"Step", "Instr", "Imm", "Offsets (A,B)", "Wave tile", "Accumulators"},
		lipgloss.Right, lipgloss.Left, lipgloss.Left, lipgloss.Center, lipgloss.Center, lipgloss.Left)
	for _, step := range prog.Steps {
		for _, inv := range step.Invocations {
			var imms string
			for ii, imm := range inv.Primitive.Fragments {
				if ii > 0 {
					imms += "; "
				}
				imms += imm.String()
			}
			table.AddRow(inv.OffsetA != 0 || inv.OffsetB != 0,
				fmt.Sprintf("k=%d", step.KOffset),
				inv.Primitive.Instr.String(),
				imms,
				fmt.Sprintf("(%d,%d)", inv.OffsetA, inv.OffsetB),
				fmt.Sprintf("%dx%d", inv.MPerWave, inv.NPerWave),
				fmt.Sprintf("%v", inv.Accumulators))
		}
	}
	fmt.Fprintln(w, table.Render())

	if cfg.Lane >= 0 {
		reportLane(w, prog, cfg)
	}
	if cfg.Dump {
		fmt.Fprintln(w, titleStyle.Render("Program"))
		fmt.Fprint(w, prog.String())
	}
	return nil
}

// reportLane writes the concrete gather transfers of one lane.
func reportLane(w io.Writer, prog *ir.Program, cfg config) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Lane %d", cfg.Lane)))
	table := newPlanTable([]string{"Step", "Operand", "Register", "LDS offset", "Elements"},
		lipgloss.Right, lipgloss.Center, lipgloss.Right, lipgloss.Right, lipgloss.Right)
	for _, step := range prog.Steps {
		for _, g := range []*gather.LaneGather{step.GatherA, step.GatherB} {
			waveOffset := cfg.WaveOffsetA
			if g.Operand == gather.OperandB {
				waveOffset = cfg.WaveOffsetB
			}
			for _, t := range g.Transfers(waveOffset, cfg.Lane) {
				table.AddRow(g.Repeats > 1 && t.Dest >= g.DestRepeatStride,
					fmt.Sprintf("k=%d", step.KOffset),
					g.Operand.String(),
					strconv.Itoa(t.Dest),
					humanize.Comma(int64(t.Source)),
					strconv.Itoa(g.Elements()))
			}
		}
	}
	fmt.Fprintln(w, table.Render())
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// gemmlower lowers a block GEMM described by its flags and prints the resulting plan:
// the selected primitive, the repeats and gather policy, the primitive invocations and,
// optionally, the concrete transfers of one lane or the full textual program.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gemmlower/pkg/lowering/blockgemm"
	"github.com/gomlx/gemmlower/pkg/lowering/ir"
	"github.com/gomlx/gemmlower/pkg/lowering/tiling"
	"github.com/gomlx/gemmlower/pkg/lowering/trace"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagDType    = flag.String("dtype", "f32", "Element type of the staged operands: f32, f16, bf16 or i8.")
	flagM        = flag.Int("m", 128, "M of the block tile.")
	flagN        = flag.Int("n", 128, "N of the block tile.")
	flagK        = flag.Int("k", 8, "K (reduction rows staged) of the block tile.")
	flagMPerWave = flag.Int("m_per_wave", 64, "M of the tile computed by each wave.")
	flagNPerWave = flag.Int("n_per_wave", 64, "N of the tile computed by each wave.")
	flagKPack    = flag.Int("kpack", 1, "Pack factor of the staged buffers. It must be a multiple of the primitive k_base if > 1.")
	flagKStep    = flag.Int("k_step", 0, "Reduction rows per step. 0 for a single step over the whole K.")
	flagLDSA     = flag.Int("lds_a", 0, "Offset of the A segment in the LDS buffer, in elements.")
	flagLDSB     = flag.Int("lds_b", -1, "Offset of the B segment in the LDS buffer, in elements. "+
		"If negative, B is placed right after A.")
	flagLane        = flag.Int("lane", -1, "If >= 0, print the concrete gather transfers of this lane.")
	flagWaveOffsetA = flag.Int("wave_offset_a", 0, "Runtime wave offset into A, in packed vectors, used with -lane.")
	flagWaveOffsetB = flag.Int("wave_offset_b", 0, "Runtime wave offset into B, in packed vectors, used with -lane.")
	flagDump        = flag.Bool("dump", false, "Print the textual dump of the lowered program.")
	flagTraceLevel  = flag.Int("trace_level", 1, "klog verbosity at which lowering trace events are logged (see -v).")
)

// parseDType accepts the short names and the full dtypes names (case-insensitive).
func parseDType(name string) (dtypes.DType, error) {
	switch strings.ToLower(name) {
	case "f32", "float32":
		return dtypes.Float32, nil
	case "f16", "float16":
		return dtypes.Float16, nil
	case "bf16", "bfloat16":
		return dtypes.BFloat16, nil
	case "i8", "int8":
		return dtypes.Int8, nil
	}
	return dtypes.InvalidDType, errors.Errorf("unknown dtype %q, valid values are f32, f16, bf16 or i8", name)
}

// config holds the flag values.
type config struct {
	DType                    dtypes.DType
	Tile                     tiling.TileConfig
	KStep                    int
	LDSOffsetA, LDSOffsetB   int
	Lane                     int
	WaveOffsetA, WaveOffsetB int
	Dump                     bool
	TraceLevel               klog.Level
}

func configFromFlags() config {
	cfg := config{
		DType: must.M1(parseDType(*flagDType)),
		Tile: tiling.TileConfig{
			M: *flagM, N: *flagN, K: *flagK,
			MPerWave: *flagMPerWave, NPerWave: *flagNPerWave,
			KPack: *flagKPack,
		},
		KStep:       *flagKStep,
		LDSOffsetA:  *flagLDSA,
		LDSOffsetB:  *flagLDSB,
		Lane:        *flagLane,
		WaveOffsetA: *flagWaveOffsetA,
		WaveOffsetB: *flagWaveOffsetB,
		Dump:        *flagDump,
		TraceLevel:  klog.Level(*flagTraceLevel),
	}
	if cfg.LDSOffsetB < 0 {
		cfg.LDSOffsetB = cfg.LDSOffsetA + cfg.Tile.K*cfg.Tile.M*cfg.Tile.PackFactor()
	}
	return cfg
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if len(flag.Args()) > 0 {
		klog.Errorf("Unexpected arguments %q. See 'gemmlower -help'.", flag.Args())
		os.Exit(1)
	}

	err := exceptions.TryCatch[error](func() {
		cfg := configFromFlags()
		must.M(report(os.Stdout, cfg))
	})
	if err != nil {
		klog.Fatalf("Failed to lower block GEMM: %+v", err)
	}
}

// lower the block GEMM of cfg, with accumulators matching the selected primitive.
func lower(cfg config) (*ir.Program, error) {
	accumulators, err := blockgemm.Accumulators(cfg.DType, cfg.Tile.MPerWave, cfg.Tile.NPerWave)
	if err != nil {
		return nil, err
	}
	return blockgemm.New().
		WithTracer(trace.Klog{Level: cfg.TraceLevel}).
		WithKStep(cfg.KStep).
		LowerXdlops(blockgemm.XdlopsGemmOp{
			DType:        cfg.DType,
			Tile:         cfg.Tile,
			LDSOffsetA:   cfg.LDSOffsetA,
			LDSOffsetB:   cfg.LDSOffsetB,
			Accumulators: accumulators,
		})
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: gemmlower [flags]\n\n"+
			"Lowers a block GEMM to per-lane gathers and xdlops invocations and prints the plan.\n\n")
		flag.PrintDefaults()
	}
}

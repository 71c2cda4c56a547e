package main

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/cnnlstm/internal/version"
)

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version and host information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			info := version.Resolve()
			fmt.Printf("version:    %s\n", info.Version)
			if info.Commit != "" {
				fmt.Printf("commit:     %s\n", info.Commit)
			}
			if info.BuildTime != "" {
				fmt.Printf("build time: %s\n", info.BuildTime)
			}
			fmt.Printf("go:         %s %s/%s\n", info.GoVersion, runtime.GOOS, runtime.GOARCH)
			fmt.Printf("cpu:        %s\n", cpuid.CPU.BrandName)
			fmt.Printf("cores:      %d physical, %d logical, %d workers\n",
				cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, runtime.GOMAXPROCS(0))
			fmt.Printf("simd:       %s\n", simdFeatures())
			return nil
		},
	}
}

func simdFeatures() string {
	var out []string
	for _, f := range []struct {
		name string
		id   cpuid.FeatureID
	}{
		{"sse4.2", cpuid.SSE42},
		{"avx2", cpuid.AVX2},
		{"fma", cpuid.FMA3},
		{"avx512f", cpuid.AVX512F},
		{"neon", cpuid.ASIMD},
	} {
		if cpuid.CPU.Supports(f.id) {
			out = append(out, f.name)
		}
	}
	if len(out) == 0 {
		return "none"
	}
	return strings.Join(out, " ")
}

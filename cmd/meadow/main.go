// Package main provides the Meadow GP Framework CLI.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/meadow-ml/meadow/autodiff"
	"github.com/meadow-ml/meadow/backend/cpu"
	"github.com/meadow-ml/meadow/kernel"
	"github.com/meadow-ml/meadow/settings"
	"github.com/meadow-ml/meadow/tensor"
)

const version = "v0.0.1-dev"

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return
	}

	switch args[0] {
	case "version":
		fmt.Printf("Meadow GP Framework %s\n", version)
	case "bench":
		if err := bench(args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "bench: %v\n", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("Meadow GP Framework - Lazy Kernel Matrices for Go")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version    Show version")
	fmt.Println("  bench      Compare dense vs checkpointed kernel matvecs")
}

// bench times K(x, x)·v for an RBF kernel, once through full dense
// evaluation and once through the row-chunked checkpointed path, and
// reports throughput and peak block sizes.
func bench(args []string) error {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	points := fs.Int("points", 2048, "number of input points")
	dims := fs.Int("dims", 8, "feature dimensions per point")
	chunk := fs.Int("chunk", 256, "checkpoint chunk size in rows")
	rounds := fs.Int("rounds", 5, "matvec repetitions per mode")
	if err := fs.Parse(args); err != nil {
		return err
	}

	backend := autodiff.New(cpu.New())
	x := tensor.Randn[float64](tensor.Shape{*points, *dims}, backend)
	v := tensor.Randn[float64](tensor.Shape{*points, 1}, backend)
	k := kernel.NewRBF(backend, 1.5, tensor.Float64)

	fullBytes := uint64(*points) * uint64(*points) * 8
	chunkBytes := uint64(*chunk) * uint64(*points) * 8
	fmt.Printf("RBF kernel over %d points (%d dims): dense block %s, chunked block %s\n",
		*points, *dims, humanize.Bytes(fullBytes), humanize.Bytes(chunkBytes))

	run := func(label string, chunkSize int) error {
		restore := settings.SetCheckpointKernelChunkSize(chunkSize)
		defer restore()

		bar := progressbar.Default(int64(*rounds), label)
		start := time.Now()
		for i := 0; i < *rounds; i++ {
			node, err := kernel.NewLazyKernelTensor(x.Raw(), x.Raw(), k, backend)
			if err != nil {
				return err
			}
			if _, err := node.MatMul(v.Raw()); err != nil {
				return err
			}
			if err := bar.Add(1); err != nil {
				return err
			}
		}
		elapsed := time.Since(start)
		fmt.Printf("%s: %d matvecs in %v (%.1f ms each)\n",
			label, *rounds, elapsed.Round(time.Millisecond),
			float64(elapsed.Milliseconds())/float64(*rounds))
		return nil
	}

	if err := run("dense", 0); err != nil {
		return err
	}
	return run("checkpointed", *chunk)
}

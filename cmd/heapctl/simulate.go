package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/gcheap"
	"github.com/joshuapare/heapkit/gcheap/conservative"
	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/vmem"
)

var (
	simOps        int
	simSeed       int64
	simRoots      int
	simBlockSize  int
	simThreshold  int
	simTransitive bool
	simShrink     bool
)

func init() {
	rootCmd.AddCommand(newSimulateCmd())
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a random mutator workload against a collected space",
		Long: `The simulate command allocates cells of random sizes, keeps up to
--roots of them referenced from a simulated stack, and lets the
conservative collector reclaim the rest. With --transitive every new
cell also references the previous one, so whole chains survive.

Example:
  heapctl simulate --ops 100000 --roots 512
  heapctl simulate --seed 7 --transitive --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate()
		},
	}
	cmd.Flags().IntVar(&simOps, "ops", 10000, "Number of allocations")
	cmd.Flags().Int64Var(&simSeed, "seed", 1, "Random seed")
	cmd.Flags().IntVar(&simRoots, "roots", 256, "Maximum stack depth")
	cmd.Flags().IntVar(&simBlockSize, "block-size", gcheap.DefaultBlockSize, "Block size in bytes (power of two)")
	cmd.Flags().IntVar(&simThreshold, "collect-threshold", 1<<20, "Bytes of new blocks between collections")
	cmd.Flags().BoolVar(&simTransitive, "transitive", false, "Scan cell payloads for references")
	cmd.Flags().BoolVar(&simShrink, "shrink", false, "Release empty blocks after each collection")
	return cmd
}

type simResult struct {
	Ops            int     `json:"ops"`
	Seed           int64   `json:"seed"`
	Collections    uint64  `json:"collections"`
	Blocks         int     `json:"blocks"`
	CapacityBytes  int     `json:"capacity_bytes"`
	LiveBytes      int     `json:"live_bytes"`
	LiveCells      int     `json:"live_cells"`
	FastPathAllocs uint64  `json:"fast_path_allocs"`
	SlowPathAllocs uint64  `json:"slow_path_allocs"`
	BlocksMapped   uint64  `json:"blocks_mapped"`
	BlocksReleased uint64  `json:"blocks_released"`
	LastRoots      int     `json:"last_roots"`
	FastPathRatio  float64 `json:"fast_path_ratio"`
	ElapsedMS      int64   `json:"elapsed_ms"`
}

// simulate runs the workload on Go-heap blocks so results do not depend on
// the host's mmap limits.
func simulate(ops int, seed int64, roots, blockSize, threshold int, transitive, shrink bool) (simResult, error) {
	if ops < 0 || roots < 1 {
		return simResult{}, fmt.Errorf("ops must be >= 0 and roots >= 1")
	}

	threads := conservative.NewMachineThreads()
	stack := conservative.NewStack()
	threads.AddCurrentThread("mutator", stack)
	col := &conservative.Collector{Threads: threads, Transitive: transitive, Shrink: shrink}

	sp, err := gcheap.New(gcheap.Options{
		BlockSize:        blockSize,
		Mapper:           vmem.GoHeap(),
		Collector:        col,
		CollectThreshold: threshold,
		RetainedBlocks:   gcheap.DefaultRetainedBlocks,
	})
	if err != nil {
		return simResult{}, err
	}
	defer sp.Close()

	rng := rand.New(rand.NewSource(seed))
	start := time.Now()
	var prev gcheap.Cell
	for i := 0; i < ops; i++ {
		c := sp.Allocate(randomSize(rng, sp.MaxCellSize()))
		if transitive && !prev.IsZero() && c.Size() >= buf.WordSize {
			buf.PutWord(c.Bytes(), prev.Addr())
		}
		prev = c
		if stack.Push(c.Addr()) > roots {
			stack.Truncate(rng.Intn(roots))
		}
	}
	elapsed := time.Since(start)

	st := sp.Stats()
	live := 0
	sp.ForEachCell(func(gcheap.Cell) { live++ })
	res := simResult{
		Ops:            ops,
		Seed:           seed,
		Collections:    st.Collections,
		Blocks:         st.Blocks,
		CapacityBytes:  st.CapacityBytes,
		LiveBytes:      sp.LiveBytes(),
		LiveCells:      live,
		FastPathAllocs: st.FastPathAllocs,
		SlowPathAllocs: st.SlowPathAllocs,
		BlocksMapped:   st.BlocksMapped,
		BlocksReleased: st.BlocksReleased,
		LastRoots:      col.Last().Roots,
		ElapsedMS:      elapsed.Milliseconds(),
	}
	if total := st.FastPathAllocs + st.SlowPathAllocs; total > 0 {
		res.FastPathRatio = float64(st.FastPathAllocs) / float64(total)
	}
	return res, nil
}

// randomSize favours small cells the way object heaps do.
func randomSize(rng *rand.Rand, maxCell int) int {
	if rng.Intn(8) == 0 {
		return 1 + rng.Intn(maxCell)
	}
	return 1 + rng.Intn(min(gcheap.PreciseCutoff, maxCell))
}

func runSimulate() error {
	printVerbose("Simulating %d allocations (seed %d, %d roots)\n", simOps, simSeed, simRoots)

	res, err := simulate(simOps, simSeed, simRoots, simBlockSize, simThreshold, simTransitive, simShrink)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	if jsonOut {
		return printJSON(res)
	}

	printInfo("\nSimulation:\n")
	printInfo("  Allocations: %d (%.1f%% fast path)\n", res.Ops, res.FastPathRatio*100)
	printInfo("  Collections: %d\n", res.Collections)
	printInfo("  Blocks: %d (%s)\n", res.Blocks, formatBytes(res.CapacityBytes))
	printInfo("  Live: %d cells, %s\n", res.LiveCells, formatBytes(res.LiveBytes))
	printInfo("  Blocks mapped/released: %d/%d\n", res.BlocksMapped, res.BlocksReleased)
	printVerbose("  Roots at last collection: %d\n", res.LastRoots)
	printVerbose("  Elapsed: %dms\n", res.ElapsedMS)
	return nil
}

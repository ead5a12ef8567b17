package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/gcheap"
	"github.com/joshuapare/heapkit/internal/vmem"
)

var classesBlockSize int

func init() {
	rootCmd.AddCommand(newClassesCmd())
}

func newClassesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classes",
		Short: "Print the size-class table",
		Long: `The classes command prints every size class of a garbage-collected
space: its cell size, how many cells fit in one block, and how many bytes
of each block are left over.

Example:
  heapctl classes
  heapctl classes --block-size 16384 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClasses()
		},
	}
	cmd.Flags().IntVar(&classesBlockSize, "block-size", gcheap.DefaultBlockSize, "Block size in bytes (power of two)")
	return cmd
}

type classRow struct {
	Index         int    `json:"index"`
	Kind          string `json:"kind"`
	CellSize      int    `json:"cell_size"`
	CellsPerBlock int    `json:"cells_per_block"`
	SlackBytes    int    `json:"slack_bytes"`
}

func classTable(blockSize int) ([]classRow, error) {
	sp, err := gcheap.New(gcheap.Options{BlockSize: blockSize, Mapper: vmem.GoHeap()})
	if err != nil {
		return nil, err
	}
	defer sp.Close()

	var rows []classRow
	for i, sc := range sp.SizeClasses() {
		if sc.CellSize() > sp.MaxCellSize() {
			continue
		}
		kind := "imprecise"
		if sc.IsPrecise() {
			kind = "precise"
		}
		rows = append(rows, classRow{
			Index:         i,
			Kind:          kind,
			CellSize:      sc.CellSize(),
			CellsPerBlock: sc.CellsPerBlock(),
			SlackBytes:    blockSize - sc.CellsPerBlock()*sc.CellSize(),
		})
	}
	return rows, nil
}

func runClasses() error {
	printVerbose("Building size classes for %d-byte blocks\n", classesBlockSize)

	rows, err := classTable(classesBlockSize)
	if err != nil {
		return fmt.Errorf("failed to build size classes: %w", err)
	}

	if jsonOut {
		return printJSON(rows)
	}

	printInfo("\nSize classes (block size %s):\n", formatBytes(classesBlockSize))
	printInfo("  %-5s %-10s %9s %9s %7s\n", "IDX", "KIND", "CELL", "CELLS", "SLACK")
	for _, r := range rows {
		printInfo("  %-5d %-10s %9d %9d %7d\n", r.Index, r.Kind, r.CellSize, r.CellsPerBlock, r.SlackBytes)
	}
	return nil
}

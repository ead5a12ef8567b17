package main

import (
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/bmalloc"
	"github.com/joshuapare/heapkit/gcheap"
	"github.com/joshuapare/heapkit/internal/vmem"
)

const heapkitModule = "github.com/joshuapare/heapkit"

// version is set with -ldflags "-X main.version=...". Builds without it report
// the heapkit module version from the embedded build info.
var version = "dev"

type versionInfo struct {
	Heapctl          string `json:"heapctl"`
	Heapkit          string `json:"heapkit"`
	Go               string `json:"go"`
	Platform         string `json:"platform"`
	PageSize         int    `json:"page_size"`
	BlockSize        int    `json:"block_size"`
	SizeClasses      int    `json:"size_classes"`
	ScavengeInterval string `json:"scavenge_interval"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and allocator build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion() error {
	info := collectVersion(debug.ReadBuildInfo)
	if jsonOut {
		return printJSON(info)
	}
	printInfo("heapctl %s\n", info.Heapctl)
	printInfo("  heapkit:     %s\n", info.Heapkit)
	printInfo("  go:          %s %s\n", info.Go, info.Platform)
	printInfo("  page size:   %s\n", formatBytes(info.PageSize))
	printInfo("  block size:  %s (%d size classes)\n", formatBytes(info.BlockSize), info.SizeClasses)
	printInfo("  scavenger:   every %s\n", info.ScavengeInterval)
	return nil
}

func collectVersion(read func() (*debug.BuildInfo, bool)) versionInfo {
	info := versionInfo{
		Heapctl:          version,
		Heapkit:          "unknown",
		Go:               runtime.Version(),
		Platform:         runtime.GOOS + "/" + runtime.GOARCH,
		PageSize:         vmem.System().PageSize(),
		BlockSize:        gcheap.DefaultBlockSize,
		SizeClasses:      gcheap.NumSizeClasses,
		ScavengeInterval: bmalloc.DefaultScavengerInterval.String(),
	}
	bi, ok := read()
	if !ok {
		return info
	}
	if bi.Main.Path == heapkitModule {
		info.Heapkit = bi.Main.Version
	}
	for _, dep := range bi.Deps {
		if dep.Path != heapkitModule {
			continue
		}
		info.Heapkit = dep.Version
		if dep.Replace != nil {
			info.Heapkit = dep.Replace.Path
			if dep.Replace.Version != "" {
				info.Heapkit += "@" + dep.Replace.Version
			}
		}
	}
	if info.Heapctl == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Heapctl = bi.Main.Version
	}
	return info
}

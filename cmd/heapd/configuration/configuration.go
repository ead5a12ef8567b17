package configuration

import "time"

type Configuration struct {
	HttpAddr         string        `usage:"HTTP address"`
	BlockSize        int           `usage:"gcheap block size in bytes, power of two"`
	CollectThreshold int           `usage:"bytes of new blocks between collections"`
	Transitive       bool          `usage:"scan cell payloads during collection"`
	MiniMode         bool          `usage:"decommit all free bmalloc memory on every scavenge"`
	ScavengeInterval time.Duration `usage:"idle age before free bmalloc pages are decommitted"`
	ShowConfig       bool          `usage:"print config"`
	Version          bool          `usage:"show version and exit"`
}

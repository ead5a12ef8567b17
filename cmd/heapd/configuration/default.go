package configuration

import (
	"github.com/joshuapare/heapkit/bmalloc"
	"github.com/joshuapare/heapkit/gcheap"
)

func Default() Configuration {
	return Configuration{
		HttpAddr:         "127.0.0.1:8180",
		BlockSize:        gcheap.DefaultBlockSize,
		CollectThreshold: gcheap.DefaultCollectThreshold,
		ScavengeInterval: bmalloc.DefaultScavengerInterval,
	}
}

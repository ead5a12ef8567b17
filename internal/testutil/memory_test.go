package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_RequireDisjoint(t *testing.T) {
	spans := []Span{
		{Addr: 0x2000, Size: 16},
		{Addr: 0x1000, Size: 0x1000},
		{Addr: 0x2010, Size: 16},
	}
	RequireDisjoint(t, spans)
	require.Equal(t, uintptr(0x1000), spans[0].Addr)
}

func Test_FillAndRequireFilled(t *testing.T) {
	mem := make([]byte, 64)
	RequireZeroed(t, mem)

	Fill(mem, 0xAB)
	RequireFilled(t, mem, 0xAB)

	s := SpanOf(mem)
	require.Equal(t, 64, s.Size)
	require.Equal(t, s.Addr+64, s.End())
}

package procmod

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleMaps = `55d0c4a00000-55d0c4a02000 r--p 00000000 08:01 393228                     /usr/bin/host
55d0c4a02000-55d0c4a08000 r-xp 00002000 08:01 393228                     /usr/bin/host
7f3a10000000-7f3a10021000 rw-p 00000000 00:00 0
7f3a12000000-7f3a12100000 r--p 00000000 08:01 524301                     /opt/game/bin/client.so
7f3a12100000-7f3a12900000 r-xp 00100000 08:01 524301                     /opt/game/bin/client.so
7f3a12900000-7f3a12a00000 r--p 00900000 08:01 524301                     /opt/game/bin/client.so
7f3a13000000-7f3a13200000 r-xp 00000000 08:01 524302                     /opt/game/bin/engine 2.so (deleted)
7ffd5c9e1000-7ffd5ca02000 rw-p 00000000 00:00 0                          [stack]
`

func TestParseMaps(t *testing.T) {
	maps, err := ParseMaps(strings.NewReader(sampleMaps))
	require.NoError(t, err)
	require.Len(t, maps, 8)

	require.Equal(t, Mapping{
		Start:  0x7f3a12100000,
		End:    0x7f3a12900000,
		Offset: 0x100000,
		Perms:  "r-xp",
		Path:   "/opt/game/bin/client.so",
	}, maps[4])
	require.True(t, maps[4].Executable())
	require.False(t, maps[3].Executable())
	require.Empty(t, maps[2].Path)
	require.Equal(t, "/opt/game/bin/engine 2.so", maps[6].Path)
}

func TestParseMapsBadLine(t *testing.T) {
	_, err := ParseMaps(strings.NewReader("zz-10 r-xp 00000000 08:01 1 /x.so\n"))
	require.Error(t, err)
}

func TestFindLibrary(t *testing.T) {
	maps, err := ParseMaps(strings.NewReader(sampleMaps))
	require.NoError(t, err)

	lib, ok := findLibrary(maps, "client.so")
	require.True(t, ok)
	require.Equal(t, "/opt/game/bin/client.so", lib.Path)
	require.Equal(t, uintptr(0x7f3a12000000), lib.Base)
	require.Equal(t, Range{Start: 0x7f3a12100000, End: 0x7f3a12900000}, lib.Text)
	require.Equal(t, uintptr(0x800000), lib.Text.Size())

	lib, ok = findLibrary(maps, "engine 2.so")
	require.True(t, ok)
	require.Equal(t, uintptr(0x7f3a13000000), lib.Base)

	_, ok = findLibrary(maps, "server.so")
	require.False(t, ok)
	_, ok = findLibrary(maps, "[stack]")
	require.False(t, ok)
}

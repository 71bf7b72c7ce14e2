package playlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glefebvre/livetv/internal/fingerprint"
	"github.com/glefebvre/livetv/internal/models"
)

const mergePlaylist = `#EXTM3U
#EXTINF:-1 tvg-id="dazn1" tvg-name="DAZN 1" group-title="Sports",DAZN 1
acestream://first
#EXTINF:-1 tvg-name="BBC One" group-title="UK",BBC One
http://cdn.example/bbc1.m3u8
#EXTINF:-1 tvg-id="dazn1" tvg-name="DAZN 1 Backup" group-title="Football",DAZN 1 Backup
acestream://second
`

func TestBuildTableMergesByLogicalID(t *testing.T) {
	entries := parse(t, mergePlaylist)
	table := BuildTable(entries, fingerprint.Of([]byte(mergePlaylist)))

	require.Equal(t, 2, table.Len())

	dazn, ok := table.Lookup("livetv:dazn1")
	require.True(t, ok)
	assert.Equal(t, "DAZN 1", dazn.Name)
	assert.Equal(t, "Sports", dazn.GroupTitle)
	assert.Equal(t, "first", dazn.Primary.AceID)
	require.Len(t, dazn.Streams, 2)
	assert.Equal(t, "first", dazn.Streams[0].AceID)
	assert.Equal(t, "second", dazn.Streams[1].AceID)
	assert.Equal(t, "Football", dazn.Streams[1].GroupTitle)
	assert.Equal(t, []string{"Sports", "Football"}, dazn.Groups())

	assert.Equal(t, "livetv:dazn1", table.Channels[0].ID)
	assert.Equal(t, "livetv:bbcone", table.Channels[1].ID)
}

func TestBuildTableIsDeterministic(t *testing.T) {
	fp := fingerprint.Of([]byte(mergePlaylist))
	a := BuildTable(parse(t, mergePlaylist), fp)
	b := BuildTable(parse(t, mergePlaylist), fp)

	assert.Equal(t, a.Channels, b.Channels)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
}

func TestLookupMissingAndByName(t *testing.T) {
	table := BuildTable(parse(t, mergePlaylist), "fp")

	_, ok := table.Lookup("livetv:nope")
	assert.False(t, ok)

	ch, ok := table.LookupName("bbc one")
	require.True(t, ok)
	assert.Equal(t, "livetv:bbcone", ch.ID)
}

func TestEmptyTable(t *testing.T) {
	table := EmptyTable()
	assert.Equal(t, 0, table.Len())
	_, ok := table.Lookup("x")
	assert.False(t, ok)
	assert.Equal(t, []models.Channel(nil), table.Channels)
}

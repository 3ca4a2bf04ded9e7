package statusapi

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasurybot/internal/clockid"
	"treasurybot/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// TestBuild_ChecksumIsStableForIdenticalTimingFields is the checksum
// stability property: two snapshots built from identical timing fields
// must carry the same checksum.
func TestBuild_ChecksumIsStableForIdenticalTimingFields(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SetState("heartbeat_ts", "1000"))
	require.NoError(t, s.InsertRound(store.Round{ID: "r1", Type: store.RoundBuy, Ts: 900, Txs: []string{"sig-1"}, Meta: map[string]any{}}, 900))

	p := NewProjector(s, true, 3600, 7200)
	snap1, err := p.Build()
	require.NoError(t, err)
	snap2, err := p.Build()
	require.NoError(t, err)

	assert.Equal(t, snap1.Checksum, snap2.Checksum)
	assert.Len(t, snap1.Checksum, 16)
}

func TestBuild_ChecksumChangesWhenSafeModeFlips(t *testing.T) {
	s := openTestStore(t)
	p := NewProjector(s, true, 3600, 7200)

	before, err := p.Build()
	require.NoError(t, err)

	require.NoError(t, s.TripSafeMode("test"))
	after, err := p.Build()
	require.NoError(t, err)

	assert.NotEqual(t, before.Checksum, after.Checksum)
}

func TestBuild_BotOnlineReflectsHeartbeatAge(t *testing.T) {
	s := openTestStore(t)
	p := NewProjector(s, true, 3600, 7200)

	snap, err := p.Build()
	require.NoError(t, err)
	assert.False(t, snap.BotOnline, "no heartbeat recorded yet")
	assert.Equal(t, int64(-1), snap.HeartbeatAge)

	require.NoError(t, s.SetState("heartbeat_ts", strconv.FormatInt(clockid.NowUnix(), 10)))
	snap, err = p.Build()
	require.NoError(t, err)
	assert.True(t, snap.BotOnline)
}

func TestBuild_NextBuyTsDerivedFromLastRoundAndInterval(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertRound(store.Round{ID: "r1", Type: store.RoundBuy, Ts: 1000, Meta: map[string]any{}}, 1000))

	p := NewProjector(s, false, 3600, 7200)
	snap, err := p.Build()
	require.NoError(t, err)
	require.NotNil(t, snap.NextBuyTs)
	assert.Equal(t, int64(1000+3600), *snap.NextBuyTs)
	assert.Nil(t, snap.NextRewardTs, "no reward round recorded yet")
}

func TestBuild_LastRewardTxsDefaultsToEmptySliceNotNull(t *testing.T) {
	s := openTestStore(t)
	p := NewProjector(s, false, 3600, 7200)

	snap, err := p.Build()
	require.NoError(t, err)
	assert.NotNil(t, snap.LastRewardTxs)
	assert.Empty(t, snap.LastRewardTxs)
}

package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yigit/chatsphere/internal/pkg/redisx"
)

func TestSharedPresenceAcrossRouters(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := redisx.NewClient(context.Background(), redisx.Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	presence := redisx.NewPresence(rdb, time.Minute)

	members := newFakeMembers()
	members.add(5, 7)
	instanceA := newTestRouter(members, presence)
	instanceB := newTestRouter(members, presence)

	onA := attach(instanceA, 7, 4)
	onB := attach(instanceB, 7, 4)
	instanceA.SwitchChat(context.Background(), onA, 5)
	instanceB.SwitchChat(context.Background(), onB, 5)

	viewers, err := presence.Viewers(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, viewers)

	instanceB.Unregister(onB)
	assert.Equal(t, []int64{7}, instanceA.RoomViewers(5))
	viewers, err = presence.Viewers(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, viewers, "the session on the other instance keeps the user present")

	instanceA.SwitchChat(context.Background(), onA, 0)
	viewers, err = presence.Viewers(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, viewers)
}

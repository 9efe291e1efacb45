package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDirectKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, DirectKey(3, 9), DirectKey(9, 3))
	assert.Equal(t, "3:9", DirectKey(9, 3))
}

func TestOtherMember(t *testing.T) {
	direct := &Chat{Kind: ChatKindDirect, Members: []int64{1, 2}}
	other, ok := direct.OtherMember(1)
	assert.True(t, ok)
	assert.Equal(t, int64(2), other)

	group := &Chat{Kind: ChatKindGroup}
	_, ok = group.OtherMember(1)
	assert.False(t, ok)
}

func TestMessageOrderBreaksTiesByID(t *testing.T) {
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	a := &Message{ID: 1, CreatedAt: at}
	b := &Message{ID: 2, CreatedAt: at}
	c := &Message{ID: 0, CreatedAt: at.Add(time.Microsecond)}

	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.True(t, b.Before(c))
}

func TestRoleCapabilities(t *testing.T) {
	assert.True(t, RoleAdmin.CanPost())
	assert.True(t, RoleMember.CanPost())
	assert.False(t, RoleSubscriber.CanPost())
	assert.True(t, RoleSubscriber.CanRead())
	assert.False(t, MemberRole("owner").Valid())
}

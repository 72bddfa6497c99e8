package ws

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomsMembership(t *testing.T) {
	rooms := NewRooms()
	p := Principal{ConnectionID: "c1", UserID: "u1", Role: RoleSecretary}

	joined := rooms.JoinDefaults("c1", p)
	assert.ElementsMatch(t, joined, rooms.TopicsOf("c1"))

	assert.True(t, rooms.Join("c1", TopicWhatsAppUpdates))
	assert.False(t, rooms.Join("c1", TopicWhatsAppUpdates), "join is idempotent")
	assert.Equal(t, []string{"c1"}, rooms.MembersOf(TopicWhatsAppUpdates))

	assert.True(t, rooms.Leave("c1", TopicWhatsAppUpdates))
	assert.False(t, rooms.Leave("c1", TopicWhatsAppUpdates))
	assert.Empty(t, rooms.MembersOf(TopicWhatsAppUpdates))

	left := rooms.LeaveAll("c1")
	assert.ElementsMatch(t, joined, left)
	assert.Zero(t, rooms.TopicCount())
	assert.Empty(t, rooms.LeaveAll("c1"))
}

func TestRoomsJoinEntities(t *testing.T) {
	rooms := NewRooms()

	t.Run("DuplicatesJoinOnce", func(t *testing.T) {
		result := rooms.JoinEntities("c1", EntityClient, []string{"C1", " C1 ", "C2"}, nil)
		assert.Equal(t, []Topic{"client:C1", "client:C2"}, result.Joined)
		assert.Empty(t, result.Rejected)
	})

	t.Run("RefusalsAreIndependent", func(t *testing.T) {
		allow := func(id string) error {
			switch id {
			case "P2":
				return ErrForbiddenEntity
			case "P3":
				return errors.New("timeout")
			}
			return nil
		}
		result := rooms.JoinEntities("c2", EntityPractice, []string{"P1", "P2", "P3", "??"}, allow)

		assert.Equal(t, []Topic{"practice:P1"}, result.Joined)
		assert.Equal(t, []Rejection{
			{ID: "P2", Reason: RejectForbidden},
			{ID: "P3", Reason: RejectUnavailable},
			{ID: "??", Reason: RejectInvalidID},
		}, result.Rejected)
		assert.False(t, rooms.IsMember("c2", "practice:P2"))
	})

	t.Run("OverflowRejected", func(t *testing.T) {
		ids := make([]string, MaxBatchEntities+2)
		for i := range ids {
			ids[i] = fmt.Sprintf("P%d", i)
		}
		result := rooms.JoinEntities("c4", EntityPractice, ids, nil)

		assert.Len(t, result.Joined, MaxBatchEntities)
		assert.Equal(t, []Rejection{
			{ID: ids[MaxBatchEntities], Reason: RejectBatchLimit},
			{ID: ids[MaxBatchEntities+1], Reason: RejectBatchLimit},
		}, result.Rejected)
		assert.False(t, rooms.IsMember("c4", EntityTopic(EntityPractice, ids[MaxBatchEntities])))
	})

	t.Run("UnknownClass", func(t *testing.T) {
		result := rooms.JoinEntities("c3", EntityClass("invoice"), []string{"I1"}, nil)
		assert.Empty(t, result.Joined)
		assert.Len(t, result.Rejected, 1)
		assert.Empty(t, rooms.TopicsOf("c3"))
	})
}

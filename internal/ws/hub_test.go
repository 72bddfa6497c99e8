package ws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestHubAdmission(t *testing.T) {
	hub := createTestHub(t)

	t.Run("AdmitJoinsDefaultTopicsAndAcks", func(t *testing.T) {
		sink := connect(t, hub, "c1", "u1", "geometra")

		assert.True(t, hub.Presence().IsUserConnected("u1"))
		assert.True(t, hub.Rooms().IsMember("c1", PersonalTopic("u1")))
		assert.True(t, hub.Rooms().IsMember("c1", RoleTopic(RoleGeometra)))

		frames := sink.getFrames()
		require.Len(t, frames, 1)
		ack := gjson.ParseBytes(frames[0])
		assert.Equal(t, "connected", ack.Get("event").String())
		assert.Equal(t, "c1", ack.Get("data.connectionId").String())
		assert.Equal(t, "u1", ack.Get("data.userId").String())
		assert.NotEmpty(t, ack.Get("id").String())
		assert.Positive(t, ack.Get("timestamp").Int())
	})

	t.Run("DuplicateConnectionRefused", func(t *testing.T) {
		err := hub.Admit(Principal{ConnectionID: "c1", UserID: "u1"}, &mockSink{hub: hub, id: "c1"})
		assert.ErrorIs(t, err, ErrAlreadyAdmitted)
		assert.Equal(t, 1, hub.Presence().CountConnected())
	})

	t.Run("PrincipalWithoutUserRefused", func(t *testing.T) {
		err := hub.Admit(Principal{ConnectionID: "c9"}, &mockSink{hub: hub, id: "c9"})
		assert.Error(t, err)
		_, ok := hub.Registry().Get("c9")
		assert.False(t, ok)
	})

	t.Run("CloseRemovesEverything", func(t *testing.T) {
		sink, ok := hub.Registry().sink("c1")
		require.True(t, ok)
		require.NoError(t, sink.Close())

		assert.False(t, hub.Presence().IsUserConnected("u1"))
		assert.Empty(t, hub.Rooms().TopicsOf("c1"))
		assert.Zero(t, hub.Rooms().TopicCount())
		assert.Zero(t, hub.Presence().CountConnected())
	})
}

func TestPersonalTopicReachesEveryConnectionOfUser(t *testing.T) {
	hub := createTestHub(t)
	laptop := connect(t, hub, "laptop", "u1", RoleSecretary)
	phone := connect(t, hub, "phone", "u1", RoleSecretary)
	other := connect(t, hub, "other", "u2", RoleSecretary)

	hub.Dispatcher().NotifyUser(context.Background(), "u1", Notification{Type: "task", Title: "New task"})

	assert.Equal(t, 1, laptop.count(EventNotification))
	assert.Equal(t, 1, phone.count(EventNotification))
	assert.Zero(t, other.count(EventNotification))
}

func TestSlowConsumerIsIsolated(t *testing.T) {
	hub := createTestHub(t)
	slow := connect(t, hub, "slow", "u1", RoleAdmin)
	fast := connect(t, hub, "fast", "u1", RoleAdmin)
	slow.setFull(true)

	hub.Dispatcher().NotifyUser(context.Background(), "u1", Notification{Title: "hello"})
	hub.Dispatcher().NotifyUser(context.Background(), "u1", Notification{Title: "again"})

	assert.Equal(t, 2, fast.count(EventNotification))
	assert.True(t, slow.isClosed())
	_, ok := hub.Registry().Get("slow")
	assert.False(t, ok)
	assert.True(t, hub.Presence().IsUserConnected("u1"))
}

func TestSlowConsumerCloseErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	hub := createTestHub(t, func(o *Options) {
		o.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	})
	broken := connect(t, hub, "broken", "u1", RoleAdmin)
	gone := connect(t, hub, "gone", "u2", RoleAdmin)
	broken.setFull(true)
	broken.closeErr = errors.New("socket reset")
	gone.setFull(true)
	gone.closeErr = ErrClientDisconnected

	hub.Dispatcher().Broadcast(context.Background(), Notification{Title: "hello"})

	assert.True(t, broken.isClosed())
	assert.True(t, gone.isClosed())
	logs := buf.String()
	assert.Contains(t, logs, "Failed to close slow client")
	assert.Contains(t, logs, "socket reset")
	assert.Equal(t, 1, strings.Count(logs, "Failed to close slow client"))
}

func TestPresenceHeartbeat(t *testing.T) {
	store := newMemoryPresence()
	hub := createTestHub(t, func(o *Options) {
		o.PresenceStore = store
		o.PresenceRefresh = 10 * time.Millisecond
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	connect(t, hub, "c1", "u1", RoleGeometra)
	connect(t, hub, "c2", "u1", RoleGeometra)
	connect(t, hub, "c3", "u2", RoleSecretary)

	assert.Eventually(t, func() bool {
		refreshed, _ := store.lastRefresh()
		return assert.ObjectsAreEqual(map[string]int{"u1": 2, "u2": 1}, refreshed)
	}, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return store.onlineCount("u1") == 2 && store.onlineCount("u2") == 1
	}, 2*time.Second, 5*time.Millisecond)

	hub.Release("c3")
	assert.Eventually(t, func() bool {
		refreshed, _ := store.lastRefresh()
		return assert.ObjectsAreEqual(map[string]int{"u1": 2}, refreshed)
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, store.onlineCount("u2"))
}

func TestIsUserConnectedTracksLastConnection(t *testing.T) {
	hub := createTestHub(t)
	a := connect(t, hub, "a", "u1", "")
	b := connect(t, hub, "b", "u1", "")

	require.NoError(t, a.Close())
	assert.True(t, hub.Presence().IsUserConnected("u1"))

	require.NoError(t, b.Close())
	assert.False(t, hub.Presence().IsUserConnected("u1"))

	// second close is a no-op
	require.NoError(t, b.Close())
	assert.Zero(t, hub.Presence().CountConnected())
}

func TestPublishToEmptyTopicIsNoop(t *testing.T) {
	hub := createTestHub(t)
	watcher := connect(t, hub, "w", "u1", RoleGeometra)
	_, err := hub.SubscribeEntities(context.Background(), "w", EntityPractice, []string{"P1"})
	require.NoError(t, err)
	watcher.reset()

	assert.NotPanics(t, func() {
		hub.Dispatcher().PushPracticeUpdate(context.Background(), PracticeUpdate{PracticeID: "P404", Action: "updated"})
		hub.Dispatcher().PushClientUpdate(context.Background(), ClientUpdate{ClientID: "C404", Action: "updated"})
		hub.Dispatcher().Publish(context.Background(), "", SystemStatus{Status: "ok"})
	})
	assert.Empty(t, watcher.events())

	hub.Dispatcher().PushPracticeUpdate(context.Background(), PracticeUpdate{PracticeID: "P1", Action: "updated"})
	assert.Equal(t, []string{"practice:update"}, watcher.events())
}

func TestForceDisconnect(t *testing.T) {
	hub := createTestHub(t)
	a := connect(t, hub, "a", "u1", RoleGeometra)
	b := connect(t, hub, "b", "u1", RoleGeometra)
	keep := connect(t, hub, "keep", "u2", RoleGeometra)
	_, err := hub.SubscribeEntities(context.Background(), "a", EntityClient, []string{"C1", "C2"})
	require.NoError(t, err)

	closed := hub.Presence().ForceDisconnect("u1")

	assert.Equal(t, 2, closed)
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
	assert.False(t, keep.isClosed())
	assert.False(t, hub.Presence().IsUserConnected("u1"))
	assert.Empty(t, hub.Rooms().TopicsOf("a"))
	assert.Empty(t, hub.Rooms().TopicsOf("b"))
	assert.Empty(t, hub.Rooms().MembersOf(EntityTopic(EntityClient, "C1")))
	assert.Equal(t, []string{"keep"}, hub.Rooms().MembersOf(RoleTopic(RoleGeometra)))

	t.Run("UnknownUserIsNoop", func(t *testing.T) {
		assert.Zero(t, hub.Presence().ForceDisconnect("nobody"))
		assert.Equal(t, 1, hub.Presence().CountConnected())
	})
}

func TestBatchSubscribeSkipsMalformedIDs(t *testing.T) {
	hub := createTestHub(t)
	connect(t, hub, "c1", "u1", RoleAdmin)

	var result BatchResult
	require.NotPanics(t, func() {
		var err error
		result, err = hub.SubscribeEntities(context.Background(), "c1", EntityPractice, []string{"P1", "not a valid id!", "P2"})
		require.NoError(t, err)
	})

	assert.ElementsMatch(t, []Topic{"practice:P1", "practice:P2"}, result.Joined)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, RejectInvalidID, result.Rejected[0].Reason)

	var entityTopics []Topic
	for _, topic := range hub.Rooms().TopicsOf("c1") {
		if topic.Kind() == TopicKindEntity {
			entityTopics = append(entityTopics, topic)
		}
	}
	assert.ElementsMatch(t, []Topic{"practice:P1", "practice:P2"}, entityTopics)
}

func TestRoleBroadcastAndWhatsAppScenario(t *testing.T) {
	hub := createTestHub(t)
	a := connect(t, hub, "a", "userA", RoleGeometra)
	b := connect(t, hub, "b", "userB", RoleSecretary)
	c := connect(t, hub, "c", "userC", RoleAdmin)
	_, err := hub.SubscribeEntities(context.Background(), "c", EntityClient, []string{"C1"})
	require.NoError(t, err)
	c.reset()

	ctx := context.Background()
	hub.Dispatcher().NotifyRole(ctx, "GEOMETRA", Notification{Title: "site visit"})
	assert.Equal(t, 1, a.count(EventNotification))
	assert.Zero(t, b.count(EventNotification))
	assert.Zero(t, c.count(EventNotification))

	hub.Dispatcher().PushWhatsAppMessage(ctx, WhatsAppMessage{ID: "m1", ClientID: "C1", From: "+39000", Body: "ciao"})
	assert.Equal(t, 1, a.count(EventWhatsAppMessage))
	assert.Equal(t, 1, b.count(EventWhatsAppMessage))
	// subscribed to C1 and connected: exactly one copy
	assert.Equal(t, 1, c.count(EventWhatsAppMessage))
	assert.Equal(t, "C1", c.last().Get("data.clientId").String())
}

func TestPracticeDeadlineIsGlobal(t *testing.T) {
	hub := createTestHub(t)
	a := connect(t, hub, "a", "userA", RoleGeometra)
	b := connect(t, hub, "b", "userB", RoleSecretary)
	_, err := hub.SubscribeEntities(context.Background(), "a", EntityPractice, []string{"P1"})
	require.NoError(t, err)

	hub.Dispatcher().PushPracticeDeadline(context.Background(), PracticeDeadline{PracticeID: "P1", Title: "Catasto", DaysLeft: 2})

	assert.Equal(t, 1, a.count(EventPracticeDeadline))
	assert.Equal(t, 1, b.count(EventPracticeDeadline))
}

func TestProducerRouting(t *testing.T) {
	hub := createTestHub(t)
	ctx := context.Background()
	admin := connect(t, hub, "admin", "u1", RoleAdmin)
	sec := connect(t, hub, "sec", "u2", RoleSecretary)
	follower := connect(t, hub, "follower", "u3", RoleSecretary)
	require.NoError(t, hub.SubscribeTopic("follower", TopicWhatsAppUpdates))

	t.Run("WhatsAppStatusGoesToUpdatesTopic", func(t *testing.T) {
		hub.Dispatcher().PushWhatsAppStatus(ctx, WhatsAppStatus{MessageID: "m1", Status: "read"})
		assert.Equal(t, 1, follower.count(EventWhatsAppStatus))
		assert.Zero(t, admin.count(EventWhatsAppStatus))
	})

	t.Run("DashboardUpdateByRole", func(t *testing.T) {
		hub.Dispatcher().PushDashboardUpdate(ctx, DashboardUpdate{Section: "stats", Role: "secretary"})
		assert.Zero(t, admin.count(EventDashboardUpdate))
		assert.Equal(t, 1, sec.count(EventDashboardUpdate))
		assert.Equal(t, 1, follower.count(EventDashboardUpdate))
	})

	t.Run("DashboardUpdateWithoutRoleIsGlobal", func(t *testing.T) {
		hub.Dispatcher().PushDashboardUpdate(ctx, DashboardUpdate{Section: "stats"})
		assert.Equal(t, 1, admin.count(EventDashboardUpdate))
		assert.Equal(t, 2, sec.count(EventDashboardUpdate))
	})

	t.Run("EmailAndSystemStatusAreGlobal", func(t *testing.T) {
		hub.Dispatcher().PushEmailReceived(ctx, EmailReceived{ID: "e1", From: "a@b.it", Subject: "Pratica"})
		hub.Dispatcher().PushSystemStatus(ctx, SystemStatus{Status: "degraded"})
		for _, s := range []*mockSink{admin, sec, follower} {
			assert.Equal(t, 1, s.count(EventEmailReceived))
			assert.Equal(t, 1, s.count(EventSystemStatus))
		}
	})

	t.Run("NotifyWithoutTargetIsDropped", func(t *testing.T) {
		hub.Dispatcher().NotifyUser(ctx, "", Notification{Title: "lost"})
		hub.Dispatcher().NotifyRole(ctx, "", Notification{Title: "lost"})
		assert.Zero(t, admin.count(EventNotification))
	})
}

func TestPerConnectionOrderIsPreserved(t *testing.T) {
	hub := createTestHub(t)
	sink := connect(t, hub, "c1", "u1", RoleAdmin)
	sink.reset()

	for i := 0; i < 50; i++ {
		hub.Dispatcher().NotifyUser(context.Background(), "u1", Notification{Title: fmt.Sprintf("n%d", i)})
	}

	frames := sink.getFrames()
	require.Len(t, frames, 50)
	for i, f := range frames {
		assert.Equal(t, fmt.Sprintf("n%d", i), gjson.GetBytes(f, "data.title").String())
	}
}

func TestEntityAuthorization(t *testing.T) {
	var denyAll = AuthorizerFunc(func(_ context.Context, p Principal, class EntityClass, id string) (bool, error) {
		if id == "BROKEN" {
			return false, errors.New("store offline")
		}
		return p.Role == RoleAdmin || id == "P-mine", nil
	})
	hub := createTestHub(t, func(o *Options) { o.Authorizer = denyAll })
	connect(t, hub, "sec", "u2", RoleSecretary)

	result, err := hub.SubscribeEntities(context.Background(), "sec", EntityPractice, []string{"P-mine", "P-other", "BROKEN"})
	require.NoError(t, err)

	assert.Equal(t, []Topic{"practice:P-mine"}, result.Joined)
	reasons := map[string]string{}
	for _, r := range result.Rejected {
		reasons[r.ID] = r.Reason
	}
	assert.Equal(t, map[string]string{"P-other": RejectForbidden, "BROKEN": RejectUnavailable}, reasons)
	assert.False(t, hub.Rooms().IsMember("sec", EntityTopic(EntityPractice, "P-other")))

	t.Run("UnknownConnection", func(t *testing.T) {
		_, err := hub.SubscribeEntities(context.Background(), "ghost", EntityPractice, []string{"P1"})
		assert.ErrorIs(t, err, ErrNotAdmitted)
		assert.Empty(t, hub.Rooms().TopicsOf("ghost"))
	})
}

func TestTypingRelayExcludesSender(t *testing.T) {
	hub := createTestHub(t)
	ctx := context.Background()
	sender := connect(t, hub, "s", "u1", RoleAdmin)
	peer := connect(t, hub, "p", "u2", RoleAdmin)
	bystander := connect(t, hub, "x", "u3", RoleAdmin)
	for _, id := range []string{"s", "p"} {
		_, err := hub.SubscribeEntities(ctx, id, EntityClient, []string{"C1"})
		require.NoError(t, err)
	}

	require.NoError(t, hub.RelayTyping(ctx, "s", "C1", true))

	assert.Zero(t, sender.count(EventWhatsAppTyping))
	assert.Zero(t, bystander.count(EventWhatsAppTyping))
	require.Equal(t, 1, peer.count(EventWhatsAppTyping))
	assert.Equal(t, "u1", peer.last().Get("data.userId").String())
	assert.True(t, peer.last().Get("data.isTyping").Bool())

	assert.ErrorIs(t, hub.RelayTyping(ctx, "s", "bad id", true), ErrInvalidSubscription)
}

type recordingRelay struct {
	mu       sync.Mutex
	messages []RelayMessage
}

func (r *recordingRelay) Forward(msg RelayMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func TestRelayForwarding(t *testing.T) {
	relay := &recordingRelay{}
	hub := createTestHub(t, func(o *Options) { o.Relay = relay })
	ctx := context.Background()
	sink := connect(t, hub, "c1", "u1", RoleAdmin)

	hub.Dispatcher().NotifyRole(ctx, RoleAdmin, Notification{Title: "hi"})
	hub.Dispatcher().SendTo("c1", Pong{})

	require.Len(t, relay.messages, 1, "replies are never relayed")
	msg := relay.messages[0]
	assert.Equal(t, []Topic{RoleTopic(RoleAdmin)}, msg.Topics)
	assert.False(t, msg.All)
	assert.Equal(t, "notification", gjson.GetBytes(msg.Frame, "event").String())

	t.Run("DeliverRelayedReachesLocalMembers", func(t *testing.T) {
		sink.reset()
		hub.Dispatcher().DeliverRelayed(msg)
		assert.Equal(t, []string{"notification"}, sink.events())
		assert.Len(t, relay.messages, 1, "relayed frames are not forwarded again")
	})
}

func TestConcurrentLifecycle(t *testing.T) {
	hub := createTestHub(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := fmt.Sprintf("c%d", i)
			userID := fmt.Sprintf("u%d", i%10)
			sink := &mockSink{hub: hub, id: connID}
			err := hub.Admit(Principal{ConnectionID: connID, UserID: userID, Role: RoleGeometra}, sink)
			if errors.Is(err, ErrClientDisconnected) {
				// evicted by a concurrent ForceDisconnect while joining
				return
			}
			if err != nil {
				t.Errorf("admit %s: %v", connID, err)
				return
			}
			hub.SubscribeEntities(ctx, connID, EntityPractice, []string{"P1", fmt.Sprintf("P%d", i)})
			hub.Dispatcher().PushPracticeUpdate(ctx, PracticeUpdate{PracticeID: "P1", Action: "touched"})
			hub.Dispatcher().NotifyRole(ctx, RoleGeometra, Notification{Title: "ping"})
			if i%3 == 0 {
				hub.Presence().ForceDisconnect(userID)
			}
			sink.Close()
		}(i)
	}
	wg.Wait()

	assert.Zero(t, hub.Presence().CountConnected())
	assert.Zero(t, hub.Rooms().TopicCount())
	assert.Empty(t, hub.Presence().ConnectedUsers())
}

func TestShutdownClosesAllConnections(t *testing.T) {
	hub := createTestHub(t)
	sinks := []*mockSink{
		connect(t, hub, "a", "u1", RoleAdmin),
		connect(t, hub, "b", "u2", RoleSecretary),
	}

	hub.Shutdown()

	for _, s := range sinks {
		assert.True(t, s.isClosed())
	}
	assert.Zero(t, hub.Presence().CountConnected())
}

func TestPresenceSnapshot(t *testing.T) {
	hub := createTestHub(t)
	connect(t, hub, "a", "u2", RoleAdmin)
	connect(t, hub, "b", "u1", RoleSecretary)
	connect(t, hub, "c", "u1", RoleSecretary)

	assert.Equal(t, []string{"u1", "u2"}, hub.Presence().ConnectedUsers())

	conns := hub.Presence().Connections("u1")
	require.Len(t, conns, 2)
	ids := []string{conns[0].ConnectionID, conns[1].ConnectionID}
	sort.Strings(ids)
	assert.Equal(t, []string{"b", "c"}, ids)
	assert.Equal(t, []Topic{RoleTopic(RoleSecretary), PersonalTopic("u1")}, conns[0].Topics)

	assert.Len(t, hub.Presence().Snapshot(), 3)
	assert.Len(t, hub.Presence().ListConnected(), 3)
}

package realtime_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/chatnest/internal/realtime"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func newHub(opts realtime.HubOptions) *realtime.Hub {
	return realtime.NewHub(logs.GetLoggerFromLevel(slog.LevelDebug), opts)
}

func defaultHubOptions() realtime.HubOptions {
	return realtime.HubOptions{
		EchoToSender:     true,
		MembershipShards: 4,
		Presence:         realtime.PresenceOptions{KeepAwayOnDisconnect: true},
	}
}

// connect opens and authenticates a connection backed by a fresh queue.
func connect(t *testing.T, hub *realtime.Hub, id realtime.ConnectionID, user realtime.UserID) *realtime.Queue {
	q := realtime.NewQueue(64, realtime.OverflowDisconnect)
	require.NoError(t, hub.Connect(id, q))
	require.NoError(t, hub.Authenticate(id, user))
	return q
}

func ofType(events []realtime.Event, typ realtime.EventType) []realtime.Event {
	return lo.Filter(events, func(ev realtime.Event, _ int) bool { return ev.Type == typ })
}

func TestHub_Message_Reaches_Room(t *testing.T) {
	req := require.New(t)
	hub := newHub(defaultHubOptions())

	// Given A (U1) and B (U2) in room R
	a := connect(t, hub, "A", "U1")
	b := connect(t, hub, "B", "U2")
	outsider := connect(t, hub, "C", "U3")
	req.NoError(hub.Join("A", "R"))
	req.NoError(hub.Join("B", "R"))
	a.Drain()
	b.Drain()
	outsider.Drain()

	// When A sends a message
	payload := json.RawMessage(`{"text":"hi"}`)
	req.NoError(hub.Message("A", "R", payload))

	// Then B receives it exactly once, attributed to U1
	got := ofType(b.Drain(), realtime.EventReceiveMessage)
	req.Len(got, 1)
	req.Equal(realtime.RoomID("R"), got[0].RoomID)
	req.Equal(realtime.UserID("U1"), got[0].UserID)
	req.JSONEq(`{"text":"hi"}`, string(got[0].Payload))

	// And the sender gets its echo while the outsider gets nothing
	req.Len(ofType(a.Drain(), realtime.EventReceiveMessage), 1)
	req.Empty(outsider.Drain())
}

func TestHub_Message_Without_Echo(t *testing.T) {
	req := require.New(t)
	opts := defaultHubOptions()
	opts.EchoToSender = false
	hub := newHub(opts)

	a := connect(t, hub, "A", "U1")
	b := connect(t, hub, "B", "U2")
	req.NoError(hub.Join("A", "R"))
	req.NoError(hub.Join("B", "R"))
	a.Drain()
	b.Drain()

	req.NoError(hub.Message("A", "R", json.RawMessage(`"x"`)))

	req.Empty(ofType(a.Drain(), realtime.EventReceiveMessage))
	req.Len(ofType(b.Drain(), realtime.EventReceiveMessage), 1)
}

func TestHub_Message_Requires_Subscription(t *testing.T) {
	req := require.New(t)
	hub := newHub(defaultHubOptions())
	connect(t, hub, "A", "U1")

	req.ErrorIs(hub.Message("A", "R", json.RawMessage(`"x"`)), realtime.ErrNotSubscribed)
	req.ErrorIs(hub.MarkRead("A", "R", "m1"), realtime.ErrNotSubscribed)
}

func TestHub_Unauthenticated_Connection_Is_Rejected(t *testing.T) {
	req := require.New(t)
	hub := newHub(defaultHubOptions())
	req.NoError(hub.Connect("A", realtime.NewQueue(4, realtime.OverflowDisconnect)))

	req.ErrorIs(hub.Join("A", "R"), realtime.ErrUnknownConnection)
	req.ErrorIs(hub.Message("A", "R", nil), realtime.ErrUnknownConnection)
	req.ErrorIs(hub.Typing("A", "R", true), realtime.ErrUnknownConnection)
	req.ErrorIs(hub.SetStatus("A", realtime.StatusAway), realtime.ErrUnknownConnection)
	req.ErrorIs(hub.Join("ghost", "R"), realtime.ErrUnknownConnection)
	req.ErrorIs(hub.Connect("A", realtime.NewQueue(4, realtime.OverflowDisconnect)), realtime.ErrAlreadyRegistered)
}

func TestHub_Authenticate_Twice_Fails(t *testing.T) {
	req := require.New(t)
	hub := newHub(defaultHubOptions())
	connect(t, hub, "A", "U1")

	req.ErrorIs(hub.Authenticate("A", "U2"), realtime.ErrAlreadyRegistered)
	user, _ := hub.Registry().LookupUser("A")
	req.Equal(realtime.UserID("U1"), user)
}

func TestHub_Authenticate_Sends_Online_Snapshot(t *testing.T) {
	req := require.New(t)
	hub := newHub(defaultHubOptions())
	connect(t, hub, "A", "U1")

	b := connect(t, hub, "B", "U2")

	snapshots := ofType(b.Drain(), realtime.EventPresenceSnapshot)
	req.Len(snapshots, 1)
	req.ElementsMatch([]realtime.UserID{"U1", "U2"}, snapshots[0].Users)
}

func TestHub_Presence_Transitions_Are_Broadcast(t *testing.T) {
	req := require.New(t)
	hub := newHub(defaultHubOptions())
	watcher := connect(t, hub, "W", "watcher")
	watcher.Drain()

	// When U1 connects two devices and closes both
	connect(t, hub, "phone", "U1")
	connect(t, hub, "laptop", "U1")
	req.NoError(hub.Disconnect("phone"))
	req.NoError(hub.Disconnect("laptop"))

	// Then the watcher sees one online and one offline
	changes := ofType(watcher.Drain(), realtime.EventPresenceChanged)
	req.Len(changes, 2)
	req.Equal(realtime.StatusOnline, changes[0].Status)
	req.Equal(realtime.StatusOffline, changes[1].Status)
	req.Equal(realtime.UserID("U1"), changes[1].UserID)
}

func TestHub_SetStatus_Away_Is_Broadcast(t *testing.T) {
	req := require.New(t)
	hub := newHub(defaultHubOptions())
	watcher := connect(t, hub, "W", "watcher")
	connect(t, hub, "A", "U1")
	watcher.Drain()

	req.NoError(hub.SetStatus("A", realtime.StatusAway))
	req.NoError(hub.SetStatus("A", realtime.StatusAway))
	req.ErrorIs(hub.SetStatus("A", realtime.Status("busy")), realtime.ErrInvalidStatus)

	changes := ofType(watcher.Drain(), realtime.EventPresenceChanged)
	req.Len(changes, 1)
	req.Equal(realtime.StatusAway, changes[0].Status)
	req.Equal(realtime.StatusAway, hub.Presence().CurrentStatus("U1"))
}

func TestHub_Disconnect_Cascade(t *testing.T) {
	req := require.New(t)
	hub := newHub(defaultHubOptions())

	// Given A is in two rooms with B
	a := connect(t, hub, "A", "U1")
	b := connect(t, hub, "B", "U2")
	for _, room := range []realtime.RoomID{"R1", "R2"} {
		req.NoError(hub.Join("A", room))
		req.NoError(hub.Join("B", room))
	}
	req.NoError(hub.Typing("A", "R1", true))
	a.Drain()
	b.Drain()

	// When A disconnects
	req.NoError(hub.Disconnect("A"))

	// Then A is gone from every table and its outbox is closed
	_, ok := hub.Registry().LookupUser("A")
	req.False(ok)
	req.Empty(hub.Membership().Rooms("A"))
	req.Equal([]realtime.ConnectionID{"B"}, hub.Membership().Subscribers("R1"))
	req.Empty(hub.TypingCoordinator().ActiveTypists("R1"))
	select {
	case <-a.Done():
	default:
		req.Fail("outbox not closed")
	}

	// And B saw the typing stop and the offline transition
	events := b.Drain()
	stops := ofType(events, realtime.EventTypingChanged)
	req.Len(stops, 1)
	req.False(stops[0].IsTyping)
	offline := ofType(events, realtime.EventPresenceChanged)
	req.Len(offline, 1)
	req.Equal(realtime.StatusOffline, offline[0].Status)

	// And later traffic never reaches A
	req.NoError(hub.Message("B", "R1", json.RawMessage(`"bye"`)))
	req.Zero(a.Len())
	req.ErrorIs(hub.Disconnect("A"), realtime.ErrUnknownConnection)
	req.Equal(1, hub.Sessions())
}

func TestHub_Typing_Broadcast_And_Leave(t *testing.T) {
	req := require.New(t)
	hub := newHub(defaultHubOptions())

	phone := connect(t, hub, "phone", "U1")
	laptop := connect(t, hub, "laptop", "U1")
	b := connect(t, hub, "B", "U2")
	for _, id := range []realtime.ConnectionID{"phone", "laptop", "B"} {
		req.NoError(hub.Join(id, "R"))
	}
	phone.Drain()
	laptop.Drain()
	b.Drain()

	// Typing in a room the connection has not joined is ignored
	req.NoError(hub.Typing("B", "elsewhere", true))
	req.Empty(b.Drain())

	// When U1 types and refreshes, the room hears one start
	req.NoError(hub.Typing("phone", "R", true))
	req.NoError(hub.Typing("laptop", "R", true))
	starts := ofType(b.Drain(), realtime.EventTypingChanged)
	req.Len(starts, 1)
	req.True(starts[0].IsTyping)

	// Leaving from one device keeps the entry while another device remains
	req.NoError(hub.Leave("phone", "R"))
	req.Equal([]realtime.UserID{"U1"}, hub.TypingCoordinator().ActiveTypists("R"))

	// Leaving from the last device stops it
	req.NoError(hub.Leave("laptop", "R"))
	req.Empty(hub.TypingCoordinator().ActiveTypists("R"))
	stops := ofType(b.Drain(), realtime.EventTypingChanged)
	req.Len(stops, 1)
	req.False(stops[0].IsTyping)

	// Leaving again is a no-op
	req.NoError(hub.Leave("laptop", "R"))
}

func TestHub_Typing_Expires(t *testing.T) {
	req := require.New(t)
	clock := newFakeClock()
	opts := defaultHubOptions()
	opts.Typing = realtime.TypingOptions{TTL: 2 * time.Second, Clock: clock.Now}
	hub := newHub(opts)

	connect(t, hub, "A", "U1")
	b := connect(t, hub, "B", "U2")
	req.NoError(hub.Join("A", "R"))
	req.NoError(hub.Join("B", "R"))
	req.NoError(hub.Typing("A", "R", true))
	b.Drain()

	clock.Advance(3 * time.Second)
	hub.TypingCoordinator().Sweep()

	stops := ofType(b.Drain(), realtime.EventTypingChanged)
	req.Len(stops, 1)
	req.False(stops[0].IsTyping)
	req.Equal(realtime.UserID("U1"), stops[0].UserID)
}

func TestHub_MarkRead(t *testing.T) {
	req := require.New(t)
	hub := newHub(defaultHubOptions())
	connect(t, hub, "A", "U1")
	b := connect(t, hub, "B", "U2")
	req.NoError(hub.Join("A", "R"))
	req.NoError(hub.Join("B", "R"))
	b.Drain()

	req.NoError(hub.MarkRead("A", "R", "m-42"))

	reads := ofType(b.Drain(), realtime.EventMessageRead)
	req.Len(reads, 1)
	req.Equal("m-42", reads[0].MessageID)
	req.Equal(realtime.UserID("U1"), reads[0].UserID)
}

func TestHub_RoomCreated_Reaches_Participants(t *testing.T) {
	req := require.New(t)
	hub := newHub(defaultHubOptions())
	a1 := connect(t, hub, "a1", "alice")
	a2 := connect(t, hub, "a2", "alice")
	b := connect(t, hub, "b", "bob")
	c := connect(t, hub, "c", "carol")
	for _, q := range []*realtime.Queue{a1, a2, b, c} {
		q.Drain()
	}

	n := hub.RoomCreated(json.RawMessage(`{"id":"R9"}`), []realtime.UserID{"alice", "bob", "alice", "offline-user"})

	req.Equal(3, n)
	for _, q := range []*realtime.Queue{a1, a2, b} {
		created := ofType(q.Drain(), realtime.EventRoomCreated)
		req.Len(created, 1)
		req.JSONEq(`{"id":"R9"}`, string(created[0].Payload))
	}
	req.Empty(c.Drain())
}

func TestHub_Full_Outbox_Evicts_Connection(t *testing.T) {
	req := require.New(t)
	hub := newHub(defaultHubOptions())

	fast := connect(t, hub, "fast", "U2")
	req.NoError(hub.Join("fast", "R"))

	// Given a slow consumer whose outbox is already full
	slow := realtime.NewQueue(2, realtime.OverflowDisconnect)
	req.NoError(hub.Connect("slow", slow))
	req.NoError(hub.Authenticate("slow", "U1"))
	req.NoError(hub.Join("slow", "R"))
	req.Equal(2, slow.Len())
	fast.Drain()

	// When more events arrive than it can hold
	for i := 0; i < 3; i++ {
		req.NoError(hub.Message("fast", "R", json.RawMessage(fmt.Sprintf("%d", i))))
	}

	// Then it is disconnected and the fast consumer is unaffected
	req.Eventually(func() bool {
		_, ok := hub.Registry().LookupUser("slow")
		return !ok
	}, time.Second, 5*time.Millisecond)
	req.Eventually(func() bool { return hub.Sessions() == 1 }, time.Second, 5*time.Millisecond)
	req.Len(ofType(fast.Drain(), realtime.EventReceiveMessage), 3)
	req.Equal([]realtime.ConnectionID{"fast"}, hub.Membership().Subscribers("R"))
}

func TestHub_Run_Stops_With_Context(t *testing.T) {
	hub := newHub(defaultHubOptions())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
}

func TestHub_Concurrent_Sessions_Leave_No_Residue(t *testing.T) {
	req := require.New(t)
	hub := newHub(defaultHubOptions())
	watcher := realtime.NewQueue(100000, realtime.OverflowDropOldest)
	req.NoError(hub.Connect("watcher", watcher))
	req.NoError(hub.Authenticate("watcher", "watcher"))
	req.NoError(hub.Join("watcher", "lobby"))

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := realtime.ConnectionID(fmt.Sprintf("c%d", i))
			user := realtime.UserID(fmt.Sprintf("u%d", i%10))
			q := realtime.NewQueue(1024, realtime.OverflowDropOldest)
			if err := hub.Connect(id, q); err != nil {
				t.Error(err)
				return
			}
			if err := hub.Authenticate(id, user); err != nil {
				t.Error(err)
				return
			}
			room := realtime.RoomID(fmt.Sprintf("r%d", i%5))
			_ = hub.Join(id, room)
			_ = hub.Join(id, "lobby")
			_ = hub.Typing(id, room, true)
			_ = hub.Message(id, "lobby", json.RawMessage(`"hello"`))
			_ = hub.Message(id, room, json.RawMessage(`"hi"`))
			_ = hub.Disconnect(id)
		}(i)
	}
	wg.Wait()

	req.Equal(1, hub.Registry().Len())
	req.Equal([]realtime.ConnectionID{"watcher"}, hub.Membership().Subscribers("lobby"))
	for r := 0; r < 5; r++ {
		room := realtime.RoomID(fmt.Sprintf("r%d", r))
		req.Empty(hub.Membership().Subscribers(room))
		req.Empty(hub.TypingCoordinator().ActiveTypists(room))
	}
	for u := 0; u < 10; u++ {
		req.Equal(realtime.StatusOffline, hub.Presence().CurrentStatus(realtime.UserID(fmt.Sprintf("u%d", u))))
	}
	// Only the watcher still has a presence entry
	req.Equal(1, hub.Presence().Len())
}

func TestHub_Disconnect_Ends_Typing_In_Rooms_The_User_Left(t *testing.T) {
	req := require.New(t)
	hub := newHub(defaultHubOptions())

	// Given U1 has a phone in R and a laptop outside it
	connect(t, hub, "phone", "U1")
	connect(t, hub, "laptop", "U1")
	b := connect(t, hub, "B", "U2")
	req.NoError(hub.Join("phone", "R"))
	req.NoError(hub.Join("B", "R"))
	req.NoError(hub.Join("laptop", "other"))
	req.NoError(hub.Typing("phone", "R", true))
	req.NoError(hub.Typing("laptop", "other", true))
	b.Drain()

	// When the phone disconnects
	req.NoError(hub.Disconnect("phone"))

	// Then U1 stops typing in R right away, but not in the room the laptop is in
	req.Equal([]realtime.ConnectionID{"B"}, hub.Membership().Subscribers("R"))
	req.Empty(hub.TypingCoordinator().ActiveTypists("R"))
	req.Equal([]realtime.UserID{"U1"}, hub.TypingCoordinator().ActiveTypists("other"))
	stops := ofType(b.Drain(), realtime.EventTypingChanged)
	req.Len(stops, 1)
	req.False(stops[0].IsTyping)
	req.Equal(realtime.RoomID("R"), stops[0].RoomID)
}

func TestHub_Disconnect_Keeps_Typing_While_Another_Device_Is_In_The_Room(t *testing.T) {
	req := require.New(t)
	hub := newHub(defaultHubOptions())

	connect(t, hub, "phone", "U1")
	connect(t, hub, "laptop", "U1")
	b := connect(t, hub, "B", "U2")
	for _, id := range []realtime.ConnectionID{"phone", "laptop", "B"} {
		req.NoError(hub.Join(id, "R"))
	}
	req.NoError(hub.Typing("phone", "R", true))
	b.Drain()

	req.NoError(hub.Disconnect("phone"))

	req.Equal([]realtime.UserID{"U1"}, hub.TypingCoordinator().ActiveTypists("R"))
	req.Empty(ofType(b.Drain(), realtime.EventTypingChanged))
}

func TestHub_Snapshot_Includes_Away_Users(t *testing.T) {
	req := require.New(t)
	hub := newHub(defaultHubOptions())

	// Given U1 online, U2 away and U4 appearing offline
	connect(t, hub, "A", "U1")
	connect(t, hub, "B", "U2")
	connect(t, hub, "D", "U4")
	req.NoError(hub.SetStatus("B", realtime.StatusAway))
	req.NoError(hub.SetStatus("D", realtime.StatusOffline))

	// When U3 connects
	c := connect(t, hub, "C", "U3")

	// Then the online list is followed by U2's away status only
	events := c.Drain()
	_, at, ok := lo.FindIndexOf(events, func(ev realtime.Event) bool {
		return ev.Type == realtime.EventPresenceSnapshot
	})
	req.True(ok)
	req.ElementsMatch([]realtime.UserID{"U1", "U3"}, events[at].Users)

	after := events[at+1:]
	req.Len(after, 1)
	req.Equal(realtime.EventPresenceChanged, after[0].Type)
	req.Equal(realtime.UserID("U2"), after[0].UserID)
	req.Equal(realtime.StatusAway, after[0].Status)
}

func TestHub_Room_Events_Keep_Call_Order(t *testing.T) {
	req := require.New(t)
	opts := defaultHubOptions()
	opts.EchoToSender = false
	hub := newHub(opts)

	// Given a sender and three subscribers in R
	connect(t, hub, "sender", "U0")
	req.NoError(hub.Join("sender", "R"))
	subscribers := make([]*realtime.Queue, 3)
	for i := range subscribers {
		id := realtime.ConnectionID(fmt.Sprintf("s%d", i))
		subscribers[i] = connect(t, hub, id, realtime.UserID(fmt.Sprintf("U%d", i+1)))
		req.NoError(hub.Join(id, "R"))
	}

	// And unrelated senders in their own rooms
	noise := make([]realtime.ConnectionID, 4)
	for i := range noise {
		noise[i] = realtime.ConnectionID(fmt.Sprintf("n%d", i))
		req.NoError(hub.Connect(noise[i], realtime.NewQueue(1024, realtime.OverflowDropOldest)))
		req.NoError(hub.Authenticate(noise[i], realtime.UserID(fmt.Sprintf("noise%d", i))))
		req.NoError(hub.Join(noise[i], realtime.RoomID(fmt.Sprintf("N%d", i))))
	}
	for _, q := range subscribers {
		q.Drain()
	}

	// When the sender emits a message, a read receipt and more messages while
	// the others keep their rooms busy
	var wg sync.WaitGroup
	for i, id := range noise {
		wg.Add(1)
		go func(id realtime.ConnectionID, room realtime.RoomID) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = hub.Message(id, room, json.RawMessage(`"noise"`))
			}
		}(id, realtime.RoomID(fmt.Sprintf("N%d", i)))
	}

	want := []string{"msg:0", "read:m0"}
	req.NoError(hub.Message("sender", "R", json.RawMessage(`"m0"`)))
	req.NoError(hub.MarkRead("sender", "R", "m0"))
	for i := 1; i <= 8; i++ {
		req.NoError(hub.Message("sender", "R", json.RawMessage(fmt.Sprintf(`"m%d"`, i))))
		want = append(want, fmt.Sprintf("msg:%d", i))
	}
	wg.Wait()

	// Then every subscriber sees them exactly in call order
	for i, q := range subscribers {
		got := lo.FilterMap(q.Drain(), func(ev realtime.Event, _ int) (string, bool) {
			switch ev.Type {
			case realtime.EventReceiveMessage:
				var m string
				_ = json.Unmarshal(ev.Payload, &m)
				return "msg:" + m[1:], true
			case realtime.EventMessageRead:
				return "read:" + ev.MessageID, true
			}
			return "", false
		})
		req.Equal(want, got, "subscriber %d", i)
	}
}

func TestHub_Presence_Forgets_Users_After_Last_Disconnect(t *testing.T) {
	req := require.New(t)
	hub := newHub(defaultHubOptions())
	connect(t, hub, "W", "watcher")

	// A user who simply leaves is forgotten
	connect(t, hub, "A", "U1")
	req.NoError(hub.Disconnect("A"))
	req.Equal(1, hub.Presence().Len())

	// A user who stays away across the disconnect is kept
	connect(t, hub, "B", "U2")
	req.NoError(hub.SetStatus("B", realtime.StatusAway))
	req.NoError(hub.Disconnect("B"))
	req.Equal(2, hub.Presence().Len())
	req.Equal(realtime.StatusAway, hub.Presence().CurrentStatus("U2"))

	// And a forgotten user comes back online normally
	connect(t, hub, "A2", "U1")
	req.Equal(realtime.StatusOnline, hub.Presence().CurrentStatus("U1"))
}

package realtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMembership_Join_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	m := NewMembership(4)

	m.Join("r1", "c1")
	m.Join("r1", "c1")

	req.Equal([]ConnectionID{"c1"}, m.Subscribers("r1"))
	req.Equal([]RoomID{"r1"}, m.Rooms("c1"))
}

func TestMembership_Leave_Non_Member_Is_Noop(t *testing.T) {
	req := require.New(t)
	m := NewMembership(4)
	m.Join("r1", "c1")

	m.Leave("r1", "c2")
	m.Leave("r2", "c1")

	req.Equal([]ConnectionID{"c1"}, m.Subscribers("r1"))
	req.True(m.IsMember("r1", "c1"))
}

func TestMembership_Leave(t *testing.T) {
	req := require.New(t)
	m := NewMembership(4)
	m.Join("r1", "c1")
	m.Join("r1", "c2")

	m.Leave("r1", "c1")

	req.Equal([]ConnectionID{"c2"}, m.Subscribers("r1"))
	req.False(m.IsMember("r1", "c1"))
	req.Empty(m.Rooms("c1"))
}

func TestMembership_LeaveAll(t *testing.T) {
	req := require.New(t)
	m := NewMembership(4)

	// Given a connection in three rooms sharing one of them
	m.Join("r1", "c1")
	m.Join("r2", "c1")
	m.Join("r3", "c1")
	m.Join("r1", "c2")

	// When it leaves everything
	rooms := m.LeaveAll("c1")

	// Then it is gone from every room and the other member stays
	req.ElementsMatch([]RoomID{"r1", "r2", "r3"}, rooms)
	for _, room := range rooms {
		req.False(m.IsMember(room, "c1"))
	}
	req.Equal([]ConnectionID{"c2"}, m.Subscribers("r1"))
	req.Empty(m.Subscribers("r2"))
	req.Empty(m.LeaveAll("c1"))
}

func TestMembership_Emptied_Room_Can_Be_Rejoined(t *testing.T) {
	req := require.New(t)
	m := NewMembership(4)
	m.Join("r1", "c1")

	// When its last member leaves, the room is simply empty
	m.Leave("r1", "c1")
	req.Empty(m.Subscribers("r1"))
	req.False(m.IsMember("r1", "c1"))

	// Then joining again needs no recreation
	m.Join("r1", "c2")
	req.Equal([]ConnectionID{"c2"}, m.Subscribers("r1"))
	req.Equal([]RoomID{"r1"}, m.Rooms("c2"))
}

func TestMembership_Concurrent_Joins_Across_Shards(t *testing.T) {
	req := require.New(t)
	m := NewMembership(8)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := ConnectionID(fmt.Sprintf("c%d", i))
			for r := 0; r < 10; r++ {
				m.Join(RoomID(fmt.Sprintf("r%d", r)), conn)
			}
		}(i)
	}
	wg.Wait()

	for r := 0; r < 10; r++ {
		req.Len(m.Subscribers(RoomID(fmt.Sprintf("r%d", r))), 50)
	}
	req.Len(m.Rooms("c7"), 10)
}

package rooms

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_JoinIsIdempotent(t *testing.T) {
	r := NewRegistry()

	r.Join("c1", "view:branch")
	r.Join("c1", "view:branch")

	assert.Equal(t, []string{"c1"}, r.MembersOf("view:branch"))
	assert.Equal(t, []string{"view:branch"}, r.RoomsOf("c1"))
	assert.Equal(t, 1, r.RoomCount())
}

func TestRegistry_MembersOfUnknownRoom(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.MembersOf("view:nobody"))
}

func TestRegistry_LeaveRemovesEmptyRoom(t *testing.T) {
	r := NewRegistry()
	r.Join("c1", "view:branch")
	r.Join("c2", "view:branch")

	r.Leave("c1", "view:branch")
	assert.Equal(t, []string{"c2"}, r.MembersOf("view:branch"))

	r.Leave("c2", "view:branch")
	r.Leave("c2", "view:branch")
	assert.Empty(t, r.MembersOf("view:branch"))
	assert.Equal(t, 0, r.RoomCount())
	assert.Empty(t, r.RoomsOf("c2"))
}

func TestRegistry_LeaveNeverJoined(t *testing.T) {
	r := NewRegistry()
	r.Join("c1", "view:branch")

	r.Leave("c2", "view:branch")
	r.Leave("c1", "view:other")

	assert.Equal(t, []string{"c1"}, r.MembersOf("view:branch"))
}

func TestRegistry_LeaveAll(t *testing.T) {
	r := NewRegistry()
	r.Join("c1", "view:branch")
	r.Join("c1", "view:short")
	r.Join("c2", "view:short")

	assert.Equal(t, 2, r.LeaveAll("c1"))

	assert.Empty(t, r.MembersOf("view:branch"))
	assert.Equal(t, []string{"c2"}, r.MembersOf("view:short"))
	assert.Equal(t, 1, r.RoomCount())

	assert.Equal(t, 0, r.LeaveAll("c1"))
	assert.Equal(t, 0, r.LeaveAll("never-connected"))
}

func TestRegistry_SnapshotIsIndependent(t *testing.T) {
	r := NewRegistry()
	r.Join("c1", "view:branch")

	members := r.MembersOf("view:branch")
	r.LeaveAll("c1")

	assert.Equal(t, []string{"c1"}, members)
	assert.Empty(t, r.MembersOf("view:branch"))
}

func TestRegistry_ConcurrentLeaveAllIsVisible(t *testing.T) {
	r := NewRegistry()
	const conns = 50

	var wg sync.WaitGroup
	for i := range conns {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r.Join(id, "view:branch")
			r.Join(id, "view:short")
			r.LeaveAll(id)
			for _, member := range r.MembersOf("view:branch") {
				assert.NotEqual(t, id, member)
			}
		}(fmt.Sprintf("c%d", i))
	}
	wg.Wait()

	assert.Equal(t, 0, r.RoomCount())
}

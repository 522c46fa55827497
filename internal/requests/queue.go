package requests

import (
	"github.com/emirpasic/gods/maps/linkedhashmap"

	"moff.io/moff-wallet/internal/walletconnect"
)

// Queue holds pending dapp requests in arrival order, keyed by internal id.
// It is not safe for concurrent use; the Orchestrator owns it on its Loop.
type Queue struct {
	m *linkedhashmap.Map
}

func NewQueue() *Queue {
	return &Queue{m: linkedhashmap.New()}
}

// Add appends r. Adding an id that is already queued replaces its payload
// and keeps its position.
func (q *Queue) Add(r walletconnect.PendingRequest) {
	q.m.Put(r.InternalID, r)
}

// Remove drops the request with id and reports whether it was queued.
func (q *Queue) Remove(id string) bool {
	if _, ok := q.m.Get(id); !ok {
		return false
	}
	q.m.Remove(id)
	return true
}

// Head returns the oldest request.
func (q *Queue) Head() (walletconnect.PendingRequest, bool) {
	it := q.m.Iterator()
	if !it.First() {
		return walletconnect.PendingRequest{}, false
	}
	return it.Value().(walletconnect.PendingRequest), true
}

func (q *Queue) Get(id string) (walletconnect.PendingRequest, bool) {
	v, ok := q.m.Get(id)
	if !ok {
		return walletconnect.PendingRequest{}, false
	}
	return v.(walletconnect.PendingRequest), true
}

func (q *Queue) Len() int {
	return q.m.Size()
}

// List returns the queued requests, oldest first.
func (q *Queue) List() []walletconnect.PendingRequest {
	out := make([]walletconnect.PendingRequest, 0, q.m.Size())
	it := q.m.Iterator()
	for it.Next() {
		out = append(out, it.Value().(walletconnect.PendingRequest))
	}
	return out
}

// RemoveTopic drops every request of a session and returns how many went.
func (q *Queue) RemoveTopic(topic string) int {
	var ids []string
	it := q.m.Iterator()
	for it.Next() {
		if it.Value().(walletconnect.PendingRequest).Topic == topic {
			ids = append(ids, it.Key().(string))
		}
	}
	for _, id := range ids {
		q.m.Remove(id)
	}
	return len(ids)
}

package session

import (
	"sync"
	"time"
)

// Pending is a message that arrived while its conversation was busy.
type Pending struct {
	Text       string
	ReceivedAt time.Time
}

// Session serializes work on one conversation. The busy flag and the
// queue share one mutex so a message is never queued on a session that has
// just been released.
type Session struct {
	mu       sync.Mutex
	busy     bool
	queue    []Pending
	lastUsed time.Time
}

type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	maxQueue int
	now      func() time.Time
}

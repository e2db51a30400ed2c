package session

import "time"

const defaultMaxQueue = 3

// TryAcquire attempts to acquire the processing lock.
// Returns true if acquired, false if already processing.
func (s *Session) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return false
	}
	s.busy = true
	return true
}

// Release releases the processing lock.
func (s *Session) Release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// Offer acquires the session for a new message, or queues the message when
// the session is busy. queued is false when the queue is full.
func (s *Session) Offer(text string, at time.Time, max int) (acquired, queued bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.busy {
		s.busy = true
		return true, false
	}
	return false, s.push(text, at, max)
}

// Next hands the oldest queued message to the holder, which keeps the
// session. With nothing queued the session is released and Next returns nil.
func (s *Session) Next() *Pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p := s.pop(); p != nil {
		return p
	}
	s.busy = false
	return nil
}

func (s *Session) touch(t time.Time) {
	s.mu.Lock()
	s.lastUsed = t
	s.mu.Unlock()
}

// push adds a message for later. It reports false when max messages are
// already waiting.
func (s *Session) push(text string, at time.Time, max int) bool {
	if max > 0 && len(s.queue) >= max {
		return false
	}
	s.queue = append(s.queue, Pending{Text: text, ReceivedAt: at})
	return true
}

func (s *Session) pop() *Pending {
	if len(s.queue) == 0 {
		return nil
	}
	p := s.queue[0]
	s.queue = s.queue[1:]
	return &p
}

func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// NewStore creates a store allowing maxQueue waiting messages per
// conversation; 0 means the default.
func NewStore(maxQueue int) *Store {
	if maxQueue <= 0 {
		maxQueue = defaultMaxQueue
	}
	return &Store{sessions: make(map[string]*Session), maxQueue: maxQueue, now: time.Now}
}

func (s *Store) Get(conversationID string) *Session {
	s.mu.RLock()

	sess, ok := s.sessions[conversationID]
	s.mu.RUnlock()

	if ok {
		sess.touch(s.now())
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok = s.sessions[conversationID]; ok {
		sess.touch(s.now())
		return sess
	}

	sess = &Session{lastUsed: s.now()}
	s.sessions[conversationID] = sess

	return sess
}

// Offer acquires the conversation's session for text or queues text behind
// the message being answered.
func (s *Store) Offer(conversationID, text string) (sess *Session, acquired, queued bool) {
	sess = s.Get(conversationID)
	acquired, queued = sess.Offer(text, s.now(), s.maxQueue)
	return sess, acquired, queued
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep forgets sessions idle for longer than idle that are neither
// processing nor holding queued messages.
func (s *Store) Sweep(idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		stale := sess.lastUsed.Before(cutoff) && len(sess.queue) == 0 && !sess.busy
		sess.mu.Unlock()

		if !stale {
			continue
		}

		delete(s.sessions, id)
		removed++
	}
	return removed
}

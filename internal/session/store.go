package session

import (
	"sort"
	"sync"

	"lxpbot/internal/storage"
)

// Store is the in-memory session map. Every method is atomic on its own;
// there is no cross-call locking per user.
type Store struct {
	mu         sync.RWMutex
	sessions   map[int64]Session
	tombstones map[int64]struct{}
}

func NewStore() *Store {
	return &Store{
		sessions:   map[int64]Session{},
		tombstones: map[int64]struct{}{},
	}
}

func (s *Store) Get(id int64) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Put replaces the session for id.
func (s *Store) Put(id int64, sess Session) {
	s.mu.Lock()
	s.sessions[id] = sess
	delete(s.tombstones, id)
	s.mu.Unlock()
}

// Update applies fn to the session for id, creating an empty one if needed,
// and returns the stored result.
func (s *Store) Update(id int64, fn func(*Session)) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[id]
	fn(&sess)
	s.sessions[id] = sess
	delete(s.tombstones, id)
	return sess
}

// UpdateExisting is Update without implicit creation. It reports whether the
// session existed.
func (s *Store) UpdateExisting(id int64, fn func(*Session)) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	fn(&sess)
	s.sessions[id] = sess
	return sess, true
}

// Delete removes the session, cancels its reminder and records the delete for
// the next flush. It reports whether a session existed.
func (s *Store) Delete(id int64) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.tombstones[id] = struct{}{}
	s.mu.Unlock()

	if ok && sess.Reminder != nil {
		sess.Reminder.Cancel()
	}
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// IDs returns the user ids in ascending order.
func (s *Store) IDs() []int64 {
	s.mu.RLock()
	out := make([]int64, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot returns the durable form of every session.
func (s *Store) Snapshot() map[int64]storage.SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]storage.SessionRecord, len(s.sessions))
	for id, sess := range s.sessions {
		out[id] = sess.Record()
	}
	return out
}

// Restore loads records without touching tombstones. Existing in-memory
// sessions win over restored ones.
func (s *Store) Restore(recs map[int64]storage.SessionRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range recs {
		if _, ok := s.sessions[id]; ok {
			continue
		}
		s.sessions[id] = FromRecord(rec)
		n++
	}
	return n
}

// pending returns the current snapshot plus the ids deleted since the last
// successful flush.
func (s *Store) pending() (map[int64]storage.SessionRecord, []int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(map[int64]storage.SessionRecord, len(s.sessions))
	for id, sess := range s.sessions {
		snap[id] = sess.Record()
	}
	dels := make([]int64, 0, len(s.tombstones))
	for id := range s.tombstones {
		dels = append(dels, id)
	}
	return snap, dels
}

// clearTombstones forgets deletes that reached storage. A key re-created in
// the meantime already lost its tombstone in Put/Update.
func (s *Store) clearTombstones(ids []int64) {
	s.mu.Lock()
	for _, id := range ids {
		delete(s.tombstones, id)
	}
	s.mu.Unlock()
}

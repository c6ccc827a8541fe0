package scripts

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// MemoryExecutor reimplements each script's semantics directly in Go
// against an in-memory prefix state, rather than dispatching Lua to a
// real server. Modeled on the teacher's memoryReplicator
// (redis_stream/memory.go): "mocks part of the Redis Streams feature
// ... for tests and local development. Not recommended for
// production." Same trade here — exercised by this package's tests
// and available to callers that want to run the Admission Client
// against a fleet of processes sharing nothing but a Go pointer.
type MemoryExecutor struct {
	mu       sync.Mutex
	prefixes map[string]*prefixState
}

type prefixState struct {
	storeIDs    map[string]struct{}
	storeExpiry map[string]int64
	queueIDs    []string
	queueExpiry map[string]int64
	queuePos    map[string]int64
	capacity    *int64
	syncMarkers bool
}

func NewMemoryExecutor() *MemoryExecutor {
	return &MemoryExecutor{prefixes: make(map[string]*prefixState)}
}

func (e *MemoryExecutor) state(prefix string) *prefixState {
	s, ok := e.prefixes[prefix]
	if !ok {
		s = &prefixState{
			storeIDs:    make(map[string]struct{}),
			storeExpiry: make(map[string]int64),
			queueExpiry: make(map[string]int64),
			queuePos:    make(map[string]int64),
		}
		e.prefixes[prefix] = s
	}
	return s
}

// SeedSyncKeys sets the three sync markers (queue_enabled,
// store_capacity, queue_sync_timestamp) for a prefix, the in-memory
// equivalent of the Admission Client's reseed-on-Uninitialized path.
func (e *MemoryExecutor) SeedSyncKeys(prefix string, capacity int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state(prefix)
	s.capacity = &capacity
	s.syncMarkers = true
}

// Flush drops a prefix's sync markers without touching its store/queue
// contents, simulating a partial backing-store flush for Uninitialized
// tests.
func (e *MemoryExecutor) Flush(prefix string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.prefixes[prefix]; ok {
		s.syncMarkers = false
		s.capacity = nil
	}
}

func (e *MemoryExecutor) Run(_ context.Context, n name, prefix string, argv ...any) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state(prefix)

	switch n {
	case nameIDAdd:
		return e.idAdd(s, argv)
	case nameIDPosition:
		return e.idPosition(s, argv)
	case nameIDRemove:
		return e.idRemove(s, argv)
	case nameIDPromote:
		return e.idPromote(s, argv)
	case nameStorePromote:
		return e.storePromote(s)
	case nameStorePromoteN:
		return e.storePromoteN(s, argv)
	case nameQueueTimeout:
		return e.queueTimeout(s, argv)
	case nameStoreTimeout:
		return e.storeTimeout(s, argv)
	case nameHasIDs:
		return e.hasIDs(s)
	case nameCheckSync:
		return e.checkSyncKeys(s)
	default:
		return nil, errors.Newf("scripts: unknown script %q", n)
	}
}

func capacityOf(s *prefixState) int64 {
	if s.capacity == nil {
		return -1
	}
	return *s.capacity
}

func (e *MemoryExecutor) insertToStore(s *prefixState, id string, now, validated int64) {
	s.storeIDs[id] = struct{}{}
	s.storeExpiry[id] = now + validated
}

func (e *MemoryExecutor) appendToQueue(s *prefixState, id string, now, quarantine int64) int64 {
	s.queueIDs = append(s.queueIDs, id)
	pos := int64(len(s.queueIDs))
	s.queuePos[id] = pos
	s.queueExpiry[id] = now + quarantine
	return pos
}

func (e *MemoryExecutor) idAdd(s *prefixState, argv []any) (any, error) {
	id, now, validated, quarantine, err := idArgs(argv)
	if err != nil {
		return nil, err
	}

	if _, ok := s.storeIDs[id]; ok {
		s.storeExpiry[id] = now + validated
		return int64(0), nil
	}
	if pos, ok := s.queuePos[id]; ok {
		s.queueExpiry[id] = now + quarantine
		return pos, nil
	}

	capacity := capacityOf(s)
	if capacity < 0 {
		e.insertToStore(s, id, now, validated)
		return int64(0), nil
	}
	if len(s.queueIDs) == 0 && int64(len(s.storeIDs)) < capacity {
		e.insertToStore(s, id, now, validated)
		return int64(0), nil
	}
	return e.appendToQueue(s, id, now, quarantine), nil
}

func (e *MemoryExecutor) idPosition(s *prefixState, argv []any) (any, error) {
	id, now, validated, quarantine, err := idArgs(argv)
	if err != nil {
		return nil, err
	}

	if _, ok := s.storeIDs[id]; ok {
		s.storeExpiry[id] = now + validated
		return []any{int64(0), int64(0)}, nil
	}
	if pos, ok := s.queuePos[id]; ok {
		s.queueExpiry[id] = now + validated
		return []any{int64(0), pos}, nil
	}

	capacity := capacityOf(s)
	if capacity < 0 {
		e.insertToStore(s, id, now, validated)
		return []any{int64(1), int64(0)}, nil
	}
	if len(s.queueIDs) == 0 && int64(len(s.storeIDs)) < capacity {
		e.insertToStore(s, id, now, validated)
		return []any{int64(1), int64(0)}, nil
	}
	return []any{int64(1), e.appendToQueue(s, id, now, quarantine)}, nil
}

func (e *MemoryExecutor) idRemove(s *prefixState, argv []any) (any, error) {
	id, ok := argv[0].(string)
	if !ok {
		return nil, errors.New("scripts: id_remove: bad id")
	}
	now, err := asInt64(argv[1])
	if err != nil {
		return nil, err
	}

	if _, ok := s.queueExpiry[id]; ok {
		s.queueExpiry[id] = now - 1
		return int64(1), nil
	}
	delete(s.storeIDs, id)
	delete(s.storeExpiry, id)
	return int64(1), nil
}

func (e *MemoryExecutor) idPromote(s *prefixState, argv []any) (any, error) {
	id, ok := argv[0].(string)
	if !ok {
		return nil, errors.New("scripts: id_promote: bad id")
	}
	now, err := asInt64(argv[1])
	if err != nil {
		return nil, err
	}
	validated, err := asInt64(argv[2])
	if err != nil {
		return nil, err
	}

	removeFromQueue(s, id)
	s.storeIDs[id] = struct{}{}
	s.storeExpiry[id] = now + validated
	return int64(1), nil
}

func (e *MemoryExecutor) storePromote(s *prefixState) (any, error) {
	capacity := capacityOf(s)
	var transfer int
	if capacity < 0 {
		transfer = len(s.queueIDs)
	} else {
		transfer = int(capacity) - len(s.storeIDs)
		if transfer < 0 {
			transfer = 0
		}
	}
	return e.promoteFront(s, transfer), nil
}

func (e *MemoryExecutor) storePromoteN(s *prefixState, argv []any) (any, error) {
	n, err := asInt64(argv[0])
	if err != nil {
		return nil, err
	}
	return e.promoteFront(s, int(n)), nil
}

func (e *MemoryExecutor) promoteFront(s *prefixState, n int) int64 {
	var moved int64
	for i := 0; i < n && len(s.queueIDs) > 0; i++ {
		id := s.queueIDs[0]
		s.queueIDs = s.queueIDs[1:]
		exp, hadExp := s.queueExpiry[id]
		delete(s.queuePos, id)
		delete(s.queueExpiry, id)
		s.storeIDs[id] = struct{}{}
		if hadExp {
			s.storeExpiry[id] = exp
		}
		moved++
	}
	// Surviving queue entries keep their prior position numbering
	// until the next queue_timeout sweep, matching the Redis
	// implementation (the position cache is refreshed there, not here).
	return moved
}

func (e *MemoryExecutor) queueTimeout(s *prefixState, argv []any) (any, error) {
	now, err := asInt64(argv[0])
	if err != nil {
		return nil, err
	}

	survivors := s.queueIDs[:0:0]
	var removed int64
	for _, id := range s.queueIDs {
		exp, ok := s.queueExpiry[id]
		if ok && exp < now {
			delete(s.queueExpiry, id)
			delete(s.queuePos, id)
			removed++
			continue
		}
		survivors = append(survivors, id)
	}
	s.queueIDs = survivors
	for i, id := range survivors {
		s.queuePos[id] = int64(i + 1)
	}
	return removed, nil
}

func (e *MemoryExecutor) storeTimeout(s *prefixState, argv []any) (any, error) {
	now, err := asInt64(argv[0])
	if err != nil {
		return nil, err
	}

	var removed int64
	for id, exp := range s.storeExpiry {
		if exp < now {
			delete(s.storeIDs, id)
			delete(s.storeExpiry, id)
			removed++
		}
	}
	return removed, nil
}

func (e *MemoryExecutor) hasIDs(s *prefixState) (any, error) {
	if !s.syncMarkers {
		return int64(1), nil
	}
	if len(s.storeIDs) > 0 || len(s.queueIDs) > 0 {
		return int64(1), nil
	}
	return int64(0), nil
}

func (e *MemoryExecutor) checkSyncKeys(s *prefixState) (any, error) {
	if s.syncMarkers {
		return int64(1), nil
	}
	return int64(0), nil
}

func removeFromQueue(s *prefixState, id string) {
	for i, v := range s.queueIDs {
		if v == id {
			s.queueIDs = append(s.queueIDs[:i], s.queueIDs[i+1:]...)
			break
		}
	}
	delete(s.queuePos, id)
	delete(s.queueExpiry, id)
}

func idArgs(argv []any) (id string, now, validated, quarantine int64, err error) {
	id, ok := argv[0].(string)
	if !ok {
		return "", 0, 0, 0, errors.New("scripts: bad id argument")
	}
	if now, err = asInt64(argv[1]); err != nil {
		return "", 0, 0, 0, err
	}
	if validated, err = asInt64(argv[2]); err != nil {
		return "", 0, 0, 0, err
	}
	if quarantine, err = asInt64(argv[3]); err != nil {
		return "", 0, 0, 0, err
	}
	return id, now, validated, quarantine, nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, errors.Newf("scripts: expected integer argument, got %#v", v)
	}
}

package chatmem

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemRepo is an in-memory implementation of SessionRepo, MessageRepo,
// SuspensionDataRepo, and AsyncStepStateRepo, for tests and the CLI's
// ad hoc mode. Grounded on engine/store.MemStore's mutex-guarded map
// idiom, carried over to this package's narrower chat-facing records.
type MemRepo struct {
	mu sync.RWMutex

	sessions     map[string]Session
	messages     map[string][]Message // sessionID -> messages, append order
	suspensions  map[string]SuspensionDataRecord
	asyncStates  map[string]AsyncStepState // runID+"/"+taskID -> state
}

func NewMemRepo() *MemRepo {
	return &MemRepo{
		sessions:    make(map[string]Session),
		messages:    make(map[string][]Message),
		suspensions: make(map[string]SuspensionDataRecord),
		asyncStates: make(map[string]AsyncStepState),
	}
}

// PutSession seeds or overwrites a session, for test setup.
func (m *MemRepo) PutSession(s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

func (m *MemRepo) GetSession(_ context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	return &s, nil
}

func (m *MemRepo) ListSessionsByUser(_ context.Context, userID string, page Page) (PageResult[Session], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			matched = append(matched, s)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return paginate(matched, page)
}

func (m *MemRepo) AddMessage(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], msg)
	return nil
}

func (m *MemRepo) FindBySession(_ context.Context, sessionID string, page Page) (PageResult[Message], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return paginate(m.messages[sessionID], page)
}

func (m *MemRepo) FindRecentBySession(_ context.Context, sessionID string, n int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.messages[sessionID]
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	out := make([]Message, n)
	copy(out, all[len(all)-n:])
	return out, nil
}

func (m *MemRepo) CountBySession(_ context.Context, sessionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages[sessionID]), nil
}

func (m *MemRepo) SaveSuspension(_ context.Context, rec SuspensionDataRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspensions[rec.RunID] = rec
	return nil
}

func (m *MemRepo) GetSuspension(_ context.Context, runID string) (*SuspensionDataRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.suspensions[runID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemRepo) DeleteSuspension(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.suspensions, runID)
	return nil
}

func (m *MemRepo) SaveState(_ context.Context, state AsyncStepState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.asyncStates[asyncKey(state.RunID, state.TaskID)] = state
	return nil
}

func (m *MemRepo) GetState(_ context.Context, runID, taskID string) (*AsyncStepState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.asyncStates[asyncKey(runID, taskID)]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (m *MemRepo) DeleteState(_ context.Context, runID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.asyncStates, asyncKey(runID, taskID))
	return nil
}

func asyncKey(runID, taskID string) string { return runID + "/" + taskID }

func paginate[T any](items []T, page Page) (PageResult[T], error) {
	start := 0
	if page.Cursor != "" {
		for i := range items {
			if fmt.Sprint(i) == page.Cursor {
				start = i
				break
			}
		}
	}
	limit := page.Limit
	if limit <= 0 {
		limit = len(items)
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	if start > len(items) {
		start = len(items)
	}

	out := PageResult[T]{Items: append([]T(nil), items[start:end]...)}
	if end < len(items) {
		out.NextCursor = fmt.Sprint(end)
	}
	return out, nil
}

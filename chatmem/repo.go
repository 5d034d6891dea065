// Package chatmem defines the narrow external collaborators the engine
// reads/writes chat session and message state through. The engine
// never parses message bodies: these interfaces exist so a workflow
// step can look up conversational context without the engine itself
// depending on any particular chat storage technology.
//
// Small CRUD interfaces returning (*T, error), with context-aware,
// paginated reads since session/message history can grow without
// bound.
package chatmem

import (
	"context"
	"time"
)

// Session is a chat/conversation session a workflow run may be
// attached to.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
	Labels    map[string]string
}

// Message is one turn in a session's history. Body is opaque to the
// engine; only chat-facing steps interpret it.
type Message struct {
	ID        string
	SessionID string
	Role      string
	Body      string
	CreatedAt time.Time
}

// Page bounds a paginated read: Limit items starting after Cursor
// (opaque, returned by the previous page's NextCursor).
type Page struct {
	Cursor string
	Limit  int
}

// PageResult carries one page of results plus the cursor for the next.
type PageResult[T any] struct {
	Items      []T
	NextCursor string
}

// SessionRepo resolves sessions by ID or by owning user.
type SessionRepo interface {
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ListSessionsByUser(ctx context.Context, userID string, page Page) (PageResult[Session], error)
}

// MessageRepo is a session's append-only message history.
type MessageRepo interface {
	AddMessage(ctx context.Context, msg Message) error
	FindBySession(ctx context.Context, sessionID string, page Page) (PageResult[Message], error)
	FindRecentBySession(ctx context.Context, sessionID string, n int) ([]Message, error)
	CountBySession(ctx context.Context, sessionID string) (int, error)
}

// SuspensionDataRecord is the chat-facing projection of an
// engine.SuspensionRecord a UI can render a prompt from, keyed by the
// run it belongs to rather than by the engine's own types — chatmem
// has no dependency on the engine package.
type SuspensionDataRecord struct {
	RunID     string
	SessionID string
	Prompt    any
	CreatedAt time.Time
}

// SuspensionDataRepo persists suspension prompts for chat-facing
// surfaces (e.g. rendering "waiting on your input" in a UI) separately
// from the engine's own SuspensionManager, which governs resume
// correctness; this repo is a read-side convenience.
type SuspensionDataRepo interface {
	SaveSuspension(ctx context.Context, rec SuspensionDataRecord) error
	GetSuspension(ctx context.Context, runID string) (*SuspensionDataRecord, error)
	DeleteSuspension(ctx context.Context, runID string) error
}

// AsyncStepState is the chat-facing projection of an in-flight async
// task's last known progress, for surfaces that poll progress without
// going through the engine's own AsyncCoordinator.
type AsyncStepState struct {
	RunID          string
	TaskID         string
	PercentComplete int
	Message        string
	Done           bool
	UpdatedAt      time.Time
}

// AsyncStepStateRepo persists the latest known progress of an async
// task for read-side consumers.
type AsyncStepStateRepo interface {
	SaveState(ctx context.Context, state AsyncStepState) error
	GetState(ctx context.Context, runID, taskID string) (*AsyncStepState, error)
	DeleteState(ctx context.Context, runID, taskID string) error
}

// Package checkpoint persists loop state at phase boundaries so an
// interrupted session can resume instead of restarting.
package checkpoint

import (
	"encoding/gob"
	"errors"
	"time"

	"github.com/codefionn/agentloop/internal/contextstore"
	"github.com/codefionn/agentloop/internal/taskgraph"
)

// Storage format version for forward compatibility
const Version = 1

func init() {
	// Register payload types carried inside node results
	gob.Register(map[string]interface{}{})
	gob.Register([]map[string]interface{}{})
	gob.Register([]interface{}{})
	gob.Register(map[string]string{})
	gob.Register([]string{})
	gob.Register("")
	gob.Register(0)
	gob.Register(0.0)
	gob.Register(false)
	gob.Register(time.Time{})
}

// ErrNotFound is returned when no checkpoint exists for a session.
var ErrNotFound = errors.New("checkpoint: not found")

// Checkpoint is the serializable state of one session at a phase
// boundary.
type Checkpoint struct {
	Version   int
	SessionID string
	Goal      string
	Phase     string
	Iteration int
	SavedAt   time.Time

	Graph   *taskgraph.Snapshot
	Context *contextstore.Snapshot

	// ReplanCount tracks how many times the plan has been rebuilt.
	ReplanCount int
}

// Sink persists and retrieves checkpoints keyed by session ID.
type Sink interface {
	// Save persists the checkpoint, replacing any earlier one for the
	// same session.
	Save(cp *Checkpoint) error

	// Load returns the latest checkpoint for a session, ErrNotFound when
	// none exists.
	Load(sessionID string) (*Checkpoint, error)
}

// Noop discards checkpoints. Used when persistence is disabled.
type Noop struct{}

func (Noop) Save(*Checkpoint) error { return nil }

func (Noop) Load(string) (*Checkpoint, error) { return nil, ErrNotFound }

var _ Sink = Noop{}

package bot

import (
	"sync"

	"github.com/Noha9900/advance-filestorebot/internal/gate"
)

// State is where a user's conversation currently stands. It decides how a
// plain message from that user is routed.
type State interface {
	isState()
}

// Idle is the default state.
type Idle struct{}

// AwaitingGate holds an unfinished gate flow for a presented token.
type AwaitingGate struct {
	Session *gate.Session
	// PromptID is the join prompt currently shown, 0 if none.
	PromptID int
}

// InRelay routes plain messages to the operator.
type InRelay struct {
	SessionID string
}

func (Idle) isState()         {}
func (AwaitingGate) isState() {}
func (InRelay) isState()      {}

// conversations holds the state of every user in memory.
type conversations struct {
	mu     sync.RWMutex
	states map[int64]State
}

func newConversations() *conversations {
	return &conversations{states: make(map[int64]State)}
}

// Get returns the user's state, Idle if none was set.
func (c *conversations) Get(userID int64) State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.states[userID]; ok {
		return s
	}
	return Idle{}
}

// Set replaces the user's state. Setting Idle drops the entry.
func (c *conversations) Set(userID int64, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, idle := s.(Idle); idle || s == nil {
		delete(c.states, userID)
		return
	}
	c.states[userID] = s
}

// Len returns the number of users not in Idle.
func (c *conversations) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.states)
}

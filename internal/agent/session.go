package agent

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

const maxConversationMessages = 10

// Session is one execution instance of one agent. Snapshot values are
// returned to callers; the registry owns the live state.
type Session struct {
	ID           uuid.UUID      `json:"session_id"`
	AgentID      string         `json:"agent_id"`
	CreatedAt    string         `json:"created_at"`
	Events       []Event        `json:"events"`
	Done         bool           `json:"done"`
	LatestOutput map[string]any `json:"latest_output,omitempty"`
}

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is multi-turn chat state keyed by a conversation id. Messages
// are a sliding window of the most recent ten; reports accumulate unbounded.
type Conversation struct {
	ID       string           `json:"conversation_id"`
	AgentID  string           `json:"agent_id"`
	Messages []ChatMessage    `json:"messages"`
	Reports  []map[string]any `json:"reports"`
}

// Registry is the in-memory session and conversation store. One Runner
// writes a session while many pollers read it; all access goes through one
// mutex. Constructed once at startup and injected — no ambient globals.
type Registry struct {
	mu            sync.Mutex
	sessions      map[uuid.UUID]*Session
	conversations map[string]*Conversation
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions:      make(map[uuid.UUID]*Session),
		conversations: make(map[string]*Conversation),
	}
}

// CreateSession registers a new session and returns its snapshot.
func (r *Registry) CreateSession(agentID string) Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Session{
		ID:        uuid.New(),
		AgentID:   agentID,
		CreatedAt: utcNow(),
		Events:    []Event{},
	}
	r.sessions[s.ID] = s
	return snapshotSession(s)
}

// AppendEvent appends one event to a session's log. A "complete" event also
// flips done and captures the latest output. Unknown sessions are ignored.
func (r *Registry) AppendEvent(sessionID uuid.UUID, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	s.Events = append(s.Events, event)
	if event.Type == EventComplete {
		s.Done = true
		if output, outputOK := event.Payload["output"].(map[string]any); outputOK {
			s.LatestOutput = output
		}
	}
}

// MarkDone sets the done flag, optionally recording a final output.
func (r *Registry) MarkDone(sessionID uuid.UUID, output map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	s.Done = true
	if output != nil {
		s.LatestOutput = output
	}
}

// GetSession returns a stable snapshot of a session, or false if unknown.
// The snapshot's event slice is a copy; pollers reading repeatedly see a
// monotonically growing prefix.
func (r *Registry) GetSession(sessionID uuid.UUID) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return snapshotSession(s), true
}

// LatestForAgent returns the most recently created session for an agent.
func (r *Registry) LatestForAgent(agentID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []*Session
	for _, s := range r.sessions {
		if s.AgentID == agentID {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return Session{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt < candidates[j].CreatedAt
	})
	return snapshotSession(candidates[len(candidates)-1]), true
}

// GetOrCreateConversation returns the conversation for the given id,
// creating it on first use. An empty id allocates a fresh one.
func (r *Registry) GetOrCreateConversation(conversationID, agentID string) Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conversationID != "" {
		if c, ok := r.conversations[conversationID]; ok {
			return snapshotConversation(c)
		}
	}
	id := conversationID
	if id == "" {
		id = uuid.NewString()
	}
	c := &Conversation{ID: id, AgentID: agentID}
	r.conversations[id] = c
	return snapshotConversation(c)
}

// GetConversation returns a conversation snapshot, or false if unknown.
func (r *Registry) GetConversation(conversationID string) (Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[conversationID]
	if !ok {
		return Conversation{}, false
	}
	return snapshotConversation(c), true
}

// AppendMessage adds one turn to a conversation, evicting the oldest turns
// past the window bound.
func (r *Registry) AppendMessage(conversationID, role, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[conversationID]
	if !ok {
		return
	}
	c.Messages = append(c.Messages, ChatMessage{Role: role, Content: content})
	if len(c.Messages) > maxConversationMessages {
		c.Messages = c.Messages[len(c.Messages)-maxConversationMessages:]
	}
}

// AppendReport records a generated report on a conversation.
func (r *Registry) AppendReport(conversationID string, report map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[conversationID]
	if !ok {
		return
	}
	c.Reports = append(c.Reports, report)
}

// Clear drops all sessions and conversations (demo reset).
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions = make(map[uuid.UUID]*Session)
	r.conversations = make(map[string]*Conversation)
}

func snapshotSession(s *Session) Session {
	out := *s
	out.Events = make([]Event, len(s.Events))
	copy(out.Events, s.Events)
	return out
}

func snapshotConversation(c *Conversation) Conversation {
	out := *c
	out.Messages = make([]ChatMessage, len(c.Messages))
	copy(out.Messages, c.Messages)
	out.Reports = make([]map[string]any, len(c.Reports))
	copy(out.Reports, c.Reports)
	return out
}

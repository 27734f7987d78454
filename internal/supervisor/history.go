package supervisor

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// maxHistoryEntries bounds each conversation log to the most recent ten
// exchanges (user turn + assistant turn).
const maxHistoryEntries = 20

// HistoryEntry is one turn of a supervision conversation.
type HistoryEntry struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryLog keeps a bounded per-conversation exchange log, consumed as
// prompt context on the next turn. Thread-safe.
type HistoryLog struct {
	mu      sync.RWMutex
	entries map[string][]HistoryEntry
	clock   func() time.Time
}

// NewHistoryLog creates an empty HistoryLog.
func NewHistoryLog() *HistoryLog {
	return &HistoryLog{
		entries: make(map[string][]HistoryEntry),
		clock:   time.Now,
	}
}

// Append records a turn for the conversation, evicting the oldest entries
// beyond the bound. Empty conversation IDs are ignored; single-turn requests
// carry no history.
func (h *HistoryLog) Append(conversationID, role, text string) {
	if conversationID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	log := append(h.entries[conversationID], HistoryEntry{
		Role:      role,
		Text:      text,
		Timestamp: h.clock(),
	})
	if len(log) > maxHistoryEntries {
		log = log[len(log)-maxHistoryEntries:]
	}
	h.entries[conversationID] = log
}

// Get returns a copy of the conversation's entries, oldest first.
func (h *HistoryLog) Get(conversationID string) []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	log := h.entries[conversationID]
	out := make([]HistoryEntry, len(log))
	copy(out, log)
	return out
}

// Clear drops all history for a conversation, called when the conversation
// completes or expires.
func (h *HistoryLog) Clear(conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, conversationID)
}

// Render formats the conversation history for prompt injection.
func (h *HistoryLog) Render(conversationID string) string {
	log := h.Get(conversationID)
	if len(log) == 0 {
		return ""
	}

	var b strings.Builder
	for _, e := range log {
		fmt.Fprintf(&b, "%s: %s\n", e.Role, e.Text)
	}
	return b.String()
}

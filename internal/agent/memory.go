package agent

import (
	"fmt"
	"sync"
)

const (
	// DefaultMemoryMaxTurns bounds how many entries each log keeps.
	DefaultMemoryMaxTurns = 10

	// DefaultMemoryMaxChars bounds the rendered size of each log.
	DefaultMemoryMaxChars = 8000
)

// ConversationMemory holds the agent's bounded conversational state: a log
// of generated outputs (memory) and a log of instruction/response exchanges
// (history). Both logs are append-only within a session and truncated
// oldest-first when they exceed their budgets, so prompts never grow without
// bound. All methods are safe for concurrent use; each append is atomic.
type ConversationMemory struct {
	mu       sync.Mutex
	maxTurns int
	maxChars int
	memory   []string
	history  []string
}

// NewConversationMemory creates a bounded conversation memory. Non-positive
// limits fall back to the defaults.
func NewConversationMemory(maxTurns, maxChars int) *ConversationMemory {
	if maxTurns <= 0 {
		maxTurns = DefaultMemoryMaxTurns
	}
	if maxChars <= 0 {
		maxChars = DefaultMemoryMaxChars
	}
	return &ConversationMemory{maxTurns: maxTurns, maxChars: maxChars}
}

// AppendGeneration records one generated output in the memory log.
func (m *ConversationMemory) AppendGeneration(output string) {
	if output == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memory = append(m.memory, output)
	m.memory = truncateOldest(m.memory, m.maxTurns, m.maxChars)
}

// AppendExchange records one instruction/response pair in the history log as
// a single atomic entry, so concurrent appends never interleave a pair.
func (m *ConversationMemory) AppendExchange(instruction, response string) {
	entry := fmt.Sprintf("User: %s\nAssistant: %s", instruction, response)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, entry)
	m.history = truncateOldest(m.history, m.maxTurns, m.maxChars)
}

// Memory returns a snapshot of the generated-output log, oldest first.
func (m *ConversationMemory) Memory() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.memory...)
}

// History returns a snapshot of the exchange log, oldest first.
func (m *ConversationMemory) History() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.history...)
}

// Len reports the current sizes of the memory and history logs.
func (m *ConversationMemory) Len() (memory, history int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.memory), len(m.history)
}

// Reset clears both logs.
func (m *ConversationMemory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memory = nil
	m.history = nil
}

// truncateOldest drops entries from the front until the log fits both the
// turn budget and the character budget. The most recent entry is always
// kept, even when it alone exceeds the character budget.
func truncateOldest(entries []string, maxTurns, maxChars int) []string {
	if len(entries) > maxTurns {
		entries = entries[len(entries)-maxTurns:]
	}

	total := 0
	for _, e := range entries {
		total += len(e)
	}
	for total > maxChars && len(entries) > 1 {
		total -= len(entries[0])
		entries = entries[1:]
	}
	return entries
}

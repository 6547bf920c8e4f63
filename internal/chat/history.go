package chat

import (
	"sync"
	"time"

	"github.com/lever-lab/backend/internal/llm"
)

const DefaultHistoryLimit = 20

type Turn struct {
	Role    llm.Role  `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"timestamp"`
}

// History is a sliding window of the most recent turns, oldest first.
type History struct {
	mu    sync.RWMutex
	limit int
	turns []Turn
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

func (h *History) Append(role llm.Role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns, Turn{Role: role, Content: content, At: time.Now()})
	if over := len(h.turns) - h.limit; over > 0 {
		h.turns = append([]Turn(nil), h.turns[over:]...)
	}
}

func (h *History) Turns() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Turn(nil), h.turns...)
}

// Window returns the last k retained turns.
func (h *History) Window(k int) []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if k <= 0 {
		return nil
	}
	if k > len(h.turns) {
		k = len(h.turns)
	}
	return append([]Turn(nil), h.turns[len(h.turns)-k:]...)
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

func (h *History) Clear() {
	h.mu.Lock()
	h.turns = nil
	h.mu.Unlock()
}

// Exchange is one question with the answer that followed it.
type Exchange struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"timestamp"`
}

// Exchanges pairs consecutive user and assistant turns.
func (h *History) Exchanges() []Exchange {
	turns := h.Turns()

	var out []Exchange
	for i := 0; i+1 < len(turns); i++ {
		if turns[i].Role == llm.RoleUser && turns[i+1].Role == llm.RoleAssistant {
			out = append(out, Exchange{Question: turns[i].Content, Answer: turns[i+1].Content, At: turns[i+1].At})
			i++
		}
	}
	return out
}

func toMessages(turns []Turn) []llm.Message {
	out := make([]llm.Message, len(turns))
	for i, t := range turns {
		out[i] = llm.Message{Role: t.Role, Content: t.Content}
	}
	return out
}

package qa

import "time"

// DefaultHistorySize is how many exchanges a session remembers.
const DefaultHistorySize = 10

// Exchange is one answered question.
type Exchange struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

// History is a bounded FIFO of exchanges: once full, adding drops the
// oldest entry. It is not safe for concurrent use; Session guards it.
type History struct {
	limit     int
	exchanges []Exchange
}

// NewHistory creates a history holding at most limit exchanges. A
// non-positive limit uses DefaultHistorySize.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &History{limit: limit}
}

// Add appends an exchange, evicting the oldest when over the limit.
func (h *History) Add(e Exchange) {
	h.exchanges = append(h.exchanges, e)
	if over := len(h.exchanges) - h.limit; over > 0 {
		h.exchanges = append(h.exchanges[:0:0], h.exchanges[over:]...)
	}
}

// Exchanges returns a copy, oldest first.
func (h *History) Exchanges() []Exchange {
	out := make([]Exchange, len(h.exchanges))
	copy(out, h.exchanges)
	return out
}

// Len returns the number of stored exchanges.
func (h *History) Len() int { return len(h.exchanges) }

// Limit returns the capacity.
func (h *History) Limit() int { return h.limit }

// Clear drops every exchange.
func (h *History) Clear() { h.exchanges = nil }

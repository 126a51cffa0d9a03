package api

import (
	"sync"
)

// LatestDecision holds the most recent intercept outcome for a session.
type LatestDecision struct {
	ShopID    string `json:"shopId"`
	SessionID string `json:"sessionId"`
	Behavior  string `json:"behavior"`
	Reason    string `json:"reason,omitempty"`
	TS        string `json:"ts"`
}

// DecisionLog stores latest intercept decisions per shop/session for the
// admin dashboard; the durable audit log lives in the store.
type DecisionLog struct {
	mu sync.Mutex
	// key: shopId|sessionId
	m map[string]LatestDecision
}

// NewDecisionLog constructs a DecisionLog.
func NewDecisionLog() *DecisionLog { return &DecisionLog{m: map[string]LatestDecision{}} }

func (c *DecisionLog) key(shopID, sessionID string) string {
	return shopID + "|" + sessionID
}

// Upsert stores or updates the latest decision for a session.
func (c *DecisionLog) Upsert(d LatestDecision) {
	if d.ShopID == "" || d.SessionID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[c.key(d.ShopID, d.SessionID)] = d
}

// ListByShop returns the latest decisions for a shop's live sessions.
func (c *DecisionLog) ListByShop(shopID string) []LatestDecision {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []LatestDecision{}
	prefix := shopID + "|"
	for k, v := range c.m {
		// simple prefix match
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, v)
		}
	}
	return out
}

package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"consentgate/internal/store"
)

// Shop-facing webhook event types.
const (
	EventSettingsUpdated   = "settings.updated"
	EventAgreementAccepted = "agreement.accepted"
	EventCheckoutBlocked   = "checkout.blocked"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit enqueues an event for all subscriptions of the shop matching the
// event type. Delivery is asynchronous via the Worker.
func (p *Publisher) Emit(ctx context.Context, shopID, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, shopID, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":     fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type":   eventType,
		"shopId": shopID,
		"ts":     time.Now().UTC().Format(time.RFC3339),
		"data":   data,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		_, _ = p.Store.EnqueueWebhook(ctx, shopID, s.ID, eventType, s.URL, s.Secret, body)
	}
}

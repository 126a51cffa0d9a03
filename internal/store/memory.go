package store

import (
    "context"
    "sync"
    "time"

    "github.com/google/uuid"

    "consentgate/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu       sync.Mutex
    settings map[string]map[string]any       // shopId -> raw settings
    status   map[string]model.ExtensionStatus // shopId -> extension status
    agree    map[string][]model.AgreementRecord // shopId -> audit rows
    subs     map[string][]model.Subscription // shopId -> subscriptions
    // Webhook queue state
    deliveries       map[string]*memDelivery // id -> delivery state
    deliveriesByShop map[string][]string     // shopId -> delivery ids
    order            []string                // enqueue order
    dlq              []map[string]any        // dead-lettered deliveries
}

func NewMemory() *Memory {
    return &Memory{
        settings:         map[string]map[string]any{},
        status:           map[string]model.ExtensionStatus{},
        agree:            map[string][]model.AgreementRecord{},
        subs:             map[string][]model.Subscription{},
        deliveries:       map[string]*memDelivery{},
        deliveriesByShop: map[string][]string{},
    }
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
    WebhookDelivery
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
    LatencyMs     int
    DeliveredAt   *time.Time
}

func (m *Memory) GetShopSettings(ctx context.Context, shopID string) (map[string]any, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    v := m.settings[shopID]
    if v == nil { return map[string]any{}, nil }
    out := make(map[string]any, len(v))
    for k, val := range v { out[k] = val }
    return out, nil
}

func (m *Memory) SaveShopSettings(ctx context.Context, shopID string, values map[string]any) error {
    m.mu.Lock(); defer m.mu.Unlock()
    cp := make(map[string]any, len(values))
    for k, v := range values { cp[k] = v }
    m.settings[shopID] = cp
    return nil
}

func (m *Memory) GetExtensionStatus(ctx context.Context, shopID string) (model.ExtensionStatus, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    st, ok := m.status[shopID]
    if !ok { return model.ExtensionStatus{ShopID: shopID}, nil }
    return st, nil
}

func (m *Memory) SaveExtensionStatus(ctx context.Context, shopID string, activated bool) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.status[shopID] = model.ExtensionStatus{ShopID: shopID, Activated: activated, CheckedAt: time.Now().UTC().Format(time.RFC3339)}
    return nil
}

func (m *Memory) RecordAgreement(ctx context.Context, rec model.AgreementRecord) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    rec.ID = uuid.New().String()
    if rec.TS == "" { rec.TS = time.Now().UTC().Format(time.RFC3339) }
    m.agree[rec.ShopID] = append(m.agree[rec.ShopID], rec)
    return rec.ID, nil
}

func (m *Memory) ListAgreements(ctx context.Context, shopID, cursor string, limit int) ([]model.AgreementRecord, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    items := m.agree[shopID]
    start := 0
    if cursor != "" {
        for i, r := range items {
            if r.ID == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    out := []model.AgreementRecord{}
    var next string
    for i := start; i < len(items) && len(out) < limit; i++ {
        out = append(out, items[i])
        next = items[i].ID
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    sub := model.Subscription{ID: uuid.New().String(), ShopID: req.ShopID, URL: req.URL, Events: req.Events, Secret: req.Secret}
    m.subs[req.ShopID] = append(m.subs[req.ShopID], sub)
    return sub, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, shopID, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Subscription{}
    for _, s := range m.subs[shopID] {
        for _, e := range s.Events {
            if e == eventType || e == "*" {
                out = append(out, s)
                break
            }
        }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, shopID, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    items := m.subs[shopID]
    start := 0
    if cursor != "" {
        for i, s := range items {
            if s.ID == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    out := []model.Subscription{}
    var next string
    for i := start; i < len(items) && len(out) < limit; i++ {
        out = append(out, items[i])
        next = items[i].ID
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, shopID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    items := m.subs[shopID]
    out := make([]model.Subscription, 0, len(items))
    found := false
    for _, s := range items {
        if s.ID == id { found = true; continue }
        out = append(out, s)
    }
    if !found { return ErrNotFound }
    m.subs[shopID] = out
    return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, shopID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    id := uuid.New().String()
    d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, ShopID: shopID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending", Attempts: 0}, NextAttemptAt: time.Now()}
    m.deliveries[id] = d
    m.deliveriesByShop[shopID] = append(m.deliveriesByShop[shopID], id)
    m.order = append(m.order, id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.order {
        d := m.deliveries[id]
        if d == nil { continue }
        if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
            out = append(out, d.WebhookDelivery)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return nil }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = "delivered"
        now := time.Now()
        d.DeliveredAt = &now
    } else {
        d.Status = "retry"
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d != nil { d.Status = "failed" }
    shop := ""
    if d != nil { shop = d.ShopID }
    m.dlq = append(m.dlq, map[string]any{"id": id, "shopId": shop, "lastError": lastError, "responseCode": responseCode, "latencyMs": latencyMs})
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, shopID, status, cursor string, limit int) ([]map[string]any, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []map[string]any{}
    for _, id := range m.deliveriesByShop[shopID] {
        d := m.deliveries[id]
        if d == nil { continue }
        if status == "" || d.Status == status {
            item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
            if !d.NextAttemptAt.IsZero() { item["nextAttemptAt"] = d.NextAttemptAt }
            if d.LastError != "" { item["lastError"] = d.LastError }
            out = append(out, item)
        }
    }
    return out, "", nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, shopID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil || d.ShopID != shopID { return ErrNotFound }
    d.Status = "pending"
    d.NextAttemptAt = time.Now()
    return nil
}

func (m *Memory) ListWebhookDLQ(ctx context.Context, shopID, cursor string, limit int) ([]map[string]any, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []map[string]any{}
    for _, it := range m.dlq {
        if s, _ := it["shopId"].(string); shopID == "" || s == shopID {
            out = append(out, it)
        }
    }
    return out, "", nil
}

func (m *Memory) RequeueWebhookDLQ(ctx context.Context, shopID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil || d.ShopID != shopID { return ErrNotFound }
    d.Status = "pending"
    d.Attempts = 0
    d.NextAttemptAt = time.Now()
    kept := m.dlq[:0]
    for _, it := range m.dlq {
        if v, _ := it["id"].(string); v != id { kept = append(kept, it) }
    }
    m.dlq = kept
    return nil
}

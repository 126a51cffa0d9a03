package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "consentgate/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

// Ping checks DB connectivity (readiness probe).
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies *.sql files from dir in lexical order (dev helper).
func (p *Postgres) MigrateDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil {
        return err
    }
    names := []string{}
    for _, e := range entries {
        if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
            names = append(names, e.Name())
        }
    }
    sort.Strings(names)
    for _, n := range names {
        b, err := os.ReadFile(filepath.Join(dir, n))
        if err != nil {
            return err
        }
        if _, err := p.db.Exec(string(b)); err != nil {
            return err
        }
    }
    return nil
}

func (p *Postgres) GetShopSettings(ctx context.Context, shopID string) (map[string]any, error) {
    var raw []byte
    err := p.db.QueryRowContext(ctx, `SELECT settings FROM shop_settings WHERE shop_id=$1`, shopID).Scan(&raw)
    if errors.Is(err, sql.ErrNoRows) {
        return map[string]any{}, nil
    }
    if err != nil {
        return nil, err
    }
    var m map[string]any
    if err := json.Unmarshal(raw, &m); err != nil {
        return map[string]any{}, nil
    }
    return m, nil
}

func (p *Postgres) SaveShopSettings(ctx context.Context, shopID string, values map[string]any) error {
    _, err := p.db.ExecContext(ctx, `
        INSERT INTO shop_settings (shop_id, settings, updated_at) VALUES ($1,$2,now())
        ON CONFLICT (shop_id) DO UPDATE SET settings=EXCLUDED.settings, updated_at=now()`,
        shopID, toJSON(values))
    return err
}

func (p *Postgres) GetExtensionStatus(ctx context.Context, shopID string) (model.ExtensionStatus, error) {
    var st model.ExtensionStatus
    st.ShopID = shopID
    var checkedAt sql.NullTime
    err := p.db.QueryRowContext(ctx, `SELECT activated, checked_at FROM extension_status WHERE shop_id=$1`, shopID).
        Scan(&st.Activated, &checkedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return st, nil
    }
    if err != nil {
        return model.ExtensionStatus{}, err
    }
    if checkedAt.Valid {
        st.CheckedAt = checkedAt.Time.UTC().Format(time.RFC3339)
    }
    return st, nil
}

func (p *Postgres) SaveExtensionStatus(ctx context.Context, shopID string, activated bool) error {
    _, err := p.db.ExecContext(ctx, `
        INSERT INTO extension_status (shop_id, activated, checked_at) VALUES ($1,$2,now())
        ON CONFLICT (shop_id) DO UPDATE SET activated=EXCLUDED.activated, checked_at=now()`,
        shopID, activated)
    return err
}

func (p *Postgres) RecordAgreement(ctx context.Context, rec model.AgreementRecord) (string, error) {
    id := uuid.New().String()
    ts := rec.TS
    if ts == "" {
        ts = time.Now().UTC().Format(time.RFC3339)
    }
    _, err := p.db.ExecContext(ctx, `
        INSERT INTO agreements (id, shop_id, session_id, checkout_id, behavior, checked, country, ts)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
        id, rec.ShopID, rec.SessionID, nullIfEmpty(rec.CheckoutID), rec.Behavior, rec.Checked, nullIfEmpty(rec.Country), ts)
    if err != nil {
        return "", err
    }
    return id, nil
}

func (p *Postgres) ListAgreements(ctx context.Context, shopID, cursor string, limit int) ([]model.AgreementRecord, string, error) {
    if limit <= 0 || limit > 500 {
        limit = 100
    }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `
            SELECT id::text, session_id, checkout_id, behavior, checked, country, ts
            FROM agreements WHERE shop_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, shopID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `
            SELECT id::text, session_id, checkout_id, behavior, checked, country, ts
            FROM agreements WHERE shop_id=$1 ORDER BY id LIMIT $2`, shopID, limit)
    }
    if err != nil {
        return nil, "", err
    }
    defer rows.Close()
    out := []model.AgreementRecord{}
    var last string
    for rows.Next() {
        var r model.AgreementRecord
        var checkout, country sql.NullString
        if err := rows.Scan(&r.ID, &r.SessionID, &checkout, &r.Behavior, &r.Checked, &country, &r.TS); err != nil {
            return nil, "", err
        }
        r.ShopID = shopID
        r.CheckoutID = checkout.String
        r.Country = country.String
        out = append(out, r)
        last = r.ID
    }
    var next string
    if len(out) == limit {
        next = last
    }
    return out, next, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    _, err := p.db.ExecContext(ctx, `
        INSERT INTO webhook_subscriptions (id, shop_id, url, secret, events, created_at)
        VALUES ($1,$2,$3,$4,$5,now())`,
        id, req.ShopID, req.URL, req.Secret, toJSON(req.Events))
    if err != nil {
        return model.Subscription{}, err
    }
    return model.Subscription{ID: id, ShopID: req.ShopID, URL: req.URL, Events: req.Events}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, shopID, eventType string) ([]model.Subscription, error) {
    rows, err := p.db.QueryContext(ctx, `
        SELECT id::text, url, secret, events FROM webhook_subscriptions WHERE shop_id=$1`, shopID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var raw []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &raw); err != nil {
            return nil, err
        }
        s.ShopID = shopID
        _ = json.Unmarshal(raw, &s.Events)
        for _, e := range s.Events {
            if e == eventType || e == "*" {
                out = append(out, s)
                break
            }
        }
    }
    return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, shopID, cursor string, limit int) ([]model.Subscription, string, error) {
    if limit <= 0 || limit > 500 {
        limit = 100
    }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `
            SELECT id::text, url, events FROM webhook_subscriptions
            WHERE shop_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, shopID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `
            SELECT id::text, url, events FROM webhook_subscriptions
            WHERE shop_id=$1 ORDER BY id LIMIT $2`, shopID, limit)
    }
    if err != nil {
        return nil, "", err
    }
    defer rows.Close()
    out := []model.Subscription{}
    var last string
    for rows.Next() {
        var s model.Subscription
        var raw []byte
        if err := rows.Scan(&s.ID, &s.URL, &raw); err != nil {
            return nil, "", err
        }
        s.ShopID = shopID
        _ = json.Unmarshal(raw, &s.Events)
        out = append(out, s)
        last = s.ID
    }
    var next string
    if len(out) == limit {
        next = last
    }
    return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, shopID, id string) error {
    res, err := p.db.ExecContext(ctx, `DELETE FROM webhook_subscriptions WHERE shop_id=$1 AND id::text=$2`, shopID, id)
    if err != nil {
        return err
    }
    if n, _ := res.RowsAffected(); n == 0 {
        return ErrNotFound
    }
    return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, shopID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    _, err := p.db.ExecContext(ctx, `
        INSERT INTO webhook_deliveries (id, shop_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`,
        id, shopID, nullIfEmpty(subscriptionID), eventType, url, secret, payload)
    if err != nil {
        return "", err
    }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    if limit <= 0 {
        limit = 50
    }
    rows, err := p.db.QueryContext(ctx, `
        SELECT id::text, shop_id, COALESCE(subscription_id::text,''), event_type, url, secret, payload, status, attempts
        FROM webhook_deliveries
        WHERE status IN ('pending','retry') AND next_attempt_at <= now()
        ORDER BY next_attempt_at LIMIT $1`, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        if err := rows.Scan(&d.ID, &d.ShopID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
            return nil, err
        }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if success {
        _, err := p.db.ExecContext(ctx, `
            UPDATE webhook_deliveries
            SET status='delivered', attempts=attempts+1, response_code=$2, latency_ms=$3, delivered_at=now()
            WHERE id::text=$1`, id, responseCode, latencyMs)
        return err
    }
    next := time.Now().Add(time.Minute)
    if nextAttemptAt != nil {
        next = *nextAttemptAt
    }
    _, err := p.db.ExecContext(ctx, `
        UPDATE webhook_deliveries
        SET status='retry', attempts=attempts+1, last_error=$2, response_code=$3, latency_ms=$4, next_attempt_at=$5
        WHERE id::text=$1`, id, lastError, responseCode, latencyMs, next)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `
        UPDATE webhook_deliveries
        SET status='failed', last_error=$2, response_code=$3, latency_ms=$4
        WHERE id::text=$1`, id, lastError, responseCode, latencyMs)
    return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, shopID, status, cursor string, limit int) ([]map[string]any, string, error) {
    if limit <= 0 || limit > 500 {
        limit = 100
    }
    q := `SELECT id::text, event_type, status, attempts, url, COALESCE(last_error,'')
          FROM webhook_deliveries WHERE shop_id=$1`
    args := []any{shopID}
    if status != "" {
        q += ` AND status=$2`
        args = append(args, status)
    }
    q += ` ORDER BY id`
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, "", err
    }
    defer rows.Close()
    out := []map[string]any{}
    for rows.Next() {
        var id, et, st, url, lastErr string
        var attempts int
        if err := rows.Scan(&id, &et, &st, &attempts, &url, &lastErr); err != nil {
            return nil, "", err
        }
        item := map[string]any{"id": id, "eventType": et, "status": st, "attempts": attempts, "url": url}
        if lastErr != "" {
            item["lastError"] = lastErr
        }
        out = append(out, item)
        if len(out) >= limit {
            break
        }
    }
    return out, "", rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, shopID, id string) error {
    res, err := p.db.ExecContext(ctx, `
        UPDATE webhook_deliveries SET status='pending', next_attempt_at=now()
        WHERE shop_id=$1 AND id::text=$2`, shopID, id)
    if err != nil {
        return err
    }
    if n, _ := res.RowsAffected(); n == 0 {
        return ErrNotFound
    }
    return nil
}

func (p *Postgres) ListWebhookDLQ(ctx context.Context, shopID, cursor string, limit int) ([]map[string]any, string, error) {
    if limit <= 0 || limit > 500 {
        limit = 100
    }
    rows, err := p.db.QueryContext(ctx, `
        SELECT id::text, event_type, COALESCE(last_error,''), COALESCE(response_code,0)
        FROM webhook_deliveries WHERE shop_id=$1 AND status='failed' ORDER BY id LIMIT $2`, shopID, limit)
    if err != nil {
        return nil, "", err
    }
    defer rows.Close()
    out := []map[string]any{}
    for rows.Next() {
        var id, et, lastErr string
        var code int
        if err := rows.Scan(&id, &et, &lastErr, &code); err != nil {
            return nil, "", err
        }
        out = append(out, map[string]any{"id": id, "eventType": et, "lastError": lastErr, "responseCode": code})
    }
    return out, "", rows.Err()
}

func (p *Postgres) RequeueWebhookDLQ(ctx context.Context, shopID, id string) error {
    res, err := p.db.ExecContext(ctx, `
        UPDATE webhook_deliveries SET status='pending', attempts=0, next_attempt_at=now()
        WHERE shop_id=$1 AND id::text=$2 AND status='failed'`, shopID, id)
    if err != nil {
        return err
    }
    if n, _ := res.RowsAffected(); n == 0 {
        return ErrNotFound
    }
    return nil
}

func toJSON(v any) []byte {
    b, _ := json.Marshal(v)
    if b == nil {
        b = []byte("{}")
    }
    return b
}

func nullIfEmpty(s string) any {
    if s == "" {
        return nil
    }
    return s
}

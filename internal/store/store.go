package store

import (
    "context"
    "errors"
    "time"

    "consentgate/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
    // Shop settings (raw key/value configuration)
    GetShopSettings(ctx context.Context, shopID string) (map[string]any, error)
    SaveShopSettings(ctx context.Context, shopID string, values map[string]any) error

    // Extension activation status
    GetExtensionStatus(ctx context.Context, shopID string) (model.ExtensionStatus, error)
    SaveExtensionStatus(ctx context.Context, shopID string, activated bool) error

    // Agreement audit log
    RecordAgreement(ctx context.Context, rec model.AgreementRecord) (string, error)
    ListAgreements(ctx context.Context, shopID, cursor string, limit int) ([]model.AgreementRecord, string, error)

    // Webhook subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, shopID, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, shopID, cursor string, limit int) ([]model.Subscription, string, error)
    DeleteSubscription(ctx context.Context, shopID, id string) error

    // Webhook delivery queue
    EnqueueWebhook(ctx context.Context, shopID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, shopID, status, cursor string, limit int) ([]map[string]any, string, error)
    RetryWebhookDelivery(ctx context.Context, shopID, id string) error

    // Dead-letter queue
    ListWebhookDLQ(ctx context.Context, shopID, cursor string, limit int) ([]map[string]any, string, error)
    RequeueWebhookDLQ(ctx context.Context, shopID, id string) error
}

var ErrNotFound = errors.New("not found")

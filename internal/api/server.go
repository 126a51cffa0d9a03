package api

import (
    "os"
    "strings"

    "consentgate/internal/auth"
    "consentgate/internal/extension"
    "consentgate/internal/platform"
    "consentgate/internal/store"
    "consentgate/internal/webhooks"
)

type Server struct {
    Store     store.Store
    Pub       *webhooks.Publisher
    Auth      *auth.Verifier
    Broker    EventBroker
    Sessions  *extension.Manager
    Decisions *DecisionLog
    Platform  platform.Platform
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store.
func NewServer() (*Server, error) {
    dsn := os.Getenv("DATABASE_URL")
    var s store.Store
    if strings.TrimSpace(dsn) == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(dsn)
        if err != nil {
            return nil, err
        }
        // Run migrations (dev helper)
        if os.Getenv("DB_MIGRATE") != "false" {
            _ = sp.MigrateDir("db/migrations")
        }
        s = sp
    }
    // Broker selection
    var broker EventBroker
    if os.Getenv("REDIS_URL") != "" {
        if rb, err := NewRedisBroker(); err == nil { broker = rb } else { broker = NewBroker() }
    } else {
        broker = NewBroker()
    }
    srv := &Server{
        Store:     s,
        Pub:       webhooks.NewPublisher(s),
        Auth:      auth.NewVerifierFromEnv(),
        Broker:    broker,
        Decisions: NewDecisionLog(),
        Platform:  platform.NewStoreBacked(s),
    }
    srv.Sessions = extension.NewManager(brokerFeed{broker})
    return srv, nil
}

// brokerFeed adapts the EventBroker to the extension session feed.
type brokerFeed struct {
    b EventBroker
}

func (f brokerFeed) Subscribe(sessionID string) (<-chan extension.Event, func()) {
    src := f.b.Subscribe(sessionID)
    out := make(chan extension.Event, 8)
    done := make(chan struct{})
    go func() {
        defer close(out)
        for {
            select {
            case evt, ok := <-src:
                if !ok {
                    return
                }
                select {
                case out <- extension.Event{Type: evt.Type, Data: evt.Data}:
                default:
                }
            case <-done:
                return
            }
        }
    }()
    unsub := func() {
        close(done)
        f.b.Unsubscribe(sessionID, src)
    }
    return out, unsub
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store)
}

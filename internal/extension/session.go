// Package extension hosts the checkout extension shell: per-checkout
// sessions owning checkbox state, fed by the host's cart and
// shipping-destination updates.
package extension

import (
    "strings"
    "sync"

    "consentgate/internal/intercept"
    "consentgate/internal/model"
    "consentgate/internal/richtext"
    "consentgate/internal/settings"
    "consentgate/internal/visibility"
)

// Event mirrors the broker events a session consumes.
type Event struct {
    Type string
    Data map[string]any
}

// EventDestinationUpdated carries a countryCode in Data.
const EventDestinationUpdated = "destination.updated"

// Feed is the subscribable update stream for a session. Subscribe
// returns the channel and an unsubscribe func; unsubscribing closes the
// channel.
type Feed interface {
    Subscribe(sessionID string) (<-chan Event, func())
}

// Session is one checkout's extension instance. All shared state is
// owned here and mutated only through its methods; a mutex serializes
// the HTTP handlers and the feed goroutine.
type Session struct {
    ID         string
    ShopID     string
    CheckoutID string

    mu       sync.Mutex
    settings settings.Settings
    caps     model.Capabilities
    state    model.CheckboxState
    lines    []model.CartLine
    country  string
    ctrl     *intercept.Controller
    closed   bool
    unsub    func()
}

func newSession(id string, req model.SessionRequest, s settings.Settings, feed Feed) *Session {
    caps := model.Capabilities{CanUpdateAttributes: true}
    if req.Capabilities != nil {
        caps = *req.Capabilities
    }
    sess := &Session{
        ID:         id,
        ShopID:     req.ShopID,
        CheckoutID: req.CheckoutID,
        settings:   s,
        caps:       caps,
        lines:      req.CartLines,
        state: model.CheckboxState{
            Checked:  s.GetBoolean(settings.KeyCheckboxDefaultChecked, false),
            Required: s.GetBoolean(settings.KeyCheckboxRequired, false),
        },
    }
    sess.ctrl = intercept.New(sess.setErrorVisible)
    if req.Destination != nil {
        sess.country = req.Destination.CountryCode
    }
    if feed != nil {
        ch, unsub := feed.Subscribe(id)
        sess.unsub = unsub
        go sess.consume(ch)
    }
    return sess
}

// consume applies feed events until the channel closes on unsubscribe.
func (s *Session) consume(ch <-chan Event) {
    for evt := range ch {
        if evt.Type != EventDestinationUpdated {
            continue
        }
        code, _ := evt.Data["countryCode"].(string)
        s.UpdateDestination(code)
    }
}

// Close tears the session down and detaches it from the feed. Late feed
// callbacks after Close are dropped.
func (s *Session) Close() {
    s.mu.Lock()
    closed := s.closed
    s.closed = true
    unsub := s.unsub
    s.unsub = nil
    s.mu.Unlock()
    if !closed && unsub != nil {
        unsub()
    }
}

// UpdateSettings swaps in fresh shop configuration; required-flag
// re-derives, checked state survives the merchant edit.
func (s *Session) UpdateSettings(cfg settings.Settings) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.closed {
        return
    }
    s.settings = cfg
    s.state.Required = cfg.GetBoolean(settings.KeyCheckboxRequired, false)
}

// UpdateCart replaces the known cart lines.
func (s *Session) UpdateCart(lines []model.CartLine) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.closed {
        return
    }
    s.lines = lines
}

// UpdateDestination records a shipping-destination change from the feed.
func (s *Session) UpdateDestination(countryCode string) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.closed {
        return
    }
    s.country = countryCode
}

// Toggle applies a checkbox change event and returns the new checked
// state. The host event contract is duck-typed: either {checked} or
// {target:{checked}}; anything else reads as unchecked.
func (s *Session) Toggle(event map[string]any) bool {
    checked := NormalizeToggle(event)
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.closed {
        return checked
    }
    s.state.Checked = checked
    return checked
}

// NormalizeToggle extracts the checked flag from a heterogeneous toggle
// payload, defaulting false.
func NormalizeToggle(event map[string]any) bool {
    if event == nil {
        return false
    }
    if v, ok := event["checked"].(bool); ok {
        return v
    }
    if t, ok := event["target"].(map[string]any); ok {
        if v, ok := t["checked"].(bool); ok {
            return v
        }
    }
    return false
}

func (s *Session) setErrorVisible(visible bool) {
    // Called under s.mu from Intercept.
    s.state.ErrorVisible = visible
}

// visible is the composed render/gating verdict: hide flag, host
// capability, then the targeting rules.
func (s *Session) visible() bool {
    if s.settings.GetBoolean(settings.KeyHideCheckbox, false) {
        return false
    }
    if !s.caps.CanUpdateAttributes {
        return false
    }
    return visibility.ShouldShow(s.settings, s.lines, s.country)
}

// Intercept judges one checkout-progression attempt and finalizes the
// decision, updating the inline error surface.
func (s *Session) Intercept(canBlock bool) *intercept.Decision {
    s.mu.Lock()
    defer s.mu.Unlock()
    msg := s.settings.GetString(settings.KeyBlockErrorMessage, settings.DefaultBlockError)
    if strings.TrimSpace(msg) == "" {
        msg = settings.DefaultBlockError
    }
    d := s.ctrl.Evaluate(intercept.Input{
        Visible:      s.visible(),
        Required:     s.state.Required,
        Checked:      s.state.Checked,
        CanBlock:     canBlock,
        ErrorMessage: msg,
    })
    d.Finalize()
    return d
}

// RenderSurface is the declarative UI description handed to the host
// renderer.
type RenderSurface struct {
    Kind     string              `json:"kind"` // none | notice | checkbox
    Notice   string              `json:"notice,omitempty"`
    Checkbox *CheckboxView       `json:"checkbox,omitempty"`
    State    model.CheckboxState `json:"state"`
}

// CheckboxView binds the control to state plus rendered label fragments.
type CheckboxView struct {
    Checked  bool                `json:"checked"`
    Required bool                `json:"required"`
    Error    string              `json:"error,omitempty"`
    Label    []richtext.Fragment `json:"label"`
}

const attributesNotice = "This checkout does not support attribute updates; the agreement checkbox is unavailable."

// Render produces the current UI description. Hidden configuration
// renders nothing; a host without attribute updates gets a notice; an
// out-of-target cart renders nothing.
func (s *Session) Render() RenderSurface {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.settings.GetBoolean(settings.KeyHideCheckbox, false) {
        return RenderSurface{Kind: "none", State: s.state}
    }
    if !s.caps.CanUpdateAttributes {
        return RenderSurface{Kind: "notice", Notice: attributesNotice, State: s.state}
    }
    if !visibility.ShouldShow(s.settings, s.lines, s.country) {
        return RenderSurface{Kind: "none", State: s.state}
    }
    label := richtext.Render(s.settings.Label())
    view := &CheckboxView{
        Checked:  s.state.Checked,
        Required: s.state.Required,
        Label:    label,
    }
    if s.state.ErrorVisible {
        view.Error = s.settings.GetString(settings.KeyBlockErrorMessage, settings.DefaultBlockError)
    }
    return RenderSurface{Kind: "checkbox", Checkbox: view, State: s.state}
}

// Snapshot returns a copy of the current state for observers.
func (s *Session) Snapshot() model.CheckboxState {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.state
}

// Country returns the last-known shipping country code.
func (s *Session) Country() string {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.country
}

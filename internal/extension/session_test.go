package extension

import (
    "testing"
    "time"

    "consentgate/internal/model"
    "consentgate/internal/settings"
)

// stubFeed hands out one channel per subscribe and records unsubscribes.
type stubFeed struct {
    ch      chan Event
    unsubed bool
}

func newStubFeed() *stubFeed { return &stubFeed{ch: make(chan Event, 4)} }

func (f *stubFeed) Subscribe(sessionID string) (<-chan Event, func()) {
    return f.ch, func() { f.unsubed = true; close(f.ch) }
}

func TestNormalizeToggle(t *testing.T) {
    cases := []struct {
        in   map[string]any
        want bool
    }{
        {map[string]any{"checked": true}, true},
        {map[string]any{"checked": false}, false},
        {map[string]any{"target": map[string]any{"checked": true}}, true},
        {map[string]any{"target": map[string]any{"checked": false}}, false},
        {map[string]any{"target": map[string]any{}}, false},
        {map[string]any{"checked": "yes"}, false},
        {map[string]any{}, false},
        {nil, false},
    }
    for i, c := range cases {
        if got := NormalizeToggle(c.in); got != c.want {
            t.Fatalf("case %d: got %v, want %v (input %v)", i, got, c.want, c.in)
        }
    }
}

func TestSessionInitialState(t *testing.T) {
    cfg := settings.New(map[string]any{
        settings.KeyCheckboxDefaultChecked: true,
        settings.KeyCheckboxRequired:       true,
    })
    sess := newSession("s1", model.SessionRequest{ShopID: "shop"}, cfg, nil)
    st := sess.Snapshot()
    if !st.Checked || !st.Required || st.ErrorVisible {
        t.Fatalf("initial state wrong: %+v", st)
    }
}

func TestRenderNoticeWithoutAttributeSupport(t *testing.T) {
    caps := model.Capabilities{CanUpdateAttributes: false}
    sess := newSession("s1", model.SessionRequest{Capabilities: &caps}, settings.New(nil), nil)
    surface := sess.Render()
    if surface.Kind != "notice" || surface.Notice == "" {
        t.Fatalf("expected notice surface, got %+v", surface)
    }
    // A host that cannot render the checkbox must not be blocked either.
    if d := sess.Intercept(true); d.Block() {
        t.Fatalf("notice surface must not block")
    }
}

func TestFeedDrivenDestinationUpdate(t *testing.T) {
    cfg := settings.New(map[string]any{settings.KeyCountrySelection: "US"})
    feed := newStubFeed()
    sess := newSession("s1", model.SessionRequest{
        Destination: &model.ShippingDestination{CountryCode: "DE"},
    }, cfg, feed)
    defer sess.Close()

    if sess.Render().Kind != "none" {
        t.Fatalf("DE should be out of target")
    }
    feed.ch <- Event{Type: EventDestinationUpdated, Data: map[string]any{"countryCode": "US"}}

    deadline := time.Now().Add(500 * time.Millisecond)
    for time.Now().Before(deadline) {
        if sess.Country() == "US" {
            break
        }
        time.Sleep(5 * time.Millisecond)
    }
    if sess.Country() != "US" {
        t.Fatalf("feed update not applied, country=%q", sess.Country())
    }
    if sess.Render().Kind != "checkbox" {
        t.Fatalf("US should be in target after update")
    }
}

func TestCloseUnsubscribesOnce(t *testing.T) {
    feed := newStubFeed()
    sess := newSession("s1", model.SessionRequest{}, settings.New(nil), feed)
    sess.Close()
    if !feed.unsubed {
        t.Fatalf("close must tear down the feed subscription")
    }
    // second close is a no-op (unsub closes the channel; a repeat would panic)
    sess.Close()
    // mutations after close are dropped
    sess.UpdateDestination("FR")
    if sess.Country() != "" {
        t.Fatalf("closed session must drop updates")
    }
}

func TestManagerForShop(t *testing.T) {
    m := NewManager(nil)
    a := m.Create(model.SessionRequest{ShopID: "alpha"}, settings.New(nil))
    b := m.Create(model.SessionRequest{ShopID: "beta"}, settings.New(nil))

    hidden := settings.New(map[string]any{settings.KeyHideCheckbox: true})
    m.ForShop("alpha", func(s *Session) { s.UpdateSettings(hidden) })

    if a.Render().Kind != "none" {
        t.Fatalf("alpha session should pick up the edit")
    }
    if b.Render().Kind != "checkbox" {
        t.Fatalf("beta session must be untouched")
    }

    m.Close(a.ID)
    if m.Get(a.ID) != nil {
        t.Fatalf("closed session still registered")
    }
    m.CloseAll()
    if m.Get(b.ID) != nil {
        t.Fatalf("CloseAll left a session behind")
    }
}

func TestInterceptUsesConfiguredMessage(t *testing.T) {
    cfg := settings.New(map[string]any{
        settings.KeyCheckboxRequired:  true,
        settings.KeyBlockErrorMessage: "Custom message",
    })
    sess := newSession("s1", model.SessionRequest{}, cfg, nil)
    d := sess.Intercept(true)
    if !d.Block() || d.Errors[0].Message != "Custom message" {
        t.Fatalf("decision wrong: %+v", d)
    }
    if !sess.Snapshot().ErrorVisible {
        t.Fatalf("block must surface the error")
    }

    // Blank message falls back to the default
    cfg = settings.New(map[string]any{
        settings.KeyCheckboxRequired:  true,
        settings.KeyBlockErrorMessage: "   ",
    })
    sess = newSession("s2", model.SessionRequest{}, cfg, nil)
    d = sess.Intercept(true)
    if d.Errors[0].Message != settings.DefaultBlockError {
        t.Fatalf("blank message should default, got %q", d.Errors[0].Message)
    }
}

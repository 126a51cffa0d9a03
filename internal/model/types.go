package model

// Core domain types for the agreement checkbox extension.

// CartLine identifies a line item in the buyer's cart. Hosts disagree on
// where the variant id lives, so every known path is carried and the
// visibility evaluator normalizes them to a single id.
type CartLine struct {
    ID       string `json:"id,omitempty"`
    Quantity int    `json:"quantity,omitempty"`
    // Newer hosts nest the variant under merchandise.
    Merchandise *Merchandise `json:"merchandise,omitempty"`
    // Older hosts expose it flat.
    VariantID string `json:"variantId,omitempty"`
}

type Merchandise struct {
    ID      string   `json:"id,omitempty"`
    Product *Product `json:"product,omitempty"`
}

type Product struct {
    ID string `json:"id,omitempty"`
}

// ShippingDestination is the buyer's delivery address as far as targeting
// cares: a country code, possibly empty until the buyer enters one.
type ShippingDestination struct {
    CountryCode string `json:"countryCode,omitempty"`
    Province    string `json:"provinceCode,omitempty"`
    City        string `json:"city,omitempty"`
    Zip         string `json:"zip,omitempty"`
}

// CheckboxState is the mutable per-session checkbox state, owned by the
// extension session and mutated only through its methods.
type CheckboxState struct {
    Checked      bool `json:"checked"`
    Required     bool `json:"required"`
    ErrorVisible bool `json:"errorVisible"`
}

// Capabilities are host flags delivered at session creation.
type Capabilities struct {
    // CanUpdateAttributes is false on hosts that do not let extensions
    // write checkout attributes; the session renders a notice instead of
    // the checkbox.
    CanUpdateAttributes bool `json:"canUpdateAttributes"`
}

// SessionRequest creates a checkout session.
type SessionRequest struct {
    ShopID       string               `json:"shopId"`
    CheckoutID   string               `json:"checkoutId,omitempty"`
    CartLines    []CartLine           `json:"cartLines"`
    Destination  *ShippingDestination `json:"shippingDestination,omitempty"`
    Capabilities *Capabilities        `json:"capabilities,omitempty"`
}

// InterceptRequest is a checkout-progression attempt from the host.
type InterceptRequest struct {
    CanBlockProgress bool `json:"canBlockProgress"`
}

// AgreementRecord is one audit log row: the outcome of an intercept.
type AgreementRecord struct {
    ID         string `json:"id"`
    ShopID     string `json:"shopId"`
    SessionID  string `json:"sessionId"`
    CheckoutID string `json:"checkoutId,omitempty"`
    Behavior   string `json:"behavior"` // allow | block
    Checked    bool   `json:"checked"`
    Country    string `json:"country,omitempty"`
    TS         string `json:"ts"`
}

// ExtensionStatus reports whether the checkout extension is activated for
// a shop, with the deep link into the checkout editor.
type ExtensionStatus struct {
    ShopID    string `json:"shopId"`
    Activated bool   `json:"activated"`
    EditorURL string `json:"editorUrl,omitempty"`
    CheckedAt string `json:"checkedAt,omitempty"`
}

// Subscription is a merchant webhook subscription.
type Subscription struct {
    ID     string   `json:"id"`
    ShopID string   `json:"shopId"`
    URL    string   `json:"url"`
    Events []string `json:"events"`
    Secret string   `json:"secret,omitempty"`
}

type SubscriptionRequest struct {
    ShopID string   `json:"shopId"`
    URL    string   `json:"url"`
    Events []string `json:"events"`
    Secret string   `json:"secret"`
}

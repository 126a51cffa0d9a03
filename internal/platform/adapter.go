// Package platform abstracts the commerce platform the admin app talks
// to: extension activation lookups and checkout editor deep links. The
// real GraphQL client lives outside this repo; the interface is what the
// core needs.
package platform

import (
    "context"
    "fmt"

    "consentgate/internal/model"
    "consentgate/internal/store"
)

// Platform answers admin questions about a shop's checkout extension.
type Platform interface {
    // ExtensionStatus reports whether the agreement checkbox extension is
    // activated in the shop's checkout profile.
    ExtensionStatus(ctx context.Context, shopID string) (model.ExtensionStatus, error)
    // CheckoutEditorURL is the deep link into the shop's checkout editor.
    CheckoutEditorURL(shopID string) string
}

// StoreBacked is the dev implementation: activation status is whatever
// was last recorded in the store (set by deploy tooling or the admin
// endpoint), no platform round-trip.
type StoreBacked struct {
    Store store.Store
}

func NewStoreBacked(s store.Store) *StoreBacked {
    return &StoreBacked{Store: s}
}

func (p *StoreBacked) ExtensionStatus(ctx context.Context, shopID string) (model.ExtensionStatus, error) {
    st, err := p.Store.GetExtensionStatus(ctx, shopID)
    if err != nil {
        return model.ExtensionStatus{}, err
    }
    st.EditorURL = p.CheckoutEditorURL(shopID)
    return st, nil
}

func (p *StoreBacked) CheckoutEditorURL(shopID string) string {
    return fmt.Sprintf("https://admin.shopify.com/store/%s/settings/checkout/editor", shopID)
}

package api

import (
	"fmt"
	"net/url"
	"strings"

	"consentgate/internal/model"
	"consentgate/internal/settings"
	"consentgate/internal/webhooks"
)

func validateSubscription(req model.SubscriptionRequest) error {
	if strings.TrimSpace(req.URL) == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be a valid http(s) URL")
	}
	if len(req.Events) == 0 {
		return fmt.Errorf("events must be non-empty")
	}
	allowed := map[string]struct{}{
		"*":                             {},
		webhooks.EventSettingsUpdated:   {},
		webhooks.EventAgreementAccepted: {},
		webhooks.EventCheckoutBlocked:   {},
	}
	for _, e := range req.Events {
		if _, ok := allowed[e]; !ok {
			return fmt.Errorf("unknown event: %s (allowed: *,settings.updated,agreement.accepted,checkout.blocked)", e)
		}
	}
	return nil
}

// validateSettings rejects values of the wrong type for the keys the
// extension interprets. Unknown keys pass through untouched so merchants
// can stash extra metadata.
func validateSettings(values map[string]any) error {
	boolKeys := []string{
		settings.KeyHideCheckbox,
		settings.KeyCheckboxRequired,
		settings.KeyCheckboxDefaultChecked,
		settings.KeyMatchAnyVariant,
	}
	for _, k := range boolKeys {
		if v, ok := values[k]; ok {
			if _, isBool := v.(bool); !isBool {
				return fmt.Errorf("%s must be a boolean", k)
			}
		}
	}
	if v, ok := values[settings.KeyBlockErrorMessage]; ok {
		if _, isStr := v.(string); !isStr {
			return fmt.Errorf("%s must be a string", settings.KeyBlockErrorMessage)
		}
	}
	return nil
}

package ringcentral

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

const (
	subscriptionPath      = "/restapi/v1.0/subscription"
	subscriptionExpiresIn = 7 * 24 * 60 * 60
	instantSmsEventFilter = "/restapi/v1.0/account/~/extension/~/message-store/instant?type=SMS"
	messageStoreFilter    = "/restapi/v1.0/account/~/extension/~/message-store"
)

type deliveryMode struct {
	TransportType     string `json:"transportType"`
	Address           string `json:"address"`
	VerificationToken string `json:"verificationToken,omitempty"`
}

type subscriptionRequest struct {
	EventFilters []string     `json:"eventFilters"`
	DeliveryMode deliveryMode `json:"deliveryMode"`
	ExpiresIn    int          `json:"expiresIn"`
}

type subscriptionResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	ExpirationTime string `json:"expirationTime"`
}

// RenewSubscription keeps the webhook subscription alive, creating it when
// none exists or the previous one was removed on the RingCentral side.
// It is a no-op when no webhook URL is configured.
func (d *Driver) RenewSubscription(ctx context.Context) error {
	cfg, _, ready := d.snapshot()
	if !ready {
		return fmt.Errorf("ringcentral driver is not initialized")
	}
	if cfg.WebhookURL == "" {
		return nil
	}

	d.subMu.Lock()
	defer d.subMu.Unlock()

	if d.subscriptionID != "" && d.subscriptionAddress != cfg.WebhookURL {
		d.logger.WithField("subscription_id", d.subscriptionID).Info("RingCentral webhook address changed, recreating subscription")
		if err := d.removeSubscription(ctx, d.subscriptionID); err != nil {
			d.logger.WithError(err).Warn("Failed to delete previous RingCentral subscription")
		}
		d.subscriptionID = ""
	}

	if d.subscriptionID != "" {
		status, raw, err := d.doAuthorized(ctx, http.MethodPost, subscriptionPath+"/"+d.subscriptionID+"/renew", nil)
		if err != nil {
			return fmt.Errorf("failed to renew ringcentral subscription: %w", err)
		}
		if status == http.StatusOK {
			return d.storeSubscription(raw)
		}
		d.logger.WithField("status", status).Warn("RingCentral subscription renew rejected, recreating")
		d.subscriptionID = ""
	}

	payload, err := json.Marshal(subscriptionRequest{
		EventFilters: []string{instantSmsEventFilter, messageStoreFilter},
		DeliveryMode: deliveryMode{
			TransportType:     "WebHook",
			Address:           cfg.WebhookURL,
			VerificationToken: cfg.VerificationToken,
		},
		ExpiresIn: subscriptionExpiresIn,
	})
	if err != nil {
		return err
	}

	status, raw, err := d.doAuthorized(ctx, http.MethodPost, subscriptionPath, payload)
	if err != nil {
		return fmt.Errorf("failed to create ringcentral subscription: %w", err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("ringcentral subscription create rejected: %d body=%q", status, string(raw))
	}
	if err := d.storeSubscription(raw); err != nil {
		return err
	}
	d.subscriptionAddress = cfg.WebhookURL
	return nil
}

func (d *Driver) storeSubscription(raw []byte) error {
	var sub subscriptionResponse
	if err := json.Unmarshal(raw, &sub); err != nil || sub.ID == "" {
		return fmt.Errorf("unexpected ringcentral subscription response body=%q", string(raw))
	}
	d.subscriptionID = sub.ID
	d.logger.WithFields(logrus.Fields{
		"subscription_id": sub.ID,
		"expires_at":      sub.ExpirationTime,
	}).Info("RingCentral webhook subscription active")
	return nil
}

// SubscriptionID returns the active webhook subscription id, if any.
func (d *Driver) SubscriptionID() string {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	return d.subscriptionID
}

func (d *Driver) deleteSubscription(ctx context.Context) error {
	d.subMu.Lock()
	id := d.subscriptionID
	d.subscriptionID = ""
	d.subMu.Unlock()
	if id == "" {
		return nil
	}
	return d.removeSubscription(ctx, id)
}

func (d *Driver) removeSubscription(ctx context.Context, id string) error {
	status, _, err := d.doAuthorized(ctx, http.MethodDelete, subscriptionPath+"/"+id, nil)
	if err != nil {
		return fmt.Errorf("failed to delete ringcentral subscription: %w", err)
	}
	if status >= http.StatusMultipleChoices && status != http.StatusNotFound {
		return fmt.Errorf("ringcentral subscription delete rejected: %d", status)
	}
	return nil
}

package ringcentral

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"shift_sms_gateway/internal/domain/sms"
)

var ErrInvalidPayload = errors.New("invalid ringcentral webhook payload")

type notification struct {
	UUID           string        `json:"uuid"`
	Event          string        `json:"event"`
	Timestamp      string        `json:"timestamp"`
	SubscriptionID string        `json:"subscriptionId"`
	Body           messageRecord `json:"body"`
}

// ValidateWebhookSignature compares the Verification-Token header with the
// configured token. Without a configured token RingCentral offers no
// signature, so any notification carrying a subscription id that matches the
// active subscription (when known) is accepted. That is a trade-off, not a
// security guarantee.
func (d *Driver) ValidateWebhookSignature(signature, requestURL string, params map[string]string) bool {
	d.mu.RLock()
	token := d.cfg.VerificationToken
	d.mu.RUnlock()

	if token != "" {
		return subtle.ConstantTimeCompare([]byte(token), []byte(signature)) == 1
	}

	subID := params["subscriptionId"]
	if subID == "" {
		return false
	}
	if active := d.SubscriptionID(); active != "" {
		return active == subID
	}
	return true
}

func parseNotification(payload []byte) (*notification, error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if n.Body.ID.String() == "" {
		return nil, fmt.Errorf("%w: missing message id", ErrInvalidPayload)
	}
	return &n, nil
}

func (d *Driver) ParseInboundMessage(payload []byte) (*sms.InboundMessage, error) {
	n, err := parseNotification(payload)
	if err != nil {
		return nil, err
	}
	rec := n.Body
	if rec.Direction != "" && !strings.EqualFold(rec.Direction, "Inbound") {
		return nil, fmt.Errorf("%w: not an inbound message", ErrInvalidPayload)
	}
	if rec.From.PhoneNumber == "" {
		return nil, fmt.Errorf("%w: missing sender", ErrInvalidPayload)
	}

	msg := &sms.InboundMessage{
		MessageID: rec.ID.String(),
		From:      rec.From.PhoneNumber,
		Body:      rec.Subject,
	}
	if len(rec.To) > 0 {
		msg.To = rec.To[0].PhoneNumber
	}
	for _, a := range rec.Attachments {
		if a.Type == "MmsAttachment" && a.URI != "" {
			msg.MediaURLs = append(msg.MediaURLs, a.URI)
		}
	}
	msg.NumMedia = len(msg.MediaURLs)
	return msg, nil
}

func (d *Driver) ParseDeliveryStatus(payload []byte) (*sms.DeliveryStatusUpdate, error) {
	n, err := parseNotification(payload)
	if err != nil {
		return nil, err
	}
	rec := n.Body
	status, ok := mapStatus(rec.MessageStatus)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidPayload, rec.MessageStatus)
	}

	update := &sms.DeliveryStatusUpdate{
		MessageID: rec.ID.String(),
		Status:    status,
		ErrorCode: rec.ErrorCode,
	}
	for _, ts := range []string{rec.SmsDeliveryTime, rec.LastModifiedTime, n.Timestamp} {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			update.Timestamp = t
			break
		}
	}
	if update.ErrorCode != "" {
		update.ErrorMessage = fmt.Sprintf("delivery failed with %s", update.ErrorCode)
	}
	return update, nil
}

// GenerateResponse returns the plain acknowledgement RingCentral expects.
// Replies are sent through the API, never inline.
func (d *Driver) GenerateResponse(text string) string {
	return "OK"
}

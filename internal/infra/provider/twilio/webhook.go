package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"shift_sms_gateway/internal/domain/sms"
)

var ErrInvalidPayload = errors.New("invalid twilio webhook payload")

// ValidateWebhookSignature checks X-Twilio-Signature. It fails closed when no
// auth token is configured.
func (d *Driver) ValidateWebhookSignature(signature, requestURL string, params map[string]string) bool {
	d.mu.RLock()
	token := d.cfg.AuthToken
	d.mu.RUnlock()

	if token == "" || signature == "" {
		return false
	}
	expected := computeSignature(token, requestURL, params)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func computeSignature(authToken, requestURL string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(requestURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (d *Driver) ParseInboundMessage(payload []byte) (*sms.InboundMessage, error) {
	form, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	msg := &sms.InboundMessage{
		MessageID: firstOf(form, "MessageSid", "SmsSid"),
		From:      form.Get("From"),
		To:        form.Get("To"),
		Body:      form.Get("Body"),
	}
	if msg.MessageID == "" || msg.From == "" {
		return nil, fmt.Errorf("%w: missing MessageSid or From", ErrInvalidPayload)
	}

	if n, err := strconv.Atoi(form.Get("NumMedia")); err == nil && n > 0 {
		msg.NumMedia = n
		for i := 0; i < n; i++ {
			if u := form.Get(fmt.Sprintf("MediaUrl%d", i)); u != "" {
				msg.MediaURLs = append(msg.MediaURLs, u)
			}
		}
	}
	return msg, nil
}

// ParseDeliveryStatus reads a status callback. Twilio does not send an event
// time, so Timestamp is left zero.
func (d *Driver) ParseDeliveryStatus(payload []byte) (*sms.DeliveryStatusUpdate, error) {
	form, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	id := firstOf(form, "MessageSid", "SmsSid")
	rawStatus := firstOf(form, "MessageStatus", "SmsStatus")
	if id == "" || rawStatus == "" {
		return nil, fmt.Errorf("%w: missing MessageSid or MessageStatus", ErrInvalidPayload)
	}
	status, ok := mapStatus(rawStatus)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidPayload, rawStatus)
	}

	update := &sms.DeliveryStatusUpdate{
		MessageID:    id,
		Status:       status,
		ErrorCode:    form.Get("ErrorCode"),
		ErrorMessage: form.Get("ErrorMessage"),
	}
	if ts := form.Get("Timestamp"); ts != "" {
		if t, err := time.Parse(time.RFC1123Z, ts); err == nil {
			update.Timestamp = t
		}
	}
	return update, nil
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// GenerateResponse renders a TwiML envelope, with a reply message when text is set.
func (d *Driver) GenerateResponse(text string) string {
	out, err := xml.Marshal(twimlResponse{Message: text})
	if err != nil {
		return xml.Header + "<Response></Response>"
	}
	return xml.Header + string(out)
}

func firstOf(form url.Values, keys ...string) string {
	for _, k := range keys {
		if v := form.Get(k); v != "" {
			return v
		}
	}
	return ""
}

package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"shift_sms_gateway/internal/domain/sms"

	"github.com/sirupsen/logrus"
)

const (
	defaultBaseURL = "https://api.twilio.com"
	apiVersion     = "2010-04-01"
	requestTimeout = 15 * time.Second
)

// Driver talks to the Twilio Programmable Messaging REST API.
type Driver struct {
	mu          sync.RWMutex
	cfg         sms.ProviderConfig
	baseURL     string
	initialized bool

	httpClient *http.Client
	sleep      sms.SleepFunc
	logger     *logrus.Entry
}

// Option customizes a Driver.
type Option func(*Driver)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Driver) { d.httpClient = c }
}

// WithSleep replaces the backoff sleeper used between retries.
func WithSleep(fn sms.SleepFunc) Option {
	return func(d *Driver) { d.sleep = fn }
}

func New(logger *logrus.Entry, opts ...Option) *Driver {
	d := &Driver{
		httpClient: &http.Client{Timeout: requestTimeout},
		sleep:      sms.ContextSleep,
		logger:     logger.WithField("provider", string(sms.ProviderTwilio)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Type() sms.ProviderType { return sms.ProviderTwilio }

// Initialize validates credentials. No network call is made, and a rejected
// config leaves the current one in place.
func (d *Driver) Initialize(cfg sms.ProviderConfig) error {
	var missing []string
	if cfg.AccountSID == "" {
		missing = append(missing, "account_sid")
	}
	if cfg.AuthToken == "" {
		missing = append(missing, "auth_token")
	}
	if cfg.FromNumber == "" {
		missing = append(missing, "from_number")
	}
	if len(missing) > 0 {
		return fmt.Errorf("twilio configuration incomplete, missing: %s", strings.Join(missing, ", "))
	}

	base := strings.TrimRight(cfg.APIBaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}

	d.mu.Lock()
	d.cfg = cfg
	d.baseURL = base
	d.initialized = true
	d.mu.Unlock()

	d.logger.WithField("account_sid", cfg.AccountSID).Info("Twilio driver initialized")
	return nil
}

func (d *Driver) IsInitialized() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.initialized
}

func (d *Driver) ValidatePhoneNumber(raw string) sms.PhoneValidation {
	return sms.NormalizePhone(raw)
}

type messageResource struct {
	SID          string  `json:"sid"`
	Status       string  `json:"status"`
	NumSegments  string  `json:"num_segments"`
	ErrorCode    *int    `json:"error_code"`
	ErrorMessage *string `json:"error_message"`
}

type apiError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func (d *Driver) SendSMS(ctx context.Context, to, body, statusCallbackURL string) sms.SendResult {
	d.mu.RLock()
	cfg, base, ready := d.cfg, d.baseURL, d.initialized
	d.mu.RUnlock()

	if !ready {
		return sms.Failed(sms.CodeNotInitialized, "twilio driver is not initialized")
	}
	if strings.TrimSpace(body) == "" {
		return sms.Failed(sms.CodeEmptyBody, "message body is empty")
	}
	toCheck := d.ValidatePhoneNumber(to)
	if !toCheck.Valid {
		return sms.Failed(sms.CodeInvalidTo, toCheck.Error)
	}
	fromCheck := d.ValidatePhoneNumber(cfg.FromNumber)
	if !fromCheck.Valid {
		return sms.Failed(sms.CodeInvalidFrom, "configured from number is invalid: "+fromCheck.Error)
	}

	form := url.Values{}
	form.Set("To", toCheck.Formatted)
	form.Set("From", fromCheck.Formatted)
	form.Set("Body", body)
	if statusCallbackURL != "" {
		form.Set("StatusCallback", statusCallbackURL)
	}

	endpoint := fmt.Sprintf("%s/%s/Accounts/%s/Messages.json", base, apiVersion, url.PathEscape(cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return sms.Failed(sms.CodeNetwork, err.Error())
	}
	req.SetBasicAuth(cfg.AccountSID, cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.WithError(err).Warn("Twilio send request failed")
		return sms.Failed(sms.CodeNetwork, err.Error())
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return failureFromResponse(resp.StatusCode, raw)
	}

	var msg messageResource
	if err := json.Unmarshal(raw, &msg); err != nil || msg.SID == "" {
		return sms.Failed(sms.CodeUnexpectedPayload, fmt.Sprintf("unexpected send response body=%q", string(raw)))
	}

	result := sms.SendResult{
		Success:           true,
		MessageID:         msg.SID,
		ProviderMessageID: msg.SID,
		Segments:          1,
	}
	if status, ok := mapStatus(msg.Status); ok {
		result.Status = status
	} else {
		result.Status = sms.StatusQueued
	}
	if n, err := strconv.Atoi(msg.NumSegments); err == nil && n > 0 {
		result.Segments = n
	}
	return result
}

func failureFromResponse(statusCode int, raw []byte) sms.SendResult {
	var apiErr apiError
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Code != 0 {
		return sms.Failed(strconv.Itoa(apiErr.Code), apiErr.Message)
	}
	return sms.Failed(fmt.Sprintf("HTTP_%d", statusCode), fmt.Sprintf("unexpected status code: %d body=%q", statusCode, string(raw)))
}

func (d *Driver) SendSMSWithRetry(ctx context.Context, to, body, statusCallbackURL string, opts sms.RetryOptions) sms.SendResult {
	attempt := 0
	result := sms.SendWithRetry(ctx, func(ctx context.Context) sms.SendResult {
		attempt++
		r := d.SendSMS(ctx, to, body, statusCallbackURL)
		if !r.Success {
			d.logger.WithFields(logrus.Fields{
				"attempt":    attempt,
				"error_code": r.ErrorCode,
				"error_type": d.ClassifyError(r.ErrorCode),
			}).Warn("Twilio send attempt failed")
		}
		return r
	}, d.ClassifyError, opts, d.sleep)
	return result
}

func (d *Driver) GetMessageStatus(ctx context.Context, providerMessageID string) (sms.DeliveryStatus, bool) {
	d.mu.RLock()
	cfg, base, ready := d.cfg, d.baseURL, d.initialized
	d.mu.RUnlock()
	if !ready || providerMessageID == "" {
		return "", false
	}

	endpoint := fmt.Sprintf("%s/%s/Accounts/%s/Messages/%s.json", base, apiVersion, url.PathEscape(cfg.AccountSID), url.PathEscape(providerMessageID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", false
	}
	req.SetBasicAuth(cfg.AccountSID, cfg.AuthToken)
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.WithError(err).WithField("message_sid", providerMessageID).Warn("Twilio status lookup failed")
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	var msg messageResource
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return "", false
	}
	return mapStatus(msg.Status)
}

// Dispose marks the driver unusable. Twilio has no session state to release.
func (d *Driver) Dispose(ctx context.Context) error {
	d.mu.Lock()
	d.initialized = false
	d.mu.Unlock()
	d.httpClient.CloseIdleConnections()
	return nil
}

// mapStatus maps Twilio's message status vocabulary.
func mapStatus(s string) (sms.DeliveryStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accepted", "scheduled", "queued":
		return sms.StatusQueued, true
	case "sending":
		return sms.StatusSending, true
	case "sent":
		return sms.StatusSent, true
	case "delivered", "read":
		return sms.StatusDelivered, true
	case "undelivered":
		return sms.StatusUndelivered, true
	case "failed":
		return sms.StatusFailed, true
	case "canceled":
		return sms.StatusCanceled, true
	}
	return "", false
}

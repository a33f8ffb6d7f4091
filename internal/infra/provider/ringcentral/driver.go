package ringcentral

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"shift_sms_gateway/internal/domain/sms"

	"github.com/golang-jwt/jwt"
	"github.com/sirupsen/logrus"
)

const (
	defaultServerURL = "https://platform.ringcentral.com"
	smsPath          = "/restapi/v1.0/account/~/extension/~/sms"
	messageStorePath = "/restapi/v1.0/account/~/extension/~/message-store/"
	requestTimeout   = 15 * time.Second
)

// Driver talks to the RingCentral REST API using JWT bearer authorization.
// The access token is obtained lazily on the first authenticated call.
type Driver struct {
	mu          sync.RWMutex
	cfg         sms.ProviderConfig
	serverURL   string
	initialized bool

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time

	subMu               sync.Mutex
	subscriptionID      string
	subscriptionAddress string

	httpClient *http.Client
	sleep      sms.SleepFunc
	now        func() time.Time
	logger     *logrus.Entry
}

type Option func(*Driver)

func WithHTTPClient(c *http.Client) Option {
	return func(d *Driver) { d.httpClient = c }
}

func WithSleep(fn sms.SleepFunc) Option {
	return func(d *Driver) { d.sleep = fn }
}

func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

func New(logger *logrus.Entry, opts ...Option) *Driver {
	d := &Driver{
		httpClient: &http.Client{Timeout: requestTimeout},
		sleep:      sms.ContextSleep,
		now:        time.Now,
		logger:     logger.WithField("provider", string(sms.ProviderRingCentral)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Type() sms.ProviderType { return sms.ProviderRingCentral }

// Initialize validates credentials and the JWT assertion's expiry without
// contacting RingCentral. A rejected config leaves the current one in place.
func (d *Driver) Initialize(cfg sms.ProviderConfig) error {
	var missing []string
	if cfg.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if cfg.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if cfg.JWT == "" {
		missing = append(missing, "jwt")
	}
	if cfg.FromNumber == "" {
		missing = append(missing, "from_number")
	}
	if len(missing) > 0 {
		return fmt.Errorf("ringcentral configuration incomplete, missing: %s", strings.Join(missing, ", "))
	}

	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(cfg.JWT, claims); err != nil {
		return fmt.Errorf("ringcentral jwt credential is malformed: %w", err)
	}
	if !claims.VerifyExpiresAt(d.now().Unix(), false) {
		return fmt.Errorf("ringcentral jwt credential has expired")
	}

	server := strings.TrimRight(cfg.APIBaseURL, "/")
	if server == "" {
		server = strings.TrimRight(cfg.ServerURL, "/")
	}
	if server == "" {
		server = defaultServerURL
	}

	d.mu.Lock()
	credentialsChanged := d.cfg.ClientID != cfg.ClientID || d.cfg.JWT != cfg.JWT || d.serverURL != server
	d.cfg = cfg
	d.serverURL = server
	d.initialized = true
	d.mu.Unlock()

	if credentialsChanged {
		d.clearToken()
	}

	d.logger.WithField("server_url", server).Info("RingCentral driver initialized")
	return nil
}

func (d *Driver) markUninitialized() {
	d.mu.Lock()
	d.initialized = false
	d.mu.Unlock()
}

func (d *Driver) IsInitialized() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.initialized
}

func (d *Driver) snapshot() (sms.ProviderConfig, string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg, d.serverURL, d.initialized
}

func (d *Driver) ValidatePhoneNumber(raw string) sms.PhoneValidation {
	return sms.NormalizePhone(raw)
}

type phoneNumberInfo struct {
	PhoneNumber string `json:"phoneNumber"`
}

type sendRequest struct {
	From phoneNumberInfo   `json:"from"`
	To   []phoneNumberInfo `json:"to"`
	Text string            `json:"text"`
}

type messageRecord struct {
	ID               json.Number       `json:"id"`
	Direction        string            `json:"direction"`
	Type             string            `json:"type"`
	MessageStatus    string            `json:"messageStatus"`
	Subject          string            `json:"subject"`
	From             phoneNumberInfo   `json:"from"`
	To               []phoneNumberInfo `json:"to"`
	LastModifiedTime string            `json:"lastModifiedTime"`
	SmsDeliveryTime  string            `json:"smsDeliveryTime"`
	ErrorCode        string            `json:"errorCode"`
	Attachments      []attachment      `json:"attachments"`
}

type attachment struct {
	ID          json.Number `json:"id"`
	URI         string      `json:"uri"`
	Type        string      `json:"type"`
	ContentType string      `json:"contentType"`
}

type apiError struct {
	ErrorCode        string `json:"errorCode"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
	Errors           []struct {
		ErrorCode string `json:"errorCode"`
		Message   string `json:"message"`
	} `json:"errors"`
}

// SendSMS sends a text message. RingCentral has no per-message callback URL;
// delivery updates arrive through the webhook subscription instead.
func (d *Driver) SendSMS(ctx context.Context, to, body, statusCallbackURL string) sms.SendResult {
	cfg, _, ready := d.snapshot()
	if !ready {
		return sms.Failed(sms.CodeNotInitialized, "ringcentral driver is not initialized")
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

	payload, err := json.Marshal(sendRequest{
		From: phoneNumberInfo{PhoneNumber: fromCheck.Formatted},
		To:   []phoneNumberInfo{{PhoneNumber: toCheck.Formatted}},
		Text: body,
	})
	if err != nil {
		return sms.Failed(sms.CodeUnexpectedPayload, err.Error())
	}

	status, raw, err := d.doAuthorized(ctx, http.MethodPost, smsPath, payload)
	if err != nil {
		var rejected *tokenError
		if errors.As(err, &rejected) {
			d.logger.WithError(err).WithField("error_code", rejected.Code).Error("RingCentral rejected the credentials")
			return sms.Failed(rejected.Code, rejected.Message)
		}
		d.logger.WithError(err).Warn("RingCentral send request failed")
		return sms.Failed(sms.CodeNetwork, err.Error())
	}
	if status >= http.StatusMultipleChoices {
		return failureFromResponse(status, raw)
	}

	var rec messageRecord
	if err := json.Unmarshal(raw, &rec); err != nil || rec.ID.String() == "" {
		return sms.Failed(sms.CodeUnexpectedPayload, fmt.Sprintf("unexpected send response body=%q", string(raw)))
	}

	result := sms.SendResult{
		Success:           true,
		MessageID:         rec.ID.String(),
		ProviderMessageID: rec.ID.String(),
		Status:            sms.StatusQueued,
		Segments:          segmentCount(body),
	}
	if s, ok := mapStatus(rec.MessageStatus); ok {
		result.Status = s
	}
	return result
}

func failureFromResponse(status int, raw []byte) sms.SendResult {
	return sms.Failed(parseAPIError(status, raw))
}

// parseAPIError extracts RingCentral's errorCode, falling back to HTTP_<status>.
func parseAPIError(status int, raw []byte) (string, string) {
	var apiErr apiError
	if err := json.Unmarshal(raw, &apiErr); err == nil {
		code, msg := apiErr.ErrorCode, apiErr.Message
		if code == "" && len(apiErr.Errors) > 0 {
			code, msg = apiErr.Errors[0].ErrorCode, apiErr.Errors[0].Message
		}
		if msg == "" {
			msg = apiErr.ErrorDescription
		}
		if code != "" {
			return code, msg
		}
	}
	return fmt.Sprintf("HTTP_%d", status), fmt.Sprintf("unexpected status code: %d body=%q", status, string(raw))
}

// segmentCount estimates GSM-7 segments; RingCentral does not report them.
func segmentCount(body string) int {
	n := len([]rune(body))
	if n <= 160 {
		return 1
	}
	return (n + 152) / 153
}

func (d *Driver) SendSMSWithRetry(ctx context.Context, to, body, statusCallbackURL string, opts sms.RetryOptions) sms.SendResult {
	attempt := 0
	return sms.SendWithRetry(ctx, func(ctx context.Context) sms.SendResult {
		attempt++
		r := d.SendSMS(ctx, to, body, statusCallbackURL)
		if !r.Success {
			d.logger.WithFields(logrus.Fields{
				"attempt":    attempt,
				"error_code": r.ErrorCode,
				"error_type": d.ClassifyError(r.ErrorCode),
			}).Warn("RingCentral send attempt failed")
		}
		return r
	}, d.ClassifyError, opts, d.sleep)
}

func (d *Driver) GetMessageStatus(ctx context.Context, providerMessageID string) (sms.DeliveryStatus, bool) {
	if !d.IsInitialized() || providerMessageID == "" {
		return "", false
	}
	status, raw, err := d.doAuthorized(ctx, http.MethodGet, messageStorePath+url.PathEscape(providerMessageID), nil)
	if err != nil {
		d.logger.WithError(err).WithField("message_id", providerMessageID).Warn("RingCentral status lookup failed")
		return "", false
	}
	if status != http.StatusOK {
		return "", false
	}
	var rec messageRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", false
	}
	return mapStatus(rec.MessageStatus)
}

// Dispose deletes the webhook subscription and revokes the access token.
func (d *Driver) Dispose(ctx context.Context) error {
	var errs []string
	if err := d.deleteSubscription(ctx); err != nil {
		errs = append(errs, err.Error())
	}
	if err := d.revokeToken(ctx); err != nil {
		errs = append(errs, err.Error())
	}
	d.markUninitialized()
	d.httpClient.CloseIdleConnections()

	if len(errs) > 0 {
		return fmt.Errorf("failed to dispose ringcentral driver: %s", strings.Join(errs, "; "))
	}
	return nil
}

// doAuthorized performs an API call with a bearer token, refreshing it once
// when RingCentral answers 401.
func (d *Driver) doAuthorized(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := d.ensureToken(ctx)
		if err != nil {
			return 0, nil, err
		}

		_, server, _ := d.snapshot()
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, server+path, reader)
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := d.httpClient.Do(req)
		if err != nil {
			return 0, nil, err
		}
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			d.logger.Debug("RingCentral token rejected, re-authenticating")
			d.clearToken()
			continue
		}
		return resp.StatusCode, raw, nil
	}
	return 0, nil, fmt.Errorf("ringcentral authorization failed")
}

// mapStatus maps RingCentral's messageStatus vocabulary.
func mapStatus(s string) (sms.DeliveryStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "queued":
		return sms.StatusQueued, true
	case "sending":
		return sms.StatusSending, true
	case "sent":
		return sms.StatusSent, true
	case "delivered", "received":
		return sms.StatusDelivered, true
	case "deliveryfailed":
		return sms.StatusUndelivered, true
	case "sendingfailed", "failed":
		return sms.StatusFailed, true
	case "canceled", "cancelled":
		return sms.StatusCanceled, true
	}
	return "", false
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"shift_sms_gateway/internal/domain/sms"
	"shift_sms_gateway/internal/infra/provider/ringcentral"
	"shift_sms_gateway/internal/infra/provider/twilio"

	"github.com/sirupsen/logrus"
)

// ErrNoProvider is returned by parse calls when no driver is configured.
var ErrNoProvider = errors.New("no sms provider configured")

// Factory constructs an uninitialized driver for a provider type.
type Factory func(t sms.ProviderType) (sms.Driver, error)

// DefaultFactory builds the Twilio and RingCentral drivers.
func DefaultFactory(logger *logrus.Entry) Factory {
	return func(t sms.ProviderType) (sms.Driver, error) {
		switch t {
		case sms.ProviderTwilio:
			return twilio.New(logger), nil
		case sms.ProviderRingCentral:
			return ringcentral.New(logger), nil
		}
		return nil, fmt.Errorf("unsupported sms provider %q", t)
	}
}

// lease tracks calls in flight against one driver so it is disposed only
// after they finish.
type lease struct {
	driver   sms.Driver
	inflight sync.WaitGroup
}

// Gateway holds the single active driver. It is safe for concurrent use.
type Gateway struct {
	mu        sync.RWMutex
	active    *lease
	factory   Factory
	subscribe atomic.Bool
	logger    *logrus.Entry
}

func NewGateway(factory Factory, logger *logrus.Entry) *Gateway {
	return &Gateway{
		factory: factory,
		logger:  logger.WithField("component", "sms_gateway"),
	}
}

// EnableSubscriptions makes every successful Initialize register the push
// subscription of drivers that use one. Only the process serving webhooks
// should enable it.
func (g *Gateway) EnableSubscriptions() {
	g.subscribe.Store(true)
}

// Initialize activates cfg. A different provider type replaces the current
// driver, which is disposed once its in-flight calls drain. The same type is
// re-initialized in place; a rejected config keeps the current driver serving.
func (g *Gateway) Initialize(ctx context.Context, cfg sms.ProviderConfig) error {
	g.mu.Lock()
	current := g.active
	if current != nil && current.driver.Type() == cfg.Provider {
		err := current.driver.Initialize(cfg)
		g.mu.Unlock()
		if err != nil {
			return fmt.Errorf("failed to re-initialize %s driver: %w", cfg.Provider, err)
		}
		g.logger.WithField("provider", cfg.Provider).Info("SMS provider credentials rotated")
		g.subscribeActive(ctx)
		return nil
	}

	driver, err := g.factory(cfg.Provider)
	if err != nil {
		g.mu.Unlock()
		return err
	}
	if err := driver.Initialize(cfg); err != nil {
		g.mu.Unlock()
		return fmt.Errorf("failed to initialize %s driver: %w", cfg.Provider, err)
	}
	g.active = &lease{driver: driver}
	g.mu.Unlock()

	g.logger.WithField("provider", cfg.Provider).Info("SMS provider activated")
	g.subscribeActive(ctx)
	if current != nil {
		g.retire(ctx, current)
	}
	return nil
}

// subscribeActive registers the push subscription right away so inbound
// replies are not lost until the renewal job runs. Failures are left to that job.
func (g *Gateway) subscribeActive(ctx context.Context) {
	if !g.subscribe.Load() {
		return
	}
	if err := g.MaintainSubscription(ctx); err != nil {
		g.logger.WithError(err).Warn("Could not register SMS webhook subscription, the renewal job will retry")
	}
}

// Close disposes the active driver.
func (g *Gateway) Close(ctx context.Context) error {
	g.mu.Lock()
	current := g.active
	g.active = nil
	g.mu.Unlock()
	if current == nil {
		return nil
	}
	current.inflight.Wait()
	return current.driver.Dispose(ctx)
}

func (g *Gateway) retire(ctx context.Context, old *lease) {
	old.inflight.Wait()
	if err := old.driver.Dispose(ctx); err != nil {
		g.logger.WithError(err).WithField("provider", old.driver.Type()).Warn("Failed to dispose previous SMS driver")
	}
}

// acquire returns the active driver and a release func, or nil when unconfigured.
func (g *Gateway) acquire() (sms.Driver, func()) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.active == nil {
		return nil, func() {}
	}
	l := g.active
	l.inflight.Add(1)
	return l.driver, l.inflight.Done
}

// ProviderType returns the active provider, or "" when none is configured.
func (g *Gateway) ProviderType() sms.ProviderType {
	d, release := g.acquire()
	defer release()
	if d == nil {
		return ""
	}
	return d.Type()
}

func (g *Gateway) IsConfigured() bool {
	d, release := g.acquire()
	defer release()
	return d != nil && d.IsInitialized()
}

func noProvider() sms.SendResult {
	return sms.Failed(sms.CodeNoProvider, "no sms provider is configured")
}

func (g *Gateway) SendSMS(ctx context.Context, to, body, statusCallbackURL string) sms.SendResult {
	d, release := g.acquire()
	defer release()
	if d == nil {
		return noProvider()
	}
	return d.SendSMS(ctx, to, body, statusCallbackURL)
}

func (g *Gateway) SendSMSWithRetry(ctx context.Context, to, body, statusCallbackURL string, opts sms.RetryOptions) sms.SendResult {
	d, release := g.acquire()
	defer release()
	if d == nil {
		return noProvider()
	}
	return d.SendSMSWithRetry(ctx, to, body, statusCallbackURL, opts)
}

// ValidatePhoneNumber falls back to plain E.164 normalization when no driver is set.
func (g *Gateway) ValidatePhoneNumber(raw string) sms.PhoneValidation {
	d, release := g.acquire()
	defer release()
	if d == nil {
		return sms.NormalizePhone(raw)
	}
	return d.ValidatePhoneNumber(raw)
}

func (g *Gateway) ValidateWebhookSignature(signature, url string, params map[string]string) bool {
	d, release := g.acquire()
	defer release()
	if d == nil {
		return false
	}
	return d.ValidateWebhookSignature(signature, url, params)
}

func (g *Gateway) ParseInboundMessage(payload []byte) (*sms.InboundMessage, error) {
	d, release := g.acquire()
	defer release()
	if d == nil {
		return nil, ErrNoProvider
	}
	return d.ParseInboundMessage(payload)
}

func (g *Gateway) ParseDeliveryStatus(payload []byte) (*sms.DeliveryStatusUpdate, error) {
	d, release := g.acquire()
	defer release()
	if d == nil {
		return nil, ErrNoProvider
	}
	return d.ParseDeliveryStatus(payload)
}

// GenerateResponse returns "OK" when no driver is configured.
func (g *Gateway) GenerateResponse(text string) string {
	d, release := g.acquire()
	defer release()
	if d == nil {
		return "OK"
	}
	return d.GenerateResponse(text)
}

func (g *Gateway) IsRecoverableError(code string) bool {
	d, release := g.acquire()
	defer release()
	if d == nil {
		return false
	}
	return d.IsRecoverableError(code)
}

func (g *Gateway) GetMessageStatus(ctx context.Context, providerMessageID string) (sms.DeliveryStatus, bool) {
	d, release := g.acquire()
	defer release()
	if d == nil {
		return "", false
	}
	return d.GetMessageStatus(ctx, providerMessageID)
}

// MaintainSubscription renews the push subscription of drivers that use one.
func (g *Gateway) MaintainSubscription(ctx context.Context) error {
	d, release := g.acquire()
	defer release()
	if d == nil {
		return ErrNoProvider
	}
	sm, ok := d.(sms.SubscriptionManager)
	if !ok {
		return nil
	}
	return sm.RenewSubscription(ctx)
}

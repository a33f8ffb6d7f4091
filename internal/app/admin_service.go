package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shift_sms_gateway/internal/domain/audit"
	"shift_sms_gateway/internal/domain/message"
	"shift_sms_gateway/internal/domain/sms"
	"shift_sms_gateway/internal/domain/template"
)

var (
	ErrAdminNotAuthorized = errors.New("performing user is not authorized as an admin")
	ErrUnknownCategory    = errors.New("unknown template category")
)

// ProviderSwitcher activates SMS provider configurations at runtime.
type ProviderSwitcher interface {
	Initialize(ctx context.Context, cfg sms.ProviderConfig) error
	ProviderType() sms.ProviderType
	IsConfigured() bool
}

// AdminService exposes operator actions to the supervisor chat. Callers pass
// the sender's Telegram ID.
type AdminService struct {
	notifications   NotificationService
	templates       *TemplateService
	provider        ProviderSwitcher
	audit           audit.Sink
	adminTelegramID int64
}

func NewAdminService(ns NotificationService, ts *TemplateService, ps ProviderSwitcher, auditSink audit.Sink, adminID int64) *AdminService {
	return &AdminService{
		notifications:   ns,
		templates:       ts,
		provider:        ps,
		audit:           auditSink,
		adminTelegramID: adminID,
	}
}

// AdminID is the only Telegram user allowed to run admin actions.
func (s *AdminService) AdminID() int64 { return s.adminTelegramID }

func (s *AdminService) authorize(performingAdminID int64) error {
	if s.adminTelegramID == 0 || performingAdminID != s.adminTelegramID {
		return ErrAdminNotAuthorized
	}
	return nil
}

func (s *AdminService) SendToEmployee(ctx context.Context, performingAdminID, employeeID int64, text string) (*message.Message, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.notifications.SendOne(ctx, employeeID, text)
}

func (s *AdminService) Broadcast(ctx context.Context, performingAdminID int64, employeeIDs []int64, text string) (SendSummary, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return SendSummary{}, err
	}
	return s.notifications.SendBulk(ctx, employeeIDs, text)
}

func (s *AdminService) TestCredentials(ctx context.Context, performingAdminID int64, to string) (sms.SendResult, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return sms.SendResult{}, err
	}
	return s.notifications.TestCredentials(ctx, to), nil
}

func (s *AdminService) ReprocessReminders(ctx context.Context, performingAdminID int64, window time.Duration) (SendSummary, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return SendSummary{}, err
	}
	return s.notifications.ReprocessReminders(ctx, window)
}

// SwitchProvider activates cfg. The previous provider keeps serving if it fails.
func (s *AdminService) SwitchProvider(ctx context.Context, performingAdminID int64, cfg sms.ProviderConfig) error {
	if err := s.authorize(performingAdminID); err != nil {
		return err
	}
	return s.switchProvider(ctx, idString(performingAdminID), cfg)
}

// ReloadProvider applies a configuration read from the provider file.
func (s *AdminService) ReloadProvider(ctx context.Context, cfg sms.ProviderConfig) error {
	return s.switchProvider(ctx, systemActor, cfg)
}

func (s *AdminService) switchProvider(ctx context.Context, actor string, cfg sms.ProviderConfig) error {
	previous := s.provider.ProviderType()
	if err := s.provider.Initialize(ctx, cfg); err != nil {
		return fmt.Errorf("failed to switch sms provider: %w", err)
	}
	s.audit.LogAuditEvent(ctx, audit.Event{
		Action:     audit.ActionProviderChanged,
		Actor:      actor,
		TargetType: "sms_provider",
		TargetID:   string(cfg.Provider),
		TargetName: string(cfg.Provider),
		Details:    map[string]any{"previous": string(previous), "from_number": cfg.FromNumber},
	})
	return nil
}

// ProviderStatus describes the active provider for display.
func (s *AdminService) ProviderStatus() string {
	if !s.provider.IsConfigured() {
		return "No SMS provider is configured."
	}
	return fmt.Sprintf("Active SMS provider: %s", s.provider.ProviderType())
}

// PreviewTemplate renders content with sample data for the category.
func (s *AdminService) PreviewTemplate(category template.Category, content string) (string, ValidationResult, error) {
	if allowedVariables(category) == nil {
		return "", ValidationResult{}, ErrUnknownCategory
	}
	rendered, result := s.templates.PreviewTemplate(content, category)
	return rendered, result, nil
}

package audit

import (
	"context"

	"shift_sms_gateway/internal/domain/audit"

	"github.com/sirupsen/logrus"
)

type writer interface {
	Insert(ctx context.Context, e audit.Event) error
}

// DBSink writes audit events to the database. A failed write is logged and
// never surfaced to the caller.
type DBSink struct {
	repo   writer
	logger *logrus.Entry
}

var _ audit.Sink = (*DBSink)(nil)

func NewDBSink(repo writer, logger *logrus.Entry) *DBSink {
	return &DBSink{repo: repo, logger: logger.WithField("component", "audit")}
}

func (s *DBSink) LogAuditEvent(ctx context.Context, e audit.Event) {
	// The event is kept even when the request that caused it was canceled.
	if err := s.repo.Insert(context.WithoutCancel(ctx), e); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"action":      e.Action,
			"target_type": e.TargetType,
			"target_id":   e.TargetID,
		}).Error("Failed to write audit event")
	}
}

package notifier

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

// Multi fans an alert out to every configured notifier
type Multi struct {
	notifiers []contracts.Notifier
	logger    *zap.Logger
}

// NewMulti creates a fan-out notifier; nil entries are skipped
func NewMulti(logger *zap.Logger, notifiers ...contracts.Notifier) *Multi {
	m := &Multi{logger: logger.Named("notifier")}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Notify delivers to all notifiers; one failing does not stop the others
func (m *Multi) Notify(ctx context.Context, alert models.SystemAlert) error {
	var errs error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			m.logger.Warn("notification failed", zap.String("type", alert.Type), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Len returns the number of notifiers
func (m *Multi) Len() int {
	return len(m.notifiers)
}

// Package audit records security-relevant account events. Events go through
// the request logger under the "audit" name so a log pipeline can route them
// separately from operational logs.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/userauth/internal/observability/logger"
)

const (
	EventUserCreated     = "user.created"
	EventAccountDeleted  = "account.deleted"
	EventLogoutAll       = "session.logout_all"
	EventSubjectMismatch = "refresh.subject_mismatch"
	EventRefreshReplay   = "refresh.replayed"
)

// now is swapped in tests.
var now = time.Now

// Log writes one audit record carrying the event name and a UTC timestamp
// alongside fields.
func Log(ctx context.Context, event string, fields ...zap.Field) {
	l := logger.From(ctx).Named("audit")
	all := make([]zap.Field, 0, len(fields)+2)
	all = append(all, zap.String("event", event), zap.Time("event_at", now().UTC()))
	all = append(all, fields...)
	l.Info("audit", all...)
}

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dropDatabas3/userauth/internal/observability/logger"
)

func TestLog_WritesEventThroughContextLogger(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("KST", 9*3600))
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	core, logs := observer.New(zap.InfoLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core).With(logger.RequestID("req-1")))

	Log(ctx, EventAccountDeleted, logger.UserID("u-1"), logger.Count(2))

	require.Equal(t, 1, logs.Len())
	e := logs.All()[0]
	assert.Equal(t, "audit", e.LoggerName)
	assert.Equal(t, "audit", e.Message)

	f := e.ContextMap()
	assert.Equal(t, EventAccountDeleted, f["event"])
	at, ok := f["event_at"].(time.Time)
	require.True(t, ok)
	assert.True(t, at.Equal(fixed))
	assert.Equal(t, time.UTC, at.Location())
	assert.Equal(t, "u-1", f["user_id"])
	assert.Equal(t, int64(2), f["count"])
	assert.Equal(t, "req-1", f["request_id"])
}

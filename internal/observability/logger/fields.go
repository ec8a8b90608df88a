package logger

import (
	"strconv"

	"go.uber.org/zap"
)

// Request fields, set by the logging middleware.

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field { return zap.String("method", v) }
func Path(v string) zap.Field { return zap.String("path", v) }
func Status(v int) zap.Field { return zap.Int("status", v) }
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }
func Bytes(v int) zap.Field { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }
func UserAgent(v string) zap.Field { return zap.String("user_agent", v) }

// Code location fields.

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field { return zap.String("op", v) }
func Layer(v string) zap.Field { return zap.String("layer", v) }

// Auth domain fields.

func UserID(v string) zap.Field { return zap.String("user_id", v) }
func JTI(v string) zap.Field { return zap.String("jti", v) }
func Provider(v string) zap.Field { return zap.String("provider", v) }
func ProviderID(v int64) zap.Field { return zap.Int64("provider_id", v) }

// TokenTail logs the last 6 characters and the length of a credential,
// never the credential itself.
func TokenTail(key, token string) zap.Field {
	tail := token
	if len(tail) > 6 {
		tail = tail[len(tail)-6:]
	}
	return zap.String(key, "..."+tail+" (len="+strconv.Itoa(len(token))+")")
}

// Generic fields.

func Err(err error) zap.Field { return zap.Error(err) }
func Attempt(n int) zap.Field { return zap.Int("attempt", n) }
func Count(v int) zap.Field { return zap.Int("count", v) }
func Any(k string, v any) zap.Field { return zap.Any(k, v) }
func String(k, v string) zap.Field { return zap.String(k, v) }
func Int(k string, v int) zap.Field { return zap.Int(k, v) }
func Bool(k string, v bool) zap.Field { return zap.Bool(k, v) }

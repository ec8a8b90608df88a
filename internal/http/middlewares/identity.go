package middlewares

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/userauth/internal/http/errors"
	jwtx "github.com/dropDatabas3/userauth/internal/jwt"
	"github.com/dropDatabas3/userauth/internal/observability/logger"
)

const (
	IdentityModeHeader = "header"
	IdentityModeLocal  = "local"
)

// TokenVerifier verifies a signed token.
type TokenVerifier interface {
	Verify(token string) (*jwtx.Claims, error)
}

// IdentityConfig selects where the caller identity comes from.
//
// In header mode the identity is the value of Header, injected by a trusted
// gateway. In local mode it is the subject of an access token presented as
// "Authorization: Bearer <token>" and verified with Verifier.
//
// Required rejects requests without a usable identity. Otherwise a missing,
// expired or invalid bearer passes through with no identity and the handler
// decides.
type IdentityConfig struct {
	Mode     string
	Header   string
	Verifier TokenVerifier
	Required bool
}

// WithIdentity stores the caller identity in the context (see GetUserID) and
// adds it to the request logger.
func WithIdentity(cfg IdentityConfig) Middleware {
	if cfg.Header == "" {
		cfg.Header = "X-User-Id"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var userID string
			if cfg.Mode == IdentityModeLocal {
				token, ok := bearer(r)
				if ok {
					claims, err := verifyAccess(cfg.Verifier, token)
					switch {
					case err == nil:
						userID = claims.UserID()
					case cfg.Required:
						errors.WriteError(w, err)
						return
					default:
						// Clients refresh once the access token has expired; the
						// refresh token subject is checked downstream.
						logger.From(r.Context()).Debug("ignoring unusable bearer", logger.Err(err))
					}
				} else if cfg.Required {
					errors.WriteError(w, errors.ErrUnauthorized.WithDetail("bearer access token required"))
					return
				}
			} else {
				userID = strings.TrimSpace(r.Header.Get(cfg.Header))
				if userID == "" && cfg.Required {
					errors.WriteError(w, errors.ErrMissingIdentity.WithDetail(cfg.Header+" header is required"))
					return
				}
			}

			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithUserID(r.Context(), userID)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.UserID(userID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func verifyAccess(v TokenVerifier, token string) (*jwtx.Claims, error) {
	claims, err := v.Verify(token)
	if err != nil {
		if stderrors.Is(err, jwtx.ErrTokenExpired) {
			return nil, errors.ErrTokenExpired
		}
		return nil, errors.ErrTokenInvalid
	}
	if claims.Type != jwtx.TypeAccess {
		return nil, errors.ErrTokenInvalid.WithDetail("bearer must be an access token")
	}
	return claims, nil
}

func bearer(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[7:])
	return tok, tok != ""
}

package auth

import (
	"context"
	"errors"
	"fmt"

	jwtx "github.com/dropDatabas3/userauth/internal/jwt"
	"github.com/dropDatabas3/userauth/internal/oauth/kakao"
)

// Error taxonomy shared by every auth operation. All are terminal for the
// request; none is retried locally.
var (
	ErrBadRequest          = errors.New("bad request")
	ErrMissingIdentity     = errors.New("missing asserted identity")
	ErrUpstreamAuth        = errors.New("identity provider rejected credentials")
	ErrUpstreamUnavailable = errors.New("identity provider unavailable")
	ErrTokenInvalid        = errors.New("token invalid")
	ErrTokenExpired        = errors.New("token expired")
	ErrSubjectMismatch     = errors.New("token subject does not match identity")
	ErrRefreshInvalidated  = errors.New("refresh token no longer valid")
	ErrNotFound            = errors.New("user not found")
	ErrInternal            = errors.New("internal error")
)

// ErrLoginInputRequired is the BadRequest returned when login input is missing
// or contradictory.
var ErrLoginInputRequired = fmt.Errorf("%w: Either 'code' or 'kakaoAccessToken' is required", ErrBadRequest)

func mapProviderErr(err error) error {
	switch {
	case errors.Is(err, kakao.ErrUpstreamAuth):
		return fmt.Errorf("%w: %w", ErrUpstreamAuth, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
}

func mapTokenErr(err error) error {
	if errors.Is(err, jwtx.ErrTokenExpired) {
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	}
	return fmt.Errorf("%w: %w", ErrTokenInvalid, err)
}

// ResultLabel turns an operation outcome into a low-cardinality metric label.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrMissingIdentity):
		return "missing_identity"
	case errors.Is(err, ErrUpstreamAuth):
		return "upstream_auth"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenInvalid):
		return "token_invalid"
	case errors.Is(err, ErrSubjectMismatch):
		return "subject_mismatch"
	case errors.Is(err, ErrRefreshInvalidated):
		return "refresh_invalidated"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

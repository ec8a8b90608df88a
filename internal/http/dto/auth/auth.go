// Package auth contains DTOs for the /user/auth endpoints.
package auth

import "time"

// LoginRequest is the body of POST /kakao. Exactly one of Code and
// KakaoAccessToken must be set.
type LoginRequest struct {
	Code             string `json:"code,omitempty"`
	KakaoAccessToken string `json:"kakaoAccessToken,omitempty"`
	// RedirectURI overrides the configured redirect URI for the code exchange.
	RedirectURI string `json:"redirectUri,omitempty"`
}

// UserSummary is the public view of a user. ID and UserID carry the same local
// identifier; clients have historically read either key.
type UserSummary struct {
	ID              string `json:"id"`
	UserID          string `json:"userId"`
	Nickname        string `json:"nickname"`
	ProfileImageURL string `json:"profileImageUrl"`
	Email           string `json:"email,omitempty"`
}

// LoginResponse is the body returned by POST /kakao.
type LoginResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         UserSummary `json:"user"`
}

// LoginResult is the internal result from LoginService.
type LoginResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             UserSummary
	Created          bool
}

// RefreshRequest is the body of POST /refresh and POST /logout.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshResponse omits RefreshToken when rotation is disabled.
type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// RefreshResult is the internal result from RefreshService.
type RefreshResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string // empty unless rotated
	RefreshExpiresAt time.Time
}

type MessageResponse struct {
	Message string `json:"message"`
}

// Package kakao is the Kakao Login client: authorization-code exchange,
// profile lookup and account unlink.
package kakao

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dropDatabas3/userauth/internal/observability/logger"
	"golang.org/x/oauth2"
)

const (
	DefaultAuthURL  = "https://kauth.kakao.com/oauth/authorize"
	DefaultTokenURL = "https://kauth.kakao.com/oauth/token"
	DefaultAPIURL   = "https://kapi.kakao.com"

	profilePath = "/v2/user/me"
	unlinkPath  = "/v1/user/unlink"
)

var (
	// ErrUpstreamAuth means Kakao rejected the code or the access token.
	ErrUpstreamAuth = errors.New("kakao: upstream rejected credentials")
	// ErrUpstreamUnavailable means Kakao could not be reached or answered 5xx.
	ErrUpstreamUnavailable = errors.New("kakao: upstream unavailable")
	// ErrUnlinkDisabled is returned by Unlink when no admin key is configured.
	ErrUnlinkDisabled = errors.New("kakao: unlink disabled, no admin key")
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AdminKey     string

	AuthURL  string
	TokenURL string
	APIURL   string

	Timeout       time.Duration
	UnlinkRetries int
	// UnlinkBackoff is the first retry delay; it grows exponentially.
	UnlinkBackoff time.Duration
}

// Profile is the subset of /v2/user/me the service keeps. Empty strings mean
// Kakao did not report the field.
type Profile struct {
	ID        int64
	Nickname  string
	AvatarURL string
	Email     string
}

type Client struct {
	cfg   Config
	oauth oauth2.Config
	http  *http.Client
}

// New builds a client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UnlinkRetries <= 0 {
		cfg.UnlinkRetries = 3
	}
	if cfg.UnlinkBackoff <= 0 {
		cfg.UnlinkBackoff = 500 * time.Millisecond
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg: cfg,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		http: httpClient,
	}
}

// AuthorizeURL returns the Kakao consent page URL for state.
func (c *Client) AuthorizeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for a Kakao access token.
// redirectURI must match the one used for the authorize redirect; empty means
// the configured default. Codes are single-use, so there is no retry.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	var opts []oauth2.AuthCodeOption
	if redirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	}

	tok, err := c.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil &&
			re.Response.StatusCode >= 400 && re.Response.StatusCode < 500 {
			return "", fmt.Errorf("%w: token endpoint status %d: %s", ErrUpstreamAuth, re.Response.StatusCode, re.ErrorCode)
		}
		return "", fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	return tok.AccessToken, nil
}

type meResponse struct {
	ID           *int64 `json:"id"`
	KakaoAccount *struct {
		Email   string `json:"email"`
		Profile *struct {
			Nickname        string `json:"nickname"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"profile"`
	} `json:"kakao_account"`
	Properties map[string]any `json:"properties"`
}

// FetchProfile reads the profile of the user owning accessToken.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+profilePath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: profile status %d", ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: profile status %d", ErrUpstreamAuth, resp.StatusCode)
	}

	var me meResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&me); err != nil {
		return nil, fmt.Errorf("%w: decode profile: %w", ErrUpstreamUnavailable, err)
	}
	if me.ID == nil {
		return nil, fmt.Errorf("%w: profile without id", ErrUpstreamAuth)
	}
	return me.profile(), nil
}

// profile prefers kakao_account.profile and falls back to the legacy
// properties map.
func (m *meResponse) profile() *Profile {
	p := &Profile{ID: *m.ID}
	if m.KakaoAccount != nil {
		p.Email = m.KakaoAccount.Email
		if m.KakaoAccount.Profile != nil {
			p.Nickname = m.KakaoAccount.Profile.Nickname
			p.AvatarURL = m.KakaoAccount.Profile.ProfileImageURL
		}
	}
	if p.Nickname == "" {
		p.Nickname = prop(m.Properties, "nickname")
	}
	if p.AvatarURL == "" {
		p.AvatarURL = prop(m.Properties, "profile_image")
	}
	return p
}

func prop(m map[string]any, k string) string {
	s, _ := m[k].(string)
	return s
}

// Unlink disconnects providerID from this app using the admin key. 5xx and
// network failures are retried with exponential backoff; 4xx is final.
func (c *Client) Unlink(ctx context.Context, providerID int64) error {
	if c.cfg.AdminKey == "" {
		return ErrUnlinkDisabled
	}
	log := logger.From(ctx).With(logger.Component("oauth.kakao"), logger.Op("Unlink"), logger.ProviderID(providerID))

	form := url.Values{}
	form.Set("target_id_type", "user_id")
	form.Set("target_id", strconv.FormatInt(providerID, 10))
	body := form.Encode()

	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+unlinkPath, strings.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "KakaoAK "+c.cfg.AdminKey)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.http.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return struct{}{}, fmt.Errorf("%w: unlink status %d", ErrUpstreamUnavailable, resp.StatusCode)
		case resp.StatusCode >= 400:
			return struct{}{}, backoff.Permanent(fmt.Errorf("%w: unlink status %d", ErrUpstreamAuth, resp.StatusCode))
		}
		return struct{}{}, nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.cfg.UnlinkBackoff
	expBackoff.MaxInterval = 20 * c.cfg.UnlinkBackoff
	expBackoff.Reset()

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(c.cfg.UnlinkRetries)), // #nosec G115 -- positive, set in New
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Debug("unlink retry scheduled", logger.Attempt(attempt), logger.Err(err), logger.Any("wait", d))
		}),
	)
	return err
}

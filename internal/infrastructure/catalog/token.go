package catalog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nemscan/backend/domain"
)

var errEmptyToken = domain.WrapError(domain.ErrCodeUpstreamUnavailable, domain.ErrCatalogUnavailable.Message, errors.New("empty access token"))

const (
	defaultTokenTTL = 50 * time.Minute
	refreshMargin   = time.Minute
)

// Credentials identify the service account used against the catalog auth server.
type Credentials struct {
	AuthURL  string
	ClientID string
	APIKey   string
	Audience string
	Scope    string
	TTL      time.Duration
	Timeout  time.Duration
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// TokenCache hands out catalog access tokens. Concurrent callers share a
// single login or refresh; the cached token is reused until it expires.
type TokenCache struct {
	http   *fasthttp.Client
	creds  Credentials
	now    func() time.Time
	logger *zap.Logger

	mu      sync.Mutex
	access  string
	refresh string
	expiry  time.Time

	flight singleflight.Group
}

func NewTokenCache(client *fasthttp.Client, creds Credentials, logger *zap.Logger) *TokenCache {
	if client == nil {
		client = &fasthttp.Client{}
	}
	if creds.TTL <= 0 {
		creds.TTL = defaultTokenTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenCache{
		http:   client,
		creds:  creds,
		now:    time.Now,
		logger: logger,
	}
}

// GetToken returns a valid access token, logging in or refreshing as needed.
// The shared renewal is detached from any single caller; each caller still
// stops waiting when its own ctx ends.
func (c *TokenCache) GetToken(ctx context.Context) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}
	ch := c.flight.DoChan("token", func() (interface{}, error) {
		if token, ok := c.cached(); ok {
			return token, nil
		}
		renewCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.renewTimeout())
		defer cancel()
		return c.renew(renewCtx)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// renewTimeout covers a failed refresh followed by a login.
func (c *TokenCache) renewTimeout() time.Duration {
	timeout := c.creds.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return 2 * timeout
}

// Invalidate drops the cached access token, keeping the refresh token.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.access = ""
	c.expiry = time.Time{}
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.access != "" && c.now().Before(c.expiry) {
		return c.access, true
	}
	return "", false
}

func (c *TokenCache) renew(ctx context.Context) (string, error) {
	c.mu.Lock()
	refresh := c.refresh
	c.mu.Unlock()

	if refresh != "" {
		token, err := c.refreshToken(ctx, refresh)
		if err == nil {
			return token, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.Info("catalog token refresh failed, logging in again", zap.Error(err))
		c.mu.Lock()
		c.refresh = ""
		c.mu.Unlock()
	}
	return c.login(ctx)
}

func (c *TokenCache) login(ctx context.Context) (string, error) {
	basic := base64.StdEncoding.EncodeToString([]byte(c.creds.ClientID + ":" + c.creds.APIKey))
	tok, err := c.post(ctx, "/api/v2/auth/login", func(req *fasthttp.Request) {
		req.URI().QueryArgs().Set("audience", c.creds.Audience)
		req.PostArgs().Set("scope", c.creds.Scope)
		req.Header.Set("Authorization", "Basic "+basic)
	})
	if err != nil {
		return "", err
	}
	return c.store(tok, c.now().Add(c.creds.TTL)), nil
}

func (c *TokenCache) refreshToken(ctx context.Context, refresh string) (string, error) {
	tok, err := c.post(ctx, "/api/v2/auth/refresh", func(req *fasthttp.Request) {
		req.PostArgs().Set("refresh_token", refresh)
	})
	if err != nil {
		return "", err
	}
	expiry := c.now().Add(c.creds.TTL)
	if tok.ExpiresIn > 0 {
		expiry = c.now().Add(time.Duration(tok.ExpiresIn)*time.Second - refreshMargin)
	}
	return c.store(tok, expiry), nil
}

func (c *TokenCache) post(ctx context.Context, path string, build func(req *fasthttp.Request)) (tokenResponse, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(strings.TrimRight(c.creds.AuthURL, "/") + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	build(req)

	var tok tokenResponse
	if err := do(ctx, c.http, c.creds.Timeout, req, resp); err != nil {
		return tok, err
	}
	if !isSuccess(resp.StatusCode()) {
		return tok, statusError(resp)
	}
	if err := json.Unmarshal(resp.Body(), &tok); err != nil {
		return tok, err
	}
	if tok.AccessToken == "" {
		return tok, errEmptyToken
	}
	return tok, nil
}

func (c *TokenCache) store(tok tokenResponse, expiry time.Time) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.access = tok.AccessToken
	if tok.RefreshToken != "" {
		c.refresh = tok.RefreshToken
	}
	c.expiry = expiry
	return c.access
}

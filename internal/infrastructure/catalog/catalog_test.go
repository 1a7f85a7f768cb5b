package catalog

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/nemscan/backend/domain"
)

// startServer serves h over an in-memory listener and returns a client dialing it.
func startServer(t *testing.T, h fasthttp.RequestHandler) *fasthttp.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	server := &fasthttp.Server{Handler: h}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() {
		_ = server.Shutdown()
		_ = ln.Close()
	})
	return &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	}
}

type authServer struct {
	logins      atomic.Int32
	refreshes   atomic.Int32
	failRefresh bool
}

func (s *authServer) handle(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/api/v2/auth/login":
		n := s.logins.Add(1)
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte("client:secret"))
		if string(ctx.Request.Header.Peek("Authorization")) != want ||
			string(ctx.QueryArgs().Peek("audience")) != "pos" ||
			string(ctx.PostArgs().Peek("scope")) != "products" {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			return
		}
		time.Sleep(20 * time.Millisecond)
		fmt.Fprintf(ctx, `{"access_token":"access-%d","refresh_token":"refresh-%d"}`, n, n)
	case "/api/v2/auth/refresh":
		s.refreshes.Add(1)
		if s.failRefresh {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			return
		}
		fmt.Fprintf(ctx, `{"access_token":"refreshed-%s","expires_in":3600}`, ctx.PostArgs().Peek("refresh_token"))
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func newTestTokens(client *fasthttp.Client, clock *time.Time) *TokenCache {
	tokens := NewTokenCache(client, Credentials{
		AuthURL:  "http://auth.test/",
		ClientID: "client",
		APIKey:   "secret",
		Audience: "pos",
		Scope:    "products",
		TTL:      50 * time.Minute,
		Timeout:  time.Second,
	}, nil)
	tokens.now = func() time.Time { return *clock }
	return tokens
}

func TestTokenCacheLogsInOnceAndReuses(t *testing.T) {
	auth := &authServer{}
	clock := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	tokens := newTestTokens(startServer(t, auth.handle), &clock)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := tokens.GetToken(context.Background())
			assert.NoError(t, err)
			results[i] = tok
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), auth.logins.Load())
	for _, tok := range results {
		assert.Equal(t, "access-1", tok)
	}

	tok, err := tokens.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok)
	assert.Equal(t, int32(1), auth.logins.Load())
}

func TestTokenCacheRefreshesAfterExpiry(t *testing.T) {
	auth := &authServer{}
	clock := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	tokens := newTestTokens(startServer(t, auth.handle), &clock)

	_, err := tokens.GetToken(context.Background())
	require.NoError(t, err)

	clock = clock.Add(51 * time.Minute)
	tok, err := tokens.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed-refresh-1", tok)
	assert.Equal(t, int32(1), auth.refreshes.Load())
	assert.Equal(t, int32(1), auth.logins.Load())

	// expires_in 3600 keeps the refreshed token for 59 minutes
	clock = clock.Add(58 * time.Minute)
	tok, err = tokens.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed-refresh-1", tok)
}

func TestTokenCacheFallsBackToLogin(t *testing.T) {
	auth := &authServer{failRefresh: true}
	clock := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	tokens := newTestTokens(startServer(t, auth.handle), &clock)

	_, err := tokens.GetToken(context.Background())
	require.NoError(t, err)

	tokens.Invalidate()
	tok, err := tokens.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-2", tok)
	assert.Equal(t, int32(1), auth.refreshes.Load())
	assert.Equal(t, int32(2), auth.logins.Load())
}

func TestTokenCacheReportsUpstreamFailure(t *testing.T) {
	client := startServer(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	})
	clock := time.Now()
	tokens := newTestTokens(client, &clock)

	_, err := tokens.GetToken(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeUpstreamUnavailable))
}

func TestTokenCacheRenewalOutlivesCanceledCaller(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var logins atomic.Int32
	client := startServer(t, func(ctx *fasthttp.RequestCtx) {
		if logins.Add(1) == 1 {
			close(entered)
		}
		<-release
		ctx.SetBodyString(`{"access_token":"shared","refresh_token":"r"}`)
	})
	clock := time.Now()
	tokens := newTestTokens(client, &clock)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := tokens.GetToken(first)
		firstErr <- err
	}()
	<-entered

	second := make(chan string, 1)
	go func() {
		tok, err := tokens.GetToken(context.Background())
		assert.NoError(t, err)
		second <- tok
	}()

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("canceled caller kept waiting")
	}

	close(release)
	select {
	case tok := <-second:
		assert.Equal(t, "shared", tok)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not receive the token")
	}
	assert.Equal(t, int32(1), logins.Load())
}

type staticTokens struct {
	invalidated atomic.Int32
}

func (s *staticTokens) GetToken(context.Context) (string, error) { return "tok", nil }
func (s *staticTokens) Invalidate()                              { s.invalidated.Add(1) }

func TestClientPagesLowStockCandidates(t *testing.T) {
	items := []string{
		`{"Number":"1","Name":"Milk","DisplayProductGroupUid":"g1","CurrentStockQuantity":4}`,
		`{"Number":"2","Name":"Bread","DisplayProductGroupUid":null,"CurrentStockQuantity":12.5}`,
		`{"Number":"3","Name":"Eggs","CurrentStockQuantity":0}`,
	}
	var offsets []string
	var mu sync.Mutex
	client := startServer(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Request.Header.Peek("Authorization")) != "Bearer tok" {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			return
		}
		args := ctx.QueryArgs()
		if string(args.Peek("filters[CurrentStockQuantity][$lt]")) != "100" || len(args.PeekMulti("fields")) != 4 {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			return
		}
		offset, _ := strconv.Atoi(string(args.Peek("offset")))
		limit, _ := strconv.Atoi(string(args.Peek("limit")))
		mu.Lock()
		offsets = append(offsets, strconv.Itoa(offset))
		mu.Unlock()

		end := offset + limit
		if end > len(items) {
			end = len(items)
		}
		body := `{"Items":[`
		for i := offset; i < end; i++ {
			if i > offset {
				body += ","
			}
			body += items[i]
		}
		body += `]}`
		ctx.SetBodyString(body)
	})

	c := NewClient(client, &staticTokens{}, Config{BaseURL: "http://catalog.test/", PageSize: 2, Timeout: time.Second}, nil)
	products, err := c.ListLowStockCandidates(context.Background(), decimal.NewFromInt(100))
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, []string{"0", "2"}, offsets)

	assert.Equal(t, "g1", products[0].GroupID)
	assert.Empty(t, products[1].GroupID)
	assert.True(t, products[1].Stock.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, "Eggs", products[2].Name)
}

func TestClientStopsWhenUpstreamIgnoresOffset(t *testing.T) {
	var requests atomic.Int32
	client := startServer(t, func(ctx *fasthttp.RequestCtx) {
		requests.Add(1)
		ctx.SetBodyString(`{"Items":[{"Number":"1","Name":"Milk","CurrentStockQuantity":1},{"Number":"2","Name":"Bread","CurrentStockQuantity":2}]}`)
	})
	c := NewClient(client, &staticTokens{}, Config{BaseURL: "http://catalog.test", PageSize: 2}, nil)

	products, err := c.ListLowStockCandidates(context.Background(), decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Len(t, products, 2)
	assert.Equal(t, int32(2), requests.Load())
}

func TestClientEscapesGroupID(t *testing.T) {
	var rawURI string
	client := startServer(t, func(ctx *fasthttp.RequestCtx) {
		rawURI = string(ctx.Request.Header.RequestURI())
		ctx.SetBodyString(`{"Name":"Dairy"}`)
	})
	c := NewClient(client, &staticTokens{}, Config{BaseURL: "http://catalog.test"}, nil)

	name, err := c.ResolveGroupName(context.Background(), "a/b c?x")
	require.NoError(t, err)
	assert.Equal(t, "Dairy", name)
	assert.Equal(t, "/api/v1.0/display-product-group/a%2Fb%20c%3Fx", rawURI)
}

func TestClientResolveGroupName(t *testing.T) {
	tokens := &staticTokens{}
	client := startServer(t, func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/api/v1.0/display-product-group/g1":
			ctx.SetBodyString(`{"Name":"Dairy"}`)
		case "/api/v1.0/display-product-group/expired":
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		case "/api/v1.0/display-product-group/broken":
			ctx.SetStatusCode(fasthttp.StatusBadGateway)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	})
	c := NewClient(client, tokens, Config{BaseURL: "http://catalog.test"}, nil)
	ctx := context.Background()

	name, err := c.ResolveGroupName(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "Dairy", name)

	name, err = c.ResolveGroupName(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, name)

	_, err = c.ResolveGroupName(ctx, "broken")
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeUpstreamUnavailable))

	_, err = c.ResolveGroupName(ctx, "expired")
	require.Error(t, err)
	assert.Equal(t, int32(1), tokens.invalidated.Load())
}

func TestClientHonoursCanceledContext(t *testing.T) {
	client := startServer(t, func(ctx *fasthttp.RequestCtx) { ctx.SetBodyString(`{"Items":[]}`) })
	c := NewClient(client, &staticTokens{}, Config{BaseURL: "http://catalog.test"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ListLowStockCandidates(ctx, decimal.NewFromInt(1))
	require.ErrorIs(t, err, context.Canceled)
}

type mapCache struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *mapCache) Get(_ context.Context, id string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[id]
	return v, ok, nil
}

func (m *mapCache) Set(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[id] = name
	return nil
}

type countingCatalog struct {
	lookups atomic.Int32
}

func (c *countingCatalog) ListLowStockCandidates(context.Context, decimal.Decimal) ([]domain.CatalogProduct, error) {
	return nil, nil
}

func (c *countingCatalog) ResolveGroupName(_ context.Context, id string) (string, error) {
	c.lookups.Add(1)
	if id == "unknown" {
		return "", nil
	}
	return "Group " + id, nil
}

func TestCachedGroups(t *testing.T) {
	inner := &countingCatalog{}
	cache := &mapCache{values: map[string]string{}}
	groups := NewCachedGroups(inner, cache, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		name, err := groups.ResolveGroupName(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, "Group g1", name)
	}
	assert.Equal(t, int32(1), inner.lookups.Load())
	assert.Equal(t, "Group g1", cache.values["g1"])

	name, err := groups.ResolveGroupName(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, name)
	_, cached := cache.values["unknown"]
	assert.False(t, cached)
}

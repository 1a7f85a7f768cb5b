package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/nemscan/backend/domain"
	"github.com/nemscan/backend/repository"
)

const defaultPageSize = 500

// TokenSource supplies bearer tokens for catalog requests.
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
}

// Config addresses the catalog REST API.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	PageSize int
}

// Client reads stock snapshots and product groups from the POS catalog API.
type Client struct {
	http   *fasthttp.Client
	tokens TokenSource
	cfg    Config
	logger *zap.Logger
}

func NewClient(client *fasthttp.Client, tokens TokenSource, cfg Config, logger *zap.Logger) *Client {
	if client == nil {
		client = &fasthttp.Client{}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{http: client, tokens: tokens, cfg: cfg, logger: logger}
}

type productPage struct {
	Items []struct {
		Number                 string          `json:"Number"`
		Name                   string          `json:"Name"`
		DisplayProductGroupUid *string         `json:"DisplayProductGroupUid"`
		CurrentStockQuantity   decimal.Decimal `json:"CurrentStockQuantity"`
	} `json:"Items"`
}

// ListLowStockCandidates pages through catalog products whose stock is below threshold.
func (c *Client) ListLowStockCandidates(ctx context.Context, threshold decimal.Decimal) ([]domain.CatalogProduct, error) {
	var products []domain.CatalogProduct
	seen := make(map[string]struct{})
	for offset := 0; ; offset += c.cfg.PageSize {
		var page productPage
		err := c.get(ctx, "/api/v1.0/product", func(args *fasthttp.Args) {
			args.Set("offset", strconv.Itoa(offset))
			args.Set("limit", strconv.Itoa(c.cfg.PageSize))
			args.Add("fields", "Number")
			args.Add("fields", "Name")
			args.Add("fields", "DisplayProductGroupUid")
			args.Add("fields", "CurrentStockQuantity")
			args.Set("filters[CurrentStockQuantity][$lt]", threshold.String())
		}, &page)
		if err != nil {
			return nil, err
		}
		added := 0
		for _, item := range page.Items {
			if _, dup := seen[item.Number]; dup {
				continue
			}
			seen[item.Number] = struct{}{}
			added++
			p := domain.CatalogProduct{
				Number: item.Number,
				Name:   item.Name,
				Stock:  item.CurrentStockQuantity,
			}
			if item.DisplayProductGroupUid != nil {
				p.GroupID = *item.DisplayProductGroupUid
			}
			products = append(products, p)
		}
		// an upstream that ignores offset keeps repeating the same page
		if len(page.Items) < c.cfg.PageSize || added == 0 {
			return products, nil
		}
	}
}

// ResolveGroupName looks up the display name of a product group. Unknown
// groups resolve to an empty name.
func (c *Client) ResolveGroupName(ctx context.Context, groupID string) (string, error) {
	var group struct {
		Name string `json:"Name"`
	}
	err := c.get(ctx, "/api/v1.0/display-product-group/"+url.PathEscape(groupID), nil, &group)
	if errors.Is(err, errNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return group.Name, nil
}

var errNotFound = domain.NewError(domain.ErrCodeNotFound, "catalog resource not found")

func (c *Client) get(ctx context.Context, path string, query func(args *fasthttp.Args), out interface{}) error {
	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.cfg.BaseURL + path)
	// keep escaped path segments such as %2F as written
	req.URI().DisablePathNormalizing = true
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Authorization", "Bearer "+token)
	if query != nil {
		query(req.URI().QueryArgs())
	}

	if err := do(ctx, c.http, c.cfg.Timeout, req, resp); err != nil {
		return err
	}
	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusNotFound:
		return errNotFound
	case status == fasthttp.StatusUnauthorized:
		if inv, ok := c.tokens.(interface{ Invalidate() }); ok {
			inv.Invalidate()
		}
		return statusError(resp)
	case !isSuccess(status):
		return statusError(resp)
	}
	return json.Unmarshal(resp.Body(), out)
}

// CachedGroups serves ResolveGroupName from a cache before asking the catalog.
type CachedGroups struct {
	repository.ProductCatalog
	cache  repository.GroupNameCache
	logger *zap.Logger
}

func NewCachedGroups(catalog repository.ProductCatalog, cache repository.GroupNameCache, logger *zap.Logger) *CachedGroups {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedGroups{ProductCatalog: catalog, cache: cache, logger: logger}
}

func (c *CachedGroups) ResolveGroupName(ctx context.Context, groupID string) (string, error) {
	if c.cache != nil {
		name, ok, err := c.cache.Get(ctx, groupID)
		if err != nil {
			c.logger.Debug("group cache read failed", zap.String("group_id", groupID), zap.Error(err))
		} else if ok {
			return name, nil
		}
	}

	name, err := c.ProductCatalog.ResolveGroupName(ctx, groupID)
	if err != nil || name == "" || c.cache == nil {
		return name, err
	}
	if err := c.cache.Set(ctx, groupID, name); err != nil {
		c.logger.Debug("group cache write failed", zap.String("group_id", groupID), zap.Error(err))
	}
	return name, nil
}

var (
	_ repository.ProductCatalog = (*Client)(nil)
	_ repository.ProductCatalog = (*CachedGroups)(nil)
)

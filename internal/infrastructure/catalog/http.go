package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/nemscan/backend/domain"
)

const defaultTimeout = 10 * time.Second

// do runs req with a deadline bounded by both timeout and ctx.
func do(ctx context.Context, client *fasthttp.Client, timeout time.Duration, req *fasthttp.Request, resp *fasthttp.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := client.DoDeadline(req, resp, deadline); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return domain.WrapError(domain.ErrCodeUpstreamUnavailable, domain.ErrCatalogUnavailable.Message, err)
	}
	return nil
}

func statusError(resp *fasthttp.Response) error {
	return domain.WrapError(
		domain.ErrCodeUpstreamUnavailable,
		domain.ErrCatalogUnavailable.Message,
		fmt.Errorf("unexpected status %d", resp.StatusCode()),
	)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

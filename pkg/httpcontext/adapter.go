package httpcontext

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	appLogger "github.com/nemscan/backend/pkg/logger"
)

// Key represents a context value key exported for reuse.
type Key string

const (
	KeyRemoteAddr Key = "remote_addr"
	KeyUserAgent  Key = "user_agent"
	KeyUserRole   Key = "user_role"
	KeySubject    Key = "subject"
)

const headerRequestID = "X-Request-ID"

// Adapter converts fasthttp.RequestCtx into a stdlib context with deadlines and metadata.
type Adapter struct {
	timeout time.Duration
}

// NewAdapter constructs a new Adapter using the provided timeout.
func NewAdapter(timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{timeout: timeout}
}

// Attach creates a context bounded by the adapter timeout and carries request
// metadata, including the caller identity set by the auth middleware.
func (a *Adapter) Attach(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	stdCtx, cancel := context.WithTimeout(context.Background(), a.timeout)

	reqID := requestID(ctx)
	stdCtx = appLogger.ContextWithRequestID(stdCtx, reqID)
	ctx.Response.Header.Set(headerRequestID, reqID)

	if remoteAddr := ctx.RemoteAddr(); remoteAddr != nil {
		stdCtx = context.WithValue(stdCtx, KeyRemoteAddr, remoteAddr.String())
	}
	if ua := string(ctx.Request.Header.UserAgent()); ua != "" {
		stdCtx = context.WithValue(stdCtx, KeyUserAgent, ua)
	}
	if role, ok := ctx.UserValue(string(KeyUserRole)).(string); ok && role != "" {
		stdCtx = context.WithValue(stdCtx, KeyUserRole, role)
	}
	if sub, ok := ctx.UserValue(string(KeySubject)).(string); ok && sub != "" {
		stdCtx = context.WithValue(stdCtx, KeySubject, sub)
	}

	return stdCtx, cancel
}

// UserRole returns the authenticated role carried by ctx.
func UserRole(ctx context.Context) string {
	role, _ := ctx.Value(KeyUserRole).(string)
	return role
}

func requestID(ctx *fasthttp.RequestCtx) string {
	if ctx == nil {
		return uuid.NewString()
	}
	if header := strings.TrimSpace(string(ctx.Request.Header.Peek(headerRequestID))); header != "" {
		return header
	}
	return uuid.NewString()
}

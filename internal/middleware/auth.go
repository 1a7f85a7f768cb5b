package middleware

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/nemscan/backend/api/transport"
	"github.com/nemscan/backend/domain"
	"github.com/nemscan/backend/pkg/httpcontext"
)

// Middleware wraps a fasthttp handler.
type Middleware func(fasthttp.RequestHandler) fasthttp.RequestHandler

// AuthConfig describes how bearer tokens are validated.
type AuthConfig struct {
	Secret    string
	Issuer    string
	RoleClaim string
}

// JWTAuth validates HMAC-signed bearer tokens and stores the caller role and
// subject as request user values.
func JWTAuth(cfg AuthConfig, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RoleClaim == "" {
		cfg.RoleClaim = "role"
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			tokenString := extractToken(ctx)
			if tokenString == "" {
				reject(ctx, fasthttp.StatusUnauthorized, domain.ErrUnauthorized)
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
				}
				return []byte(cfg.Secret), nil
			})
			if err != nil || !token.Valid {
				logger.Warn("invalid jwt token", zap.Error(err))
				reject(ctx, fasthttp.StatusUnauthorized, domain.ErrUnauthorized)
				return
			}
			if cfg.Issuer != "" && !claims.VerifyIssuer(cfg.Issuer, true) {
				logger.Warn("jwt issuer mismatch", zap.Any("iss", claims["iss"]))
				reject(ctx, fasthttp.StatusUnauthorized, domain.ErrUnauthorized)
				return
			}

			if role, ok := claims[cfg.RoleClaim].(string); ok {
				ctx.SetUserValue(string(httpcontext.KeyUserRole), strings.ToLower(role))
			}
			if sub, ok := claims["sub"].(string); ok {
				ctx.SetUserValue(string(httpcontext.KeySubject), sub)
			}

			next(ctx)
		}
	}
}

// RequireRoles lets the request through only when JWTAuth stored one of roles.
func RequireRoles(roles ...string) Middleware {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[strings.ToLower(r)] = struct{}{}
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			role, _ := ctx.UserValue(string(httpcontext.KeyUserRole)).(string)
			if _, ok := allowed[role]; !ok {
				reject(ctx, fasthttp.StatusForbidden, domain.ErrForbidden)
				return
			}
			next(ctx)
		}
	}
}

// Chain applies middlewares so the first one runs outermost.
func Chain(h fasthttp.RequestHandler, mws ...Middleware) fasthttp.RequestHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func reject(ctx *fasthttp.RequestCtx, status int, err *domain.Error) {
	body, _ := json.Marshal(transport.NewError(string(err.Code), err.Message, nil))
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := strings.TrimSpace(string(ctx.Request.Header.Peek("Authorization")))
	if header == "" {
		return ""
	}
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

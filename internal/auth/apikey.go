// Package auth authenticates passage service callers by static API key or JWT bearer token.
package auth

import (
	"context"
	"crypto/subtle"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// APIKeyHeader is the metadata key for API key authentication
	APIKeyHeader = "x-api-key"

	// AuthorizationHeader is the metadata key carrying "Bearer <jwt>".
	AuthorizationHeader = "authorization"

	callerContextKey contextKey = "caller"
)

// Caller identifies an authenticated client.
type Caller struct {
	Subject string
	// Method is "api_key" or "jwt".
	Method string
}

// APIKey pairs a static key with the name it authenticates as.
type APIKey struct {
	Name string
	Key  string
}

// ParseAPIKeys reads "name:key" or bare "key" entries. A bare key is named by its position.
func ParseAPIKeys(entries []string) []APIKey {
	var keys []APIKey
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		name, key, ok := strings.Cut(e, ":")
		if !ok {
			name, key = "key-"+strconv.Itoa(len(keys)), e
		}
		keys = append(keys, APIKey{Name: strings.TrimSpace(name), Key: strings.TrimSpace(key)})
	}
	return keys
}

// Interceptor validates credentials on every gRPC call except the skipped methods.
type Interceptor struct {
	keys        []APIKey
	jwt         *JWTManager
	skipMethods map[string]bool
}

// NewInterceptor creates an interceptor accepting any of keys, and bearer tokens when jwt is
// non-nil.
func NewInterceptor(keys []APIKey, jwt *JWTManager) *Interceptor {
	return &Interceptor{
		keys: keys,
		jwt:  jwt,
		skipMethods: map[string]bool{
			"/grpc.health.v1.Health/Check": true,
			"/grpc.health.v1.Health/Watch": true,
		},
	}
}

// Enabled reports whether any credential is configured. A nil Interceptor is disabled.
func (i *Interceptor) Enabled() bool {
	return i != nil && (len(i.keys) > 0 || i.jwt != nil)
}

// WithSkipMethods adds methods to skip authentication
func (i *Interceptor) WithSkipMethods(methods ...string) *Interceptor {
	for _, method := range methods {
		i.skipMethods[method] = true
	}
	return i
}

// UnaryInterceptor returns a gRPC unary interceptor for credential validation
func (i *Interceptor) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if i.skipMethods[info.FullMethod] || strings.HasPrefix(info.FullMethod, "/grpc.reflection.") {
			return handler(ctx, req)
		}

		caller, err := i.Authenticate(ctx)
		if err != nil {
			return nil, err
		}

		return handler(context.WithValue(ctx, callerContextKey, caller), req)
	}
}

// StreamInterceptor returns a gRPC stream interceptor for credential validation
func (i *Interceptor) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if i.skipMethods[info.FullMethod] || strings.HasPrefix(info.FullMethod, "/grpc.reflection.") {
			return handler(srv, ss)
		}

		caller, err := i.Authenticate(ss.Context())
		if err != nil {
			return err
		}

		return handler(srv, &wrappedServerStream{
			ServerStream: ss,
			ctx:          context.WithValue(ss.Context(), callerContextKey, caller),
		})
	}
}

// Authenticate resolves the caller from incoming metadata. An API key is tried first, then
// a bearer token.
func (i *Interceptor) Authenticate(ctx context.Context) (*Caller, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}

	if key := firstValue(md, APIKeyHeader); key != "" {
		for _, k := range i.keys {
			if subtle.ConstantTimeCompare([]byte(k.Key), []byte(key)) == 1 {
				return &Caller{Subject: k.Name, Method: "api_key"}, nil
			}
		}
		return nil, status.Error(codes.Unauthenticated, "invalid API key")
	}

	if bearer := firstValue(md, AuthorizationHeader); bearer != "" && i.jwt != nil {
		token, ok := strings.CutPrefix(bearer, "Bearer ")
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "authorization must be a bearer token")
		}
		claims, err := i.jwt.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return &Caller{Subject: claims.Subject, Method: "jwt"}, nil
	}

	return nil, status.Error(codes.Unauthenticated, "missing credentials")
}

func firstValue(md metadata.MD, key string) string {
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

// wrappedServerStream wraps a grpc.ServerStream with a modified context
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}

// CallerFromContext returns the authenticated caller, if any.
func CallerFromContext(ctx context.Context) (*Caller, bool) {
	caller, ok := ctx.Value(callerContextKey).(*Caller)
	return caller, ok
}

// SubjectFromContext returns the caller's subject, or "" when unauthenticated.
func SubjectFromContext(ctx context.Context) string {
	if caller, ok := CallerFromContext(ctx); ok {
		return caller.Subject
	}
	return ""
}

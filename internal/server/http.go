package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/knoguchi/rse/internal/api"
	"github.com/knoguchi/rse/internal/auth"
)

// readinessTimeout bounds each readiness check.
const readinessTimeout = 2 * time.Second

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// gatewayRoutes maps HTTP paths to the gRPC methods they forward to.
var gatewayRoutes = []struct {
	path   string
	method string
}{
	{"/v1/filter", api.MethodFilter},
	{"/v1/rerank", api.MethodRerank},
	{"/v1/evaluate/precision", api.MethodEvaluatePrecision},
	{"/v1/retrieve", api.MethodRetrieveAndFilter},
}

// HTTPServer wraps an HTTP server with grpc-gateway integration
type HTTPServer struct {
	server   *http.Server
	router   *chi.Mux
	gwMux    *runtime.ServeMux
	logger   *slog.Logger
	grpcAddr string
	grpcConn *grpc.ClientConn
}

// HTTPServerConfig holds configuration for the HTTP server
type HTTPServerConfig struct {
	Port           int
	GRPCAddr       string // Address of the gRPC server (e.g., "localhost:9090")
	Logger         *slog.Logger
	AllowedOrigins []string // CORS allowed origins

	// ReadinessChecks are run by /readyz, keyed by dependency name.
	ReadinessChecks map[string]ReadinessCheck
}

// NewHTTPServer creates a new HTTP server with grpc-gateway
func NewHTTPServer(cfg HTTPServerConfig) *HTTPServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLoggingMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	gwMux := runtime.NewServeMux(
		runtime.WithMarshalerOption(runtime.MIMEWildcard, &runtime.JSONPb{
			MarshalOptions: protojson.MarshalOptions{
				UseProtoNames:   true,
				EmitUnpopulated: true,
			},
			UnmarshalOptions: protojson.UnmarshalOptions{
				DiscardUnknown: true,
			},
		}),
		runtime.WithIncomingHeaderMatcher(incomingHeaderMatcher),
	)

	router.Get("/healthz", healthCheckHandler())
	router.Get("/readyz", readinessCheckHandler(cfg.ReadinessChecks))

	router.Mount("/", gwMux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // reranking and judging large batches is slow
		IdleTimeout:  120 * time.Second,
	}

	return &HTTPServer{
		server:   server,
		router:   router,
		gwMux:    gwMux,
		logger:   logger,
		grpcAddr: cfg.GRPCAddr,
	}
}

// incomingHeaderMatcher forwards the API key header as-is in addition to the defaults.
// Authorization is always forwarded by the gateway.
func incomingHeaderMatcher(key string) (string, bool) {
	if strings.EqualFold(key, auth.APIKeyHeader) {
		return auth.APIKeyHeader, true
	}
	return runtime.DefaultHeaderMatcher(key)
}

// RegisterHandlers connects to the gRPC server and registers the gateway routes
func (s *HTTPServer) RegisterHandlers(ctx context.Context) error {
	conn, err := grpc.NewClient(
		s.grpcAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to gRPC server: %w", err)
	}
	s.grpcConn = conn

	for _, route := range gatewayRoutes {
		if err := s.gwMux.HandlePath(http.MethodPost, route.path, s.forward(conn, route.path, route.method)); err != nil {
			return fmt.Errorf("failed to register %s handler: %w", route.path, err)
		}
		s.logger.Info("registered HTTP handler", "path", route.path, "rpc", route.method)
	}

	return nil
}

// forward decodes a JSON body into a Struct, invokes method, and writes the reply the way
// generated gateway handlers do.
func (s *HTTPServer) forward(conn grpc.ClientConnInterface, pattern, method string) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		inbound, outbound := runtime.MarshalerForRequest(s.gwMux, r)

		annotated, err := runtime.AnnotateContext(ctx, s.gwMux, r, method, runtime.WithHTTPPathPattern(pattern))
		if err != nil {
			runtime.HTTPError(ctx, s.gwMux, outbound, w, r, err)
			return
		}

		in := &structpb.Struct{}
		if err := inbound.NewDecoder(r.Body).Decode(in); err != nil && !errors.Is(err, io.EOF) {
			runtime.HTTPError(annotated, s.gwMux, outbound, w, r, status.Errorf(codes.InvalidArgument, "%v", err))
			return
		}

		var header, trailer metadata.MD
		out := &structpb.Struct{}
		err = conn.Invoke(annotated, method, in, out, grpc.Header(&header), grpc.Trailer(&trailer))
		annotated = runtime.NewServerMetadataContext(annotated, runtime.ServerMetadata{HeaderMD: header, TrailerMD: trailer})
		if err != nil {
			runtime.HTTPError(annotated, s.gwMux, outbound, w, r, err)
			return
		}

		runtime.ForwardResponseMessage(annotated, s.gwMux, outbound, w, r, out)
	}
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", "address", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.grpcConn != nil {
		if err := s.grpcConn.Close(); err != nil {
			s.logger.Warn("error closing gRPC connection", "error", err)
		}
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Handler returns the root HTTP handler
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// requestLoggingMiddleware logs HTTP requests
func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote_addr", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// corsMiddleware handles CORS headers
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if len(allowedOrigins) == 0 {
				allowed = true
				origin = "*"
			} else {
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, X-API-Key")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// healthCheckHandler returns a handler for the /healthz endpoint
func healthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

// readinessCheckHandler runs every check and reports 503 with the failures if any fail.
func readinessCheckHandler(checks map[string]ReadinessCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		failures := map[string]string{}
		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
			err := checks[name](ctx)
			cancel()
			if err != nil {
				failures[name] = err.Error()
			}
		}

		if len(failures) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not ready",
				"checks": failures,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

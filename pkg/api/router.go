// Package api assembles the Excalibur HTTP server: middleware stack,
// route table, and graceful lifecycle.
package api

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/PhotonicGluon/Excalibur/internal/logger"
	"github.com/PhotonicGluon/Excalibur/pkg/api/handlers"
	"github.com/PhotonicGluon/Excalibur/pkg/api/middleware"
	"github.com/PhotonicGluon/Excalibur/pkg/api/routing"
	"github.com/PhotonicGluon/Excalibur/pkg/auth/channel"
	"github.com/PhotonicGluon/Excalibur/pkg/auth/pop"
	"github.com/PhotonicGluon/Excalibur/pkg/auth/token"
	"github.com/PhotonicGluon/Excalibur/pkg/cache"
	"github.com/PhotonicGluon/Excalibur/pkg/config"
	"github.com/PhotonicGluon/Excalibur/pkg/metrics"
	"github.com/PhotonicGluon/Excalibur/pkg/store"
	"github.com/PhotonicGluon/Excalibur/pkg/vault"
)

// routerDeps carries the constructed services the routes need.
type routerDeps struct {
	cfg      *config.Config
	store    *store.Store
	vault    *vault.Vault
	sessions *cache.Cache[string, []byte]
	tokens   *token.Service
	metrics  *metrics.HTTPMetrics
	version  string
	commit   string
}

// newRouter configures the chi router with the full middleware stack and
// all routes.
//
// Middleware order matters: client identity first, then logging and
// recovery, then rate limiting, CORS, and finally the encryption layer
// closest to the handlers so everything outward sees ciphertext.
func newRouter(deps routerDeps) http.Handler {
	cfg := deps.cfg

	creds := &middleware.Credentials{
		Tokens:   deps.tokens,
		Sessions: deps.sessions,
		PoP:      pop.NewValidator(cfg.Security.PoP.NonceCacheSize, cfg.Security.PoP.TimestampValidity),
		Metrics:  deps.metrics,
	}
	crypto := &middleware.RouteEncryption{
		Tree:             routing.Default(),
		Tokens:           deps.tokens,
		Sessions:         deps.sessions,
		EncryptResponses: os.Getenv("EXCALIBUR_SERVER_ENCRYPT_RESPONSES") != "0",
	}
	handshake := &channel.Handshake{
		Users:           deps.store,
		Sessions:        deps.sessions,
		Tokens:          deps.tokens,
		SessionDuration: cfg.Security.SessionDuration,
		IncludeUsername: cfg.Security.IncludeUsernameInM1,
	}

	authHandler := handlers.NewAuthHandler(handshake, cfg.Security.SRPGroupBits, cfg.Security.HandshakeTimeout, deps.metrics)
	filesHandler := handlers.NewFilesHandler(deps.vault, cfg.Server.MaxFileSize.Int64())
	usersHandler := handlers.NewUsersHandler(deps.store, deps.vault, cfg.Security.SRPGroupBits, cfg.Security.AccountCreationKey)
	wellKnownHandler := handlers.NewWellKnownHandler(deps.version, deps.commit, creds)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(deps.metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.API.AllowOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type", pop.HeaderName, "X-Encrypted", "X-Content-Type"},
		ExposedHeaders: []string{"X-Encrypted"},
	}).Handler)
	r.Use(middleware.NewRateLimiter(cfg.API.RateLimit.PerSecond, cfg.API.RateLimit.Burst).Handler)
	r.Use(crypto.Handler)

	if cfg.Metrics.Enabled {
		r.Get("/metrics", metrics.Handler().ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Get("/", authHandler.Login)
			r.Get("/group-size", authHandler.GroupSize)

			r.Group(func(r chi.Router) {
				r.Use(creds.RequireSession)
				r.Get("/pop-demo", authHandler.PoPDemo)
				r.Post("/pop-demo/encrypted", authHandler.PoPDemoEncrypted)
			})
		})

		r.Route("/well-known", func(r chi.Router) {
			r.Get("/heartbeat", wellKnownHandler.Heartbeat)
			r.Head("/heartbeat", wellKnownHandler.Heartbeat)
			r.Get("/version", wellKnownHandler.ServerVersion)
			r.Get("/clock", wellKnownHandler.Clock)
		})

		r.Route("/users", func(r chi.Router) {
			r.Head("/check/{username}", usersHandler.Check)
			r.Get("/security/{username}", usersHandler.Security)
			r.Post("/add/{username}", usersHandler.Add)

			r.Group(func(r chi.Router) {
				r.Use(creds.RequireSession)
				r.Get("/vault/{username}", usersHandler.VaultKey)
			})
		})

		r.Route("/files", func(r chi.Router) {
			r.Use(creds.RequireSession)

			r.Post("/upload/*", filesHandler.Upload)
			r.Post("/mkdir/*", filesHandler.Mkdir)
			r.Get("/download/*", filesHandler.Download)
			r.Get("/list/*", filesHandler.List)
			r.Delete("/delete/*", filesHandler.Delete)
			r.Post("/rename/*", filesHandler.Rename)
			r.Head("/check/path/*", filesHandler.CheckPath)
			r.Head("/check/dir/*", filesHandler.CheckDir)
			r.Head("/check/size", filesHandler.CheckSize)
		})
	})

	return r
}

// requestLogger attaches a per-request log context, logs requests through
// the internal logger, and records the request metrics. Downstream
// middleware enriches the log context once the session is known.
func requestLogger(m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lc := logger.NewLogContext(clientAddr(r)).
				WithRequestID(chimiddleware.GetReqID(r.Context()))
			ctx := logger.WithContext(r.Context(), lc)
			r = r.WithContext(ctx)

			logger.DebugCtx(ctx, "API request started",
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
			)

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			m.RecordRequest(r.Method, strconv.Itoa(ww.Status()), time.Since(lc.StartTime))

			logger.InfoCtx(ctx, "API request completed",
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.Status(ww.Status()),
				logger.Size(int64(ww.BytesWritten())),
				logger.DurationMs(lc.DurationMs()),
			)
		})
	}
}

// clientAddr strips the port from the request's remote address.
func clientAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

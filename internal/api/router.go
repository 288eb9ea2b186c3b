package api

import (
	"database/sql"
	"net/http"
	"net/netip"
	"time"

	"golang.org/x/time/rate"

	"github.com/erazemk/najdeno/internal/metrics"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/realtime"
)

// Options carries the router's dependencies. Zero limits fall back to
// package defaults.
type Options struct {
	DB        *sql.DB
	JWTSecret string

	// Hub delivers created items to stream clients. Publisher, when set,
	// receives created items instead of Hub (e.g. a NATS bridge that
	// forwards to Hub itself).
	Hub       *realtime.Hub
	Publisher realtime.Publisher
	Metrics   *metrics.Metrics

	// TrustedProxies lists the peers whose X-Forwarded-For and X-Real-IP
	// headers are believed when rate limiting.
	TrustedProxies []netip.Prefix

	LoginRate        float64
	LoginBurst       int
	MaxImageBytes    int64
	MaxImagesPerItem int
	SubscriberBuffer int
	StreamKeepAlive  time.Duration
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(opts Options) http.Handler {
	if opts.Hub == nil {
		opts.Hub = realtime.NewHub()
	}
	if opts.Publisher == nil {
		opts.Publisher = opts.Hub
	}
	if opts.LoginRate <= 0 {
		opts.LoginRate = 1
	}
	if opts.LoginBurst <= 0 {
		opts.LoginBurst = 10
	}
	if opts.MaxImagesPerItem <= 0 {
		opts.MaxImagesPerItem = 5
	}

	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: opts.DB, JWTSecret: opts.JWTSecret}
	meHandler := &MeHandler{DB: opts.DB}
	usersHandler := &UsersHandler{DB: opts.DB}
	claimsHandler := &ClaimsHandler{DB: opts.DB}
	itemsHandler := &ItemsHandler{
		DB:            opts.DB,
		Publisher:     opts.Publisher,
		Metrics:       opts.Metrics,
		MaxImageBytes: opts.MaxImageBytes,
		MaxImages:     opts.MaxImagesPerItem,
	}
	streamHandler := &StreamHandler{
		Hub:       opts.Hub,
		Metrics:   opts.Metrics,
		Buffer:    opts.SubscriberBuffer,
		KeepAlive: opts.StreamKeepAlive,
	}

	authMW := AuthMiddleware(opts.JWTSecret, opts.DB)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireStaff := RequireRole(model.RoleStaff)
	loginLimiter := newIPLimiter(rate.Limit(opts.LoginRate), opts.LoginBurst, opts.TrustedProxies)

	// Public.
	mux.Handle("POST /api/auth/register", loginLimiter.RateLimit(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /api/auth/login", loginLimiter.RateLimit(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("GET /api/categories", Categories)
	mux.HandleFunc("GET /api/images/{id}", itemsHandler.GetImage)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := opts.DB.PingContext(r.Context()); err != nil {
			jsonError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics.Handler())
	}

	// Authenticated.
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("GET /api/me", authMW(http.HandlerFunc(meHandler.Get)))
	mux.Handle("PUT /api/me", authMW(http.HandlerFunc(meHandler.Update)))
	mux.Handle("GET /api/me/items", authMW(http.HandlerFunc(meHandler.Items)))

	// Items: owner-or-staff checks happen in the handlers.
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(itemsHandler.List)))
	mux.Handle("POST /api/items", authMW(http.HandlerFunc(itemsHandler.Create)))
	mux.Handle("GET /api/items/stream", authMW(http.HandlerFunc(streamHandler.Stream)))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("PUT /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Update)))
	mux.Handle("DELETE /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Delete)))
	mux.Handle("POST /api/items/{id}/images", authMW(http.HandlerFunc(itemsHandler.UploadImage)))
	mux.Handle("POST /api/items/{id}/claim", authMW(http.HandlerFunc(itemsHandler.Claim)))
	mux.Handle("GET /api/items/{id}/claims", authMW(http.HandlerFunc(itemsHandler.Claims)))

	// Claims (staff+).
	mux.Handle("GET /api/claims", authMW(requireStaff(http.HandlerFunc(claimsHandler.List))))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("PUT /api/users/{id}/role", authMW(requireAdmin(http.HandlerFunc(usersHandler.UpdateRole))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	return LoggingMiddleware(opts.Metrics, mux)
}

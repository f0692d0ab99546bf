package apiv1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"installment-engine/internal/domain/ports/adapter"
	"installment-engine/internal/infra/api"
	"installment-engine/internal/infra/logging"
	"installment-engine/internal/infra/metrics"
	red "installment-engine/internal/infra/redis"
	"installment-engine/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 64 << 10

// Options tune the buyer-facing surface.
type Options struct {
	Limiter   adapter.RateLimiter // nil disables the pay rate limit
	PayLimit  int
	PayWindow time.Duration
	Dev       bool // expose 5xx detail
}

// Server implements the /api/v1 routes and the gateway webhook.
type Server struct {
	orders   usecase.OrderUseCase
	payments usecase.PaymentUseCase
	deposits usecase.DepositUseCase
	webhooks usecase.WebhookUseCase
	auth     *api.AuthManager
	opts     Options
	log      *zerolog.Logger
}

func NewServer(
	orders usecase.OrderUseCase,
	payments usecase.PaymentUseCase,
	deposits usecase.DepositUseCase,
	webhooks usecase.WebhookUseCase,
	auth *api.AuthManager,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	if opts.PayLimit <= 0 {
		opts.PayLimit = 10
	}
	if opts.PayWindow <= 0 {
		opts.PayWindow = time.Minute
	}
	compLog := logger.With().Str("component", "APIv1").Logger()
	return &Server{
		orders:   orders,
		payments: payments,
		deposits: deposits,
		webhooks: webhooks,
		auth:     auth,
		opts:     opts,
		log:      &compLog,
	}
}

// RegisterAPIV1 mounts every route at its absolute path on r.
func RegisterAPIV1(r chi.Router, s *Server) {
	r.Post("/webhooks/razorpay", s.handleRazorpayWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Authenticate)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", s.createOrder)
			r.Get("/", s.listOrders)
			r.Post("/checkout/combined", s.combinedCheckout)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getOrder)
				r.With(s.rateLimit("orders_pay")).Post("/pay", s.payOrder)
				r.Post("/checkout", s.installmentCheckout)
				r.Post("/cancel", s.cancelOrder)
			})
		})

		r.Route("/wallet/deposits", func(r chi.Router) {
			r.Post("/", s.initiateDeposit)
			r.Post("/verify", s.verifyDeposit)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(api.RequireAdmin)
			r.Post("/payments/{id}/refund", s.refundPayment)
			r.Post("/orders/{id}/cancel", s.adminCancelOrder)
		})
	})
}

// rateLimit caps calls per buyer per window. Limiter errors fail open.
func (s *Server) rateLimit(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := api.PrincipalFrom(r.Context())
			if s.opts.Limiter == nil || p.Subject == "" {
				next.ServeHTTP(w, r)
				return
			}
			ok, err := s.opts.Limiter.Allow(r.Context(), red.BuyerRouteKey(p.Subject, route), s.opts.PayLimit, s.opts.PayWindow)
			if err != nil {
				l := logging.With(r.Context(), s.log)
				l.Warn().Err(err).Str("route", route).Msg("rate limiter unavailable")
			} else if !ok {
				metrics.IncRateLimited(route)
				w.Header().Set("Retry-After", retryAfter(s.opts.PayWindow))
				api.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfter(d time.Duration) string {
	secs := int(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

var errEmptyBody = errors.New("empty body")

// decode reads a bounded JSON body into v, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func (s *Server) badBody(w http.ResponseWriter, err error) {
	msg := "request body must be valid JSON"
	if errors.Is(err, errEmptyBody) {
		msg = "request body is required"
	}
	api.WriteError(w, http.StatusBadRequest, "invalid_body", msg)
}

// caller returns the authenticated principal; routes are always behind Authenticate.
func caller(r *http.Request) api.Principal {
	p, _ := api.PrincipalFrom(r.Context())
	return p
}

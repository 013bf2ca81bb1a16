// Package gateway sequences the request security gates.
//
// Order per request: security headers, CSRF (state-changing methods only),
// the route class's rate limiter, then the IP allowlist for admin routes. The
// first gate to deny writes the response and the rest are skipped.
package gateway

import (
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/sitegate/pkg/csrf"
	"github.com/haasonsaas/sitegate/pkg/events"
	"github.com/haasonsaas/sitegate/pkg/headers"
	"github.com/haasonsaas/sitegate/pkg/ipallow"
	"github.com/haasonsaas/sitegate/pkg/ratelimit"
)

const (
	MessageTooManyRequests = "Too many requests. Please try again later."
	MessageForbidden       = "Forbidden"
	MessageAccessDenied    = "Access denied"
)

// Reason names the gate that denied a request.
type Reason string

const (
	ReasonRateLimit Reason = "rate_limited"
	ReasonCSRF      Reason = "csrf_rejected"
	ReasonIP        Reason = "ip_denied"
)

func (r Reason) eventType() events.Type {
	switch r {
	case ReasonRateLimit:
		return events.RateLimitExceeded
	case ReasonCSRF:
		return events.CSRFRejected
	default:
		return events.IPDenied
	}
}

// NewLimiters builds one limiter per throttled class. newStore is called once
// per class so partitions never share a store unless the caller wants them to.
func NewLimiters(newStore func(Class) ratelimit.Store, opts ...ratelimit.Option) map[Class]*ratelimit.Limiter {
	policies := map[Class]ratelimit.Policy{
		ClassAuth:  ratelimit.AuthPolicy,
		ClassAdmin: ratelimit.AdminPolicy,
		ClassAPI:   ratelimit.APIPolicy,
	}
	out := make(map[Class]*ratelimit.Limiter, len(policies))
	for class, policy := range policies {
		classOpts := append([]ratelimit.Option{}, opts...)
		if newStore != nil {
			classOpts = append(classOpts, ratelimit.WithStore(newStore(class)))
		}
		out[class] = ratelimit.NewLimiter(string(class), policy, classOpts...)
	}
	return out
}

type Config struct {
	Limiters       map[Class]*ratelimit.Limiter
	Allowlist      *ipallow.Checker
	Events         *events.Logger
	Metrics        *Metrics
	Production     bool
	AdminLoginPath string
	Logger         zerolog.Logger
}

type Pipeline struct {
	limiters       map[Class]*ratelimit.Limiter
	allowlist      *ipallow.Checker
	events         *events.Logger
	metrics        *Metrics
	production     bool
	adminLoginPath string
	logger         zerolog.Logger
}

func New(cfg Config) *Pipeline {
	if cfg.Limiters == nil {
		cfg.Limiters = NewLimiters(nil)
	}
	if cfg.Allowlist == nil {
		cfg.Allowlist = ipallow.NewChecker(nil)
	}
	if cfg.AdminLoginPath == "" {
		cfg.AdminLoginPath = DefaultAdminLoginPath
	}
	return &Pipeline{
		limiters:       cfg.Limiters,
		allowlist:      cfg.Allowlist,
		events:         cfg.Events,
		metrics:        cfg.Metrics,
		production:     cfg.Production,
		adminLoginPath: cfg.AdminLoginPath,
		logger:         cfg.Logger,
	}
}

func (p *Pipeline) Limiter(class Class) *ratelimit.Limiter {
	return p.limiters[class]
}

// Handler is the gin middleware running every gate.
func (p *Pipeline) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		r := c.Request
		headers.Apply(c.Writer.Header(), headers.Options{Production: p.production, Secure: headers.IsSecure(r)})

		ip := ipallow.ClientIP(r)
		route := Classify(r.URL.Path, p.adminLoginPath)
		trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("gateway.class", string(route.Class)))

		if csrf.IsStateChanging(r.Method) && !csrf.FromRequest(r) {
			p.deny(c, route, ip, ReasonCSRF, map[string]any{
				"origin":  r.Header.Get("Origin"),
				"referer": r.Header.Get("Referer"),
				"host":    r.Host,
			})
			return
		}

		if limiter := p.limiters[route.Class]; limiter != nil {
			decision := limiter.Allow(r.Context(), ip)
			c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				retryAfter := int64(math.Ceil(decision.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
				p.deny(c, route, ip, ReasonRateLimit, map[string]any{
					"limiter":       limiter.Name(),
					"limit":         decision.Limit,
					"retry_after_s": retryAfter,
				})
				return
			}
		}

		if route.AdminScoped && !p.allowlist.Allowed(ip) {
			p.deny(c, route, ip, ReasonIP, nil)
			return
		}

		p.metrics.observe(route.Class, "allowed")
		c.Next()
	}
}

func (p *Pipeline) deny(c *gin.Context, route Route, ip string, reason Reason, details map[string]any) {
	r := c.Request
	if details == nil {
		details = map[string]any{}
	}
	details["method"] = r.Method
	details["path"] = r.URL.Path
	details["class"] = string(route.Class)

	p.metrics.observe(route.Class, string(reason))
	if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
		span.AddEvent("gateway.denied", trace.WithAttributes(
			attribute.String("gateway.reason", string(reason)),
			attribute.String("gateway.class", string(route.Class)),
		))
	}

	p.events.Record(r.Context(), events.Event{
		Type:      reason.eventType(),
		IP:        ip,
		UserAgent: r.UserAgent(),
		Details:   details,
	})

	switch reason {
	case ReasonRateLimit:
		RespondError(c, http.StatusTooManyRequests, MessageTooManyRequests, p.logger)
	case ReasonCSRF:
		RespondError(c, http.StatusForbidden, MessageForbidden, p.logger)
	case ReasonIP:
		if route.Browser {
			logger := RequestLogger(c, p.logger)
			logger.Warn().Str("reason", string(reason)).Msg("redirecting to admin login")
			c.Redirect(http.StatusFound, p.adminLoginPath+"?error="+url.QueryEscape("unauthorized_ip"))
			c.Abort()
			return
		}
		RespondError(c, http.StatusForbidden, MessageAccessDenied, p.logger)
	}
}

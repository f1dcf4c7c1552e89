package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hilife/servicereport-backend/api/responses"
	"github.com/hilife/servicereport-backend/pkg/config"
	pkgerrors "github.com/hilife/servicereport-backend/pkg/errors"
	"github.com/hilife/servicereport-backend/pkg/logger"
)

// maxLoginBody bounds how much of the login body is buffered to find the email.
const maxLoginBody = 8 << 10

type windowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// loginCounter is one fixed-window budget on the login endpoint.
type loginCounter struct {
	scope string
	key   string
	limit int
}

// LoginRateLimit throttles sign-in attempts per client address and per
// account email. The email is hashed before it reaches Redis or the logs.
func LoginRateLimit(cfg config.AuthRateLimitConfig, limiter windowLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || cfg.LoginWindow <= 0 || (cfg.LoginIPLimit <= 0 && cfg.LoginEmailLimit <= 0) {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var counters []loginCounter
			if cfg.LoginIPLimit > 0 {
				if ip := clientIP(r); ip != "" {
					counters = append(counters, loginCounter{scope: "ip", key: "login:ip:" + ip, limit: cfg.LoginIPLimit})
				}
			}
			if cfg.LoginEmailLimit > 0 {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxLoginBody))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable login body"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				if hash := loginEmailHash(body); hash != "" {
					counters = append(counters, loginCounter{scope: "email", key: "login:email:" + hash, limit: cfg.LoginEmailLimit})
				}
			}

			for _, c := range counters {
				allowed, attempts, err := limiter.FixedWindowAllow(ctx, c.key, int64(c.limit), cfg.LoginWindow)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "login rate limit unavailable"))
					return
				}
				if !allowed {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"scope":    c.scope,
							"attempts": attempts,
							"limit":    c.limit,
						}), "login.rate_limited")
					}
					w.Header().Set("Retry-After", strconv.Itoa(int(cfg.LoginWindow/time.Second)))
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many sign-in attempts, try again later"))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func loginEmailHash(body []byte) string {
	var payload struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

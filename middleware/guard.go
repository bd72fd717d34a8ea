package middleware

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/techbridge/authcore/audit"
	"github.com/techbridge/authcore/jwt"
	"github.com/techbridge/authcore/permission"
	"github.com/techbridge/authcore/ratelimit"
)

// Requirement describes one endpoint's authorization surface.
type Requirement struct {
	// Roles allowed through. Empty means any valid platform role.
	Roles []permission.Role
	// Permissions the caller's role must all hold under the policy.
	Permissions []permission.Permission
	// Tier selects the rate budget; the zero value is the general tier.
	Tier ratelimit.Tier
	// SelfOnly additionally requires the route's {id} variable to equal
	// the caller's subject. Roles and Permissions still apply.
	SelfOnly bool
}

// Guard holds the shared enforcement collaborators. One Guard serves all
// routes; Require stamps out per-endpoint middleware.
type Guard struct {
	tokens  *jwt.Manager
	limiter *ratelimit.Limiter
	policy  *permission.Policy
	sink    audit.Sink
	now     func() time.Time
}

// NewGuard wires a Guard. policy defaults to the platform policy and
// sink to a no-op.
func NewGuard(tokens *jwt.Manager, limiter *ratelimit.Limiter, policy *permission.Policy, sink audit.Sink) (*Guard, error) {
	if tokens == nil || limiter == nil {
		return nil, errors.New("guard requires a token manager and a limiter")
	}
	if policy == nil {
		policy = permission.DefaultPolicy()
	}
	if sink == nil {
		sink = audit.NoOpSink{}
	}
	return &Guard{
		tokens:  tokens,
		limiter: limiter,
		policy:  policy,
		sink:    sink,
		now:     time.Now,
	}, nil
}

// Require builds the middleware enforcing req. The order is fixed:
// authentication, then rate limiting keyed by the authenticated subject,
// then role/permission checks. An unauthenticated request is never
// counted against any rate budget.
func (g *Guard) Require(req Requirement) func(http.Handler) http.Handler {
	tier := req.Tier
	if tier == "" {
		tier = ratelimit.TierGeneral
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := g.authenticate(w, r)
			if !ok {
				return
			}
			if !g.rateLimit(w, r, identity, tier) {
				return
			}
			if !g.authorize(w, r, identity, req) {
				return
			}

			g.emit(r, audit.EventRequestPermitted, identity, true, "")
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
		})
	}
}

func (g *Guard) authenticate(w http.ResponseWriter, r *http.Request) (*Identity, bool) {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		g.emit(r, audit.EventAuthFailure, nil, false, "missing bearer token")
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing or malformed authorization header")
		return nil, false
	}

	claims, err := g.tokens.Parse(token)
	if err != nil {
		reason := "invalid token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			reason = "token expired"
		}
		g.emit(r, audit.EventAuthFailure, nil, false, reason)
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", reason)
		return nil, false
	}

	role, ok := permission.Parse(claims.Role)
	if !ok {
		g.emit(r, audit.EventAuthFailure, &Identity{Subject: claims.Subject}, false, "unknown role claim")
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token")
		return nil, false
	}

	return &Identity{Subject: claims.Subject, Role: role, SID: claims.SID}, true
}

func (g *Guard) rateLimit(w http.ResponseWriter, r *http.Request, identity *Identity, tier ratelimit.Tier) bool {
	decision, err := g.limiter.Allow(r.Context(), identity.Subject, tier)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ratelimit.ErrRateLimited):
		g.emit(r, audit.EventRateLimitReject, identity, false, string(tier))
		writeRateLimited(w, decision)
		return false
	default:
		// Fail closed: with the limiter unreachable no budget can be
		// enforced, so nothing is admitted.
		g.emit(r, audit.EventRateLimitReject, identity, false, "limiter unavailable")
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "service temporarily unavailable")
		return false
	}
}

func (g *Guard) authorize(w http.ResponseWriter, r *http.Request, identity *Identity, req Requirement) bool {
	if len(req.Roles) > 0 && !roleAllowed(identity.Role, req.Roles) {
		g.emit(r, audit.EventAuthzDenied, identity, false, "role not allowed")
		writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient role")
		return false
	}
	if !g.policy.Allows(identity.Role, req.Permissions) {
		g.emit(r, audit.EventAuthzDenied, identity, false, "missing permission")
		writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permission")
		return false
	}
	if req.SelfOnly {
		if owner := mux.Vars(r)["id"]; owner == "" || owner != identity.Subject {
			g.emit(r, audit.EventAuthzDenied, identity, false, "not resource owner")
			writeError(w, http.StatusForbidden, "FORBIDDEN", "not the resource owner")
			return false
		}
	}
	return true
}

func roleAllowed(role permission.Role, allowed []permission.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

func (g *Guard) emit(r *http.Request, eventType string, identity *Identity, success bool, detail string) {
	event := audit.Event{
		Timestamp: g.now(),
		EventType: eventType,
		IP:        remoteIP(r),
		Success:   success,
		Error:     detail,
	}
	if identity != nil {
		event.Subject = identity.Subject
		event.Role = string(identity.Role)
	}
	if success {
		event.Error = ""
		if detail != "" {
			event.Metadata = map[string]string{"detail": detail}
		}
	}
	g.sink.Emit(r.Context(), event)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

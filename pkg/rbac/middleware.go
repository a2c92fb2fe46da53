package rbac

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/formulafinance/licensehub/pkg/apierrors"
	"github.com/formulafinance/licensehub/pkg/contextkeys"
	"github.com/formulafinance/licensehub/pkg/httputil"
	"github.com/formulafinance/licensehub/pkg/observability"
)

// Guard enforces the route table on every named mux route
type Guard struct {
	engine  *Engine
	metrics *observability.Metrics
}

// NewGuard creates the route guard. metrics may be nil.
func NewGuard(engine *Engine, metrics *observability.Metrics) *Guard {
	return &Guard{engine: engine, metrics: metrics}
}

// Handler wraps an HTTP handler with route authorization
func (g *Guard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		route := routeName(r)
		identity := contextkeys.GetIdentity(ctx)

		caller := Caller{Identity: identity}
		if policy, ok := PolicyFor(route); ok && policy.Kind != PolicyPublic && identity != "" {
			resolved, err := g.engine.ResolveCaller(ctx, identity)
			if err != nil {
				g.record(route, "error")
				httputil.WriteError(w, r, err)
				return
			}
			caller = resolved
		}

		if kind := AuthorizeRoute(route, caller); kind != "" {
			g.record(route, string(kind))
			observability.FromContext(ctx).WithFields(map[string]interface{}{
				"route": route,
				"role":  caller.Role,
			}).Info("Request denied")
			httputil.WriteErrorKind(w, kind, denialMessage(kind, route))
			return
		}

		g.record(route, "allowed")
		next.ServeHTTP(w, r.WithContext(WithCaller(ctx, caller)))
	})
}

func (g *Guard) record(route, decision string) {
	if g.metrics != nil {
		g.metrics.AuthorizationDecisionsTotal.WithLabelValues(route, decision).Inc()
	}
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		return route.GetName()
	}
	return ""
}

func denialMessage(kind apierrors.Kind, route string) string {
	if kind == apierrors.KindUnauthenticated {
		return "authentication required"
	}
	if _, ok := PolicyFor(route); !ok {
		return "route is not permitted"
	}
	return "insufficient permissions"
}

// WithCaller stores the authorized caller in ctx
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return contextkeys.WithCaller(ctx, caller)
}

// CallerFromContext returns the caller stored by Guard
func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(contextkeys.CallerKey).(Caller)
	return caller, ok
}

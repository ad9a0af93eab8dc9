// Package route maps client paths to views and gates protected views on the
// presence of a session token.
package route

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// View names a screen of the client.
type View string

// Views of the client.
const (
	Home     View = "home"
	Login    View = "login"
	Signup   View = "signup"
	Upload   View = "upload"
	History  View = "history"
	Report   View = "report"
	NotFound View = "not-found"
)

// Paths of the views.
const (
	HomePath    = "/"
	LoginPath   = "/login"
	SignupPath  = "/signup"
	UploadPath  = "/upload"
	HistoryPath = "/history"
	reportRoute = "/report/{id}"
)

// ReportParam is the path parameter holding the report id.
const ReportParam = "id"

// ReportPath returns the detail path of a report.
func ReportPath(id string) string {
	return "/report/" + url.PathEscape(id)
}

// Protected reports whether the view requires a session.
func (v View) Protected() bool {
	switch v {
	case Upload, History, Report:
		return true
	default:
		return false
	}
}

// Match is the result of resolving a path against the route table.
type Match struct {
	View    View
	Pattern string
	Params  map[string]string
}

// Router resolves client paths. Matching is delegated to a chi mux whose
// handlers are never invoked.
type Router struct {
	mux   *chi.Mux
	views map[string]View
}

// NewRouter returns a router with every client view registered.
func NewRouter() *Router {
	r := &Router{mux: chi.NewRouter(), views: make(map[string]View)}
	r.register(HomePath, Home)
	r.register(LoginPath, Login)
	r.register(SignupPath, Signup)
	r.register(UploadPath, Upload)
	r.register(HistoryPath, History)
	r.register(reportRoute, Report)
	return r
}

func (r *Router) register(pattern string, v View) {
	r.mux.Get(pattern, func(http.ResponseWriter, *http.Request) {})
	r.views[pattern] = v
}

// Match resolves path. Unknown paths resolve to NotFound.
func (r *Router) Match(path string) Match {
	path = cleanPath(path)
	rctx := chi.NewRouteContext()
	if !r.mux.Match(rctx, http.MethodGet, path) {
		return Match{View: NotFound, Pattern: path}
	}
	pattern := rctx.RoutePattern()
	m := Match{View: r.views[pattern], Pattern: pattern}
	if m.View == "" {
		return Match{View: NotFound, Pattern: path}
	}
	for i, key := range rctx.URLParams.Keys {
		if m.Params == nil {
			m.Params = make(map[string]string)
		}
		val := rctx.URLParams.Values[i]
		if unescaped, err := url.PathUnescape(val); err == nil {
			val = unescaped
		}
		m.Params[key] = val
	}
	if m.View == Report && strings.TrimSpace(m.Params[ReportParam]) == "" {
		return Match{View: NotFound, Pattern: path}
	}
	return m
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" || p[0] != '/' {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}

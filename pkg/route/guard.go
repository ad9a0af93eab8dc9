package route

// TokenHolder reports whether a session token is present.
type TokenHolder interface {
	Authenticated() bool
}

// Resolution is where a navigation request ends up.
type Resolution struct {
	View   View
	Path   string
	Params map[string]string
	// RedirectedFrom is the requested path when the guard redirected.
	RedirectedFrom string
}

// Redirected reports whether the guard changed the destination.
func (r Resolution) Redirected() bool {
	return r.RedirectedFrom != ""
}

// Guard gates protected views. It only checks that a token is present;
// the server decides whether the token is valid.
type Guard struct {
	router  *Router
	session TokenHolder
}

// NewGuard returns a guard over router. A nil router uses NewRouter().
func NewGuard(router *Router, session TokenHolder) *Guard {
	if router == nil {
		router = NewRouter()
	}
	return &Guard{router: router, session: session}
}

// Resolve maps a requested path to the view that should be shown.
func (g *Guard) Resolve(path string) Resolution {
	requested := cleanPath(path)
	m := g.router.Match(requested)
	authed := g.session != nil && g.session.Authenticated()

	switch {
	case m.View == Home:
		if authed {
			return Resolution{View: Upload, Path: UploadPath, RedirectedFrom: requested}
		}
		return Resolution{View: Login, Path: LoginPath, RedirectedFrom: requested}
	case m.View.Protected() && !authed:
		return Resolution{View: Login, Path: LoginPath, RedirectedFrom: requested}
	default:
		return Resolution{View: m.View, Path: requested, Params: m.Params}
	}
}

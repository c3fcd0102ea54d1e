package httpx

import "net/http"

// Chain wraps a handler with middlewares. The first middleware listed is the
// outermost, so requests pass through them in the order given.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

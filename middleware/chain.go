// Package middleware holds the HTTP decorators shared by the demo server:
// request id propagation, structured request logging, panic recovery and
// cache-control hardening for token responses.
package middleware

import "net/http"

// Middleware decorates an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares left to right: Chain(h, A, B, C) runs
// A -> B -> C -> h, so A is the first to see the request and the last
// to see the response.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ChainFunc chains middlewares onto an http.HandlerFunc.
func ChainFunc(hf http.HandlerFunc, mws ...Middleware) http.Handler {
	return Chain(hf, mws...)
}

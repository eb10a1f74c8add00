// Package methods maps gateway method names to canned-response builders.
// The catalog mirrors the impersonated product's full method surface; every
// handler returns a plausible payload without doing any real work.
package methods

import (
	"log/slog"
	"sort"
	"time"

	"github.com/clawtrap/clawtrap/internal/protocol"
)

// Context carries the few process-wide constants handlers may read. Handlers
// must not reach any further state.
type Context struct {
	Version      string
	GatewayToken string
	ConnID       string
	Host         string
	StartedAt    time.Time
}

// Handler builds the payload for one method. A returned error or a panic is
// translated to internal_error by Dispatch; the wire never sees details.
type Handler func(req *protocol.Request, c *Context) (any, error)

// Registry is the immutable method table, built once at construction.
type Registry struct {
	handlers map[string]Handler
	names    []string
	logger   *slog.Logger
}

// NewRegistry builds the full method catalog.
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{handlers: buildCatalog(), logger: logger}
	r.names = make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r
}

// Names returns the sorted method catalog, as advertised in hello-ok.
func (r *Registry) Names() []string {
	return r.names
}

// Has reports whether the method exists.
func (r *Registry) Has(method string) bool {
	_, ok := r.handlers[method]
	return ok
}

// Dispatch resolves and runs the handler for req. Unknown methods get
// method_not_found; handler errors and panics become a generic
// internal_error with nothing leaked.
func (r *Registry) Dispatch(req *protocol.Request, c *Context) (resp *protocol.Response) {
	handler, ok := r.handlers[req.Method]
	if !ok {
		return protocol.ErrResponse(req.ID, protocol.CodeMethodNotFound, "unknown method: "+req.Method)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("method handler panicked", "method", req.Method, "panic", rec)
			resp = protocol.ErrResponse(req.ID, protocol.CodeInternalError, "internal error")
		}
	}()

	payload, err := handler(req, c)
	if err != nil {
		r.logger.Error("method handler failed", "method", req.Method, "err", err)
		return protocol.ErrResponse(req.ID, protocol.CodeInternalError, "internal error")
	}
	return protocol.OKResponse(req.ID, payload)
}

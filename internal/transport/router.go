package transport

import "fmt"

// Router picks the endpoint serving a path: device paths go to the console,
// everything else to the local filesystem.
type Router struct {
	local  Endpoint
	device Endpoint
}

// NewRouter creates a Router. device may be nil when no console is in use.
func NewRouter(local, device Endpoint) *Router {
	if local == nil {
		local = NewLocal()
	}
	return &Router{local: local, device: device}
}

// For returns the endpoint for path.
//
//nolint:ireturn // callers work against the Endpoint interface
func (r *Router) For(path string) (Endpoint, error) {
	if !ParseLocation(path).IsDevice() {
		return r.local, nil
	}
	if r.device == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrNoDevice)
	}
	return r.device, nil
}

// Resolve returns the endpoint and canonical path for a CLI argument.
//
//nolint:ireturn // callers work against the Endpoint interface
func (r *Router) Resolve(arg string) (Endpoint, string, error) {
	loc := ParseLocation(arg)
	ep, err := r.For(loc.String())
	if err != nil {
		return nil, "", err
	}
	return ep, loc.String(), nil
}

// Connected reports whether every endpoint involved in moving src to dst
// is usable.
func (r *Router) Connected(src, dst string) bool {
	for _, p := range []string{src, dst} {
		ep, err := r.For(p)
		if err != nil || !ep.Connected() {
			return false
		}
	}
	return true
}

package identity

import (
	"net/http"
	"strings"
)

// Request headers the default resolver reads. In production these are
// stamped by the auth gateway in front of the service; the resolver itself
// never performs authentication.
const (
	HeaderTenantID     = "X-Tenant-ID"
	HeaderSpaceID      = "X-Space-ID"
	HeaderUserID       = "X-User-ID"
	HeaderUserRole     = "X-User-Role"
	HeaderCapabilities = "X-Capabilities"
	HeaderModules      = "X-Modules"
	HeaderVertical     = "X-Vertical"
)

// Resolver produces the caller's Context for one request. Injectable so
// tests and alternative deployments can swap the header scheme out.
type Resolver interface {
	Resolve(r *http.Request) Context
}

// HeaderResolver builds the Context from trusted gateway headers.
type HeaderResolver struct{}

// Resolve implements Resolver. Missing headers yield zero values; the
// engine rejects contexts without a user or workspace.
func (HeaderResolver) Resolve(r *http.Request) Context {
	vertical := r.Header.Get(HeaderVertical)
	if vertical == "" {
		vertical = VerticalGeneral
	}
	return Context{
		TenantID:     r.Header.Get(HeaderTenantID),
		SpaceID:      r.Header.Get(HeaderSpaceID),
		UserID:       r.Header.Get(HeaderUserID),
		Role:         r.Header.Get(HeaderUserRole),
		Capabilities: splitList(r.Header.Get(HeaderCapabilities)),
		Modules:      splitList(r.Header.Get(HeaderModules)),
		Vertical:     vertical,
	}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

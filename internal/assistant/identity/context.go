// Package identity defines the per-request caller context the assistant
// operates under. A Context is resolved from the caller's auth on every turn
// and is immutable for the duration of that turn; it is never persisted.
package identity

// Role values recognised by the intent validator. Owner is always implicitly
// authorised regardless of an intent's explicit allow-list.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// VerticalGeneral is the catch-all vertical: intents allow-listed for it are
// available to every space.
const VerticalGeneral = "general"

// Context carries the resolved identity and entitlements of the caller for
// one assistant turn or governance call.
type Context struct {
	// TenantID is the organisation the caller belongs to.
	TenantID string `json:"tenant_id"`
	// SpaceID is the workspace the request is scoped to.
	SpaceID string `json:"space_id"`
	// UserID identifies the caller within the tenant.
	UserID string `json:"user_id"`
	// Role is the caller's role in the space (owner, admin, member, viewer).
	Role string `json:"role"`
	// Capabilities is the caller's granted permission strings
	// (e.g. "quotes.create", "automations.manage").
	Capabilities []string `json:"capabilities"`
	// Modules lists the product modules active for the tenant.
	Modules []string `json:"modules"`
	// Vertical is the business-domain category of the space (e.g. "agency").
	Vertical string `json:"vertical"`
}

// HasWorkspace reports whether both a tenant and a space are present. Callers
// without a workspace are rejected by the permission guard with a dedicated
// message rather than a generic error.
func (c Context) HasWorkspace() bool {
	return c.TenantID != "" && c.SpaceID != ""
}

// HasCapability reports whether the caller holds the named permission string.
func (c Context) HasCapability(name string) bool {
	for _, cap := range c.Capabilities {
		if cap == name {
			return true
		}
	}
	return false
}

// MissingCapabilities returns the subset of required not present on the
// context, preserving the order of required.
func (c Context) MissingCapabilities(required []string) []string {
	var missing []string
	for _, r := range required {
		if !c.HasCapability(r) {
			missing = append(missing, r)
		}
	}
	return missing
}

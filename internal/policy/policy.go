// Package policy decides what an authenticated actor may do: which
// permissions its roles grant, which restaurant it is scoped to, and which
// users it may manage according to the role hierarchy.
package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tabletap/api/internal/apperr"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/enum"
)

// Actor is the identity performing an operation.
type Actor struct {
	UserID int64
	// RestaurantID is nil for platform-level users.
	RestaurantID *int64
	Roles        []string
}

func (a Actor) HasRole(role string) bool { return hasRole(a.Roles, role) }

// IsPlatform reports whether the actor operates across all restaurants.
func (a Actor) IsPlatform() bool {
	return a.HasRole(enum.RoleSuperAdmin) || a.HasRole(enum.RoleAdmin)
}

// GrantLoader is satisfied by *database.Queries.
type GrantLoader interface {
	ListRolePermissions(ctx context.Context) ([]database.ListRolePermissionsRow, error)
}

// Policy maps role names to permission sets.
type Policy struct {
	grants map[string]map[string]struct{}
}

// New builds a policy from role -> permissions.
func New(grants map[string][]string) *Policy {
	p := &Policy{grants: make(map[string]map[string]struct{}, len(grants))}
	for role, perms := range grants {
		set := make(map[string]struct{}, len(perms))
		for _, perm := range perms {
			set[perm] = struct{}{}
		}
		p.grants[role] = set
	}
	return p
}

// Load reads grants from storage. An empty grant table yields Default.
func Load(ctx context.Context, loader GrantLoader) (*Policy, error) {
	rows, err := loader.ListRolePermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load role permissions: %w", err)
	}
	if len(rows) == 0 {
		return Default(), nil
	}
	grants := make(map[string][]string)
	for _, r := range rows {
		grants[r.RoleName] = append(grants[r.RoleName], r.PermissionName)
	}
	return New(grants), nil
}

// Default returns the compiled-in grant table, identical to what cmd/seed
// writes.
func Default() *Policy {
	return New(DefaultGrants())
}

// DefaultGrants returns a fresh copy of the seeded role -> permission table.
func DefaultGrants() map[string][]string {
	return map[string][]string{
		enum.RoleSuperAdmin: append([]string(nil), enum.Permissions...),
		enum.RoleAdmin:      append([]string(nil), enum.Permissions...),
		enum.RoleRestaurantOwner: {
			enum.PermViewRestaurants, enum.PermManageMenu, enum.PermViewMenu,
			enum.PermManageProducts, enum.PermViewProducts, enum.PermManageOrders,
			enum.PermViewOrders, enum.PermUpdateOrderStatus, enum.PermCancelOrders,
			enum.PermManageUsers, enum.PermViewUsers, enum.PermViewAnalytics,
			enum.PermViewReports, enum.PermManageSettings,
		},
		enum.RoleRestaurantManager: {
			enum.PermViewRestaurants, enum.PermManageMenu, enum.PermViewMenu,
			enum.PermManageProducts, enum.PermViewProducts, enum.PermManageOrders,
			enum.PermViewOrders, enum.PermUpdateOrderStatus, enum.PermCancelOrders,
			enum.PermViewAnalytics, enum.PermViewReports,
		},
		enum.RoleKitchenStaff: {
			enum.PermViewMenu, enum.PermViewProducts, enum.PermViewOrders,
			enum.PermUpdateOrderStatus,
		},
		enum.RoleCashier: {
			enum.PermViewMenu, enum.PermViewProducts, enum.PermManageOrders,
			enum.PermViewOrders, enum.PermUpdateOrderStatus,
		},
		enum.RoleCallCenterOperator: {
			enum.PermViewMenu, enum.PermViewProducts, enum.PermManageOrders,
			enum.PermViewOrders, enum.PermUpdateOrderStatus, enum.PermCancelOrders,
		},
		enum.RoleCourier: {
			enum.PermViewOrders, enum.PermUpdateOrderStatus,
		},
		enum.RoleCustomer: {
			enum.PermViewMenu, enum.PermViewProducts,
		},
	}
}

// Can reports whether any of the actor's roles grants perm.
func (p *Policy) Can(a Actor, perm string) bool {
	for _, role := range a.Roles {
		if _, ok := p.grants[role][perm]; ok {
			return true
		}
	}
	return false
}

// Require returns Forbidden naming perm when the actor lacks it.
func (p *Policy) Require(a Actor, perm string) error {
	if p.Can(a, perm) {
		return nil
	}
	return apperr.New(apperr.KindForbidden, "missing permission: "+perm)
}

// Permissions returns the sorted union of permissions granted to roles.
func (p *Policy) Permissions(roles []string) []string {
	set := map[string]struct{}{}
	for _, role := range roles {
		for perm := range p.grants[role] {
			set[perm] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for perm := range set {
		out = append(out, perm)
	}
	sort.Strings(out)
	return out
}

// Roles returns every role the policy knows, highest rank first.
func (p *Policy) Roles() []string {
	out := make([]string, 0, len(p.grants))
	for role := range p.grants {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := Rank(out[i]), Rank(out[j])
		if ri != rj {
			return ri > rj
		}
		return out[i] < out[j]
	})
	return out
}

// RequireRestaurant scopes a non-platform actor to its own restaurant.
func RequireRestaurant(a Actor, restaurantID int64) error {
	if a.IsPlatform() {
		return nil
	}
	if a.RestaurantID == nil || *a.RestaurantID != restaurantID {
		return apperr.New(apperr.KindForbidden, "restaurant is outside your scope")
	}
	return nil
}

func forbidden(format string, args ...any) error {
	return apperr.New(apperr.KindForbidden, fmt.Sprintf(format, args...))
}

func joinRoles(roles []string) string { return strings.Join(roles, ", ") }

package policy

import "github.com/tabletap/api/internal/enum"

// rank orders roles from the top of the hierarchy down. Staff roles share a
// rank and do not outrank each other.
var rank = map[string]int{
	enum.RoleSuperAdmin:         60,
	enum.RoleAdmin:              50,
	enum.RoleRestaurantOwner:    40,
	enum.RoleRestaurantManager:  30,
	enum.RoleKitchenStaff:       20,
	enum.RoleCashier:            20,
	enum.RoleCallCenterOperator: 20,
	enum.RoleCourier:            20,
	enum.RoleCustomer:           10,
}

// staffRoles are the roles a restaurant owner may hand out.
var staffRoles = []string{
	enum.RoleRestaurantManager,
	enum.RoleKitchenStaff,
	enum.RoleCashier,
	enum.RoleCallCenterOperator,
	enum.RoleCourier,
	enum.RoleCustomer,
}

// Rank returns the hierarchy rank of role; unknown roles rank 0.
func Rank(role string) int { return rank[role] }

// highest returns the top rank among roles.
func highest(roles []string) int {
	top := 0
	for _, r := range roles {
		if rank[r] > top {
			top = rank[r]
		}
	}
	return top
}

func isStaffRole(role string) bool {
	for _, r := range staffRoles {
		if r == role {
			return true
		}
	}
	return false
}

// CanAssignRoles checks that the actor may grant every role in roles to a
// new or existing user.
func CanAssignRoles(a Actor, roles []string) error {
	switch {
	case a.HasRole(enum.RoleSuperAdmin):
		for _, r := range roles {
			if _, ok := rank[r]; !ok {
				return forbidden("unknown role: %s", r)
			}
		}
		return nil
	case a.HasRole(enum.RoleAdmin):
		for _, r := range roles {
			if rank[r] == 0 || rank[r] > rank[enum.RoleRestaurantOwner] {
				return forbidden("admin cannot assign role: %s", r)
			}
		}
		return nil
	case a.HasRole(enum.RoleRestaurantOwner):
		for _, r := range roles {
			if !isStaffRole(r) {
				return forbidden("restaurant-owner cannot assign role: %s", r)
			}
		}
		return nil
	}
	return forbidden("cannot assign roles: %s", joinRoles(roles))
}

// CanUpdateRoles checks a role change on an existing user. Only super-admin
// may change roles, and a super-admin's roles are immutable.
func CanUpdateRoles(a Actor, targetRoles []string) error {
	if hasRole(targetRoles, enum.RoleSuperAdmin) {
		return forbidden("super-admin roles cannot be changed")
	}
	if !a.HasRole(enum.RoleSuperAdmin) {
		return forbidden("only super-admin can change user roles")
	}
	return nil
}

// CanChangeStatus checks activation and suspension of a user.
func CanChangeStatus(a Actor, targetRoles []string) error {
	if hasRole(targetRoles, enum.RoleSuperAdmin) {
		return forbidden("super-admin status cannot be changed")
	}
	if a.HasRole(enum.RoleSuperAdmin) || a.HasRole(enum.RoleAdmin) || a.HasRole(enum.RoleRestaurantOwner) {
		return nil
	}
	return forbidden("cannot change user status")
}

func CanDelete(a Actor, targetRoles []string) error {
	if hasRole(targetRoles, enum.RoleSuperAdmin) {
		return forbidden("super-admin cannot be deleted")
	}
	if a.HasRole(enum.RoleSuperAdmin) || a.HasRole(enum.RoleAdmin) {
		return nil
	}
	return forbidden("cannot delete users")
}

func CanViewUsers(a Actor) error {
	if highest(a.Roles) >= rank[enum.RoleRestaurantManager] {
		return nil
	}
	return forbidden("cannot view users")
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

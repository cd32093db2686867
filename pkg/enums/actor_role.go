package enums

// ActorRole is the authority carried by a JWT or an internal caller.
type ActorRole string

const (
	ActorRoleAdmin            ActorRole = "admin"
	ActorRoleSeller           ActorRole = "seller"
	ActorRoleCustomer         ActorRole = "customer"
	ActorRoleWarehouseManager ActorRole = "warehouse_manager"
	ActorRoleSystem           ActorRole = "system"
)

var actorRoles = newSet("actor role",
	ActorRoleAdmin,
	ActorRoleSeller,
	ActorRoleCustomer,
	ActorRoleWarehouseManager,
	ActorRoleSystem,
)

func (r ActorRole) String() string {
	return string(r)
}

func (r ActorRole) IsValid() bool {
	return actorRoles.has(r)
}

// IsStaff reports whether the role may operate admin tooling.
func (r ActorRole) IsStaff() bool {
	return r == ActorRoleAdmin || r == ActorRoleWarehouseManager || r == ActorRoleSystem
}

func ParseActorRole(value string) (ActorRole, error) {
	return actorRoles.parse(value)
}

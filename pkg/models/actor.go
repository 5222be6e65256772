package models

// Role of the actor requesting a pipeline mutation.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleSupervisor Role = "SUPERVISOR"
	RoleVendedor   Role = "VENDEDOR"
	RoleSystem     Role = "SYSTEM"
)

// Actor is an already authenticated identity.
type Actor struct {
	ID   string `json:"id"   validate:"required"`
	Role Role   `json:"role" validate:"required,oneof=ADMIN SUPERVISOR VENDEDOR SYSTEM"`
}

// SystemActor is used by automations.
func SystemActor(name string) Actor {
	return Actor{ID: "system:" + name, Role: RoleSystem}
}

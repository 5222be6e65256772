package pipeline

import "github.com/dukex/salesflow/pkg/models"

// Approver decides whether actor may execute a rule flagged RequiresApproval.
type Approver interface {
	CanApprove(actor models.Actor, rule models.TransitionRule) bool
}

// RoleApprover grants approval to a fixed set of roles.
type RoleApprover struct {
	Roles []models.Role
}

// DefaultApprover lets administrators and supervisors close gated transitions.
func DefaultApprover() RoleApprover {
	return RoleApprover{Roles: []models.Role{models.RoleAdmin, models.RoleSupervisor}}
}

func (a RoleApprover) CanApprove(actor models.Actor, _ models.TransitionRule) bool {
	for _, role := range a.Roles {
		if actor.Role == role {
			return true
		}
	}

	return false
}

package models

// TransitionRule governs a move between two stages. At most one rule exists per
// ordered (From, To) pair; a missing pair is denied.
type TransitionRule struct {
	From               StageID  `json:"from_stage"                     validate:"required"        yaml:"from"`
	To                 StageID  `json:"to_stage"                       validate:"required"        yaml:"to"`
	IsAllowed          bool     `json:"is_allowed"                     yaml:"is_allowed"`
	RequiresApproval   bool     `json:"requires_approval"              yaml:"requires_approval"`
	AutoTransitionDays *int     `json:"auto_transition_days,omitempty" validate:"omitempty,min=1" yaml:"auto_transition_days,omitempty"`
	RequiredFields     []string `json:"required_fields,omitempty"      yaml:"required_fields,omitempty"`
}

// RuleKey is the map key of a rule.
type RuleKey struct {
	From StageID
	To   StageID
}

// Key returns the (From, To) pair of the rule.
func (r TransitionRule) Key() RuleKey {
	return RuleKey{From: r.From, To: r.To}
}

// IsAutomatic reports whether the sweeper may fire this rule.
func (r TransitionRule) IsAutomatic() bool {
	return r.IsAllowed && r.AutoTransitionDays != nil
}

package models

// StageAutomation is a message sent to the lead when a record enters Stage.
type StageAutomation struct {
	Stage    StageID `json:"stage"              validate:"required" yaml:"stage"`
	Name     string  `json:"name"               validate:"required" yaml:"name"`
	Channel  string  `json:"channel,omitempty"  yaml:"channel,omitempty"`
	Template string  `json:"template"           validate:"required" yaml:"template"`
}

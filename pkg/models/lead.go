package models

import (
	"strings"
	"time"
)

// Lead is the subset of a CRM lead the pipeline reads to validate required fields.
type Lead struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"             validate:"required"`
	Phone     string            `json:"phone,omitempty"`
	Email     string            `json:"email,omitempty"  validate:"omitempty,email"`
	DNI       string            `json:"dni,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Value resolves a field name against the fixed columns first, then Fields.
func (l *Lead) Value(field string) string {
	switch field {
	case "name", "nombre":
		return strings.TrimSpace(l.Name)
	case "phone", "telefono":
		return strings.TrimSpace(l.Phone)
	case "email":
		return strings.TrimSpace(l.Email)
	case "dni":
		return strings.TrimSpace(l.DNI)
	}

	return strings.TrimSpace(l.Fields[field])
}

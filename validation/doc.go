// Package validation checks request input and decoded messages, returning
// INVALID_INPUT AppErrors that list each failing field.
//
// Struct tags use github.com/go-playground/validator plus a resource_id tag:
//
//	type Notice struct {
//	    ResourceID string    `json:"resource_id" validate:"required,resource_id"`
//	    DeletedAt  time.Time `json:"deleted_at" validate:"required"`
//	}
//	err := validation.Validate(n)
//
// Programmatic checks chain on a Validator:
//
//	err := validation.New().ResourceID("id", c.Param("id")).Err()
package validation

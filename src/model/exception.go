package model

import "time"

// Exception represents a background failure that must be persisted
// for auditing and debugging, e.g. a panicking loop tick.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Where the error happened
	Service string `gorm:"size:100;index" json:"service"` // e.g. "engine"
	Module  string `gorm:"size:100;index" json:"module"`  // e.g. "scheduler"
	Method  string `gorm:"size:100" json:"method"`        // e.g. task name

	Message string `gorm:"type:text" json:"message"`
	Stack   string `gorm:"type:text" json:"stack"`

	// debug | info | warn | error | fatal
	Level string `gorm:"size:20;index" json:"level"`

	Context string `gorm:"type:text" json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

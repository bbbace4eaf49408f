package core

import (
	"github.com/google/uuid"
)

// GenerateID returns a new unique identifier for domain entities.
func GenerateID() string {
	return uuid.New().String()
}

// ShortID returns a truncated form of an ID suitable for display.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

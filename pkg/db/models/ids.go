package models

import "github.com/google/uuid"

// ensureID assigns a client-side UUID so rows get identities on every dialect.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

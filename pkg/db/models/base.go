package models

import "github.com/google/uuid"

// ensureID assigns a client-side UUID so inserts behave the same on Postgres
// and on the sqlite databases used in tests.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpExtractsPgxFault(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "commits_repository_id_sha_key", TableName: "commits", Message: "duplicate key value"}
	err := Wrap(CodeConflict, fmt.Errorf("insert commit: %w", pgErr), "commit exists")

	dump := Dump(err)
	assert.Equal(t, CodeConflict, dump.Code)
	require.NotNil(t, dump.Database)
	assert.Equal(t, "integrity_constraint_violation", dump.Database.Class)

	fields := dump.Fields()
	assert.Equal(t, "23505", fields["sqlstate"])
	assert.Equal(t, "commits", fields["db_table"])
	assert.Equal(t, "commits_repository_id_sha_key", fields["db_constraint"])
	assert.NotContains(t, fields, "db_column")
	assert.Len(t, fields["error_chain"], 3)
}

func TestDumpExtractsPqFault(t *testing.T) {
	err := fmt.Errorf("claim jobs: %w", &pq.Error{Code: "40001", Table: "scheduled_jobs"})

	fields := Dump(err).Fields()
	assert.Equal(t, "transaction_rollback", fields["sqlstate_class"])
	assert.Equal(t, "scheduled_jobs", fields["db_table"])
}

func TestDumpOfPlainError(t *testing.T) {
	dump := Dump(stdErrors.New("boom"))
	assert.Equal(t, "boom", dump.Message)
	assert.Nil(t, dump.Database)
	assert.Equal(t, map[string]any{"error": "boom"}, dump.Fields())
}

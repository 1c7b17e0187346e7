package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is a log-friendly breakdown of an error chain. Postgres errors
// contribute their SQLSTATE and constraint so failed inserts from webhook
// handlers can be traced without the raw driver error.
type ErrorDump struct {
	Message  string
	Code     Code
	Chain    []string
	Database *DatabaseFault
}

// DatabaseFault is the subset of a Postgres error worth logging.
type DatabaseFault struct {
	SQLState   string
	Class      string
	Constraint string
	Table      string
	Column     string
	Detail     string
}

// sqlStateClasses names the SQLSTATE classes this service actually hits.
var sqlStateClasses = map[string]string{
	"08": "connection_exception",
	"22": "data_exception",
	"23": "integrity_constraint_violation",
	"40": "transaction_rollback",
	"42": "syntax_or_access_rule",
	"53": "insufficient_resources",
	"57": "operator_intervention",
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	dump := ErrorDump{Message: err.Error(), Database: databaseFault(err)}
	if typed := As(err); typed != nil {
		dump.Code = typed.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		dump.Chain = append(dump.Chain, fmt.Sprintf("%T", e))
	}
	return dump
}

func databaseFault(err error) *DatabaseFault {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return newFault(pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.ColumnName, pgxErr.Detail)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return newFault(string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail)
	}
	return nil
}

func newFault(state, constraint, table, column, detail string) *DatabaseFault {
	fault := &DatabaseFault{SQLState: state, Constraint: constraint, Table: table, Column: column, Detail: detail}
	if len(state) >= 2 {
		fault.Class = sqlStateClasses[state[:2]]
	}
	return fault
}

// Fields flattens the dump into log fields, omitting empty values.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error": d.Message}
	if d.Code != "" {
		fields["error_code"] = string(d.Code)
	}
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	if f := d.Database; f != nil {
		for key, value := range map[string]string{
			"sqlstate":       f.SQLState,
			"sqlstate_class": f.Class,
			"db_constraint":  f.Constraint,
			"db_table":       f.Table,
			"db_column":      f.Column,
			"db_detail":      f.Detail,
		} {
			if value != "" {
				fields[key] = value
			}
		}
	}
	return fields
}

package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"go.uber.org/multierr"
)

// maxChainDepth bounds Dump on pathological wrap chains.
const maxChainDepth = 16

// ErrorDump is the flattened, log-friendly view of an error.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Retryable  bool     `json:"retryable"`
	Details    any      `json:"details,omitempty"`
	Chain      []string `json:"chain,omitempty"`
	// Causes lists the members of a combined error, one per entry.
	Causes []string `json:"causes,omitempty"`

	Postgres *PostgresDiagnostics `json:"postgres,omitempty"`
}

// PostgresDiagnostics holds the server-side fields of a Postgres error, from
// either driver.
type PostgresDiagnostics struct {
	SQLState   string `json:"sqlstate"`
	Condition  string `json:"condition,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{
		TopMessage: err.Error(),
		Retryable:  IsRetryable(err),
		Postgres:   postgresDiagnostics(err),
	}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
		d.Details = typed.Details()
	}
	for e, depth := err, 0; e != nil && depth < maxChainDepth; e, depth = errors.Unwrap(e), depth+1 {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	if members := multierr.Errors(err); len(members) > 1 {
		for _, m := range members {
			d.Causes = append(d.Causes, m.Error())
		}
	}
	return d
}

func postgresDiagnostics(err error) *PostgresDiagnostics {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PostgresDiagnostics{
			SQLState:   pgxErr.Code,
			Condition:  pq.ErrorCode(pgxErr.Code).Name(),
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PostgresDiagnostics{
			SQLState:   string(pqErr.Code),
			Condition:  pqErr.Code.Name(),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}

// Fields renders the dump as structured log fields. Postgres diagnostics are
// flattened under a pg_ prefix and omitted when absent.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
		"retryable":   d.Retryable,
	}
	if d.Details != nil {
		fields["error_details"] = d.Details
	}
	if len(d.Causes) > 0 {
		fields["error_causes"] = d.Causes
	}
	if pg := d.Postgres; pg != nil {
		fields["pg_code"] = pg.SQLState
		fields["pg_condition"] = pg.Condition
		fields["pg_constraint"] = pg.Constraint
		fields["pg_table"] = pg.Table
		fields["pg_detail"] = pg.Detail
		fields["pg_message"] = pg.Message
	}
	return fields
}

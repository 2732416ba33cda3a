// Package sqlxrepos implements the core repositories on PostgreSQL via sqlx.
package sqlxrepos

import (
	stderrors "errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/darasa-app/darasa/core"
)

// pg error codes
const pgUniqueViolation = "23505"

// ext returns the transactional executor when one was passed down from a
// core.Transactor, the bare connection otherwise.
func ext(db sqlx.ExtContext, exec []core.DBExecutor) sqlx.ExtContext {
	if len(exec) > 0 {
		if tx, ok := exec[0].(sqlx.ExtContext); ok {
			return tx
		}
	}
	return db
}

// orderBy renders an ORDER BY clause from the requested orderings.
// Fields are mapped through columns so only whitelisted columns ever reach
// the query; when none match, fallback applies.
func orderBy(orderings []core.DBOrdering, columns map[string]string, fallback string) string {
	clauses := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		if col, ok := columns[ord.Field]; ok {
			clauses = append(clauses, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	if len(clauses) == 0 {
		return fallback
	}
	return ` ORDER BY ` + strings.Join(clauses, ", ")
}

// uniqueViolation reports whether err is a unique constraint violation,
// optionally on one of the named constraints.
func uniqueViolation(err error, constraints ...string) bool {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) || pqErr.Code != pgUniqueViolation {
		return false
	}
	if len(constraints) == 0 {
		return true
	}
	for _, c := range constraints {
		if pqErr.Constraint == c {
			return true
		}
	}
	return false
}

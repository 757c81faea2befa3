package postgres

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"forager/internal/domain"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// uniqueFields names the column behind each unique constraint in migrations/.
var uniqueFields = map[string]string{
	"categories_name_key": "name",
	"tags_name_key":       "name",
	"feeds_url_key":       "url",
	"idx_feeds_string_id": "string_id",
	"articles_link_key":   "link",
}

// mapError translates driver errors into the domain taxonomy.
func mapError(op, entity string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation:
			field, ok := uniqueFields[pqErr.Constraint]
			if !ok {
				field = "key"
			}
			return &domain.ConflictError{Entity: entity, Field: field}
		case codeForeignKeyViolation:
			return &domain.ConflictError{Entity: entity, Reason: pqErr.Detail}
		}
	}

	return &domain.StorageError{Op: op, Err: err}
}

func expectRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return &domain.StorageError{Op: "rows affected", Err: err}
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

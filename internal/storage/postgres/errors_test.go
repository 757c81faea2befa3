package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forager/internal/domain"
)

func TestMapError_UniqueViolationUsesConstraintName(t *testing.T) {
	cases := map[string]string{
		"feeds_url_key":       "url",
		"idx_feeds_string_id": "string_id",
		"articles_link_key":   "link",
		"categories_name_key": "name",
		"some_new_index":      "key",
	}

	for constraint, field := range cases {
		err := mapError("create", "feed", fmt.Errorf("insert: %w", &pq.Error{
			Code:       codeUniqueViolation,
			Constraint: constraint,
		}))

		var conflict *domain.ConflictError
		require.True(t, errors.As(err, &conflict), constraint)
		assert.Equal(t, field, conflict.Field, constraint)
		assert.Equal(t, "feed", conflict.Entity)
	}
}

func TestMapError_OtherFailures(t *testing.T) {
	assert.NoError(t, mapError("get", "feed", nil))
	assert.ErrorIs(t, mapError("get", "feed", sql.ErrNoRows), domain.ErrNotFound)

	var conflict *domain.ConflictError
	fk := mapError("delete category", "category", &pq.Error{Code: codeForeignKeyViolation, Detail: "still referenced"})
	require.True(t, errors.As(fk, &conflict))
	assert.Equal(t, "still referenced", conflict.Reason)

	var storageErr *domain.StorageError
	cause := errors.New("connection reset")
	other := mapError("list feeds", "feed", cause)
	require.True(t, errors.As(other, &storageErr))
	assert.Equal(t, "list feeds", storageErr.Op)
	assert.ErrorIs(t, other, cause)
}

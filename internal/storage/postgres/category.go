package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"forager/internal/domain"
)

const categoryColumns = `id, name, created_at, updated_at`

type CategoryStore struct {
	db *sqlx.DB
}

func NewCategoryStore(db *sqlx.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

func (s *CategoryStore) Create(ctx context.Context, name string) (*domain.Category, error) {
	var c domain.Category
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &c,
		`INSERT INTO categories (name) VALUES ($1) RETURNING `+categoryColumns, name)
	if err != nil {
		return nil, mapError("create category", "category", err)
	}
	return &c, nil
}

func (s *CategoryStore) Get(ctx context.Context, id int64) (*domain.Category, error) {
	var c domain.Category
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &c,
		`SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	if err != nil {
		return nil, mapError("get category", "category", err)
	}
	return &c, nil
}

func (s *CategoryStore) GetByName(ctx context.Context, name string) (*domain.Category, error) {
	var c domain.Category
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &c,
		`SELECT `+categoryColumns+` FROM categories WHERE name = $1`, name)
	if err != nil {
		return nil, mapError("get category by name", "category", err)
	}
	return &c, nil
}

// List orders by id so the first element is the oldest category.
func (s *CategoryStore) List(ctx context.Context) ([]domain.Category, error) {
	var out []domain.Category
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &out,
		`SELECT `+categoryColumns+` FROM categories ORDER BY id`)
	if err != nil {
		return nil, mapError("list categories", "category", err)
	}
	return out, nil
}

func (s *CategoryStore) Update(ctx context.Context, id int64, name string) (*domain.Category, error) {
	var c domain.Category
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &c,
		`UPDATE categories SET name = $2, updated_at = NOW() WHERE id = $1 RETURNING `+categoryColumns,
		id, name)
	if err != nil {
		return nil, mapError("update category", "category", err)
	}
	return &c, nil
}

// Delete fails with a conflict while feeds still belong to the category.
func (s *CategoryStore) Delete(ctx context.Context, id int64) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return mapError("delete category", "category", err)
	}
	return expectRows(res)
}

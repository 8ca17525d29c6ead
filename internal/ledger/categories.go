package ledger

import (
	"context"
	"errors"
	"strings"
)

// CategoryGuard classifies categories as user-facing or ledger-reserved.
type CategoryGuard struct {
	repo RepositoryPort
}

// NewCategoryGuard constructs the guard.
func NewCategoryGuard(repo RepositoryPort) *CategoryGuard {
	return &CategoryGuard{repo: repo}
}

// IsUserSelectable reports whether users may tag their own entries with c.
func (g *CategoryGuard) IsUserSelectable(c Category) bool {
	return !c.Reserved
}

// CanDeleteTransactions reports whether entries tagged with c may be deleted. Reserved
// categories are never deletable, whatever their seeded flag says.
func (g *CategoryGuard) CanDeleteTransactions(c Category) bool {
	return !c.Reserved && !c.DeletionProhibited
}

// Get loads a category by id.
func (g *CategoryGuard) Get(ctx context.Context, id int64) (Category, error) {
	var category Category
	err := g.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		category, err = tx.GetCategory(ctx, id)
		return err
	})
	return category, err
}

// ListSelectable returns the categories offered to users.
func (g *CategoryGuard) ListSelectable(ctx context.Context) ([]Category, error) {
	var out []Category
	err := g.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		all, err := tx.ListCategories(ctx)
		if err != nil {
			return err
		}
		for _, c := range all {
			if g.IsUserSelectable(c) {
				out = append(out, c)
			}
		}
		return nil
	})
	return out, err
}

// Create adds a user category.
func (g *CategoryGuard) Create(ctx context.Context, name string) (Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Category{}, ErrInvalidName
	}
	var category Category
	err := g.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		category, err = tx.InsertCategory(ctx, name, foldName(name))
		return err
	})
	return category, err
}

// ByRole returns the seeded category playing role.
func (g *CategoryGuard) ByRole(ctx context.Context, role CategoryRole) (Category, error) {
	var category Category
	err := g.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		category, err = g.byRole(ctx, tx, role)
		return err
	})
	return category, err
}

// byRole resolves the seeded category for role inside a unit of work.
func (g *CategoryGuard) byRole(ctx context.Context, tx TxRepository, role CategoryRole) (Category, error) {
	category, err := tx.GetCategoryByRole(ctx, role)
	if err != nil {
		if errors.Is(err, ErrCategoryMissing) {
			return Category{}, ErrReservedCategoryMissing
		}
		return Category{}, err
	}
	return category, nil
}

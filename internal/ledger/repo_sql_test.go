package ledger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-finance/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

func TestRepositoryWithoutPoolIsUnavailable(t *testing.T) {
	called := false
	err := NewRepository(nil).WithTx(context.Background(), func(context.Context, TxRepository) error {
		called = true
		return nil
	})
	require.False(t, called)
	require.ErrorIs(t, err, shared.ErrUnavailable)
	require.Equal(t, shared.ErrUnavailable, shared.KindOf(err))
	require.True(t, IsRetryable(err))

	rec := httptest.NewRecorder()
	httpx.RespondError(rec, err)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTranslateErrors(t *testing.T) {
	require.ErrorIs(t, translate(ErrNotEnoughFunds), ErrNotEnoughFunds)
	require.ErrorIs(t, translate(&pgconn.PgError{Code: "40001"}), ErrVersionConflict)
	require.ErrorIs(t, translate(&pgconn.PgError{Code: "40P01"}), ErrVersionConflict)

	err := translate(&pgconn.PgError{Code: "08006"})
	require.ErrorIs(t, err, shared.ErrUnavailable)
	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr))
}

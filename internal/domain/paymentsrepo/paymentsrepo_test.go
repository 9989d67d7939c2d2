package paymentsrepo

import (
	"context"
	"errors"
	"testing"

	"paykit/internal/payments"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type querierMock struct{ mock.Mock }

func (m *querierMock) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	called := m.Called(ctx, sql, args)
	return called.Get(0).(pgconn.CommandTag), called.Error(1)
}

func (m *querierMock) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	called := m.Called(ctx, sql, args)
	rows, _ := called.Get(0).(pgx.Rows)
	return rows, called.Error(1)
}

func (m *querierMock) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return m.Called(ctx, sql, args).Get(0).(pgx.Row)
}

// rowStub scans fixed values into the first destinations.
type rowStub struct {
	values []any
	err    error
}

func (r rowStub) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, v := range r.values {
		switch d := dest[i].(type) {
		case *bool:
			*d = v.(bool)
		case *int64:
			*d = v.(int64)
		}
	}
	return nil
}

func TestRepository_GetByTokenNotFound(t *testing.T) {
	q := new(querierMock)
	q.On("QueryRow", mock.Anything, mock.Anything, []any{"missing"}).Return(rowStub{err: pgx.ErrNoRows})

	_, err := NewRepository(q).GetByToken(context.Background(), "missing")
	require.True(t, errors.Is(err, payments.ErrNotFound))
}

func TestRepository_UpdateMissingRow(t *testing.T) {
	q := new(querierMock)
	q.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(rowStub{err: pgx.ErrNoRows})

	p := payments.NewPayment("dummy", "USD", decimal.NewFromInt(10))
	p.ID = 42
	err := NewRepository(q).Update(context.Background(), p)
	require.True(t, errors.Is(err, payments.ErrNotFound))
}

func TestRepository_TokenExists(t *testing.T) {
	q := new(querierMock)
	q.On("QueryRow", mock.Anything, mock.Anything, []any{"taken"}).Return(rowStub{values: []any{true}})
	q.On("QueryRow", mock.Anything, mock.Anything, []any{"free"}).Return(rowStub{values: []any{false}})

	repo := NewRepository(q)
	exists, err := repo.TokenExists(context.Background(), "taken")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = repo.TokenExists(context.Background(), "free")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestRepository_CreateSetsID(t *testing.T) {
	q := new(querierMock)
	q.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(rowStub{values: []any{int64(7)}})

	p := payments.NewPayment("dummy", "USD", decimal.NewFromInt(10))
	p.Token = "tok"
	require.NoError(t, NewRepository(q).Create(context.Background(), p))
	require.Equal(t, int64(7), p.ID)
}

func TestLogsRepository_InsertEncodesPayload(t *testing.T) {
	q := new(querierMock)
	q.On("Exec", mock.Anything, mock.Anything, []any{int64(3), "redirect", []byte(`{"url":"https://x"}`)}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := NewLogsRepository(q).InsertPaymentLog(context.Background(), 3, "redirect", map[string]any{"url": "https://x"})
	require.NoError(t, err)
	q.AssertExpectations(t)
}

func TestMigrate(t *testing.T) {
	q := new(querierMock)
	q.On("Exec", mock.Anything, Schema, []any(nil)).Return(pgconn.CommandTag{}, errors.New("boom"))

	err := Migrate(context.Background(), q)
	require.ErrorContains(t, err, "migrate payments schema")
}

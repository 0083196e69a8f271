package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-faster/errors"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cartflow/pkg/order"
)

func TestCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertOrder)).WithArgs("o1", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertLine)).WithArgs("o1", "207", 2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertLine)).WithArgs("o1", "376", 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = New(db).Create(context.Background(), order.Order{
		ID:        "o1",
		Lines:     []order.Line{{ProductID: "207", Quantity: 2}, {ProductID: "376", Quantity: 1}},
		CreatedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertOrder)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertLine)).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = New(db).Create(context.Background(), order.Order{ID: "o1", Lines: []order.Line{{ProductID: "a", Quantity: 1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert line a")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertOrder)).WillReturnError(&pq.Error{Code: uniqueViolation})
	mock.ExpectRollback()

	err = New(db).Create(context.Background(), order.Order{ID: "o1"})
	assert.ErrorIs(t, err, order.ErrExists)
}

func TestGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(selectOrder)).WithArgs("o1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("o1", now))
	mock.ExpectQuery(regexp.QuoteMeta(selectLines)).WithArgs("o1").
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "product_id", "quantity"}).AddRow("o1", "207", 3))

	o, err := New(db).Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, []order.Line{{ProductID: "207", Quantity: 3}}, o.Lines)
	assert.True(t, o.CreatedAt.Equal(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(selectOrder)).WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))

	_, err = New(db).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(listOrders)).WillReturnRows(
		sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow("o1", now).
			AddRow("o2", now.Add(time.Minute)),
	)
	mock.ExpectQuery(regexp.QuoteMeta(listLines)).WillReturnRows(
		sqlmock.NewRows([]string{"order_id", "product_id", "quantity"}).
			AddRow("o1", "a", 1).
			AddRow("o2", "a", 2).
			AddRow("o2", "b", 5),
	)

	orders, err := New(db).List(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, 1, orders[0].ItemCount())
	assert.Equal(t, 7, orders[1].ItemCount())
	assert.NoError(t, mock.ExpectationsWereMet())
}

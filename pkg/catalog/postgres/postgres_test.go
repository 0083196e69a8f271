package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cartflow/pkg/catalog"
	"cartflow/pkg/logger"
	"cartflow/pkg/store"
)

var columns = []string{"id", "name", "price", "description", "image_url", "image_alt", "image_credit"}

func TestFetch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(listQuery)).WillReturnRows(
		sqlmock.NewRows(columns).
			AddRow("a", "Apple", "3.00", "Crisp", "/a.jpg", "an apple", "me").
			AddRow("b", "Bread", "5.50", "", "", "", ""),
	)

	items, err := New(db).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Apple", items[0].Name)
	assert.True(t, items[1].Price.Equal(decimal.RequireFromString("5.5")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("connection reset")
	mock.ExpectQuery(regexp.QuoteMeta(listQuery)).WillReturnError(boom)

	_, err = New(db).Fetch(context.Background())
	assert.True(t, errors.Is(err, boom))
}

func TestUpsertRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO products").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO products").WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	err = New(db).Upsert(context.Background(), []catalog.Item{
		{ID: "a", Name: "Apple", Price: decimal.RequireFromString("3")},
		{ID: "b", Name: "Bread", Price: decimal.RequireFromString("-1")},
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchRowError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("connection reset")
	mock.ExpectQuery(regexp.QuoteMeta(listQuery)).WillReturnRows(
		sqlmock.NewRows(columns).
			AddRow("a", "Apple", "3.00", "", "", "", "").
			AddRow("b", "Bread", "5.50", "", "", "", "").
			RowError(1, boom),
	)

	items, err := New(db).Fetch(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "iterate products")
	assert.Nil(t, items)
}

func TestUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO products").
		WithArgs("a", "Apple", sqlmock.AnyArg(), "", "", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO products").
		WithArgs("b", "Bread", sqlmock.AnyArg(), "", "", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = New(db).Upsert(context.Background(), []catalog.Item{
		{ID: "a", Name: "Apple", Price: decimal.RequireFromString("3")},
		{ID: "b", Name: "Bread", Price: decimal.RequireFromString("5.5")},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreLoadsFromTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(listQuery)).WillReturnRows(
		sqlmock.NewRows(columns).
			AddRow("a", "Apple", "3.00", "", "", "", "").
			AddRow("b", "Bread", "5.50", "", "", "", ""),
	)

	st := store.New(logger.Nop())
	require.NoError(t, st.LoadCatalog(context.Background(), New(db)))
	assert.Len(t, st.State().Catalog.Products, 2)
	assert.Equal(t, "Bread", st.State().Catalog.Products["b"].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

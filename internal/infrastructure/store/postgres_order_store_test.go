package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/example/ec-stock-reservation/internal/domain/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderColumns = []string{"id", "member_id", "status", "created_at", "updated_at"}

func TestPostgresOrderStore_Save(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)
	o, err := order.New("member-1", []order.Line{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO orders (id, member_id, status, created_at, updated_at)")).
		WithArgs(o.ID, "member-1", "ORDERED", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO order_lines")).
		WithArgs(o.ID, 0, int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO order_lines")).
		WithArgs(o.ID, 1, int64(2), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Save(context.Background(), o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrderStore_Save_LineFailureRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)
	o, _ := order.New("member-1", []order.Line{{ProductID: 1, Quantity: 2}})

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO orders")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO order_lines")).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	assert.Error(t, s.Save(context.Background(), o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrderStore_FindByID(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)
	now := time.Now()

	mock.ExpectQuery(q("SELECT id, member_id, status, created_at, updated_at FROM orders WHERE id = $1")).
		WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows(orderColumns).AddRow("o-1", "member-1", "ORDERED", now, now))
	mock.ExpectQuery(q("SELECT product_id, quantity FROM order_lines WHERE order_id = $1")).
		WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity"}).AddRow(3, 2).AddRow(4, 1))

	o, err := s.FindByID(context.Background(), "o-1")

	require.NoError(t, err)
	assert.Equal(t, order.StatusOrdered, o.Status)
	assert.Equal(t, []order.Line{{ProductID: 3, Quantity: 2}, {ProductID: 4, Quantity: 1}}, o.Lines)
}

func TestPostgresOrderStore_FindByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)

	mock.ExpectQuery(q("FROM orders WHERE id = $1")).
		WillReturnRows(sqlmock.NewRows(orderColumns))

	_, err := s.FindByID(context.Background(), "missing")

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestPostgresOrderStore_ListByMember(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)
	now := time.Now()

	mock.ExpectQuery(q("WHERE member_id = $1")).
		WithArgs("member-1").
		WillReturnRows(sqlmock.NewRows(orderColumns).
			AddRow("o-2", "member-1", "ORDERED", now, now).
			AddRow("o-1", "member-1", "CANCELED", now, now))
	mock.ExpectQuery(q("FROM order_lines WHERE order_id IN ($1, $2)")).
		WithArgs("o-2", "o-1").
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "product_id", "quantity"}).
			AddRow("o-1", 1, 1).
			AddRow("o-2", 2, 5).
			AddRow("o-2", 3, 1))

	orders, err := s.ListByMember(context.Background(), "member-1")

	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Len(t, orders[0].Lines, 2)
	assert.Equal(t, order.StatusCanceled, orders[1].Status)
	assert.Equal(t, []order.Line{{ProductID: 1, Quantity: 1}}, orders[1].Lines)
}

func TestPostgresOrderStore_ListAll_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)

	mock.ExpectQuery(q("FROM orders ORDER BY created_at DESC")).
		WillReturnRows(sqlmock.NewRows(orderColumns))

	orders, err := s.ListAll(context.Background())

	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrderStore_UpdateStatus(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)

	mock.ExpectExec(q("UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4")).
		WithArgs("CANCELED", sqlmock.AnyArg(), "o-1", "ORDERED").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.UpdateStatus(context.Background(), "o-1", order.StatusOrdered, order.StatusCanceled, time.Now()))
}

func TestPostgresOrderStore_UpdateStatus_AlreadyCanceled(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)

	mock.ExpectExec(q("UPDATE orders SET status")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT status FROM orders WHERE id = $1")).
		WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("CANCELED"))

	err := s.UpdateStatus(context.Background(), "o-1", order.StatusOrdered, order.StatusCanceled, time.Now())

	assert.ErrorIs(t, err, order.ErrOrderCanceled)
}

func TestPostgresOrderStore_UpdateStatus_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)

	mock.ExpectExec(q("UPDATE orders SET status")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT status FROM orders")).WillReturnRows(sqlmock.NewRows([]string{"status"}))

	err := s.UpdateStatus(context.Background(), "o-1", order.StatusOrdered, order.StatusCanceled, time.Now())

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

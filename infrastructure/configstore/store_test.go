package configstore

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	sqlxDB := sqlx.NewDb(db, "postgres")
	return New(sqlxDB), mock, func() { db.Close() }
}

func TestPutExecutesUpsert(t *testing.T) {
	store, mock, closeFn := newMockStore(t)
	defer closeFn()

	mock.ExpectExec("INSERT INTO logwatch_config_items").
		WithArgs("alarm", "a1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Put(context.Background(), "alarm", "a1", sample{Name: "cpu", Count: 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetReturnsFalseOnNoRows(t *testing.T) {
	store, mock, closeFn := newMockStore(t)
	defer closeFn()

	mock.ExpectQuery("SELECT data FROM logwatch_config_items").
		WithArgs("alarm", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	var out sample
	found, err := store.Get(context.Background(), "alarm", "missing", &out)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatal("expected found=false for a missing key")
	}
}

func TestGetUnmarshalsStoredDocument(t *testing.T) {
	store, mock, closeFn := newMockStore(t)
	defer closeFn()

	mock.ExpectQuery("SELECT data FROM logwatch_config_items").
		WithArgs("alarm", "a1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"name":"cpu","count":3}`)))

	var out sample
	found, err := store.Get(context.Background(), "alarm", "a1", &out)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || out.Name != "cpu" || out.Count != 3 {
		t.Fatalf("got %+v found=%v, want {cpu 3} found=true", out, found)
	}
}

func TestListInvokesCallbackPerRow(t *testing.T) {
	store, mock, closeFn := newMockStore(t)
	defer closeFn()

	mock.ExpectQuery("SELECT key, data FROM logwatch_config_items").
		WithArgs("alarm").
		WillReturnRows(sqlmock.NewRows([]string{"key", "data"}).
			AddRow("a1", []byte(`{"name":"cpu","count":1}`)).
			AddRow("a2", []byte(`{"name":"mem","count":2}`)))

	seen := 0
	err := store.List(context.Background(), "alarm", func(key string, data []byte) error {
		seen++
		return nil
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if seen != 2 {
		t.Fatalf("seen = %d, want 2", seen)
	}
}

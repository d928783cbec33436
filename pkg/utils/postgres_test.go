package utils

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"
)

// txRecorder counts transaction outcomes across the recording driver.
type txRecorder struct {
	mu         sync.Mutex
	begun      int
	committed  int
	rolledBack int
	commitErr  error
}

func (r *txRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.begun, r.committed, r.rolledBack, r.commitErr = 0, 0, 0, nil
}

func (r *txRecorder) counts() (begun, committed, rolledBack int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.begun, r.committed, r.rolledBack
}

var recorder = &txRecorder{}

type recDriver struct{}

func (recDriver) Open(string) (driver.Conn, error) { return recConn{}, nil }

type recConn struct{}

func (recConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (recConn) Close() error                        { return nil }

func (recConn) Begin() (driver.Tx, error) {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.begun++
	return recTx{}, nil
}

type recTx struct{}

func (recTx) Commit() error {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.committed++
	return recorder.commitErr
}

func (recTx) Rollback() error {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.rolledBack++
	return nil
}

var registerOnce sync.Once

func openRecorded(t *testing.T) *sql.DB {
	t.Helper()
	registerOnce.Do(func() { sql.Register("txrecorder", recDriver{}) })
	recorder.reset()
	db, err := sql.Open("txrecorder", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db := openRecorded(t)

	err := WithTx(context.Background(), db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	begun, committed, rolledBack := recorder.counts()
	if begun != 1 || committed != 1 || rolledBack != 0 {
		t.Fatalf("expected 1 begin / 1 commit / 0 rollback, got %d/%d/%d", begun, committed, rolledBack)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := openRecorded(t)

	boom := errors.New("seen update failed")
	err := WithTx(context.Background(), db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error back, got %v", err)
	}
	_, committed, rolledBack := recorder.counts()
	if committed != 0 || rolledBack != 1 {
		t.Fatalf("expected rollback only, got %d commits / %d rollbacks", committed, rolledBack)
	}
}

func TestWithTx_RollsBackAndRethrowsOnPanic(t *testing.T) {
	db := openRecorded(t)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic to propagate")
		}
		_, committed, rolledBack := recorder.counts()
		if committed != 0 || rolledBack != 1 {
			t.Fatalf("expected rollback only, got %d commits / %d rollbacks", committed, rolledBack)
		}
	}()

	_ = WithTx(context.Background(), db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		panic("ledger write exploded")
	})
}

func TestWithTx_SurfacesCommitError(t *testing.T) {
	db := openRecorded(t)
	recorder.mu.Lock()
	recorder.commitErr = errors.New("commit refused")
	recorder.mu.Unlock()

	err := WithTx(context.Background(), db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return nil
	})
	if err == nil {
		t.Fatalf("expected commit error")
	}
}

func TestPostgresPoolDefaults(t *testing.T) {
	got := PostgresPoolConfig{}.withDefaults()
	if got.MaxOpenConns != 10 || got.MaxIdleConns != 5 {
		t.Fatalf("unexpected pool sizing: %+v", got)
	}
	if got.ConnMaxLifetime != time.Hour || got.ConnMaxIdleTime != 10*time.Minute {
		t.Fatalf("unexpected conn lifetimes: %+v", got)
	}
	if got.PingTimeout != 3*time.Second {
		t.Fatalf("unexpected ping timeout: %v", got.PingTimeout)
	}

	// explicit values pass through untouched
	tuned := PostgresPoolConfig{MaxOpenConns: 2, PingTimeout: time.Second}.withDefaults()
	if tuned.MaxOpenConns != 2 || tuned.PingTimeout != time.Second {
		t.Fatalf("expected explicit values kept, got %+v", tuned)
	}
}

package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

// fakeClaimTx drives claimNext through its commit and rollback paths.
type fakeClaimTx struct {
	jobID     uuid.UUID
	queryErr  error
	execErr   error
	commitErr error

	committed  bool
	rolledBack bool
}

func (t *fakeClaimTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{scan: func(dest ...any) error {
		if t.queryErr != nil {
			return t.queryErr
		}
		*dest[0].(*uuid.UUID) = t.jobID
		*dest[1].(*string) = "scrape_nipt"
		*dest[2].(*[]byte) = []byte(`{"nipt":"K41424801U"}`)
		*dest[3].(*int) = 0
		*dest[4].(*int) = 3
		return nil
	}}
}

func (t *fakeClaimTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, t.execErr
}

func (t *fakeClaimTx) Commit(ctx context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeClaimTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}

func TestClaimNext_Success(t *testing.T) {
	tx := &fakeClaimTx{jobID: uuid.New()}

	job, found, err := claimNext(context.Background(), tx)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected a claimed job")
	}
	if !tx.committed {
		t.Fatal("claim must commit before being reported")
	}
	if job.Attempts != 1 {
		t.Fatalf("expected attempts bumped to 1, got %d", job.Attempts)
	}
	if job.Status != "running" {
		t.Fatalf("expected running, got %q", job.Status)
	}
}

func TestClaimNext_CommitFailureIsNotAClaim(t *testing.T) {
	tx := &fakeClaimTx{jobID: uuid.New(), commitErr: fmt.Errorf("connection reset")}

	// A failed commit means the running update never stuck; reporting the job
	// as claimed anyway would let two workers run it.
	job, found, err := claimNext(context.Background(), tx)
	if err == nil {
		t.Fatal("expected the commit failure to propagate")
	}
	if found {
		t.Fatal("a failed commit must not report a claim")
	}
	if job.ID != uuid.Nil {
		t.Fatalf("expected an empty job, got %+v", job)
	}
}

func TestClaimNext_EmptyQueue(t *testing.T) {
	tx := &fakeClaimTx{queryErr: pgx.ErrNoRows}

	_, found, err := claimNext(context.Background(), tx)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected no job on an empty queue")
	}
	if !tx.rolledBack {
		t.Fatal("expected the empty claim to release its transaction")
	}
}

func TestClaimNext_ExecFailureRollsBack(t *testing.T) {
	tx := &fakeClaimTx{jobID: uuid.New(), execErr: fmt.Errorf("deadlock detected")}

	_, found, err := claimNext(context.Background(), tx)
	if err == nil {
		t.Fatal("expected the update failure to propagate")
	}
	if found {
		t.Fatal("a failed update must not report a claim")
	}
	if tx.committed {
		t.Fatal("a failed update must not commit")
	}
	if !tx.rolledBack {
		t.Fatal("expected rollback after the failed update")
	}
}

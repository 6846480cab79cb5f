package ingestionrun

import (
	"context"
	"database/sql"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeResult struct{ affected int64 }

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.affected, nil }

type fakeDB struct {
	queries  []string
	args     [][]any
	execErr  error
	affected int64
}

func (f *fakeDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	if f.execErr != nil {
		return nil, f.execErr
	}
	return fakeResult{affected: f.affected}, nil
}

func (f *fakeDB) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return sql.ErrNoRows
}

func (f *fakeDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}

func (f *fakeDB) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return nil, sql.ErrNoRows
}
func (f *fakeDB) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	return nil
}
func (f *fakeDB) NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error) {
	return fakeResult{}, nil
}
func (f *fakeDB) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, sql.ErrConnDone
}
func (f *fakeDB) PingContext(ctx context.Context) error { return nil }
func (f *fakeDB) Ping() error                           { return nil }
func (f *fakeDB) Close() error                          { return nil }

func newTestRepository(db *fakeDB) *Repository {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewRepository(db, logger)
}

func TestMarkRunning_ClaimsPendingRun(t *testing.T) {
	db := &fakeDB{affected: 1}
	repo := newTestRepository(db)

	require.NoError(t, repo.MarkRunning(context.Background(), "run-1"))
	require.Len(t, db.queries, 1)

	// The transition is guarded so only a pending run can be claimed
	query := db.queries[0]
	assert.Contains(t, query, "UPDATE ingestion_runs")
	assert.Contains(t, query, "id = ")
	assert.Contains(t, query, "status = ")
	assert.Contains(t, db.args[0], models.RunStatusPending)
}

func TestMarkRunning_RefusesRunNotPending(t *testing.T) {
	db := &fakeDB{affected: 0}
	repo := newTestRepository(db)

	err := repo.MarkRunning(context.Background(), "run-1")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

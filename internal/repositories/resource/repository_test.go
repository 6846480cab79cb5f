package resource

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

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
	queries []string
	args    [][]any
	execErr error
}

func (f *fakeDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	if f.execErr != nil {
		return nil, f.execErr
	}
	return fakeResult{affected: 1}, nil
}

func (f *fakeDB) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return sql.ErrNoRows
}

func (f *fakeDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
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

func TestUpsertBatch_ConflictTargetMatchesSchema(t *testing.T) {
	db := &fakeDB{}
	repo := newTestRepository(db)

	resources := []models.Resource{
		{
			TenantID:       "tenant-1",
			SubscriptionID: "sub-1",
			ResourceID:     "/subscriptions/sub-1/resourcegroups/rg/providers/microsoft.compute/virtualmachines/vm-1",
			Name:           "vm-1",
			Type:           "microsoft.compute/virtualmachines",
			ResourceGroup:  "rg",
			Location:       "eastus",
			LastSeen:       time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		},
	}
	require.NoError(t, repo.UpsertBatch(context.Background(), resources))
	require.Len(t, db.queries, 1)

	query := db.queries[0]
	conflictTarget := "(tenant_id, resource_id)"
	assert.Contains(t, query, "INSERT INTO resources")
	assert.Contains(t, query, "ON CONFLICT "+conflictTarget+" DO UPDATE SET")
	assert.Contains(t, query, "last_seen = EXCLUDED.last_seen")
	assert.Contains(t, query, "tags = EXCLUDED.tags")
	assert.Contains(t, query, "properties = EXCLUDED.properties")

	migration, err := os.ReadFile("../../../db/pg/0001_init.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(migration), "UNIQUE "+conflictTarget)
}

func TestUpsertBatch_EmptyBatchIsNoOp(t *testing.T) {
	db := &fakeDB{}
	repo := newTestRepository(db)

	require.NoError(t, repo.UpsertBatch(context.Background(), nil))
	assert.Empty(t, db.queries)
}

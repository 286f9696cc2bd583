package audit

import (
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagemd/governance/migrations"
)

// fakeRows feeds scanEntries values carrying the Postgres column types of
// platform_audit_logs. Scan is deliberately strict: a destination whose Go
// type disagrees with the stored column type errors instead of converting,
// the same way the wire protocol refuses a uuid into an integer.
type fakeRows struct {
	rows [][]any
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("fakeRows: %d destinations for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		switch v := row[i].(type) {
		case int64:
			p, ok := d.(*int64)
			if !ok {
				return fmt.Errorf("fakeRows: column %d is bigint, cannot scan into %T", i, d)
			}
			*p = v
		case string:
			p, ok := d.(*string)
			if !ok {
				return fmt.Errorf("fakeRows: column %d is text, cannot scan into %T", i, d)
			}
			*p = v
		case uuid.UUID:
			p, ok := d.(*uuid.UUID)
			if !ok {
				return fmt.Errorf("fakeRows: column %d is uuid, cannot scan into %T", i, d)
			}
			*p = v
		case []byte:
			p, ok := d.(*[]byte)
			if !ok {
				return fmt.Errorf("fakeRows: column %d is jsonb, cannot scan into %T", i, d)
			}
			*p = v
		case time.Time:
			p, ok := d.(*time.Time)
			if !ok {
				return fmt.Errorf("fakeRows: column %d is timestamptz, cannot scan into %T", i, d)
			}
			*p = v
		default:
			return fmt.Errorf("fakeRows: column %d holds unexpected %T", i, row[i])
		}
	}
	return nil
}

func TestScanEntriesMatchesAuditColumns(t *testing.T) {
	tenantID := uuid.New()
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	rows := &fakeRows{rows: [][]any{
		{
			int64(1), "ROLE_FORCE_SYNC", tenantID,
			[]byte(`{"roleKey":"PHYSICIAN"}`),
			GenesisHash, "a1b2", created,
		},
		{
			int64(2), "ROLE_FORCE_SYNC", tenantID,
			[]byte(`{}`),
			"a1b2", "c3d4", created.Add(time.Minute),
		},
	}}

	entries, err := scanEntries(rows)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].ID)
	assert.Equal(t, int64(2), entries[1].ID)
	assert.Equal(t, tenantID, entries[0].TenantID)
	assert.Equal(t, "PHYSICIAN", entries[0].Details["roleKey"])
	assert.Equal(t, GenesisHash, entries[0].PreviousHash)
	assert.Equal(t, entries[0].CurrentHash, entries[1].PreviousHash)
}

// The chain reads its tail and verifies in `ORDER BY id` order, so the id
// column must be an insertion-ordered bigint, not a random UUID.
func TestAuditLogIDIsInsertionOrdered(t *testing.T) {
	ddl, err := migrations.Control.ReadFile("control/0001_init.sql")
	require.NoError(t, err)

	table := regexp.MustCompile(
		`(?s)CREATE TABLE IF NOT EXISTS platform_audit_logs \((.*?)\);`,
	).FindSubmatch(ddl)
	require.NotNil(t, table, "platform_audit_logs DDL not found")
	assert.Contains(t, string(table[1]), "id BIGINT GENERATED ALWAYS AS IDENTITY")
}

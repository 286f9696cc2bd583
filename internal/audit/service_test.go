package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRepo keeps the chain in memory using the same linking rules as the
// Postgres repository.
type stubRepo struct {
	entries []Entry
	nextID  int64
}

func (s *stubRepo) Append(_ context.Context, e Entry) (Entry, error) {
	previous := GenesisHash
	if len(s.entries) > 0 {
		previous = s.entries[len(s.entries)-1].CurrentHash
	}
	s.nextID++
	e.ID = s.nextID
	e.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	e.PreviousHash = previous
	var err error
	e.CurrentHash, err = ChainHash(previous, e)
	if err != nil {
		return Entry{}, err
	}
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *stubRepo) Window(_ context.Context, f TimelineFilters, limit, offset int) ([]Entry, error) {
	var filtered []Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.TenantID != uuid.Nil && e.TenantID != f.TenantID {
			continue
		}
		filtered = append(filtered, e)
	}
	if offset >= len(filtered) {
		return nil, nil
	}
	filtered = filtered[offset:]
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func (s *stubRepo) Chain(_ context.Context, limit int) ([]Entry, error) {
	entries := s.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]Entry(nil), entries...), nil
}

func record(t *testing.T, svc *Service, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := svc.Record(context.Background(), "ROLE_FORCE_SYNC", uuid.New(),
			map[string]any{"roleKey": "PHYSICIAN", "missing": []string{"notes:sign"}})
		require.NoError(t, err)
	}
}

func TestRecordLinksChain(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)
	record(t, svc, 3)

	require.Len(t, repo.entries, 3)
	assert.Equal(t, GenesisHash, repo.entries[0].PreviousHash)
	assert.Equal(t, repo.entries[0].CurrentHash, repo.entries[1].PreviousHash)
	assert.Equal(t, repo.entries[1].CurrentHash, repo.entries[2].PreviousHash)
	assert.NotEqual(t, repo.entries[0].CurrentHash, repo.entries[1].CurrentHash)
}

func TestVerifyIntegrityValidChain(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)
	record(t, svc, 5)

	result, err := svc.VerifyIntegrity(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 5, result.Entries)
	assert.Zero(t, result.BrokenAt)
}

func TestVerifyIntegrityEmptyChain(t *testing.T) {
	svc := NewService(&stubRepo{})
	result, err := svc.VerifyIntegrity(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Zero(t, result.Entries)
}

func TestVerifyIntegrityDetectsTampering(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)
	record(t, svc, 4)

	repo.entries[2].Details["roleKey"] = "CLINIC_ADMIN"

	result, err := svc.VerifyIntegrity(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, repo.entries[2].ID, result.BrokenAt)
}

func TestVerifyIntegrityWindow(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)
	record(t, svc, 10)

	// Corruption outside the window stays invisible; inside, it is caught.
	repo.entries[2].Details["roleKey"] = "CLINIC_ADMIN"

	result, err := svc.VerifyIntegrity(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 5, result.Entries)

	result, err = svc.VerifyIntegrity(context.Background(), 10)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, repo.entries[2].ID, result.BrokenAt)
}

func TestVerifyIntegrityDetectsBrokenLink(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)
	record(t, svc, 4)

	// Simulate a deleted row: splice entry 2 out of the chain.
	repo.entries = append(repo.entries[:1], repo.entries[2:]...)

	result, err := svc.VerifyIntegrity(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, repo.entries[1].ID, result.BrokenAt)
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)
	record(t, svc, 25)

	first, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, first.Rows, 20)
	assert.True(t, first.Paging.HasNext)
	// Newest first.
	assert.Equal(t, int64(25), first.Rows[0].ID)

	second, err := svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, second.Rows, 5)
	assert.False(t, second.Paging.HasNext)
}

func TestTimelineFilterByTenant(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)
	target := uuid.New()
	require.NoError(t, svc.Record(context.Background(), "ROLE_FORCE_SYNC", target, nil))
	record(t, svc, 3)

	result, err := svc.Timeline(context.Background(), TimelineFilters{TenantID: target})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, target, result.Rows[0].TenantID)
}

func TestChainHashDeterministic(t *testing.T) {
	e := Entry{
		Action:    "ROLE_FORCE_SYNC",
		TenantID:  uuid.MustParse("3f2c8a9e-1d44-4b7a-9f10-6a2b3c4d5e6f"),
		Details:   map[string]any{"b": 1, "a": []string{"x"}},
		CreatedAt: time.Date(2026, 2, 14, 10, 30, 0, 0, time.UTC),
	}
	h1, err := ChainHash(GenesisHash, e)
	require.NoError(t, err)
	h2, err := ChainHash(GenesisHash, e)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	e.Details["b"] = 2
	h3, err := ChainHash(GenesisHash, e)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RepositoryPort is the persistence contract the service depends on.
type RepositoryPort interface {
	Append(ctx context.Context, e Entry) (Entry, error)
	Window(ctx context.Context, f TimelineFilters, limit, offset int) ([]Entry, error)
	Chain(ctx context.Context, limit int) ([]Entry, error)
}

// Service coordinates audit writes and reads.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Record appends one entry to the chain.
func (s *Service) Record(ctx context.Context, action string, tenantID uuid.UUID, details map[string]any) error {
	if s.repo == nil {
		return fmt.Errorf("audit: repository not configured")
	}
	_, err := s.repo.Append(ctx, Entry{Action: action, TenantID: tenantID, Details: details})
	return err
}

// Timeline returns one page of entries, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.Window(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []Entry{}
	}
	return Result{
		Rows:   rows,
		Paging: PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext},
	}, nil
}

// VerifyIntegrity walks the chain oldest first, checking both the linkage
// to the previous entry and each recomputed hash. A positive limit checks
// only the most recent entries, anchored on the window's first stored
// previous_hash; limit 0 verifies the full chain from genesis.
func (s *Service) VerifyIntegrity(ctx context.Context, limit int) (VerifyResult, error) {
	if s.repo == nil {
		return VerifyResult{}, fmt.Errorf("audit: repository not configured")
	}
	entries, err := s.repo.Chain(ctx, limit)
	if err != nil {
		return VerifyResult{}, err
	}
	previous := GenesisHash
	if limit > 0 && len(entries) > 0 {
		previous = entries[0].PreviousHash
	}
	for _, e := range entries {
		if e.PreviousHash != previous {
			return VerifyResult{Valid: false, Entries: len(entries), BrokenAt: e.ID}, nil
		}
		computed, err := ChainHash(previous, e)
		if err != nil {
			return VerifyResult{}, err
		}
		if computed != e.CurrentHash {
			return VerifyResult{Valid: false, Entries: len(entries), BrokenAt: e.ID}, nil
		}
		previous = e.CurrentHash
	}
	return VerifyResult{Valid: true, Entries: len(entries)}, nil
}

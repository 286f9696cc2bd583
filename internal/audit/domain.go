// Package audit records platform-level governance actions in a
// tamper-evident hash chain. Every entry carries the hash of its
// predecessor; rewriting or deleting history breaks the chain at the
// first altered row.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenesisHash anchors the chain before the first entry.
var GenesisHash = strings.Repeat("0", 64)

// Entry is one immutable audit record.
type Entry struct {
	ID           int64          `json:"id"`
	Action       string         `json:"action"`
	TenantID     uuid.UUID      `json:"tenantId"`
	Details      map[string]any `json:"details"`
	PreviousHash string         `json:"previousHash"`
	CurrentHash  string         `json:"currentHash"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// TimelineFilters narrows a timeline query.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Action   string
	TenantID uuid.UUID
	Page     int
	PageSize int
}

// PagingInfo carries pagination metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
}

// Result bundles a timeline page.
type Result struct {
	Rows   []Entry    `json:"rows"`
	Paging PagingInfo `json:"paging"`
}

// VerifyResult reports a chain walk. BrokenAt is the id of the first
// entry whose hash or linkage does not verify, zero when the chain holds.
type VerifyResult struct {
	Valid    bool  `json:"valid"`
	Entries  int   `json:"entries"`
	BrokenAt int64 `json:"brokenAt,omitempty"`
}

// ChainHash computes the hash of an entry given its predecessor's hash.
// Details are canonicalized through encoding/json, which orders map keys,
// so the computation is stable across write and verify.
func ChainHash(previousHash string, e Entry) (string, error) {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return "", fmt.Errorf("audit: canonicalize details: %w", err)
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s",
		previousHash,
		e.Action,
		e.TenantID,
		details,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return hex.EncodeToString(h.Sum(nil)), nil
}

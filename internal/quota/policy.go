package quota

import (
	"context"
	"fmt"
	"strings"

	"github.com/lehigh-university-libraries/shelfscan/internal/models"
)

// DefaultFreeLimit is the collection size ceiling for the free tier
const DefaultFreeLimit = 25

// Decision is the outcome of applying the quota to a batch
type Decision struct {
	Admitted             []models.CandidateBook
	RejectedForQuota     int
	RejectedForDuplicate int
	// LimitReached means the collection was already full; nothing may be enriched.
	LimitReached bool
	Narrative    string
}

// UsageQuota supplies the inputs to a quota decision
type UsageQuota interface {
	Tier(ctx context.Context) (models.Tier, error)
	CurrentCollectionSize(ctx context.Context) (int, error)
}

// Policy applies tier limits to accepted candidates
type Policy struct {
	FreeLimit int
}

// New returns a policy with the given free-tier ceiling
func New(freeLimit int) *Policy {
	if freeLimit <= 0 {
		freeLimit = DefaultFreeLimit
	}
	return &Policy{FreeLimit: freeLimit}
}

// Admit decides how many of accepted may be added. duplicates is the number
// of candidates already dropped by deduplication and only feeds the narrative.
func (p *Policy) Admit(accepted []models.CandidateBook, duplicates, currentCount int, tier models.Tier) Decision {
	d := Decision{RejectedForDuplicate: duplicates}

	if tier == models.TierPremium {
		d.Admitted = accepted
		d.Narrative = p.narrative(len(accepted), 0, duplicates)
		return d
	}

	remaining := p.FreeLimit - currentCount
	if remaining <= 0 && len(accepted) > 0 {
		d.Admitted = []models.CandidateBook{}
		d.RejectedForQuota = len(accepted)
		d.LimitReached = true
		d.Narrative = fmt.Sprintf("You've reached the free limit of %d books. Upgrade to Premium to add more.", p.FreeLimit)
		if duplicates > 0 {
			d.Narrative += fmt.Sprintf(" %s already in your library.", plural(duplicates, "duplicate was", "duplicates were"))
		}
		return d
	}

	n := len(accepted)
	if remaining < n {
		n = max(remaining, 0)
	}
	d.Admitted = accepted[:n]
	d.RejectedForQuota = len(accepted) - n
	d.Narrative = p.narrative(n, d.RejectedForQuota, duplicates)
	return d
}

func (p *Policy) narrative(added, skipped, duplicates int) string {
	var parts []string
	switch {
	case skipped > 0 && duplicates > 0:
		parts = append(parts,
			fmt.Sprintf("Added %s.", plural(added, "book", "books")),
			fmt.Sprintf("%s skipped because of the free limit of %d books and %s already in your library.",
				plural(skipped, "book was", "books were"), p.FreeLimit, plural(duplicates, "duplicate was", "duplicates were")),
			"Upgrade to Premium for unlimited books.",
		)
	case skipped > 0:
		parts = append(parts,
			fmt.Sprintf("Added %s.", plural(added, "book", "books")),
			fmt.Sprintf("%s skipped because of the free limit of %d books.", plural(skipped, "book was", "books were"), p.FreeLimit),
			"Upgrade to Premium for unlimited books.",
		)
	case duplicates > 0 && added > 0:
		parts = append(parts,
			fmt.Sprintf("Added %s.", plural(added, "book", "books")),
			fmt.Sprintf("%s already in your library.", plural(duplicates, "duplicate was", "duplicates were")),
		)
	case duplicates > 0:
		parts = append(parts,
			fmt.Sprintf("%s already in your library.", plural(duplicates, "book was", "books were")),
			"Nothing new was added.",
		)
	case added > 0:
		parts = append(parts, fmt.Sprintf("Added %s.", plural(added, "book", "books")))
	}
	return strings.Join(parts, " ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

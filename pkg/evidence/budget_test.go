package evidence

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

func claimWithRefs(id string, refs ...contracts.EvidenceRef) contracts.MetaClaim {
	return contracts.MetaClaim{ClaimID: id, ClaimText: "claim " + id, EvidenceRefs: refs}
}

func TestBudgetNilMeta(t *testing.T) {
	assert.Nil(t, CheckBudget(nil, nil))
}

func TestBudgetWithinLimits(t *testing.T) {
	meta := &contracts.EnvelopeMeta{
		Claims: []contracts.MetaClaim{
			claimWithRefs("c1", contracts.EvidenceRef{EvidenceID: "ev-1"}),
		},
	}
	assert.Nil(t, CheckBudget(meta, ghostPack()))
}

func TestBudgetMaxClaims(t *testing.T) {
	meta := &contracts.EnvelopeMeta{}
	for i := 0; i < MaxBudgetClaims+1; i++ {
		meta.Claims = append(meta.Claims,
			claimWithRefs(fmt.Sprintf("c%d", i), contracts.EvidenceRef{EvidenceID: "ev-1"}))
	}
	ge := CheckBudget(meta, nil)
	require.NotNil(t, ge)
	assert.Equal(t, contracts.ErrEvidenceBudgetExceeded, ge.Code)
	assert.Equal(t, BudgetMaxClaims, ge.Reason)
}

func TestBudgetMaxRefsPerClaim(t *testing.T) {
	refs := make([]contracts.EvidenceRef, MaxRefsPerClaim+1)
	for i := range refs {
		refs[i] = contracts.EvidenceRef{EvidenceID: fmt.Sprintf("ev-%d", i)}
	}
	meta := &contracts.EnvelopeMeta{Claims: []contracts.MetaClaim{claimWithRefs("c1", refs...)}}
	ge := CheckBudget(meta, nil)
	require.NotNil(t, ge)
	assert.Equal(t, BudgetMaxRefsPerClaim, ge.Reason)
}

func TestBudgetMaxTotalRefs(t *testing.T) {
	meta := &contracts.EnvelopeMeta{}
	// 6 claims x 4 refs = 24 total refs, over the 20 cap, each claim legal.
	for i := 0; i < 6; i++ {
		refs := make([]contracts.EvidenceRef, MaxRefsPerClaim)
		for j := range refs {
			refs[j] = contracts.EvidenceRef{EvidenceID: fmt.Sprintf("ev-%d-%d", i, j)}
		}
		meta.Claims = append(meta.Claims, claimWithRefs(fmt.Sprintf("c%d", i), refs...))
	}
	ge := CheckBudget(meta, nil)
	require.NotNil(t, ge)
	assert.Equal(t, BudgetMaxTotalRefs, ge.Reason)
}

func TestBudgetMaxMetaBytes(t *testing.T) {
	meta := &contracts.EnvelopeMeta{
		GhostBody: strings.Repeat("x", MaxMetaBytes),
	}
	ge := CheckBudget(meta, nil)
	require.NotNil(t, ge)
	assert.Equal(t, BudgetMaxMetaBytes, ge.Reason)
}

// Byte counting is UTF-8: 2000 emoji are 2000 runes but 8000 bytes, which
// blows the 4 KiB referenced-evidence cap.
func TestBudgetEvidenceBytesCountsUTF8(t *testing.T) {
	text := strings.Repeat("😀", 2000)
	require.Equal(t, 8000, len(text))

	pack := &contracts.EvidencePack{
		PackID: "pack-1",
		Items:  []contracts.PackItem{{EvidenceID: "ev-1", Kind: "note", ExcerptText: text}},
	}
	meta := &contracts.EnvelopeMeta{
		Claims: []contracts.MetaClaim{claimWithRefs("c1", contracts.EvidenceRef{EvidenceID: "ev-1"})},
	}
	ge := CheckBudget(meta, pack)
	require.NotNil(t, ge)
	assert.Equal(t, BudgetMaxEvidenceBytes, ge.Reason)
}

func TestBudgetEvidenceBytesCountsDistinctRefsOnce(t *testing.T) {
	text := strings.Repeat("a", 3*1024)
	pack := &contracts.EvidencePack{
		PackID: "pack-1",
		Items:  []contracts.PackItem{{EvidenceID: "ev-1", Kind: "note", ExcerptText: text}},
	}
	// Same ref from two claims counts once, staying under the cap.
	meta := &contracts.EnvelopeMeta{
		Claims: []contracts.MetaClaim{
			claimWithRefs("c1", contracts.EvidenceRef{EvidenceID: "ev-1"}),
			claimWithRefs("c2", contracts.EvidenceRef{EvidenceID: "ev-1"}),
		},
	}
	assert.Nil(t, CheckBudget(meta, pack))
}

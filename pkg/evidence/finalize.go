package evidence

import (
	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// Finalize derives the egress meta fields after all output gates passed:
// used_evidence_ids comes from the surviving claim refs (insertion order),
// never from the model's self-report; evidence_pack_id is stamped iff a
// pack was used; the capture suggestion id is rewritten to a
// transmission-scoped id; meta_version is pinned to v1.
func Finalize(meta *contracts.EnvelopeMeta, pack *contracts.EvidencePack, transmissionID string) {
	if meta == nil {
		return
	}

	var used []string
	seen := make(map[string]bool)
	for _, claim := range meta.Claims {
		for _, ref := range claim.EvidenceRefs {
			if ref.EvidenceID == "" || seen[ref.EvidenceID] {
				continue
			}
			seen[ref.EvidenceID] = true
			used = append(used, ref.EvidenceID)
		}
	}
	meta.UsedEvidenceIDs = used

	if pack != nil {
		meta.EvidencePackID = pack.PackID
	} else {
		meta.EvidencePackID = ""
	}

	if meta.CaptureSuggestion != nil {
		meta.CaptureSuggestion.SuggestionID = "cap_" + transmissionID
	}

	meta.MetaVersion = contracts.MetaVersionV1
}

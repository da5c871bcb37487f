package gates

import (
	"context"
	"fmt"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
	"github.com/SolLabsHQ/solserver-sub002/pkg/lattice"
)

// LatticeGate runs lattice retrieval as the final input gate. Retrieval
// failure degrades to a warning; the pipeline continues without context.
type LatticeGate struct {
	Engine *lattice.Engine
}

func (g *LatticeGate) Name() string { return "lattice" }

func (g *LatticeGate) Run(ctx context.Context, in *Input) (contracts.GateOutput, error) {
	if g.Engine == nil {
		in.LatticeMeta = &lattice.Meta{Status: "miss", RetrievalTrace: []string{"engine_disabled"}}
		return contracts.GateOutput{
			Status:   contracts.GatePass,
			Summary:  "lattice disabled",
			Metadata: map[string]any{"lattice_meta": in.LatticeMeta},
		}, nil
	}

	items, meta := g.Engine.Retrieve(ctx, lattice.Query{
		UserID:  in.UserID,
		Message: in.NormalizedMessage,
		Risk:    in.Risk,
		Intent:  in.Intent,
	})
	in.LatticeItems = items
	in.LatticeMeta = meta

	status := contracts.GatePass
	if meta.Status == "fail" {
		status = contracts.GateWarn
	}
	return contracts.GateOutput{
		Status:  status,
		Summary: fmt.Sprintf("lattice %s, %d item(s)", meta.Status, len(items)),
		Metadata: map[string]any{
			"lattice_meta": meta,
			"items":        len(items),
		},
	}, nil
}

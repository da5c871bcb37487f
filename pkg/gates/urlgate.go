package gates

import (
	"context"
	"fmt"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
	"github.com/SolLabsHQ/solserver-sub002/pkg/intake"
)

// URLExtraction surfaces the URLs present in the normalized message so
// downstream gates and the prompt pack can see them. Extraction itself
// already fed intake's auto-captures; this gate is the audit point.
type URLExtraction struct {
	Extractor intake.URLExtractor
}

func (g *URLExtraction) Name() string { return "url_extraction" }

func (g *URLExtraction) Run(_ context.Context, in *Input) (contracts.GateOutput, error) {
	ex := g.Extractor
	if ex == nil {
		ex = intake.NewRegexExtractor()
	}
	urls := ex.Extract(in.NormalizedMessage)
	in.URLs = urls
	return contracts.GateOutput{
		Status:  contracts.GatePass,
		Summary: fmt.Sprintf("%d url(s) extracted", len(urls)),
		Metadata: map[string]any{
			"count": len(urls),
			"urls":  urls,
		},
	}, nil
}

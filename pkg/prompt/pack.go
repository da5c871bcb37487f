package prompt

import (
	"fmt"
	"strings"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
	"github.com/SolLabsHQ/solserver-sub002/pkg/lattice"
)

// maxBlockRunes caps a single driver block's contribution to the pack.
const maxBlockRunes = 2000

// BlockStats counts how the bundle fared during assembly.
type BlockStats struct {
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
	Trimmed  int `json:"trimmed"`
}

// Pack is the assembled model input plus the blocks that made it in,
// which the post-output linter evaluates against the reply.
type Pack struct {
	Text   string
	Blocks []contracts.DriverBlock
	Stats  BlockStats
}

// Input is everything the assembler folds into one prompt.
type Input struct {
	ModeLabel          string
	Persona            *Persona
	Blocks             []contracts.DriverBlock
	LatticeItems       []lattice.Item
	Memento            *contracts.ThreadMementoLatest
	EvidencePack       *contracts.EvidencePack
	UserMessage        string
	CorrectionPreamble string
}

// Assemble renders the prompt pack. Section order is fixed: correction
// preamble first when present, then system frame, persona voice, driver
// blocks, thread state, retrieval, evidence, and the user message last.
func Assemble(in Input) *Pack {
	pack := &Pack{}
	var sb strings.Builder

	if in.CorrectionPreamble != "" {
		sb.WriteString(in.CorrectionPreamble)
		sb.WriteString("\n")
	}

	sb.WriteString("You are Sol, a conversational assistant.\n")
	sb.WriteString("Reply with a single JSON object: {\"assistant_text\": string, \"meta\": object}.\n")
	sb.WriteString("meta may carry meta_version, claims, shape, affect_signal, capture_suggestion, and display_hint.\n")
	if in.ModeLabel != "" {
		fmt.Fprintf(&sb, "Mode: %s\n", in.ModeLabel)
	}
	if in.Persona != nil && in.Persona.Voice != "" {
		fmt.Fprintf(&sb, "Voice: %s\n", in.Persona.Voice)
	}
	sb.WriteString("\n")

	if len(in.Blocks) > 0 {
		sb.WriteString("RESPONSE POLICY:\n")
		for _, block := range in.Blocks {
			def := strings.TrimSpace(block.Definition)
			if def == "" {
				pack.Stats.Dropped++
				continue
			}
			if runes := []rune(def); len(runes) > maxBlockRunes {
				def = string(runes[:maxBlockRunes])
				pack.Stats.Trimmed++
			}
			pack.Stats.Accepted++
			pack.Blocks = append(pack.Blocks, block)
			if block.Title != "" {
				fmt.Fprintf(&sb, "## %s (%s)\n%s\n", block.Title, block.ID, def)
			} else {
				fmt.Fprintf(&sb, "## %s\n%s\n", block.ID, def)
			}
		}
		sb.WriteString("\n")
	}

	if in.Memento != nil {
		sb.WriteString("THREAD STATE:\n")
		fmt.Fprintf(&sb, "Arc: %s\n", in.Memento.Arc)
		writeList(&sb, "Active", in.Memento.Active)
		writeList(&sb, "Parked", in.Memento.Parked)
		writeList(&sb, "Decisions", in.Memento.Decisions)
		writeList(&sb, "Next", in.Memento.Next)
		sb.WriteString("\n")
	}

	if len(in.LatticeItems) > 0 {
		sb.WriteString("RELEVANT MEMORY:\n")
		for _, item := range in.LatticeItems {
			fmt.Fprintf(&sb, "- [%s] %s\n", item.Kind, item.Summary)
		}
		sb.WriteString("\n")
	}

	if in.EvidencePack != nil && len(in.EvidencePack.Items) > 0 {
		fmt.Fprintf(&sb, "EVIDENCE (pack %s):\n", in.EvidencePack.PackID)
		sb.WriteString("Cite claims with evidence_refs {evidence_id, span_id} from this pack only.\n")
		for _, item := range in.EvidencePack.Items {
			fmt.Fprintf(&sb, "- %s (%s)", item.EvidenceID, item.Kind)
			if item.ExcerptText != "" {
				fmt.Fprintf(&sb, ": %s", item.ExcerptText)
			}
			sb.WriteString("\n")
			for _, span := range item.Spans {
				fmt.Fprintf(&sb, "  span %s: %s\n", span.SpanID, span.Text)
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("USER MESSAGE:\n")
	sb.WriteString(in.UserMessage)
	sb.WriteString("\n")

	pack.Text = sb.String()
	return pack
}

func writeList(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s: %s\n", label, strings.Join(items, "; "))
}

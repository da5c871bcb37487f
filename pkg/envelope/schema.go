package envelope

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// v0-minimum: assistant_text non-empty, strict top level, meta keys from
// the allowlist. Ingress normalization has already dropped unknown meta
// keys and mapped aliases before this schema runs.
const schemaV0Min = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["assistant_text"],
  "additionalProperties": false,
  "properties": {
    "assistant_text": {"type": "string", "minLength": 1},
    "meta": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "meta_version": {"type": "string"},
        "claims": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["claim_id", "claim_text", "evidence_refs"],
            "properties": {
              "claim_id": {"type": "string", "minLength": 1},
              "claim_text": {"type": "string", "minLength": 1},
              "evidence_refs": {
                "type": "array",
                "minItems": 1,
                "items": {
                  "type": "object",
                  "required": ["evidence_id"],
                  "properties": {
                    "evidence_id": {"type": "string"},
                    "span_id": {"type": "string"}
                  }
                }
              }
            }
          }
        },
        "used_evidence_ids": {"type": "array", "items": {"type": "string"}},
        "evidence_pack_id": {"type": "string"},
        "capture_suggestion": {
          "type": "object",
          "required": ["kind"],
          "properties": {
            "suggestion_id": {"type": "string"},
            "kind": {"type": "string", "enum": ["calendar_event", "journal_entry", "reminder"]},
            "title": {"type": "string"},
            "suggested_start_at": {"type": "string"},
            "suggested_date": {"type": "string"}
          }
        },
        "shape": {
          "type": "object",
          "properties": {
            "arc": {"type": "string"},
            "active": {"type": "array", "items": {"type": "string"}},
            "parked": {"type": "array", "items": {"type": "string"}},
            "decisions": {"type": "array", "items": {"type": "string"}},
            "next": {"type": "array", "items": {"type": "string"}}
          }
        },
        "affect_signal": {
          "type": "object",
          "required": ["label"],
          "properties": {
            "label": {"type": "string"},
            "intensity": {"type": "number"},
            "confidence": {"type": "number"},
            "kinds": {"type": "array", "items": {"type": "string"}},
            "summary_changed": {"type": "boolean"},
            "end_message_id": {"type": "string"}
          }
        },
        "librarian_gate": {"type": "object"},
        "lattice": {"type": "object"},
        "journalOffer": {"type": "object"},
        "notification_policy": {"type": "string"},
        "display_hint": {"type": "string"},
        "ghost_kind": {"type": "string"},
        "ghost_title": {"type": "string"},
        "ghost_body": {"type": "string"},
        "ghost_tags": {"type": "array"}
      }
    }
  }
}`

// full: everything in v0 plus strict ghost-card subtyping and the
// capture-suggestion field rules. Blocking only when ghost keys are
// present; otherwise a failure here is a warning trace.
const schemaFull = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["assistant_text"],
  "properties": {
    "assistant_text": {"type": "string", "minLength": 1},
    "meta": {
      "type": "object",
      "properties": {
        "ghost_kind": {
          "type": "string",
          "enum": ["memory_artifact", "journal_moment", "action_proposal"]
        },
        "ghost_title": {"type": "string", "minLength": 1},
        "ghost_body": {"type": "string"},
        "ghost_tags": {"type": "array", "items": {"type": "string"}, "maxItems": 8},
        "capture_suggestion": {
          "type": "object",
          "allOf": [
            {
              "if": {"properties": {"kind": {"const": "calendar_event"}}},
              "then": {
                "required": ["suggested_start_at"],
                "not": {"required": ["suggested_date"]}
              }
            },
            {
              "if": {"properties": {"kind": {"enum": ["journal_entry", "reminder"]}}},
              "then": {"not": {"required": ["suggested_start_at"]}}
            }
          ]
        }
      },
      "if": {"properties": {"display_hint": {"const": "ghost_card"}}, "required": ["display_hint"]},
      "then": {"required": ["ghost_kind"]}
    }
  }
}`

var (
	compiledV0   *jsonschema.Schema
	compiledFull *jsonschema.Schema
)

func init() {
	compiledV0 = mustCompile("https://sol.schemas.local/output_envelope.v0min.schema.json", schemaV0Min)
	compiledFull = mustCompile("https://sol.schemas.local/output_envelope.full.schema.json", schemaFull)
}

func mustCompile(url, schema string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("envelope schema load failed: %v", err))
	}
	compiled, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("envelope schema compile failed: %v", err))
	}
	return compiled
}

// summarizeIssues flattens a jsonschema validation error into at most max
// issue summaries.
func summarizeIssues(err error, max int) []Issue {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []Issue{{Path: "", Code: "schema", Message: err.Error()}}
	}
	var out []Issue
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(out) >= max {
			return
		}
		if len(e.Causes) == 0 {
			out = append(out, Issue{
				Path:    e.InstanceLocation,
				Code:    e.KeywordLocation,
				Message: e.Message,
			})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	if len(out) > max {
		out = out[:max]
	}
	return out
}

package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefix for content-addressed table identity. The version suffix
// allows a future encoding change without colliding with old hashes.
const domainTable = "veneer/table/v1"

// hashWithDomain computes SHA-256 over domain + 0x00 + data. The null
// separator removes domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TableHash computes the content-addressed identity of a rule table from
// its flag declarations and rules, both in declaration order. Trace records
// carry this hash so a replay can verify it runs against the same table.
func TableHash(flags []FlagDecl, rules []Rule) (string, error) {
	doc := map[string]any{
		"flags": flagDocs(flags),
		"rules": ruleDocs(rules),
	}

	canonical, err := canonicalJSON(doc)
	if err != nil {
		return "", fmt.Errorf("table hash: %w", err)
	}
	return hashWithDomain(domainTable, canonical), nil
}

func flagDocs(flags []FlagDecl) []any {
	out := make([]any, len(flags))
	for i, d := range flags {
		doc := map[string]any{
			"name": d.Name,
			"kind": d.Kind.String(),
		}
		if d.Kind == KindEnum {
			syms := make([]any, len(d.Symbols))
			for j, s := range d.Symbols {
				syms[j] = s
			}
			doc["symbols"] = syms
			if d.DefaultSym != "" {
				doc["default"] = d.DefaultSym
			}
		}
		if d.Kind == KindInt {
			doc["min"] = d.Min
			doc["max"] = d.Max
		}
		out[i] = doc
	}
	return out
}

func ruleDocs(rules []Rule) []any {
	out := make([]any, len(rules))
	for i, r := range rules {
		tests := make([]any, len(r.Predicate))
		for j, t := range r.Predicate {
			tests[j] = map[string]any{
				"flag":  t.Flag,
				"op":    t.Op.String(),
				"value": t.Value.String(),
				"root":  t.Root,
			}
		}

		effects := make([]any, len(r.Effects))
		for j, e := range r.Effects {
			effects[j] = effectDoc(e)
		}

		out[i] = map[string]any{
			"id":       r.ID,
			"tests":    tests,
			"effects":  effects,
			"priority": int64(r.Priority),
			"explicit": r.HasPriority,
		}
	}
	return out
}

func effectDoc(e Effect) map[string]any {
	switch eff := e.(type) {
	case StaticEffect:
		return map[string]any{
			"kind":     "static",
			"property": eff.Property,
			"value":    eff.Value,
			"channel":  eff.Channel(),
		}
	case TransitionEffect:
		return map[string]any{
			"kind":        "transition",
			"name":        eff.Name,
			"channel":     eff.Channel(),
			"duration_ms": eff.Duration.Milliseconds(),
			"easing":      eff.Easing,
			"trigger":     eff.Trigger.String(),
		}
	default:
		// Effect is sealed; unreachable.
		return map[string]any{"kind": "unknown"}
	}
}

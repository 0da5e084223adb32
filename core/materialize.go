package core

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
)

// NeedsMaterialization reports whether a batch still contains author
// shorthand: an element carrying a textual label descriptor, or one that has
// no resolved seed yet.
func NeedsMaterialization(elements []Element) bool {
	for _, el := range elements {
		if _, ok := el["label"]; ok {
			return true
		}
		if _, ok := el["seed"]; !ok {
			return true
		}
	}
	return false
}

// Materialize resolves skeleton elements into render-ready ones. It is
// deterministic (the same input always yields the same identities) and
// idempotent: elements that already carry an id and seed keep them, and a
// second pass over the output is a no-op. The input slice is not mutated.
func Materialize(elements []Element) []Element {
	out := make([]Element, len(elements))
	for i, el := range elements {
		_, hasLabel := el["label"]
		_, hasSeed := el["seed"]
		_, hasID := el["id"]
		if !hasLabel && hasSeed && hasID {
			out[i] = el
			continue
		}

		m := el.Clone()
		if !hasID {
			m["id"] = deriveID(el, i)
		}
		if !hasSeed {
			m["seed"] = deriveSeed(m["id"])
		}
		if hasLabel {
			if text := labelText(m["label"]); text != "" {
				if _, ok := m["text"]; !ok {
					m["text"] = text
				}
			}
			delete(m, "label")
		}
		out[i] = m
	}
	return out
}

// deriveID hashes the element's canonical JSON together with its batch
// position, so identical skeletons at different positions stay distinct while
// the same batch always resolves to the same ids.
func deriveID(el Element, index int) string {
	data, err := json.Marshal(map[string]any(el))
	if err != nil {
		data = []byte(fmt.Sprint(el))
	}
	h := fnv.New64a()
	h.Write(data)
	fmt.Fprintf(h, "#%d", index)
	return fmt.Sprintf("el-%016x", h.Sum64())
}

func deriveSeed(id any) int {
	h := fnv.New32a()
	fmt.Fprint(h, id)
	// Seeds must be positive int31 values.
	return int(h.Sum32() & 0x7fffffff)
}

func labelText(label any) string {
	switch v := label.(type) {
	case string:
		return v
	case map[string]any:
		if text, ok := v["text"].(string); ok {
			return text
		}
	}
	return ""
}

// Package fingerprint computes a stable content digest over an Endpoint's
// semantic fields, and persists the per-endpoint generation history that
// digest keys into.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/Devliang24/casecraft/internal/spec"
)

// canonical is the deterministic, JSON-marshalable shape fingerprinting
// hashes. Only semantic fields are included: summary/description wording
// and tag ordering never affect the digest.
type canonical struct {
	Method       string           `json:"method"`
	Path         string           `json:"path"`
	Tags         []string         `json:"tags"` // sorted: set membership only
	Parameters   []canonicalParam `json:"parameters"`
	RequestBody  *canonicalSchema `json:"request_body,omitempty"`
	Responses    []canonicalResp  `json:"responses"`
	AuthRequired bool             `json:"auth_required"`
	AuthScheme   string           `json:"auth_scheme"`
}

type canonicalParam struct {
	Name     string           `json:"name"`
	In       string           `json:"in"`
	Required bool             `json:"required"`
	Schema   *canonicalSchema `json:"schema,omitempty"`
}

type canonicalResp struct {
	Status int              `json:"status"`
	Schema *canonicalSchema `json:"schema,omitempty"`
}

// canonicalSchema normalizes a spec.Schema by recursively sorting
// object-property keys; arrays retain their declared item order since
// position is semantic for tuples.
type canonicalSchema struct {
	Type       string              `json:"type,omitempty"`
	Format     string              `json:"format,omitempty"`
	Required   []string            `json:"required,omitempty"`
	Enum       []string            `json:"enum,omitempty"`
	Properties []canonicalProperty `json:"properties,omitempty"`
	Items      *canonicalSchema    `json:"items,omitempty"`
	Ref        string              `json:"ref,omitempty"`
}

type canonicalProperty struct {
	Name   string           `json:"name"`
	Schema *canonicalSchema `json:"schema,omitempty"`
}

// Compute returns the hex-encoded SHA-256 digest of e's canonical
// representation.
func Compute(e *spec.Endpoint) string {
	c := toCanonical(e)
	// json.Marshal on a value built exclusively from sorted slices (never
	// a map) is deterministic across runs/processes.
	b, err := json.Marshal(c)
	if err != nil {
		// Unreachable: canonical contains no channel/func/unsupported
		// types, so Marshal cannot fail on it.
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func toCanonical(e *spec.Endpoint) canonical {
	tags := append([]string(nil), e.Tags...)
	sort.Strings(tags)

	params := make([]canonicalParam, len(e.Parameters))
	for i, p := range e.Parameters {
		params[i] = canonicalParam{
			Name:     p.Name,
			In:       string(p.In),
			Required: p.Required,
			Schema:   toCanonicalSchema(p.Schema, map[*spec.Schema]bool{}),
		}
	}
	sort.Slice(params, func(i, j int) bool {
		if params[i].Name != params[j].Name {
			return params[i].Name < params[j].Name
		}
		return params[i].In < params[j].In
	})

	statuses := make([]int, 0, len(e.Responses))
	for status := range e.Responses {
		statuses = append(statuses, status)
	}
	sort.Ints(statuses)
	responses := make([]canonicalResp, len(statuses))
	for i, status := range statuses {
		responses[i] = canonicalResp{
			Status: status,
			Schema: toCanonicalSchema(e.Responses[status], map[*spec.Schema]bool{}),
		}
	}

	return canonical{
		Method:       string(e.Method),
		Path:         e.Path,
		Tags:         tags,
		Parameters:   params,
		RequestBody:  toCanonicalSchema(e.RequestBody, map[*spec.Schema]bool{}),
		Responses:    responses,
		AuthRequired: e.AuthRequired,
		AuthScheme:   string(e.AuthScheme),
	}
}

// toCanonicalSchema recursively normalizes a schema, sorting property keys
// and substituting a sentinel for cycles so two structurally identical
// cyclic schemas compare equal, per spec.md §9.
func toCanonicalSchema(s *spec.Schema, seen map[*spec.Schema]bool) *canonicalSchema {
	if s == nil {
		return nil
	}
	if seen[s] {
		return &canonicalSchema{Ref: "#cycle"}
	}
	seen[s] = true
	defer delete(seen, s)

	out := &canonicalSchema{
		Type:     s.Type,
		Format:   s.Format,
		Required: append([]string(nil), s.Required...),
		Enum:     append([]string(nil), s.Enum...),
		Ref:      s.Ref,
	}
	sort.Strings(out.Required)
	sort.Strings(out.Enum)

	if len(s.Properties) > 0 {
		out.Properties = make([]canonicalProperty, 0, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties = append(out.Properties, canonicalProperty{
				Name:   name,
				Schema: toCanonicalSchema(prop, seen),
			})
		}
		sort.Slice(out.Properties, func(i, j int) bool {
			return out.Properties[i].Name < out.Properties[j].Name
		})
	}

	if s.Items != nil {
		out.Items = toCanonicalSchema(s.Items, seen)
	}

	return out
}

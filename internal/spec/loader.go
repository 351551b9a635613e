package spec

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pb33f/libopenapi"
	base "github.com/pb33f/libopenapi/datamodel/high/base"
	v2 "github.com/pb33f/libopenapi/datamodel/high/v2"
	v3 "github.com/pb33f/libopenapi/datamodel/high/v3"

	"github.com/Devliang24/casecraft/internal/ccerrors"
)

// Loader reads an OpenAPI 3.x or Swagger 2.0 document from a local path or
// URL and normalizes it into a flat, document-ordered []Endpoint.
type Loader struct {
	httpClient *http.Client
}

// NewLoader constructs a Loader with a bounded-timeout HTTP client for
// remote spec fetches.
func NewLoader() *Loader {
	return &Loader{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// Load fetches and parses the document at location (a local file path or an
// http(s) URL), resolves local $refs, and returns the normalized endpoints
// in document order. Load has no check of its own for external
// (cross-document) $refs: a reference the parser leaves unresolved is
// carried through as a Schema with only Ref set.
func (l *Loader) Load(location string) ([]Endpoint, error) {
	raw, err := l.read(location)
	if err != nil {
		return nil, &ccerrors.SpecError{Source: location, Message: fmt.Sprintf("unreadable: %v", err)}
	}

	doc, err := libopenapi.NewDocument(raw)
	if err != nil {
		return nil, &ccerrors.SpecError{Source: location, Message: fmt.Sprintf("malformed document: %v", err)}
	}

	if v3Model, errs := doc.BuildV3Model(); errs == nil {
		return endpointsFromV3(&v3Model.Model), nil
	}

	if v2Model, errs := doc.BuildV2Model(); errs == nil {
		return endpointsFromV2(&v2Model.Model), nil
	}

	return nil, &ccerrors.SpecError{Source: location, Message: "unsupported spec version: neither a valid OpenAPI 3.x nor Swagger 2.0 model"}
}

func (l *Loader) read(location string) ([]byte, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		resp, err := l.httpClient.Get(location)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("fetching spec: HTTP %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(location)
}

var methodOrder = []struct {
	name Method
	get  func(*v3.PathItem) *v3.Operation
}{
	{MethodGet, func(p *v3.PathItem) *v3.Operation { return p.Get }},
	{MethodPost, func(p *v3.PathItem) *v3.Operation { return p.Post }},
	{MethodPut, func(p *v3.PathItem) *v3.Operation { return p.Put }},
	{MethodPatch, func(p *v3.PathItem) *v3.Operation { return p.Patch }},
	{MethodDelete, func(p *v3.PathItem) *v3.Operation { return p.Delete }},
	{MethodHead, func(p *v3.PathItem) *v3.Operation { return p.Head }},
	{MethodOptions, func(p *v3.PathItem) *v3.Operation { return p.Options }},
}

func endpointsFromV3(model *v3.Document) []Endpoint {
	var out []Endpoint
	if model.Paths == nil {
		return out
	}
	schemes := v3SecuritySchemeIndex(model)
	for pair := model.Paths.PathItems.First(); pair != nil; pair = pair.Next() {
		pathTemplate := pair.Key()
		item := pair.Value()

		for _, m := range methodOrder {
			op := m.get(item)
			if op == nil {
				continue
			}
			out = append(out, Endpoint{
				Method:       m.name,
				Path:         pathTemplate,
				Tags:         append([]string(nil), op.Tags...),
				Summary:      op.Summary,
				Description:  op.Description,
				Parameters:   v3Parameters(op.Parameters),
				RequestBody:  v3RequestBody(op.RequestBody),
				Responses:    v3Responses(op.Responses),
				AuthRequired: len(op.Security) > 0,
				AuthScheme:   v3AuthScheme(op.Security, schemes),
			})
		}
	}
	return out
}

// v3SecuritySchemeIndex maps each named security scheme declared under
// components.securitySchemes to the AuthScheme kind it represents, so a
// per-operation security requirement (which only carries the scheme name)
// can be resolved to bearer/api-key/basic instead of guessed at.
func v3SecuritySchemeIndex(model *v3.Document) map[string]AuthScheme {
	out := map[string]AuthScheme{}
	if model.Components == nil || model.Components.SecuritySchemes == nil {
		return out
	}
	for pair := model.Components.SecuritySchemes.First(); pair != nil; pair = pair.Next() {
		out[pair.Key()] = authSchemeFromV3Scheme(pair.Value())
	}
	return out
}

func authSchemeFromV3Scheme(s *v3.SecurityScheme) AuthScheme {
	if s == nil {
		return AuthBearer
	}
	switch s.Type {
	case "apiKey":
		return AuthAPIKey
	case "http":
		if strings.EqualFold(s.Scheme, "basic") {
			return AuthBasic
		}
		return AuthBearer
	default:
		// oauth2, openIdConnect, mutualTLS: this taxonomy has no dedicated
		// kind for them; bearer is the closest match for an access token.
		return AuthBearer
	}
}

func v3Parameters(params []*v3.Parameter) []Parameter {
	out := make([]Parameter, 0, len(params))
	for _, p := range params {
		out = append(out, Parameter{
			Name:     p.Name,
			In:       ParamLocation(p.In),
			Required: p.Required != nil && *p.Required,
			Schema:   schemaFromProxy(p.Schema),
		})
	}
	return out
}

func v3RequestBody(rb *v3.RequestBody) *Schema {
	if rb == nil || rb.Content == nil {
		return nil
	}
	for pair := rb.Content.First(); pair != nil; pair = pair.Next() {
		media := pair.Value()
		if media.Schema != nil {
			return schemaFromProxy(media.Schema)
		}
	}
	return nil
}

func v3Responses(resp *v3.Responses) map[int]*Schema {
	out := map[int]*Schema{}
	if resp == nil || resp.Codes == nil {
		return out
	}
	for pair := resp.Codes.First(); pair != nil; pair = pair.Next() {
		status, err := strconv.Atoi(pair.Key())
		if err != nil {
			continue
		}
		r := pair.Value()
		var sch *Schema
		if r.Content != nil {
			for mp := r.Content.First(); mp != nil; mp = mp.Next() {
				if mp.Value().Schema != nil {
					sch = schemaFromProxy(mp.Value().Schema)
					break
				}
			}
		}
		out[status] = sch
	}
	return out
}

func v3AuthScheme(sec []*base.SecurityRequirement, schemes map[string]AuthScheme) AuthScheme {
	if len(sec) == 0 {
		return AuthNone
	}
	for _, req := range sec {
		if req == nil || req.Requirements == nil {
			continue
		}
		for pair := req.Requirements.First(); pair != nil; pair = pair.Next() {
			if kind, ok := schemes[pair.Key()]; ok {
				return kind
			}
		}
	}
	// Named a scheme that isn't declared under components.securitySchemes:
	// fall back to bearer, the most common case in the corpus.
	return AuthBearer
}

func schemaFromProxy(proxy *base.SchemaProxy) *Schema {
	if proxy == nil {
		return nil
	}
	s := proxy.Schema()
	if s == nil {
		return &Schema{Ref: proxy.GetReference()}
	}
	return schemaFromModel(s, map[*base.Schema]bool{})
}

// schemaFromModel recursively normalizes a libopenapi schema model into
// our minimal Schema shape. seen guards against cyclic $ref graphs: a
// schema already on the current recursion path is replaced with a Ref
// sentinel naming itself, rather than recursing forever.
func schemaFromModel(s *base.Schema, seen map[*base.Schema]bool) *Schema {
	if s == nil {
		return nil
	}
	if seen[s] {
		return &Schema{Ref: "#cycle"}
	}
	seen[s] = true
	defer delete(seen, s)

	out := &Schema{}
	if len(s.Type) > 0 {
		out.Type = s.Type[0]
	}
	out.Format = s.Format
	out.Required = append([]string(nil), s.Required...)

	if s.Properties != nil {
		out.Properties = map[string]*Schema{}
		for pair := s.Properties.First(); pair != nil; pair = pair.Next() {
			out.Properties[pair.Key()] = schemaFromProxy(pair.Value())
		}
	}
	if s.Items != nil && s.Items.IsA() {
		out.Items = schemaFromProxy(s.Items.A)
	}
	for _, e := range s.Enum {
		if e != nil && e.Value != "" {
			out.Enum = append(out.Enum, e.Value)
		}
	}
	return out
}

func endpointsFromV2(model *v2.Swagger) []Endpoint {
	var out []Endpoint
	if model.Paths == nil {
		return out
	}
	schemes := v2SecuritySchemeIndex(model)
	for pair := model.Paths.PathItems.First(); pair != nil; pair = pair.Next() {
		pathTemplate := pair.Key()
		item := pair.Value()

		ops := []struct {
			name Method
			op   *v2.Operation
		}{
			{MethodGet, item.Get},
			{MethodPost, item.Post},
			{MethodPut, item.Put},
			{MethodPatch, item.Patch},
			{MethodDelete, item.Delete},
			{MethodHead, item.Head},
			{MethodOptions, item.Options},
		}
		for _, m := range ops {
			if m.op == nil {
				continue
			}
			params, body := v2ParametersAndBody(m.op.Parameters)
			out = append(out, Endpoint{
				Method:       m.name,
				Path:         pathTemplate,
				Tags:         append([]string(nil), m.op.Tags...),
				Summary:      m.op.Summary,
				Description:  m.op.Description,
				Parameters:   params,
				RequestBody:  body,
				Responses:    v2Responses(m.op.Responses),
				AuthRequired: len(m.op.Security) > 0,
				AuthScheme:   v2AuthScheme(m.op.Security, schemes),
			})
		}
	}
	return out
}

// v2SecuritySchemeIndex maps each named security definition to the
// AuthScheme kind it represents, the Swagger 2.0 counterpart of
// v3SecuritySchemeIndex.
func v2SecuritySchemeIndex(model *v2.Swagger) map[string]AuthScheme {
	out := map[string]AuthScheme{}
	if model.SecurityDefinitions == nil || model.SecurityDefinitions.Definitions == nil {
		return out
	}
	for pair := model.SecurityDefinitions.Definitions.First(); pair != nil; pair = pair.Next() {
		out[pair.Key()] = authSchemeFromV2Scheme(pair.Value())
	}
	return out
}

func authSchemeFromV2Scheme(s *v2.SecurityScheme) AuthScheme {
	if s == nil {
		return AuthBearer
	}
	switch s.Type {
	case "basic":
		return AuthBasic
	case "apiKey":
		return AuthAPIKey
	default:
		// oauth2 is Swagger 2.0's only other kind; no dedicated taxonomy
		// entry for it, bearer is the closest match.
		return AuthBearer
	}
}

// v2ParametersAndBody normalizes Swagger 2.0's parameters-in-body style
// into OpenAPI 3.0's single RequestBody shape, per spec.md's normalization
// requirement.
func v2ParametersAndBody(params []*v2.Parameter) ([]Parameter, *Schema) {
	out := make([]Parameter, 0, len(params))
	var body *Schema
	for _, p := range params {
		if p.In == "body" {
			if p.Schema != nil {
				body = schemaFromProxy(p.Schema)
			}
			continue
		}
		out = append(out, Parameter{
			Name:     p.Name,
			In:       ParamLocation(p.In),
			Required: p.Required,
			Schema:   v2ParamSchema(p),
		})
	}
	return out, body
}

func v2ParamSchema(p *v2.Parameter) *Schema {
	if p.Schema != nil {
		return schemaFromProxy(p.Schema)
	}
	if p.Type != "" {
		return &Schema{Type: p.Type, Format: p.Format}
	}
	return nil
}

func v2Responses(resp *v2.Responses) map[int]*Schema {
	out := map[int]*Schema{}
	if resp == nil || resp.Codes == nil {
		return out
	}
	for pair := resp.Codes.First(); pair != nil; pair = pair.Next() {
		status, err := strconv.Atoi(pair.Key())
		if err != nil {
			continue
		}
		r := pair.Value()
		var sch *Schema
		if r.Schema != nil {
			sch = schemaFromProxy(r.Schema)
		}
		out[status] = sch
	}
	return out
}

func v2AuthScheme(sec []*base.SecurityRequirement, schemes map[string]AuthScheme) AuthScheme {
	if len(sec) == 0 {
		return AuthNone
	}
	for _, req := range sec {
		if req == nil || req.Requirements == nil {
			continue
		}
		for pair := req.Requirements.First(); pair != nil; pair = pair.Next() {
			if kind, ok := schemes[pair.Key()]; ok {
				return kind
			}
		}
	}
	return AuthBearer
}

// Filter is an include-then-exclude selection over a normalized endpoint
// list: tags and paths are applied as intersections (include) followed by
// removals (exclude), per spec.md §4.1.
type Filter struct {
	IncludeTags  []string
	ExcludeTags  []string
	IncludePaths []string // glob-style, matched against the path template
	ExcludePaths []string
	Methods      []Method // empty means all methods
}

// Apply returns the subset of endpoints passing the filter, preserving
// document order.
func (f Filter) Apply(endpoints []Endpoint) []Endpoint {
	out := make([]Endpoint, 0, len(endpoints))
	for _, e := range endpoints {
		if !f.matchesMethod(e) {
			continue
		}
		if len(f.IncludeTags) > 0 && !hasAnyTag(e.Tags, f.IncludeTags) {
			continue
		}
		if len(f.IncludePaths) > 0 && !matchesAnyGlob(e.Path, f.IncludePaths) {
			continue
		}
		if len(f.ExcludeTags) > 0 && hasAnyTag(e.Tags, f.ExcludeTags) {
			continue
		}
		if len(f.ExcludePaths) > 0 && matchesAnyGlob(e.Path, f.ExcludePaths) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (f Filter) matchesMethod(e Endpoint) bool {
	if len(f.Methods) == 0 {
		return true
	}
	for _, m := range f.Methods {
		if m == e.Method {
			return true
		}
	}
	return false
}

func hasAnyTag(tags, want []string) bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	for _, w := range want {
		if set[w] {
			return true
		}
	}
	return false
}

func matchesAnyGlob(p string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := path.Match(pat, p); ok {
			return true
		}
	}
	return false
}

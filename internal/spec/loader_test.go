package spec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOpenAPI3 = `{
  "openapi": "3.0.0",
  "info": {"title": "Widgets", "version": "1.0.0"},
  "paths": {
    "/widgets": {
      "get": {
        "tags": ["widgets"],
        "summary": "List widgets",
        "parameters": [
          {"name": "limit", "in": "query", "required": false, "schema": {"type": "integer"}}
        ],
        "responses": {"200": {"description": "ok"}}
      },
      "post": {
        "tags": ["widgets", "admin"],
        "security": [{"bearerAuth": []}],
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}}}
            }
          }
        },
        "responses": {"201": {"description": "created"}, "400": {"description": "bad request"}}
      }
    },
    "/widgets/{id}": {
      "delete": {
        "tags": ["widgets"],
        "security": [{"bearerAuth": []}],
        "parameters": [
          {"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}
        ],
        "responses": {"204": {"description": "deleted"}}
      }
    },
    "/admin/keys": {
      "get": {
        "tags": ["admin"],
        "security": [{"apiKeyAuth": []}],
        "responses": {"200": {"description": "ok"}}
      }
    },
    "/admin/basic": {
      "get": {
        "tags": ["admin"],
        "security": [{"basicAuth": []}],
        "responses": {"200": {"description": "ok"}}
      }
    }
  },
  "components": {
    "securitySchemes": {
      "bearerAuth": {"type": "http", "scheme": "bearer"},
      "apiKeyAuth": {"type": "apiKey", "in": "header", "name": "X-API-Key"},
      "basicAuth": {"type": "http", "scheme": "basic"}
    }
  }
}`

func writeSpec(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openapi.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadParsesOpenAPI3FromLocalFile(t *testing.T) {
	path := writeSpec(t, sampleOpenAPI3)

	endpoints, err := NewLoader().Load(path)
	require.NoError(t, err)
	require.Len(t, endpoints, 5)

	byKey := map[string]Endpoint{}
	for _, e := range endpoints {
		byKey[e.Key()] = e
	}

	get, ok := byKey["GET /widgets"]
	require.True(t, ok)
	assert.Equal(t, []string{"widgets"}, get.Tags)
	require.Len(t, get.Parameters, 1)
	assert.Equal(t, LocationQuery, get.Parameters[0].In)

	post, ok := byKey["POST /widgets"]
	require.True(t, ok)
	assert.True(t, post.AuthRequired)
	require.NotNil(t, post.RequestBody)
	assert.Equal(t, "object", post.RequestBody.Type)
	assert.Len(t, post.Responses, 2)

	del, ok := byKey["DELETE /widgets/{id}"]
	require.True(t, ok)
	require.Len(t, del.Parameters, 1)
	assert.Equal(t, LocationPath, del.Parameters[0].In)
}

func TestLoadResolvesAuthSchemeFromSecuritySchemes(t *testing.T) {
	path := writeSpec(t, sampleOpenAPI3)

	endpoints, err := NewLoader().Load(path)
	require.NoError(t, err)

	byKey := map[string]Endpoint{}
	for _, e := range endpoints {
		byKey[e.Key()] = e
	}

	assert.Equal(t, AuthBearer, byKey["DELETE /widgets/{id}"].AuthScheme)
	assert.Equal(t, AuthAPIKey, byKey["GET /admin/keys"].AuthScheme)
	assert.Equal(t, AuthBasic, byKey["GET /admin/basic"].AuthScheme)
	assert.Equal(t, AuthNone, byKey["GET /widgets"].AuthScheme)
}

func TestLoadFailsOnMalformedDocument(t *testing.T) {
	path := writeSpec(t, `{not json`)
	_, err := NewLoader().Load(path)
	assert.Error(t, err)
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	_, err := NewLoader().Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func sampleEndpoints() []Endpoint {
	return []Endpoint{
		{Method: MethodGet, Path: "/widgets", Tags: []string{"widgets"}},
		{Method: MethodPost, Path: "/widgets", Tags: []string{"widgets", "admin"}},
		{Method: MethodDelete, Path: "/widgets/{id}", Tags: []string{"admin"}},
		{Method: MethodGet, Path: "/health", Tags: nil},
	}
}

func TestFilterIncludeTags(t *testing.T) {
	out := Filter{IncludeTags: []string{"admin"}}.Apply(sampleEndpoints())
	require.Len(t, out, 2)
	for _, e := range out {
		assert.Contains(t, e.Tags, "admin")
	}
}

func TestFilterExcludeTagsAppliesAfterInclude(t *testing.T) {
	out := Filter{IncludeTags: []string{"widgets"}, ExcludeTags: []string{"admin"}}.Apply(sampleEndpoints())
	require.Len(t, out, 1)
	assert.Equal(t, "GET /widgets", out[0].Key())
}

func TestFilterIncludePathsGlob(t *testing.T) {
	out := Filter{IncludePaths: []string{"/widgets/*"}}.Apply(sampleEndpoints())
	require.Len(t, out, 1)
	assert.Equal(t, "/widgets/{id}", out[0].Path)
}

func TestFilterByMethod(t *testing.T) {
	out := Filter{Methods: []Method{MethodDelete}}.Apply(sampleEndpoints())
	require.Len(t, out, 1)
	assert.Equal(t, MethodDelete, out[0].Method)
}

func TestFilterPreservesDocumentOrder(t *testing.T) {
	endpoints := sampleEndpoints()
	out := Filter{}.Apply(endpoints)
	require.Len(t, out, len(endpoints))
	for i := range endpoints {
		assert.Equal(t, endpoints[i].Key(), out[i].Key())
	}
}

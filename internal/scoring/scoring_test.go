package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Devliang24/casecraft/internal/spec"
)

func TestScore(t *testing.T) {
	testCases := []struct {
		name     string
		endpoint spec.Endpoint
		want     int
	}{
		{
			name:     "bare GET, no params",
			endpoint: spec.Endpoint{Method: spec.MethodGet},
			want:     0,
		},
		{
			name: "GET with one path param and auth",
			endpoint: spec.Endpoint{
				Method:       spec.MethodGet,
				Parameters:   []spec.Parameter{{Name: "id", In: spec.LocationPath}},
				AuthRequired: true,
			},
			want: 5, // 2 (path) + 3 (auth)
		},
		{
			name: "POST with shallow object body",
			endpoint: spec.Endpoint{
				Method: spec.MethodPost,
				RequestBody: &spec.Schema{
					Type:       "object",
					Properties: map[string]*spec.Schema{"name": {Type: "string"}},
				},
			},
			want: 3, // 2 (POST) + 1 (object body)
		},
		{
			name: "DELETE with path param",
			endpoint: spec.Endpoint{
				Method:     spec.MethodDelete,
				Parameters: []spec.Parameter{{Name: "id", In: spec.LocationPath}},
			},
			want: 3, // 2 (path) + 1 (DELETE)
		},
		{
			name: "multiple response codes",
			endpoint: spec.Endpoint{
				Method:    spec.MethodGet,
				Responses: map[int]*spec.Schema{200: {}, 404: {}, 500: {}},
			},
			want: 2, // len(Responses)-1
		},
		{
			name: "query and header params combine",
			endpoint: spec.Endpoint{
				Method: spec.MethodGet,
				Parameters: []spec.Parameter{
					{Name: "q", In: spec.LocationQuery},
					{Name: "x-trace", In: spec.LocationHeader},
				},
			},
			want: 2,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Score(&tc.endpoint))
		})
	}
}

func TestBodyDepthCyclicSafe(t *testing.T) {
	cyclic := &spec.Schema{Type: "object"}
	cyclic.Properties = map[string]*spec.Schema{"self": cyclic}

	assert.NotPanics(t, func() {
		bodyDepth(cyclic)
	})
}

func TestTierFor(t *testing.T) {
	testCases := []struct {
		score int
		want  Tier
	}{
		{0, TierSimple},
		{5, TierSimple},
		{6, TierMedium},
		{10, TierMedium},
		{11, TierComplex},
		{30, TierComplex},
	}

	for _, tc := range testCases {
		t.Run(string(tc.want), func(t *testing.T) {
			assert.Equal(t, tc.want, TierFor(tc.score))
		})
	}
}

func TestPrioritySlice(t *testing.T) {
	testCases := []struct {
		n          int
		p0, p1, p2 int
	}{
		{0, 0, 0, 0},
		{1, 1, 0, 0},
		{2, 1, 0, 1}, // collapse case, still sums to n... see assertion below
		{3, 1, 1, 1},
		{10, 3, 4, 3},
	}

	for _, tc := range testCases {
		t.Run("", func(t *testing.T) {
			p0, p1, p2 := PrioritySlice(tc.n)
			assert.Equal(t, tc.n, p0+p1+p2, "slices must sum to n")
			if tc.n >= 3 {
				assert.GreaterOrEqual(t, p0, 1)
				assert.GreaterOrEqual(t, p2, 1)
			}
		})
	}
}

func TestBudgetForDeleteIsSecondHighestTotal(t *testing.T) {
	get := spec.Endpoint{Method: spec.MethodGet}
	del := spec.Endpoint{Method: spec.MethodDelete}

	getBudget := BudgetFor(&get)
	delBudget := BudgetFor(&del)

	// DELETE carries its own method weight, so compare against the row
	// directly: its total should be exactly one less than the row's max.
	row := budgetTable[TierFor(Score(&del))]
	assert.Equal(t, row.positiveHigh+row.negativeHigh+row.boundaryHigh-1, delBudget.Total())
	assert.LessOrEqual(t, delBudget.Total(), getBudget.Total()+1)
}

func TestBudgetForPrioritySumsMatchTotal(t *testing.T) {
	e := spec.Endpoint{
		Method: spec.MethodPost,
		RequestBody: &spec.Schema{
			Type:       "object",
			Properties: map[string]*spec.Schema{"a": {Type: "string"}},
			Required:   []string{"a", "b", "c", "d", "e"},
		},
		AuthRequired: true,
	}
	b := BudgetFor(&e)
	assert.Equal(t, b.Total(), b.P0+b.P1+b.P2)
}

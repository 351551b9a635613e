// Package scoring implements CaseCraft's complexity scorer: a pure
// integer score over an Endpoint's surface area, the budget table it
// drives, and the priority-distribution slicer, per spec.md §4.3.
package scoring

import "github.com/Devliang24/casecraft/internal/spec"

// Score sums the weighted contributions spec.md §4.3 defines over e.
func Score(e *spec.Endpoint) int {
	score := 0

	for _, p := range e.Parameters {
		switch p.In {
		case spec.LocationPath:
			score += 2
		case spec.LocationQuery:
			score += 1
		case spec.LocationHeader:
			score += 1
		}
	}

	score += bodyDepth(e.RequestBody)

	switch e.Method {
	case spec.MethodPost, spec.MethodPut, spec.MethodPatch:
		score += 2
	case spec.MethodDelete:
		score += 1
	}

	if e.AuthRequired {
		score += 3
	}

	if len(e.Responses) > 1 {
		score += len(e.Responses) - 1
	}

	return score
}

// bodyDepth scores request-body structural depth: +1 per object level,
// +2 per array of objects, +1 per additional required field beyond three.
func bodyDepth(s *spec.Schema) int {
	if s == nil {
		return 0
	}
	return bodyDepthNode(s, map[*spec.Schema]bool{})
}

func bodyDepthNode(s *spec.Schema, seen map[*spec.Schema]bool) int {
	if s == nil || seen[s] {
		return 0
	}
	seen[s] = true
	defer delete(seen, s)

	total := 0
	switch s.Type {
	case "object", "":
		if len(s.Properties) > 0 || len(s.Required) > 0 {
			total += 1
			if len(s.Required) > 3 {
				total += len(s.Required) - 3
			}
			for _, prop := range s.Properties {
				total += bodyDepthNode(prop, seen)
			}
		}
	case "array":
		if s.Items != nil && (s.Items.Type == "object" || len(s.Items.Properties) > 0) {
			total += 2
			total += bodyDepthNode(s.Items, seen)
		} else if s.Items != nil {
			total += bodyDepthNode(s.Items, seen)
		}
	}
	return total
}

// Tier names the three complexity bands the budget table keys on.
type Tier string

const (
	TierSimple  Tier = "simple"
	TierMedium  Tier = "medium"
	TierComplex Tier = "complex"
)

// TierFor classifies score into its tier using strict '>' boundaries, per
// the Open Question resolved in spec.md §9(a): score == 5 is simple,
// 6..10 inclusive is medium, 11+ is complex.
func TierFor(score int) Tier {
	switch {
	case score <= 5:
		return TierSimple
	case score <= 10:
		return TierMedium
	default:
		return TierComplex
	}
}

// Budget is the required test-case counts for one endpoint.
type Budget struct {
	Positive int
	Negative int
	Boundary int
	P0       int
	P1       int
	P2       int
}

// Total returns the sum of all counted test cases.
func (b Budget) Total() int {
	return b.Positive + b.Negative + b.Boundary
}

// budgetRow is one tier's {positive, negative, boundary} range, from which
// Budget picks the row's second-highest total for DELETE endpoints and the
// highest total otherwise (see BudgetFor).
type budgetRow struct {
	positiveLow, positiveHigh int
	negativeLow, negativeHigh int
	boundaryLow, boundaryHigh int
}

var budgetTable = map[Tier]budgetRow{
	TierSimple:  {2, 2, 2, 3, 1, 1},
	TierMedium:  {2, 3, 3, 4, 1, 2},
	TierComplex: {3, 4, 4, 5, 2, 3},
}

// BudgetFor derives e's test-case budget from its ComplexityScore, per the
// table in spec.md §4.3. DELETE endpoints receive the second-highest total
// within their tier (one less than the maximum row, achieved by dropping
// one case from whichever category has the widest range, negative).
func BudgetFor(e *spec.Endpoint) Budget {
	score := Score(e)
	row := budgetTable[TierFor(score)]

	positive, negative, boundary := row.positiveHigh, row.negativeHigh, row.boundaryHigh
	if e.Method == spec.MethodDelete {
		// second-highest total: shave one off negative, the widest band.
		if negative > row.negativeLow {
			negative--
		} else if positive > row.positiveLow {
			positive--
		} else if boundary > row.boundaryLow {
			boundary--
		}
	}

	b := Budget{Positive: positive, Negative: negative, Boundary: boundary}
	p0, p1, p2 := PrioritySlice(b.Total())
	b.P0, b.P1, b.P2 = p0, p1, p2
	return b
}

// PrioritySlice splits n test cases into P0/P1/P2 counts using the 30/40/30
// distribution from spec.md §4.3, rounding so P0 and P2 each get at least
// one case whenever n >= 3.
func PrioritySlice(n int) (p0, p1, p2 int) {
	if n <= 0 {
		return 0, 0, 0
	}
	p0 = n * 30 / 100
	p2 = n * 30 / 100
	if n >= 3 {
		if p0 == 0 {
			p0 = 1
		}
		if p2 == 0 {
			p2 = 1
		}
	}
	p1 = n - p0 - p2
	if n < 3 {
		// n is too small for a 30/40/30 split (n==1 or n==2): give P0 the
		// first case and P2 the second, leaving P1 empty.
		p1 = 0
		switch n {
		case 1:
			p0, p2 = 1, 0
		case 2:
			p0, p2 = 1, 1
		}
	}
	return p0, p1, p2
}

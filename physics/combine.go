package physics

import (
	"strings"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// CombineRule merges two bodies' material coefficients into the pair's coefficient
type CombineRule uint8

const (
	CombineMin CombineRule = iota
	CombineMax
	CombineAverage
	CombineMultiply
	CombineGeometric
)

var combineNames = [...]string{
	CombineMin:       "min",
	CombineMax:       "max",
	CombineAverage:   "average",
	CombineMultiply:  "multiply",
	CombineGeometric: "geometric",
}

func (r CombineRule) Combine(a, b float32) float32 {
	switch r {
	case CombineMax:
		return math32.Max(a, b)
	case CombineAverage:
		return (a + b) * 0.5
	case CombineMultiply:
		return a * b
	case CombineGeometric:
		return math32.Sqrt(a * b)
	default:
		return math32.Min(a, b)
	}
}

func (r CombineRule) String() string {
	if int(r) < len(combineNames) {
		return combineNames[r]
	}
	return "unknown"
}

// ParseCombineRule accepts the names printed by String, case-insensitively
func ParseCombineRule(s string) (CombineRule, error) {
	for i, name := range combineNames {
		if strings.EqualFold(s, name) {
			return CombineRule(i), nil
		}
	}
	return CombineMin, errors.Errorf("unknown combine rule %q", s)
}

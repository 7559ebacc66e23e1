package ranker

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/copperdogma/crucible-pipeline/pkg/models"
)

// highWeightThreshold and pTradeoffHigh/pTradeoffLow are the §4.7 factor
// and tradeoff-sentence thresholds.
const (
	highWeightThreshold = 50.0
	highScoreThreshold  = 0.8
	lowScoreThreshold   = 0.5
	pTradeoffHigh       = 0.7
	pTradeoffLow        = 0.4
)

// factors synthesizes the ≤4/≤4 positive/negative ranking_factors (§4.7).
// Hard violations always lead the negatives; "Satisfies" text distinguishes
// weight≥100 ("hard constraint") from weight∈[50,100) ("high-weight
// constraint"), per the original ranker's constraint_weights branch.
func factors(a candidateAggregate, spec models.ProblemSpec, medianP, medianR float64) models.RankingFactors {
	var positive, negative []string

	for _, name := range a.violatedNames {
		negative = append(negative, fmt.Sprintf("Violates hard constraint '%s'", name))
	}

	for _, name := range constraintOrder(a.satisfaction) {
		cons, ok := spec.ConstraintByName(name)
		if !ok || cons.Weight < highWeightThreshold {
			continue
		}
		sat := a.satisfaction[name]
		switch {
		case sat.Satisfied && sat.Score > highScoreThreshold:
			if cons.IsHard() {
				positive = append(positive, fmt.Sprintf("Satisfies hard constraint '%s'", name))
			} else {
				positive = append(positive, fmt.Sprintf("Satisfies high-weight constraint '%s'", name))
			}
		case !sat.Satisfied || sat.Score < lowScoreThreshold:
			if cons.IsHard() && !contains(a.violatedNames, name) {
				negative = append(negative, fmt.Sprintf("Violates hard constraint '%s'", name))
			} else if !cons.IsHard() {
				negative = append(negative, fmt.Sprintf("Weak on constraint '%s'", name))
			}
		}
	}

	if a.p > medianP {
		positive = append(positive, "High prediction quality")
	} else if a.p < medianP {
		negative = append(negative, "Low prediction quality")
	}

	if a.rAgg < medianR {
		positive = append(positive, "Low resource cost")
	} else if a.rAgg > medianR {
		negative = append(negative, "High resource cost")
	}

	sort.SliceStable(negative, func(i, j int) bool {
		return strings.HasPrefix(negative[i], "Violates hard") && !strings.HasPrefix(negative[j], "Violates hard")
	})

	return models.RankingFactors{
		TopPositiveFactors: capAt(positive, 4),
		TopNegativeFactors: capAt(negative, 4),
	}
}

// explain synthesizes the 1-3 sentence ranking_explanation (§4.7): relative
// position, then hard violations, then P/R tradeoff, then one constraint
// strength callout.
func explain(idx int, a candidateAggregate, prevI float64, hasPrev bool, nextI float64, hasNext bool, spec models.ProblemSpec, rankingFactors models.RankingFactors) string {
	var sentences []string

	sentences = append(sentences, positionSentence(idx, a.i, prevI, hasPrev, nextI, hasNext))

	if len(a.violatedNames) > 0 {
		quoted := make([]string, len(a.violatedNames))
		for i, n := range a.violatedNames {
			quoted[i] = "'" + n + "'"
		}
		word := "constraint"
		if len(quoted) > 1 {
			word = "constraints"
		}
		sentences = append(sentences, fmt.Sprintf("Violates hard %s %s.", word, strings.Join(quoted, ", ")))
	}

	switch {
	case a.p > pTradeoffHigh && a.rAgg < pTradeoffLow:
		sentences = append(sentences, fmt.Sprintf("High prediction quality (P=%.2f) with low cost (R=%.2f).", a.p, a.rAgg))
	case a.p > pTradeoffHigh:
		sentences = append(sentences, fmt.Sprintf("High prediction quality (P=%.2f) with moderate cost (R=%.2f).", a.p, a.rAgg))
	case a.p < pTradeoffLow && a.rAgg < pTradeoffLow:
		sentences = append(sentences, fmt.Sprintf("Low prediction quality (P=%.2f) but low cost (R=%.2f).", a.p, a.rAgg))
	}

	if name, ok := topConstraintStrength(rankingFactors); ok {
		sentences = append(sentences, fmt.Sprintf("Excels at satisfying constraint '%s'.", name))
	}

	if len(sentences) > 3 {
		sentences = sentences[:3]
	}
	return strings.Join(sentences, " ")
}

// positionSentence renders the "Ranked #k ..." sentence, comparing the top
// candidate against #2 and every other candidate against its predecessor.
// Per §9 Open Question (b), the percent figure is omitted when the
// comparison neighbour's I is zero rather than dividing by zero.
func positionSentence(idx int, i float64, prevI float64, hasPrev bool, nextI float64, hasNext bool) string {
	rank := idx + 1
	base := fmt.Sprintf("Ranked #%d with I=%.2f", rank, i)

	switch {
	case idx == 0 && hasNext:
		if nextI > 0 {
			pct := math.Abs((i - nextI) / nextI * 100)
			return fmt.Sprintf("%s, %.0f%% higher than #2.", base, pct)
		}
		return base + "."
	case hasPrev:
		if prevI > 0 {
			pct := (prevI - i) / prevI * 100
			return fmt.Sprintf("%s, %.0f%% lower than #%d.", base, pct, rank-1)
		}
		return base + "."
	default:
		return base + "."
	}
}

// topConstraintStrength returns the first "Satisfies ..." positive factor's
// constraint name, for the explanation's single constraint-strength callout.
func topConstraintStrength(rf models.RankingFactors) (string, bool) {
	for _, f := range rf.TopPositiveFactors {
		if !strings.Contains(f, "Satisfies") {
			continue
		}
		name := strings.TrimPrefix(f, "Satisfies hard constraint ")
		name = strings.TrimPrefix(name, "Satisfies high-weight constraint ")
		name = strings.Trim(name, "'")
		return name, true
	}
	return "", false
}

// constraintOrder returns a satisfaction map's keys in a stable order so
// factor synthesis doesn't depend on Go's randomized map iteration.
func constraintOrder(m map[string]models.ConstraintSatisfaction) []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func capAt(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

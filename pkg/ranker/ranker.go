// Package ranker implements C7, the I-Ranker: aggregation of
// per-(candidate, scenario) evaluations into aggregated P, R, I,
// constraint-satisfaction, status classification, and human-readable
// ranking explanations. Built fresh for the P/R/I algebra §4.7 defines;
// its extract-then-persist-then-explain shape is grounded on
// pkg/agent/controller/scoring.go's extract-score-then-build-result flow.
package ranker

import (
	"context"
	"fmt"
	"sort"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/provenance"
	"github.com/copperdogma/crucible-pipeline/pkg/store"
)

// defaultScore is the §4.7 fallback when an Evaluation is missing P or R
// ("default 0.5 if missing").
const defaultScore = 0.5

// Result is the §4.7 Rank operation's return shape.
type Result struct {
	RankedCandidates         []models.Candidate
	Count                    int
	HardConstraintViolations []string
}

// candidateAggregate is one candidate's aggregated P/R/I and hard-violation
// state, computed once and reused across status classification,
// explanation synthesis, and factor synthesis.
type candidateAggregate struct {
	candidate     models.Candidate
	p, rAgg, i    float64
	satisfaction  map[string]models.ConstraintSatisfaction
	hardViolation bool
	violatedNames []string
}

// Ranker is C7. It holds no state beyond the Store it operates against.
type Ranker struct {
	store *store.Store
}

// New constructs a Ranker over the given Store.
func New(s *store.Store) *Ranker {
	return &Ranker{store: s}
}

// Rank aggregates a Run's Evaluations per Candidate, assigns status, and
// persists scores + provenance, per §4.7.
func (r *Ranker) Rank(ctx context.Context, runID string) (Result, error) {
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()

	run, err := tx.GetRun(runID)
	if err != nil {
		return Result{}, err
	}

	spec, err := tx.GetProblemSpecByProject(run.ProjectID)
	if err != nil {
		return Result{}, apperrors.PreconditionFailed("problem spec required for ranking", nil)
	}

	candidates := tx.ListCandidatesByRun(runID)
	if len(candidates) == 0 {
		return Result{}, apperrors.Validation("run " + runID + " has no candidates to rank")
	}
	// Stable reference order for tie-break (§4.7, §8): preserve the order
	// already stored, here taken as candidate creation order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	evaluations := tx.ListEvaluationsByRun(runID)
	if len(evaluations) == 0 {
		return Result{}, apperrors.Validation("run " + runID + " has no evaluations to rank")
	}

	evalsByCandidate := map[string][]models.Evaluation{}
	for _, e := range evaluations {
		evalsByCandidate[e.CandidateID] = append(evalsByCandidate[e.CandidateID], e)
	}

	aggregates := make([]candidateAggregate, 0, len(candidates))
	for _, c := range candidates {
		evals := evalsByCandidate[c.ID]
		p := meanP(evals)
		rAgg := meanR(evals)
		i := 0.0
		if rAgg > 0 {
			i = p / rAgg
		}
		satisfaction := aggregateConstraints(evals)

		hard := false
		var violated []string
		for _, cons := range spec.Constraints {
			if !cons.IsHard() {
				continue
			}
			if sat, ok := satisfaction[cons.Name]; ok && !sat.Satisfied {
				hard = true
				violated = append(violated, cons.Name)
			}
		}

		aggregates = append(aggregates, candidateAggregate{
			candidate:     c,
			p:             p,
			rAgg:          rAgg,
			i:             i,
			satisfaction:  satisfaction,
			hardViolation: hard,
			violatedNames: violated,
		})
	}

	// Sort by I descending; ties preserve the stable reference order
	// established above (§4.7 tie-break, §8).
	sort.SliceStable(aggregates, func(a, b int) bool {
		return aggregates[a].i > aggregates[b].i
	})

	// Medians for factor synthesis (§4.7), computed over the ranked set.
	medianP := median(extract(aggregates, func(a candidateAggregate) float64 { return a.p }))
	medianR := median(extract(aggregates, func(a candidateAggregate) float64 { return a.rAgg }))

	var violatingIDs []string
	var ranked []models.Candidate

	for idx, a := range aggregates {
		status := classify(a.i, a.hardViolation)

		scores := models.CandidateScores{
			P:                      a.p,
			R:                      a.rAgg,
			I:                      a.i,
			ConstraintSatisfaction: a.satisfaction,
		}

		prevI := 0.0
		if idx > 0 {
			prevI = aggregates[idx-1].i
		}
		nextI, hasNext := 0.0, idx+1 < len(aggregates)
		if hasNext {
			nextI = aggregates[idx+1].i
		}
		rankingFactors := factors(a, spec, medianP, medianR)
		scores.RankingFactors = rankingFactors
		scores.RankingExplanation = explain(idx, a, prevI, idx > 0, nextI, hasNext, spec, rankingFactors)

		entry := provenance.Build("ranking", provenance.ActorSystem,
			provenance.WithSource("run:"+runID),
			provenance.WithDescription(fmt.Sprintf("Ranker computed I=%.2f and set status to %s", a.i, status)),
			provenance.WithMetadata(map[string]any{
				"scores":             scores,
				"has_hard_violation": a.hardViolation,
				"evaluation_count":   len(evalsByCandidate[a.candidate.ID]),
			}),
		)

		updated, err := tx.UpdateCandidate(a.candidate.ID, func(c *models.Candidate) {
			c.Scores = scores
			c.Status = status
			c.ProvenanceLog = provenance.Append(c.ProvenanceLog, entry)
		})
		if err != nil {
			return Result{}, err
		}
		ranked = append(ranked, updated)

		if a.hardViolation {
			violatingIDs = append(violatingIDs, a.candidate.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return Result{}, err
	}

	return Result{
		RankedCandidates:         ranked,
		Count:                    len(ranked),
		HardConstraintViolations: violatingIDs,
	}, nil
}

func classify(i float64, hardViolation bool) models.CandidateStatus {
	switch {
	case hardViolation:
		return models.CandidateStatusRejected
	case i >= 0.8:
		return models.CandidateStatusPromising
	case i >= 0.5:
		return models.CandidateStatusUnderTest
	default:
		return models.CandidateStatusWeak
	}
}

func meanP(evals []models.Evaluation) float64 {
	if len(evals) == 0 {
		return defaultScore
	}
	var sum float64
	var n int
	for _, e := range evals {
		if e.P.Overall == 0 {
			sum += defaultScore
		} else {
			sum += e.P.Overall
		}
		n++
	}
	return sum / float64(n)
}

func meanR(evals []models.Evaluation) float64 {
	if len(evals) == 0 {
		return defaultScore
	}
	var sum float64
	var n int
	for _, e := range evals {
		if e.R.Overall == 0 {
			sum += defaultScore
		} else {
			sum += e.R.Overall
		}
		n++
	}
	return sum / float64(n)
}

// aggregateConstraints implements §4.7's per-constraint aggregation:
// satisfied is AND over evaluations, score is the mean, and explanation
// joins the first 3 distinct per-evaluation explanations.
func aggregateConstraints(evals []models.Evaluation) map[string]models.ConstraintSatisfaction {
	type acc struct {
		satisfied    bool
		sawAny       bool
		scoreSum     float64
		count        int
		explanations []string
	}
	accs := map[string]*acc{}
	var order []string

	for _, e := range evals {
		for name, cs := range e.ConstraintSatisfaction {
			a, ok := accs[name]
			if !ok {
				a = &acc{satisfied: true}
				accs[name] = a
				order = append(order, name)
			}
			if !a.sawAny {
				a.satisfied = cs.Satisfied
				a.sawAny = true
			} else if !cs.Satisfied {
				a.satisfied = false
			}
			a.scoreSum += cs.Score
			a.count++
			if cs.Explanation != "" && !contains(a.explanations, cs.Explanation) && len(a.explanations) < 3 {
				a.explanations = append(a.explanations, cs.Explanation)
			}
		}
	}

	out := map[string]models.ConstraintSatisfaction{}
	for _, name := range order {
		a := accs[name]
		score := 0.0
		if a.count > 0 {
			score = a.scoreSum / float64(a.count)
		}
		out[name] = models.ConstraintSatisfaction{
			Satisfied:   a.satisfied,
			Score:       score,
			Explanation: joinSemicolon(a.explanations),
		}
	}
	return out
}

func contains(items []string, item string) bool {
	for _, i := range items {
		if i == item {
			return true
		}
	}
	return false
}

func joinSemicolon(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += "; "
		}
		out += s
	}
	return out
}

func extract[T any](items []T, fn func(T) float64) []float64 {
	out := make([]float64, len(items))
	for i, item := range items {
		out[i] = fn(item)
	}
	return out
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

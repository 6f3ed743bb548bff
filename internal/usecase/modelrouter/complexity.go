package modelrouter

import "alfred-ai/internal/domain"

// decisionWeights is the per-DecisionType contribution to the complexity
// score (spec.md §4.4).
var decisionWeights = map[domain.DecisionType]int{
	domain.DecisionRouting:       20,
	domain.DecisionGeneration:    25,
	domain.DecisionAnalysis:      45,
	domain.DecisionStrategy:      65,
	domain.DecisionEvaluation:    55,
	domain.DecisionConversation:  35,
	domain.DecisionQualification: 40,
	domain.DecisionOther:         30,
}

// agentModifiers is the per-AgentKind additive adjustment.
var agentModifiers = map[domain.AgentKind]int{
	domain.AgentOverlord: 15,
	domain.AgentEmail:    -5,
	domain.AgentSMS:      -10,
	domain.AgentChat:     0,
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// score computes the 0..100 complexity score for a request, per spec.md
// §4.4's additive-then-clamp formula.
func score(req domain.RoutedRequest) int {
	total := 0

	total += minInt(len(req.Prompt)/100, 25)
	total += decisionWeights[req.Decision]
	total += minInt(req.ResponseSchemaDepth*8, 20)
	total += minInt(len(req.History)*3, 15)

	if req.RequiresReasoning {
		total += 20
	}
	if req.Decision == domain.DecisionStrategy || req.Decision == domain.DecisionEvaluation {
		total += 15
	}
	if req.BusinessCritical {
		total += 25
	}
	if len(req.History) > 0 {
		total += 10
	}
	total += agentModifiers[req.Agent]

	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}
	return total
}

// tierFor maps a complexity score to a model tier.
func tierFor(complexity int) domain.ModelTier {
	switch {
	case complexity < 30:
		return domain.TierSimple
	case complexity < 70:
		return domain.TierMedium
	default:
		return domain.TierComplex
	}
}

package domain

// AgentKind identifies one of the four engagement agent roles.
type AgentKind string

const (
	AgentOverlord AgentKind = "overlord"
	AgentEmail    AgentKind = "email"
	AgentSMS      AgentKind = "sms"
	AgentChat     AgentKind = "chat"
)

// AgentInstructions carries the behavioral guardrails an EngagementAgent's
// prompt is built from.
type AgentInstructions struct {
	Dos    []string `json:"dos"`
	Donts  []string `json:"donts"`
}

// EngagementAgent is the persisted configuration of one of the four agent
// kinds. It is stateless in behavior: all per-call state lives in the
// Conversation/Lead/Campaign the agent is invoked with (spec.md §3, §9).
type EngagementAgent struct {
	Versioned
	ID              string            `json:"id"`
	Kind            AgentKind         `json:"kind"`
	EndGoal         string            `json:"endGoal"`
	Personality     string            `json:"personality"`
	Instructions    AgentInstructions `json:"instructions"`
	DomainExpertise string            `json:"domainExpertise"`
}

// Sentiment is a channel agent's read on the lead's tone in EvaluateSignals.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// EvaluateSignals is a channel agent's read on a conversation's qualification
// state (spec.md §4.3), consumed by the Handover Evaluator (spec.md §4.7).
type EvaluateSignals struct {
	QualificationScore float64   `json:"qualificationScore"` // 0-10
	Sentiment          Sentiment `json:"sentiment"`
	BuyingSignals      []string  `json:"buyingSignals"`
	KeywordsHit        []string  `json:"keywordsHit"`
}

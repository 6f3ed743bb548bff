package domain

// DecisionType classifies the kind of model call being requested, driving
// the Model Router's complexity score (spec.md §4.4).
type DecisionType string

const (
	DecisionRouting       DecisionType = "routing"
	DecisionGeneration    DecisionType = "generation"
	DecisionAnalysis      DecisionType = "analysis"
	DecisionStrategy      DecisionType = "strategy"
	DecisionEvaluation    DecisionType = "evaluation"
	DecisionConversation  DecisionType = "conversation"
	DecisionQualification DecisionType = "qualification"
	DecisionOther         DecisionType = "other"
)

// ModelTier is the complexity tier a RoutedRequest resolves to.
type ModelTier string

const (
	TierSimple  ModelTier = "simple"
	TierMedium  ModelTier = "medium"
	TierComplex ModelTier = "complex"
)

// RoutedRequest carries everything the Model Router's complexity scorer and
// invocation path need (spec.md §4.4).
type RoutedRequest struct {
	Prompt             string
	SystemPrompt       string
	Agent              AgentKind
	Decision           DecisionType
	History            []Message
	RequiresReasoning  bool
	BusinessCritical   bool
	ResponseSchemaDepth int
	Temperature        float64
	MaxTokens          int
	AgentModelOverride string // supersedes the tier pick when non-empty
}

// TierModels is the {primaryModel, fallbackModel} pair configured for one tier.
type TierModels struct {
	Primary  string
	Fallback string
}

// RouterConfig resolves tiers and per-agent overrides to concrete providers.
type RouterConfig struct {
	Tiers              map[ModelTier]TierModels
	AgentModelOverride map[AgentKind]string
	Timeout            int // milliseconds, default 15000
}

// RoutedResponse records the outcome of a single Model Router invocation.
type RoutedResponse struct {
	Model        string
	Complexity   int
	Tier         ModelTier
	LatencyMs    int64
	InputTokens  int
	OutputTokens int
	CostEstimate float64
	Content      string
}

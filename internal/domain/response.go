package domain

// VisualType hints the UI about how to render an intent-specific payload.
type VisualType string

// Visual types attached to shaped responses.
const (
	VisualRiskSummary     VisualType = "risk_summary"
	VisualPriceInfo       VisualType = "price_info"
	VisualMarketOverview  VisualType = "market_overview"
	VisualTokenInfo       VisualType = "token_info"
	VisualTransactionInfo VisualType = "transaction_info"
	VisualStrategyOutline VisualType = "strategy_outline"
)

// ShapedResponse is the caller-facing result of a non-streaming turn.
// Data and VisualType are best-effort annotations; their absence never
// indicates failure.
type ShapedResponse struct {
	Message    string              `json:"message"`
	Provider   string              `json:"provider,omitempty"`
	Model      string              `json:"model,omitempty"`
	Intent     Intent              `json:"intent,omitempty"`
	Data       map[string]any      `json:"data,omitempty"`
	VisualType VisualType          `json:"visualType,omitempty"`
	Context    ConversationContext `json:"context"`
}

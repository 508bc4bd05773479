package domain

import "time"

// Intent is a closed classification of the user's message purpose.
type Intent string

// Known intents, in classification priority order (see nlp.Classifier).
const (
	IntentGreeting         Intent = "greeting"
	IntentRiskAnalysis     Intent = "risk_analysis"
	IntentPriceInfo        Intent = "price_info"
	IntentMarketOverview   Intent = "market_overview"
	IntentTokenInfo        Intent = "token_info"
	IntentTransactionInfo  Intent = "transaction_info"
	IntentStrategyCreation Intent = "strategy_creation"
	IntentHelp             Intent = "help"
	IntentUnknown          Intent = "unknown"
)

// Entities holds the typed lists extracted from a user message. Lists are
// empty, never nil, when nothing matched.
type Entities struct {
	TokenAddresses []string  `json:"tokenAddresses"`
	TokenNames     []string  `json:"tokenNames"`
	TransactionIDs []string  `json:"transactionIds"`
	Numbers        []float64 `json:"numbers"`
	Dates          []string  `json:"dates"`
	Strategies     []string  `json:"strategies"`
}

// ConversationContext is the key/value state carried across turns. It is
// updated additively: turns overwrite individual keys, never remove others.
type ConversationContext map[string]any

// Well-known conversation context keys.
const (
	CtxLastIntent          = "lastIntent"
	CtxLastUpdated         = "lastUpdated"
	CtxTokenAddressForRisk = "tokenAddressForRisk"
	CtxTokenNameForRisk    = "tokenNameForRisk"
	CtxTokenAddress        = "tokenAddress"
	CtxTokenName           = "tokenName"
	CtxTransactionID       = "transactionId"
	CtxStrategyType        = "strategyType"
	CtxStrategyToken       = "strategyToken"
	CtxHistory             = "conversationHistory"
	CtxPreferredProvider   = "preferredProvider"
	CtxLastProvider        = "lastProvider"
	CtxLastModel           = "lastModel"
)

// Clone returns a shallow copy of the context. Clone of a nil context is an
// empty, usable context.
func (c ConversationContext) Clone() ConversationContext {
	out := make(ConversationContext, len(c)+4)
	for k, v := range c {
		out[k] = v
	}
	return out
}

// String returns the string value stored under key, or "" if absent or not a
// string.
func (c ConversationContext) String(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

// History returns the conversation history stored in the context, tolerating
// both the typed form and the generic form produced by JSON decoding.
func (c ConversationContext) History() []Message {
	switch v := c[CtxHistory].(type) {
	case []Message:
		return v
	case []any:
		msgs := make([]Message, 0, len(v))
		for _, raw := range v {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			role, _ := m["role"].(string)
			content, _ := m["content"].(string)
			if role == "" {
				continue
			}
			msgs = append(msgs, Message{Role: role, Content: content})
		}
		return msgs
	default:
		return nil
	}
}

// Touch stamps the context's last-updated time.
func (c ConversationContext) Touch(now time.Time) {
	c[CtxLastUpdated] = now.UTC().Format(time.RFC3339)
}

package nlp

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"solmate/internal/domain"
)

// intentPatterns maps intents to their trigger patterns, in priority order.
// The first matching pattern wins, so broad intents (help) come after
// narrower ones (risk analysis).
var intentPatterns = []struct {
	intent   domain.Intent
	patterns []*regexp.Regexp
}{
	{domain.IntentGreeting, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(hi|hello|hey|greetings|howdy|good morning|good afternoon|good evening)\b`),
	}},
	{domain.IntentRiskAnalysis, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(risk|analyze|assessment|evaluate|check|safe|risky|danger|secure)\b.*\b(token|project|investment|coin)\b`),
		regexp.MustCompile(`(?i)\bhow\b.*\b(risky|safe)\b`),
		regexp.MustCompile(`(?i)\bwhat('s| is) the risk\b`),
	}},
	{domain.IntentPriceInfo, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(price|worth|value|cost|market cap|market value|dollar|usd)\b`),
		regexp.MustCompile(`(?i)\bhow much (is|does|are|costs)\b`),
		regexp.MustCompile(`(?i)\bprice of\b`),
	}},
	{domain.IntentMarketOverview, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(market|overall|trend|trends|stats|statistics|overview)\b`),
		regexp.MustCompile(`(?i)\bhow is the market\b`),
		regexp.MustCompile(`(?i)\bmarket (overview|status|condition|health)\b`),
	}},
	{domain.IntentTokenInfo, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(tell me about|what is|describe|information|details|tokenomics)\b.*\b(token|coin|project)\b`),
		regexp.MustCompile(`(?i)\btoken (info|details|summary)\b`),
	}},
	{domain.IntentTransactionInfo, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(transaction|tx|hash|transfer|send|receive)\b`),
		regexp.MustCompile(`(?i)\bwhat('s| is) this (transaction|tx)\b`),
	}},
	{domain.IntentStrategyCreation, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(create|build|setup|configure|make|start)\b.*\b(strategy|trading plan|investment plan)\b`),
		regexp.MustCompile(`(?i)\bstrategy for\b`),
		regexp.MustCompile(`(?i)\bhow (to|should|can) I (invest|trade)\b`),
	}},
	{domain.IntentHelp, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(help|assist|support|guide|explain|show me how)\b`),
		regexp.MustCompile(`(?i)\bwhat can you do\b`),
		regexp.MustCompile(`(?i)\bhow (to use|does this work)\b`),
	}},
}

// Entity extraction patterns. Address and transaction patterns are base58
// with length as the only discriminator; word boundaries keep a long
// signature from partially matching as an address.
var (
	tokenAddressRe = regexp.MustCompile(`\b[1-9A-HJ-NP-Za-km-z]{32,44}\b`)
	transactionRe  = regexp.MustCompile(`\b[1-9A-HJ-NP-Za-km-z]{64,88}\b`)
	tokenNameRe    = regexp.MustCompile(`(?i)\b(SOL|BTC|ETH|USDT|USDC|BONK|JitoSOL|PYTH|RAY|SRM|mSOL|stSOL|ORCA|MNGO)\b`)
	numberRe       = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
	dateRe         = regexp.MustCompile(`(?i)\b(today|yesterday|tomorrow|last week|next week|this month|last month)\b`)
	strategyRe     = regexp.MustCompile(`(?i)\b(DCA|dollar cost averaging|swing|day trading|hodl|staking|yield farming)\b`)
)

// Result is the outcome of classifying one user message.
type Result struct {
	OriginalMessage string                     `json:"originalMessage"`
	Intent          domain.Intent              `json:"intent"`
	Entities        domain.Entities            `json:"entities"`
	Context         domain.ConversationContext `json:"context"`
}

// Classifier turns raw user messages into intent, entities, and updated
// conversation context. It is stateless and safe for concurrent use.
type Classifier struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewClassifier creates a Classifier.
func NewClassifier(logger *slog.Logger) *Classifier {
	return &Classifier{
		logger: logger,
		now:    time.Now,
	}
}

// Process runs the full pipeline on one message: detect intent, extract
// entities, fold both into a copy of the conversation context. The input
// context is never mutated.
func (c *Classifier) Process(message string, ctx domain.ConversationContext) Result {
	intent := c.DetectIntent(message)
	entities := c.ExtractEntities(message)
	updated := c.UpdateContext(intent, entities, ctx)

	c.logger.Debug("message classified",
		"intent", string(intent),
		"addresses", len(entities.TokenAddresses),
		"tokens", len(entities.TokenNames),
	)

	return Result{
		OriginalMessage: message,
		Intent:          intent,
		Entities:        entities,
		Context:         updated,
	}
}

// DetectIntent returns the first intent whose patterns match the message,
// checked in priority order, or IntentUnknown.
func (c *Classifier) DetectIntent(message string) domain.Intent {
	for _, group := range intentPatterns {
		for _, p := range group.patterns {
			if p.MatchString(message) {
				return group.intent
			}
		}
	}
	return domain.IntentUnknown
}

// ExtractEntities pulls typed entities from the message. It never fails;
// unmatched categories come back as empty lists.
func (c *Classifier) ExtractEntities(message string) domain.Entities {
	entities := domain.Entities{
		TokenAddresses: []string{},
		TokenNames:     []string{},
		TransactionIDs: []string{},
		Numbers:        []float64{},
		Dates:          []string{},
		Strategies:     []string{},
	}

	entities.TokenAddresses = append(entities.TokenAddresses, tokenAddressRe.FindAllString(message, -1)...)
	entities.TransactionIDs = append(entities.TransactionIDs, transactionRe.FindAllString(message, -1)...)

	for _, name := range tokenNameRe.FindAllString(message, -1) {
		entities.TokenNames = append(entities.TokenNames, strings.ToUpper(name))
	}

	for _, num := range numberRe.FindAllString(message, -1) {
		if f, err := strconv.ParseFloat(num, 64); err == nil {
			entities.Numbers = append(entities.Numbers, f)
		}
	}

	entities.Dates = append(entities.Dates, dateRe.FindAllString(message, -1)...)
	entities.Strategies = append(entities.Strategies, strategyRe.FindAllString(message, -1)...)

	return entities
}

// UpdateContext folds the detected intent and entities into a copy of the
// conversation context. Updates are additive: keys from earlier turns stay
// unless overwritten here.
func (c *Classifier) UpdateContext(intent domain.Intent, entities domain.Entities, current domain.ConversationContext) domain.ConversationContext {
	ctx := current.Clone()
	ctx[domain.CtxLastIntent] = string(intent)

	switch intent {
	case domain.IntentRiskAnalysis:
		if len(entities.TokenAddresses) > 0 {
			ctx[domain.CtxTokenAddressForRisk] = entities.TokenAddresses[0]
		} else if len(entities.TokenNames) > 0 {
			ctx[domain.CtxTokenNameForRisk] = entities.TokenNames[0]
		}

	case domain.IntentPriceInfo, domain.IntentTokenInfo:
		if len(entities.TokenAddresses) > 0 {
			ctx[domain.CtxTokenAddress] = entities.TokenAddresses[0]
		} else if len(entities.TokenNames) > 0 {
			ctx[domain.CtxTokenName] = entities.TokenNames[0]
		}

	case domain.IntentTransactionInfo:
		if len(entities.TransactionIDs) > 0 {
			ctx[domain.CtxTransactionID] = entities.TransactionIDs[0]
		}

	case domain.IntentStrategyCreation:
		if len(entities.Strategies) > 0 {
			ctx[domain.CtxStrategyType] = entities.Strategies[0]
		}
		if len(entities.TokenNames) > 0 {
			ctx[domain.CtxStrategyToken] = entities.TokenNames[0]
		}
	}

	ctx.Touch(c.now())
	return ctx
}

package usecase

import (
	"fmt"

	"solmate/internal/domain"
)

// historyLimit caps how many prior turns are replayed into the prompt.
const historyLimit = 5

// defaultSystemPrompt is used for intents without a specialist persona
// (greeting, unknown).
const defaultSystemPrompt = `You are SolMate, an AI trading assistant for the Solana blockchain. You provide helpful, accurate, and concise information about Solana tokens, trading strategies, and market analysis. Always be respectful and focus on providing value. If you don't know something, admit it rather than making things up.`

// systemPrompts selects the assistant persona per intent.
var systemPrompts = map[domain.Intent]string{
	domain.IntentRiskAnalysis: `You are SolMate's risk analysis expert. Focus on providing balanced, data-driven assessments of token risks. Consider factors like liquidity, code security, team transparency, token distribution, market dynamics, and community sentiment. Present risks clearly without being alarmist.`,

	domain.IntentPriceInfo: `You are SolMate's price information specialist. Provide accurate price data and trends for Solana tokens. Stick to factual information and avoid making price predictions. Help users understand market movements rather than speculating on future prices.`,

	domain.IntentMarketOverview: `You are SolMate's market analyst. Provide comprehensive overviews of the Solana market, including major token performance, sector trends, and overall market sentiment. Focus on data-driven insights rather than speculation.`,

	domain.IntentTokenInfo: `You are SolMate's token information expert. Provide detailed information about Solana tokens, including their use cases, team, technology, partnerships, and market performance. Focus on factual information while highlighting both strengths and potential concerns.`,

	domain.IntentTransactionInfo: `You are SolMate's transaction analyst. Help users understand Solana transactions, explaining what happened in a clear, accessible way. Break down complex transactions into understandable components, highlighting important details like amounts, participants, and transaction types.`,

	domain.IntentStrategyCreation: `You are SolMate's strategy building expert. Help users develop sound trading and investment strategies for Solana. Focus on risk management, diversification, and sustainable approaches rather than high-risk tactics. Tailor strategies to individual user needs and risk tolerance.`,

	domain.IntentHelp: `You are SolMate's user guide. Provide clear, helpful information about SolMate's features and capabilities. Explain how users can get the most out of the platform in a friendly, accessible way.`,
}

// PromptBuilder assembles the message sequence sent to a backend: persona
// system prompt, optional grounding system message, recent history, then the
// user's message last.
type PromptBuilder struct{}

// NewPromptBuilder creates a PromptBuilder.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// Build returns the ordered prompt for one turn.
func (b *PromptBuilder) Build(message string, intent domain.Intent, entities domain.Entities, ctx domain.ConversationContext) []domain.Message {
	system, ok := systemPrompts[intent]
	if !ok {
		system = defaultSystemPrompt
	}

	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: system},
	}

	if grounding := groundingMessage(intent, entities, ctx); grounding != "" {
		messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: grounding})
	}

	history := ctx.History()
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	messages = append(messages, history...)

	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: message})
	return messages
}

// groundingMessage anchors the model on the concrete subject of the turn,
// when one is known from entities or carried context.
func groundingMessage(intent domain.Intent, entities domain.Entities, ctx domain.ConversationContext) string {
	switch intent {
	case domain.IntentRiskAnalysis:
		address := ""
		if len(entities.TokenAddresses) > 0 {
			address = entities.TokenAddresses[0]
		} else {
			address = ctx.String(domain.CtxTokenAddressForRisk)
		}
		if address != "" {
			return fmt.Sprintf("The user is asking about token with address: %s. Provide a comprehensive risk analysis for this token.", address)
		}

	case domain.IntentTokenInfo:
		name := ""
		if len(entities.TokenNames) > 0 {
			name = entities.TokenNames[0]
		} else {
			name = ctx.String(domain.CtxTokenName)
		}
		if name != "" {
			return fmt.Sprintf("The user is asking about the token: %s. Provide comprehensive information about this token.", name)
		}
	}
	return ""
}

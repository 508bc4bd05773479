package usecase

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"solmate/internal/domain"
	"solmate/internal/usecase/nlp"
)

// fallbackMessage is returned when generation fails; the caller's context is
// passed back unmodified so the conversation can continue from where it was.
const fallbackMessage = "I'm sorry, I encountered an error while processing your request. Please try again."

// Response shaping patterns. These lift structured highlights out of free
// prose; when they miss, the response ships as plain text.
var (
	riskScoreRe    = regexp.MustCompile(`(?i)risk score of (\d+)(?:/100)?`)
	riskCategoryRe = regexp.MustCompile(`(?i)\((.*?risk.*?)\)`)
	priceRe        = regexp.MustCompile(`\$(\d+(?:\.\d+)?)`)
	changeRe       = regexp.MustCompile(`(?i)(up|down)\s+(\d+(?:\.\d+)?)%`)
)

// Orchestrator runs the full chat turn: classify the message, build the
// prompt, dispatch to a backend, and shape the reply for the client.
type Orchestrator struct {
	classifier *nlp.Classifier
	prompts    *PromptBuilder
	dispatcher *Dispatcher
	relay      *Relay
	logger     *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(classifier *nlp.Classifier, prompts *PromptBuilder, dispatcher *Dispatcher, relay *Relay, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		classifier: classifier,
		prompts:    prompts,
		dispatcher: dispatcher,
		relay:      relay,
		logger:     logger,
	}
}

// Process handles one non-streaming chat turn. On generation failure it
// returns an apology response carrying the caller's prior context unmodified,
// together with the error.
func (o *Orchestrator) Process(ctx context.Context, message string, convCtx domain.ConversationContext, opts domain.GenerateOptions) (*domain.ShapedResponse, error) {
	res := o.classifier.Process(message, convCtx)
	o.logger.Info("detected intent", "intent", string(res.Intent))

	if opts.Provider == "" {
		opts.Provider = convCtx.String(domain.CtxPreferredProvider)
	}

	prompt := o.prompts.Build(message, res.Intent, res.Entities, res.Context)

	resp, cached, err := o.dispatcher.Generate(ctx, prompt, opts)
	if err != nil {
		o.logger.Error("generation failed", "error", err, "code", string(domain.ErrorCodeOf(err)))
		return &domain.ShapedResponse{
			Message: fallbackMessage,
			Context: convCtx,
		}, err
	}
	if cached {
		o.logger.Debug("served from cache", "provider", resp.Provider)
	}

	shaped := shapeResponse(resp, res.Intent, res.Entities, res.Context)
	shaped.Context[domain.CtxLastProvider] = resp.Provider
	shaped.Context[domain.CtxLastModel] = resp.Model
	return shaped, nil
}

// ProcessStream handles one streaming chat turn. It returns the event
// channel together with the updated conversation context, which the caller
// delivers alongside the terminal event.
func (o *Orchestrator) ProcessStream(ctx context.Context, message string, convCtx domain.ConversationContext, opts domain.GenerateOptions) (<-chan domain.StreamEvent, domain.ConversationContext, error) {
	res := o.classifier.Process(message, convCtx)
	o.logger.Info("detected intent", "intent", string(res.Intent), "streaming", true)

	if opts.Provider == "" {
		opts.Provider = convCtx.String(domain.CtxPreferredProvider)
	}

	prompt := o.prompts.Build(message, res.Intent, res.Entities, res.Context)

	events, err := o.relay.Stream(ctx, prompt, opts)
	if err != nil {
		return nil, convCtx, err
	}
	return events, res.Context, nil
}

// Providers exposes the usable provider profiles for API listing.
func (o *Orchestrator) Providers() []domain.ProviderProfile {
	return o.dispatcher.Providers()
}

// Models exposes the model catalogue for one provider.
func (o *Orchestrator) Models(provider string) []string {
	return o.dispatcher.Models(provider)
}

// shapeResponse wraps the raw completion with intent-specific structured
// data and a visual hint for the client renderer.
func shapeResponse(resp *domain.CompletionResponse, intent domain.Intent, entities domain.Entities, ctx domain.ConversationContext) *domain.ShapedResponse {
	shaped := &domain.ShapedResponse{
		Message:  resp.Content,
		Provider: resp.Provider,
		Model:    resp.Model,
		Intent:   intent,
		Context:  ctx,
	}

	switch intent {
	case domain.IntentRiskAnalysis:
		scoreMatch := riskScoreRe.FindStringSubmatch(resp.Content)
		categoryMatch := riskCategoryRe.FindStringSubmatch(resp.Content)
		if scoreMatch == nil && categoryMatch == nil {
			break
		}

		score := 50
		if scoreMatch != nil {
			if n, err := strconv.Atoi(scoreMatch[1]); err == nil {
				score = n
			}
		}
		category := "Moderate Risk"
		if categoryMatch != nil {
			category = categoryMatch[1]
		}

		address := ctx.String(domain.CtxTokenAddressForRisk)
		if len(entities.TokenAddresses) > 0 {
			address = entities.TokenAddresses[0]
		}

		shaped.Data = map[string]any{
			"tokenAddress": address,
			"riskScore":    score,
			"riskCategory": category,
		}
		shaped.VisualType = domain.VisualRiskSummary

	case domain.IntentPriceInfo:
		priceMatch := priceRe.FindStringSubmatch(resp.Content)
		if priceMatch == nil {
			break
		}

		price, _ := strconv.ParseFloat(priceMatch[1], 64)

		change := 0.0
		if changeMatch := changeRe.FindStringSubmatch(resp.Content); changeMatch != nil {
			change, _ = strconv.ParseFloat(changeMatch[2], 64)
			if strings.EqualFold(changeMatch[1], "down") {
				change = -change
			}
		}

		token := ctx.String(domain.CtxTokenName)
		if len(entities.TokenNames) > 0 {
			token = entities.TokenNames[0]
		}

		shaped.Data = map[string]any{
			"token":     token,
			"price":     price,
			"change24h": change,
		}
		shaped.VisualType = domain.VisualPriceInfo

	case domain.IntentMarketOverview:
		shaped.VisualType = domain.VisualMarketOverview

	case domain.IntentTokenInfo:
		shaped.VisualType = domain.VisualTokenInfo

	case domain.IntentTransactionInfo:
		shaped.VisualType = domain.VisualTransactionInfo

	case domain.IntentStrategyCreation:
		shaped.VisualType = domain.VisualStrategyOutline
	}

	return shaped
}

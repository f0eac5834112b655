package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/pagesift/models"
	"github.com/mohammad-safakhou/pagesift/provider"
)

const analyzeSystemPrompt = `You analyse a web page and describe what data it offers.
Respond ONLY with valid JSON in the following format:
{"website_type": "ecommerce|news|blog|platform|social|other", "description": "one or two sentences", "available_data": ["..."], "suggested_extractions": ["..."]}
Do not include any other text or explanation.`

// Analyze infers a page's type and the data categories it exposes. Same
// repair policy as Extract: one corrective retry, then failure.
func (e *Extractor) Analyze(ctx context.Context, bundle models.ContentBundle) (models.SiteAnalysis, string, error) {
	content := e.buildContentPrompt([]models.ContentBundle{bundle})
	messages := []provider.Message{
		{Role: "system", Content: analyzeSystemPrompt},
		{Role: "user", Content: content},
	}

	raw, err := e.llm.Complete(ctx, messages)
	if err != nil {
		return models.SiteAnalysis{}, "", fmt.Errorf("model call failed: %w", err)
	}
	analysis, verr := parseAnalysis(raw, bundle.URL)
	if verr == nil {
		return analysis, raw, nil
	}

	e.logger.Printf("analysis output failed validation (%v), retrying once", verr)
	messages = append(messages,
		provider.Message{Role: "assistant", Content: raw},
		provider.Message{Role: "user", Content: "Your previous reply was not valid. Return strict JSON only with fields: website_type, description, available_data, suggested_extractions."},
	)
	raw, err = e.llm.Complete(ctx, messages)
	if err != nil {
		return models.SiteAnalysis{}, "", fmt.Errorf("model call failed: %w", err)
	}
	analysis, verr = parseAnalysis(raw, bundle.URL)
	if verr != nil {
		return models.SiteAnalysis{}, raw, &AIValidationError{Reason: verr.Error()}
	}
	return analysis, raw, nil
}

func parseAnalysis(raw, url string) (models.SiteAnalysis, error) {
	var parsed struct {
		WebsiteType          string   `json:"website_type"`
		Description          string   `json:"description"`
		AvailableData        []string `json:"available_data"`
		SuggestedExtractions []string `json:"suggested_extractions"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return models.SiteAnalysis{}, fmt.Errorf("response is not valid JSON: %w", err)
	}
	if strings.TrimSpace(parsed.WebsiteType) == "" {
		return models.SiteAnalysis{}, fmt.Errorf("response missing website_type")
	}
	return models.SiteAnalysis{
		URL:                  url,
		WebsiteType:          parsed.WebsiteType,
		Description:          parsed.Description,
		AvailableData:        parsed.AvailableData,
		SuggestedExtractions: parsed.SuggestedExtractions,
	}, nil
}

const chatSystemPrompt = `You are a helpful assistant guiding a user through extracting data from websites.
Keep answers short and practical. When the user has analysed a site, ground your answers in that analysis.`

// Chat produces a conversational reply over the session history. Prose only;
// no schema validation applies here.
func (e *Extractor) Chat(ctx context.Context, history []models.ConversationTurn, analysis *models.SiteAnalysis, message string) (string, error) {
	messages := []provider.Message{{Role: "system", Content: chatSystemPrompt}}
	if analysis != nil {
		summary, err := json.Marshal(analysis)
		if err == nil {
			messages = append(messages, provider.Message{Role: "system", Content: "Current site analysis: " + string(summary)})
		}
	}
	for _, turn := range history {
		messages = append(messages, provider.Message{Role: string(turn.Role), Content: turn.Content})
	}
	messages = append(messages, provider.Message{Role: "user", Content: message})

	reply, err := e.llm.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("model call failed: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

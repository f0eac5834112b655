package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mohammad-safakhou/pagesift/models"
	"github.com/mohammad-safakhou/pagesift/provider"
)

// AIValidationError reports model output that still failed schema validation
// after the repair attempt. Network and provider failures are wrapped
// separately so callers can tell the two apart.
type AIValidationError struct {
	Reason string
}

func (e *AIValidationError) Error() string {
	return "ai extraction failed validation: " + e.Reason
}

// ErrNoFields is returned for a schema declaring no fields.
var ErrNoFields = errors.New("extraction schema requires at least one field")

// DefaultSchema matches the legacy scrape surface: title, price, image URL.
func DefaultSchema() models.ExtractionSchema {
	return models.ExtractionSchema{Fields: []models.SchemaField{
		{Name: "title", Type: "string"},
		{Name: "price", Type: "string"},
		{Name: "img", Type: "url"},
	}}
}

// Extractor maps normalized page content onto a caller-declared schema via a
// language model, with bounded prompts and a single structural repair attempt.
type Extractor struct {
	llm         provider.Provider
	tokenBudget int
	logger      *log.Logger
}

func New(llm provider.Provider, tokenBudget int) *Extractor {
	if tokenBudget <= 0 {
		tokenBudget = 11000
	}
	return &Extractor{
		llm:         llm,
		tokenBudget: tokenBudget,
		logger:      log.New(log.Writer(), "[EXTRACT] ", log.LstdFlags),
	}
}

// estimateTokens approximates the model tokenizer at four characters a token.
func estimateTokens(s string) int { return len(s) / 4 }

// truncateTokens clips s to the given token budget, backing up to a rune
// boundary so the cut never produces invalid UTF-8.
func truncateTokens(s string, budget int) string {
	if estimateTokens(s) <= budget {
		return s
	}
	cut := budget * 4
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func validateSchema(schema models.ExtractionSchema) error {
	if len(schema.Fields) == 0 {
		return ErrNoFields
	}
	seen := map[string]bool{}
	for _, f := range schema.Fields {
		if f.Name == "" {
			return errors.New("extraction schema field with empty name")
		}
		if seen[f.Name] {
			return fmt.Errorf("extraction schema field %q declared twice", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Extract runs the model over the content bundles and returns items whose
// keys are a subset of the schema's fields. Malformed model output gets
// exactly one corrective retry before an AIValidationError surfaces; the
// model is never invoked a third time for one request.
func (e *Extractor) Extract(ctx context.Context, bundles []models.ContentBundle, schema models.ExtractionSchema, history []models.ConversationTurn) ([]models.ExtractedItem, string, error) {
	if err := validateSchema(schema); err != nil {
		return nil, "", err
	}
	if len(bundles) == 0 {
		return nil, "", errors.New("no content to extract from")
	}

	messages := e.buildMessages(bundles, schema, history)

	raw, err := e.llm.Complete(ctx, messages)
	if err != nil {
		// Timeouts and transport failures are network-class, not validation.
		return nil, "", fmt.Errorf("model call failed: %w", err)
	}

	items, verr := parseItems(raw, schema)
	if verr == nil {
		return items, raw, nil
	}

	e.logger.Printf("model output failed validation (%v), retrying once", verr)
	repair := provider.Message{
		Role: "user",
		Content: fmt.Sprintf(
			"Your previous reply was not valid. Return strict JSON only, no prose, no code fences: an object with an %q array whose entries use exactly these fields: %s.",
			"items", strings.Join(schema.FieldNames(), ", ")),
	}
	messages = append(messages, provider.Message{Role: "assistant", Content: raw}, repair)

	raw, err = e.llm.Complete(ctx, messages)
	if err != nil {
		return nil, "", fmt.Errorf("model call failed: %w", err)
	}
	items, verr = parseItems(raw, schema)
	if verr != nil {
		return nil, raw, &AIValidationError{Reason: verr.Error()}
	}
	return items, raw, nil
}

func (e *Extractor) buildMessages(bundles []models.ContentBundle, schema models.ExtractionSchema, history []models.ConversationTurn) []provider.Message {
	var fields []string
	for _, f := range schema.Fields {
		if f.Type != "" {
			fields = append(fields, fmt.Sprintf("%s (%s)", f.Name, f.Type))
		} else {
			fields = append(fields, f.Name)
		}
	}
	system := fmt.Sprintf(`You extract structured data from web page content.
Respond ONLY with valid JSON in the following format:
{"items": [{%s}]}
Each item uses exactly these fields: %s. Use null for a field the page does not provide. Image fields must be absolute URLs.
Do not include any other text or explanation.`,
		exampleFields(schema), strings.Join(fields, ", "))

	messages := []provider.Message{{Role: "system", Content: system}}
	for _, turn := range history {
		messages = append(messages, provider.Message{Role: string(turn.Role), Content: turn.Content})
	}
	messages = append(messages, provider.Message{Role: "user", Content: e.buildContentPrompt(bundles)})
	return messages
}

// buildContentPrompt concatenates page content under the token budget. The
// primary page's main content is spent first, then its metadata, then the
// auxiliary pages in order; whatever does not fit is dropped.
func (e *Extractor) buildContentPrompt(bundles []models.ContentBundle) string {
	budget := e.tokenBudget
	var b strings.Builder

	write := func(header, body string) {
		if budget <= 0 || body == "" {
			return
		}
		section := header + "\n" + body + "\n\n"
		section = truncateTokens(section, budget)
		budget -= estimateTokens(section)
		b.WriteString(section)
	}

	primary := bundles[0]
	write("=== PAGE: "+primary.URL+" ===", primary.MainContent)
	if meta := metadataSummary(primary); meta != "" {
		write("=== METADATA ===", meta)
	}
	if len(primary.Images) > 0 {
		write("=== IMAGES ===", imageList(primary))
	}
	for _, aux := range bundles[1:] {
		write("=== AUXILIARY PAGE: "+aux.URL+" ===", aux.MainContent)
	}
	return b.String()
}

func metadataSummary(bundle models.ContentBundle) string {
	var parts []string
	if bundle.Title != "" {
		parts = append(parts, "title: "+bundle.Title)
	}
	if bundle.MetaDescription != "" {
		parts = append(parts, "description: "+bundle.MetaDescription)
	}
	for k, v := range bundle.StructuredData.OpenGraph {
		parts = append(parts, "og:"+k+": "+v)
	}
	if n := len(bundle.StructuredData.JSONLD); n > 0 {
		raw, err := json.Marshal(bundle.StructuredData.JSONLD)
		if err == nil {
			parts = append(parts, "json-ld: "+string(raw))
		}
	}
	return strings.Join(parts, "\n")
}

func imageList(bundle models.ContentBundle) string {
	var parts []string
	for _, img := range bundle.Images {
		entry := img.Src
		if img.Alt != "" {
			entry += " (alt: " + img.Alt + ")"
		}
		parts = append(parts, entry)
	}
	return strings.Join(parts, "\n")
}

func exampleFields(schema models.ExtractionSchema) string {
	var parts []string
	for _, f := range schema.Fields {
		parts = append(parts, fmt.Sprintf("%q: \"...\"", f.Name))
	}
	return strings.Join(parts, ", ")
}

// parseItems validates the model reply: it must be JSON carrying an "items"
// array of objects whose keys are a subset of the schema fields.
func parseItems(raw string, schema models.ExtractionSchema) ([]models.ExtractedItem, error) {
	cleaned := stripFences(raw)

	var envelope struct {
		Items []map[string]interface{} `json:"items"`
	}
	if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}
	if envelope.Items == nil {
		return nil, errors.New(`response missing "items" array`)
	}

	items := make([]models.ExtractedItem, 0, len(envelope.Items))
	for i, rawItem := range envelope.Items {
		item := models.ExtractedItem{}
		for key, value := range rawItem {
			if !schema.Has(key) {
				return nil, fmt.Errorf("item %d carries undeclared field %q", i, key)
			}
			item[key] = coerceString(value)
		}
		items = append(items, item)
	}
	return items, nil
}

func coerceString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

// stripFences tolerates a reply wrapped in markdown code fences.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

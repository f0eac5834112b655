package structured

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mohammad-safakhou/pagesift/models"
)

// Extract harvests schema.org/JSON-LD, Open Graph and Twitter-card metadata
// from raw HTML. Malformed JSON-LD blocks are skipped, never fatal.
func Extract(html string) models.StructuredData {
	var data models.StructuredData
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return data
	}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		raw := strings.TrimSpace(sel.Text())
		if raw == "" {
			return
		}
		var block map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &block); err == nil {
			data.JSONLD = append(data.JSONLD, block)
			return
		}
		// Some sites emit a top-level array of entities.
		var blocks []map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &blocks); err == nil {
			data.JSONLD = append(data.JSONLD, blocks...)
		}
	})

	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		content, ok := sel.Attr("content")
		if !ok || content == "" {
			return
		}
		if prop, ok := sel.Attr("property"); ok && strings.HasPrefix(prop, "og:") {
			if data.OpenGraph == nil {
				data.OpenGraph = map[string]string{}
			}
			data.OpenGraph[strings.TrimPrefix(prop, "og:")] = content
		}
		if name, ok := sel.Attr("name"); ok && strings.HasPrefix(name, "twitter:") {
			if data.TwitterCards == nil {
				data.TwitterCards = map[string]string{}
			}
			data.TwitterCards[strings.TrimPrefix(name, "twitter:")] = content
		}
	})

	return data
}

// MergedTitle resolves a page title across sources. Open Graph values are
// curated for external consumption, so they win over JSON-LD, which wins over
// the raw <title>.
func MergedTitle(data models.StructuredData, rawTitle string) string {
	if t, ok := data.OpenGraph["title"]; ok && t != "" {
		return t
	}
	for _, block := range data.JSONLD {
		if name, ok := block["name"].(string); ok && name != "" {
			return name
		}
		if headline, ok := block["headline"].(string); ok && headline != "" {
			return headline
		}
	}
	return rawTitle
}

// MergedDescription applies the same precedence to page descriptions.
func MergedDescription(data models.StructuredData, rawDescription string) string {
	if d, ok := data.OpenGraph["description"]; ok && d != "" {
		return d
	}
	for _, block := range data.JSONLD {
		if desc, ok := block["description"].(string); ok && desc != "" {
			return desc
		}
	}
	return rawDescription
}

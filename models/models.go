package models

import "time"

// Role of a conversation turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ConversationTurn is one immutable message in a session's history
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SiteAnalysis is the cached result of analysing a single page
type SiteAnalysis struct {
	URL                  string   `json:"url"`
	WebsiteType          string   `json:"website_type"`
	Description          string   `json:"description"`
	AvailableData        []string `json:"available_data"`
	SuggestedExtractions []string `json:"suggested_extractions"`
}

// Link is an outbound link harvested from a page
type Link struct {
	Href string `json:"href"`
	Text string `json:"text"`
	Type string `json:"type"` // product | article | contact | auth | general
}

// Image is a candidate image reference harvested from a page
type Image struct {
	Src       string `json:"src"`
	Alt       string `json:"alt"`
	ParentTag string `json:"parent_tag"`
}

// ContentBundle is the normalized, read-only view of one fetched page
type ContentBundle struct {
	URL             string            `json:"url"`
	Title           string            `json:"title"`
	MetaDescription string            `json:"meta_description"`
	Text            string            `json:"text"`
	MainContent     string            `json:"main_content"`
	StructuredData  StructuredData    `json:"structured_data"`
	Language        string            `json:"language"`
	Links           []Link            `json:"links"`
	Images          []Image           `json:"images"`
	Metadata        map[string]string `json:"metadata"`
}

// StructuredData holds independently harvested schema metadata
type StructuredData struct {
	JSONLD       []map[string]interface{} `json:"json_ld,omitempty"`
	OpenGraph    map[string]string        `json:"open_graph,omitempty"`
	TwitterCards map[string]string        `json:"twitter_cards,omitempty"`
}

// SchemaField is one caller-declared extraction target
type SchemaField struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"` // string | url | number; hint only
}

// ExtractionSchema is the caller-declared field set the extractor must populate.
// Field names are unique; at least one field is required.
type ExtractionSchema struct {
	Fields []SchemaField `json:"fields"`
}

// FieldNames returns the declared field names in order.
func (s ExtractionSchema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Has reports whether the schema declares the given field.
func (s ExtractionSchema) Has(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// ExtractedItem maps schema field names to extracted values. ImgLocal is the
// resolved local reference once the image stage has run.
type ExtractedItem map[string]string

// ImageStatus tracks an asset's download outcome
type ImageStatus string

const (
	ImageDownloaded ImageStatus = "downloaded"
	ImageFailed     ImageStatus = "failed"
)

// ImageAsset is one downloaded (or failed) image, unique per source URL per run
type ImageAsset struct {
	SourceURL   string      `json:"source_url"`
	ContentHash string      `json:"content_hash,omitempty"`
	LocalPath   string      `json:"local_path,omitempty"`
	PublicRef   string      `json:"public_ref"`
	Format      string      `json:"format,omitempty"`
	Status      ImageStatus `json:"status"`
}

// FetchResult is the outcome of one page acquisition attempt
type FetchResult struct {
	URL      string        `json:"url"`
	Strategy string        `json:"strategy"`
	Status   int           `json:"status"`
	HTML     string        `json:"-"`
	Elapsed  time.Duration `json:"elapsed"`
	Error    string        `json:"error,omitempty"`
}

// ScrapingInfo summarises how a run acquired its content
type ScrapingInfo struct {
	Method       string `json:"method"`
	PagesScraped int    `json:"pages_scraped"`
	ContentChars int    `json:"content_chars"`
}

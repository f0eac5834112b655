package links

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/pagesift/internal/helpers"
	"github.com/mohammad-safakhou/pagesift/models"
)

// Anchor texts that never lead to extractable content.
var skipWords = []string{"contact", "about", "privacy", "terms", "login", "signup"}

type candidate struct {
	url  string
	text string
	path string
}

type linkDoc struct {
	Text string `json:"text"`
}

// Select scores outbound links against the caller's requirement text and
// returns up to maxPages distinct URLs worth fetching. The origin page and
// anything in alreadyFetched are excluded; URLs are deduplicated by canonical
// form (fragments and tracking parameters ignored).
func Select(candidates []models.Link, originURL, requirement string, alreadyFetched map[string]bool, maxPages int) []string {
	if maxPages <= 0 {
		return nil
	}

	originCanonical, _ := helpers.CanonicalURL(originURL)
	seen := map[string]bool{}
	var eligible []candidate

	for _, link := range candidates {
		canonical, err := helpers.CanonicalURL(link.Href)
		if err != nil || canonical == originCanonical || seen[canonical] || alreadyFetched[canonical] {
			continue
		}
		if !helpers.SameHost(originURL, canonical) {
			continue
		}
		text := strings.ToLower(strings.TrimSpace(link.Text))
		if len(text) <= 3 || hasSkipWord(text) {
			continue
		}
		seen[canonical] = true
		eligible = append(eligible, candidate{url: canonical, text: text, path: pathTokens(canonical)})
	}
	if len(eligible) == 0 {
		return nil
	}

	ordered := make([]string, 0, len(eligible))
	picked := map[string]bool{}
	for _, u := range scoreByRelevance(eligible, requirement) {
		ordered = append(ordered, u)
		picked[u] = true
	}
	// Unscored links keep their document order behind the relevant ones, so a
	// requirement with no lexical overlap still yields pages to fetch.
	for _, c := range eligible {
		if !picked[c.url] {
			ordered = append(ordered, c.url)
		}
	}

	if len(ordered) > maxPages {
		ordered = ordered[:maxPages]
	}
	return ordered
}

// scoreByRelevance ranks eligible links with an in-memory BM25 index over
// anchor text and path tokens. Links the query does not match are omitted.
func scoreByRelevance(eligible []candidate, requirement string) []string {
	requirement = strings.TrimSpace(requirement)
	if requirement == "" {
		return nil
	}
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil
	}
	defer idx.Close()

	for i, c := range eligible {
		_ = idx.Index(fmt.Sprintf("%d", i), linkDoc{Text: c.text + " " + c.path})
	}

	query := bleve.NewMatchQuery(requirement)
	req := bleve.NewSearchRequestOptions(query, len(eligible), 0, false)
	res, err := idx.Search(req)
	if err != nil {
		return nil
	}

	var out []string
	for _, hit := range res.Hits {
		var i int
		if _, err := fmt.Sscanf(hit.ID, "%d", &i); err != nil || i < 0 || i >= len(eligible) {
			continue
		}
		out = append(out, eligible[i].url)
	}
	return out
}

func hasSkipWord(text string) bool {
	for _, w := range skipWords {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// pathTokens turns a URL path into space-separated words for indexing.
func pathTokens(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.NewReplacer("/", " ", "-", " ", "_", " ", ".", " ").Replace(parsed.Path)
}

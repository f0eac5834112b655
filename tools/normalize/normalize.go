package normalize

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/mohammad-safakhou/pagesift/internal/helpers"
	"github.com/mohammad-safakhou/pagesift/models"
)

// Minimum characters the density heuristic must yield before the readability
// fallback kicks in.
const minMainContentChars = 200

// Selectors tried by the density heuristic, most specific first.
var mainContentSelectors = []string{
	"main", "article", ".content", ".main-content", ".post-content",
	".entry-content", "#content", "#main",
}

var boilerplateSelectors = "script, style, noscript, nav, header, footer, aside"

// Normalize cleans raw HTML into the core fields of a ContentBundle. It never
// fails: when the density heuristic comes up short it degrades to readability,
// and from there to the raw stripped text of the whole document.
func Normalize(pageURL, html string) models.ContentBundle {
	bundle := models.ContentBundle{URL: pageURL, Metadata: map[string]string{}}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// Unparseable markup: degrade to the raw text with tags stripped.
		bundle.Text = strings.TrimSpace(html)
		bundle.MainContent = bundle.Text
		return bundle
	}

	bundle.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		bundle.MetaDescription = strings.TrimSpace(desc)
	}
	if lang, ok := doc.Find("html").Attr("lang"); ok {
		bundle.Language = strings.TrimSpace(lang)
	}

	bundle.Links = harvestLinks(doc, pageURL)
	bundle.Images = harvestImages(doc, pageURL)

	doc.Find(boilerplateSelectors).Remove()
	bundle.Text = collapseLines(doc.Text())

	main := densestContent(doc)
	if len(main) < minMainContentChars {
		if article, rerr := readability.FromReader(strings.NewReader(html), mustParseURL(pageURL)); rerr == nil {
			main = collapseLines(article.TextContent)
		}
	}
	if len(main) < minMainContentChars {
		main = bundle.Text
	}
	bundle.MainContent = main

	return bundle
}

// densestContent favors the densest text region over the full page: every
// candidate selector contributes its blocks of meaningful length, and the
// richest selector wins.
func densestContent(doc *goquery.Document) string {
	var best string
	for _, selector := range mainContentSelectors {
		var parts []string
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			text := collapseLines(sel.Text())
			if len(text) > 50 {
				parts = append(parts, text)
			}
		})
		if combined := strings.Join(parts, "\n\n"); len(combined) > len(best) {
			best = combined
		}
	}
	return best
}

func harvestLinks(doc *goquery.Document, pageURL string) []models.Link {
	var links []models.Link
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		text := strings.TrimSpace(sel.Text())
		if href == "" || text == "" {
			return true
		}
		links = append(links, models.Link{
			Href: helpers.ResolveRef(pageURL, href),
			Text: text,
			Type: classifyLink(href, text),
		})
		return len(links) < 30
	})
	return links
}

func harvestImages(doc *goquery.Document, pageURL string) []models.Image {
	var images []models.Image
	doc.Find("img[src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, _ := sel.Attr("src")
		if src == "" {
			return true
		}
		alt, _ := sel.Attr("alt")
		parent := ""
		if p := sel.Parent(); p.Length() > 0 {
			parent = goquery.NodeName(p)
		}
		images = append(images, models.Image{
			Src:       helpers.ResolveRef(pageURL, src),
			Alt:       alt,
			ParentTag: parent,
		})
		return len(images) < 20
	})
	return images
}

func classifyLink(href, text string) string {
	hrefLower := strings.ToLower(href)
	contains := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(hrefLower, w) {
				return true
			}
		}
		return false
	}
	switch {
	case contains("contact", "about", "team"):
		return "contact"
	case contains("product", "item", "buy", "shop"):
		return "product"
	case contains("article", "post", "blog", "news"):
		return "article"
	case contains("login", "signup", "register"):
		return "auth"
	default:
		return "general"
	}
}

func collapseLines(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}

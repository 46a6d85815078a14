package orchestrator

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lotwatch/internal/models"
)

// contentConverter normalizes fetch results for the text-scanning parsers.
// Renders that came back without markdown are converted from their html so
// price and VIN lines keep the structure those parsers expect.
type contentConverter struct {
	logger arbor.ILogger
}

// parserText returns the result's markdown, converting html when the render
// produced none. Conversion failures fall back to the html itself.
func (c *contentConverter) parserText(result *models.FetchResult) string {
	if result.Markdown != "" {
		return result.Markdown
	}
	html := result.HTML
	if html == "" {
		html = result.RawHTML
	}
	if html == "" {
		return ""
	}

	converted, err := c.toMarkdown(html, result.URL)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("url", result.URL).
			Msg("Markdown conversion failed, scanning html directly")
		return html
	}
	return converted
}

// toMarkdown strips non-content elements and converts the remainder.
func (c *contentConverter) toMarkdown(html, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, nav, footer, aside").Remove()

	cleaned, err := doc.Html()
	if err != nil {
		return "", err
	}

	converter := md.NewConverter(pageURL, true, nil)
	return converter.ConvertString(cleaned)
}

package interfaces

import "github.com/ternarybob/lotwatch/internal/models"

// InventoryParser turns fetched page content into vehicle rows. Content is
// markdown, HTML, or raw HTML depending on what the backend's pages need.
type InventoryParser interface {
	Backend() models.Backend
	Parse(content, pageURL, model string) ([]models.ParsedRow, error)
}

package parsers

import (
	"encoding/json"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/ternarybob/lotwatch/internal/models"
)

var ldJSONPattern = regexp.MustCompile(`(?is)<script[^>]+type="application/ld\+json"[^>]*>(.*?)</script>`)

// ParseTeamVelocity reads Team Velocity markup via its schema.org payloads:
// every ld+json Car node becomes a row. The canonical link is required to
// absolutize VDP paths; without it the markup is unusable.
func ParseTeamVelocity(content string) ([]models.ParsedRow, error) {
	if content == "" {
		return nil, nil
	}

	dealerHost := teamVelocityDealerHost(content)
	if dealerHost == "" {
		return nil, &TeamVelocityError{Reason: "cannot determine dealer host"}
	}

	var rows []models.ParsedRow
	for _, car := range teamVelocityCars(content) {
		vin := stringField(car, "vehicleIdentificationNumber")
		if vin == "" {
			continue
		}
		vin = strings.ToUpper(vin)

		offer, _ := car["offers"].(map[string]any)

		var vdp string
		if offer != nil {
			vdp = stringField(offer, "url")
			if strings.HasPrefix(vdp, "/") {
				vdp = "https://" + dealerHost + vdp
			}
		}

		image := ""
		switch imageValue := car["image"].(type) {
		case map[string]any:
			image = stringField(imageValue, "contentUrl")
		case string:
			image = imageValue
		}

		trim := stringField(car, "vehicleModel")
		if trim == "" {
			trim = stringField(car, "model")
		}

		row := models.ParsedRow{
			VIN:         vin,
			Status:      models.ListingStatusAvailable,
			VDPURL:      vdp,
			StockNumber: stringField(car, "sku"),
			ImageURL:    image,
			Model:       stringField(car, "model"),
			Trim:        trim,
			Year:        coerceYear(car["vehicleModelDate"]),
		}
		if offer != nil {
			row.AdvertisedPrice = positiveCurrency(offer["price"])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func teamVelocityDealerHost(markup string) string {
	m := canonicalPattern.FindStringSubmatch(markup)
	if m == nil {
		return ""
	}
	parsed, err := url.Parse(html.UnescapeString(m[1]))
	if err != nil {
		return ""
	}
	return parsed.Host
}

// teamVelocityCars collects every @type Car node across the page's ld+json
// scripts, tolerating both single-object and array payloads.
func teamVelocityCars(markup string) []map[string]any {
	var cars []map[string]any
	for _, script := range ldJSONPattern.FindAllStringSubmatch(markup, -1) {
		var payload any
		if err := json.Unmarshal([]byte(script[1]), &payload); err != nil {
			continue
		}
		var nodes []map[string]any
		switch value := payload.(type) {
		case map[string]any:
			nodes = append(nodes, value)
		case []any:
			for _, item := range value {
				if node, ok := item.(map[string]any); ok {
					nodes = append(nodes, node)
				}
			}
		}
		for _, node := range nodes {
			if nodeType, _ := node["@type"].(string); nodeType == "Car" {
				cars = append(cars, node)
			}
		}
	}
	return cars
}

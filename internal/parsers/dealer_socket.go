package parsers

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ternarybob/lotwatch/internal/models"
)

var (
	socketHeaderPattern = regexp.MustCompile(`(?s)## \[.*?\]\(([^)]+)\).*?\n`)
	socketVINPattern    = regexp.MustCompile(`\|\s*VIN\s*\|\s*([A-HJ-NPR-Z0-9]{17})\s*\|`)
	socketFieldPattern  = regexp.MustCompile(`\|\s*([^|]+?)\s*\|\s*([^|]+?)\s*\|`)
	socketPricePattern  = regexp.MustCompile(`Your Price\s*\n\$(\d[\d,]*)`)
	socketMSRPPattern   = regexp.MustCompile(`(?:MSRP|TSRP)\s*\n\$(\d[\d,]*)`)
)

// ParseDealerSocket reads DealerSocket markdown: one "## [title](vdp)"
// section per vehicle, each holding a spec table and price blocks.
func ParseDealerSocket(content string) ([]models.ParsedRow, error) {
	if content == "" {
		return nil, nil
	}

	headers := socketHeaderPattern.FindAllStringSubmatchIndex(content, -1)
	var rows []models.ParsedRow
	for i, header := range headers {
		vdp := content[header[2]:header[3]]
		bodyEnd := len(content)
		if i+1 < len(headers) {
			bodyEnd = headers[i+1][0]
		}
		body := content[header[1]:bodyEnd]

		vinMatch := socketVINPattern.FindStringSubmatch(body)
		if vinMatch == nil {
			continue
		}

		table := map[string]string{}
		for _, field := range socketFieldPattern.FindAllStringSubmatch(body, -1) {
			table[strings.ToLower(strings.TrimSpace(field[1]))] = strings.TrimSpace(field[2])
		}

		rows = append(rows, models.ParsedRow{
			VIN:             strings.ToUpper(vinMatch[1]),
			AdvertisedPrice: socketPrice(body, socketPricePattern),
			MSRP:            socketPrice(body, socketMSRPPattern),
			VDPURL:          vdp,
			StockNumber:     table["stock #"],
			Trim:            table["trim"],
			Model:           table["model"],
			Status:          models.ListingStatusAvailable,
		})
	}
	return rows, nil
}

func socketPrice(body string, pattern *regexp.Regexp) *decimal.Decimal {
	m := pattern.FindStringSubmatch(body)
	if m == nil {
		return nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return nil
	}
	return &d
}

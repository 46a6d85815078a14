package parsers

import "github.com/ternarybob/lotwatch/internal/models"

var dealerComConfig = heuristicConfig{
	statusRules: []statusRule{
		{"IN TRANSIT", models.ListingStatusInTransit},
		{"IN-TRANSIT", models.ListingStatusInTransit},
		{"IN PRODUCTION", models.ListingStatusInTransit},
		{"COMING SOON", models.ListingStatusInTransit},
		{"SOLD", models.ListingStatusSold},
		{"AVAILABLE", models.ListingStatusAvailable},
		{"IN STOCK", models.ListingStatusAvailable},
		{"ON LOT", models.ListingStatusAvailable},
	},
	priceKeywords: []priceKeyword{
		{"internet price", 1},
		{"dealer price", 1},
		{"sale price", 2},
		{"online price", 2},
		{"price", 4},
	},
}

// ParseDealerCom reads Dealer.com SRP markup.
func ParseDealerCom(content string) ([]models.ParsedRow, error) {
	return parseHeuristic(content, dealerComConfig), nil
}

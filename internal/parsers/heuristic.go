package parsers

import (
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ternarybob/lotwatch/internal/models"
)

var (
	vinPattern   = regexp.MustCompile(`(?i)\b[A-HJ-NPR-Z0-9]{17}\b`)
	pricePattern = regexp.MustCompile(`\$\s*([0-9]{1,3}(?:,[0-9]{3})*(?:\.[0-9]{2})?)`)
	urlPattern   = regexp.MustCompile(`(?i)https?://[^\s"')>]+`)
	tagPattern   = regexp.MustCompile(`<[^>]+>`)

	defaultStockPattern = regexp.MustCompile(`(?i)(?:stock\s*(?:#|number|no\.?)\s*[:\-]?\s*)([A-Z0-9-]+)`)
	defaultURLKeywords  = []string{"inventory", "vehicle", "vdp"}
)

// statusRule matches a literal against the uppercased line. Rules are checked
// in order; the first hit wins, so specific phrases come before generic ones.
type statusRule struct {
	pattern string
	status  string
}

// priceKeyword ranks a price label. Rank 1 is strongest; unlabeled dollar
// amounts land at rank 5 so an explicit label always beats a bare price.
type priceKeyword struct {
	keyword string
	rank    int
}

// heuristicConfig tunes the shared line scanner for one backend family.
type heuristicConfig struct {
	statusRules   []statusRule
	priceKeywords []priceKeyword
	urlKeywords   []string
	stockPatterns []*regexp.Regexp
}

type rowState struct {
	row       models.ParsedRow
	priceRank int
}

// parseHeuristic scans tag-stripped content line by line. A VIN opens (or
// reopens) a record and subsequent lines attribute prices, stock numbers,
// status phrases, and VDP links to the most recent VIN. Rows come back in
// first-seen order.
func parseHeuristic(content string, cfg heuristicConfig) []models.ParsedRow {
	cleaned := tagPattern.ReplaceAllString(content, " ")
	if strings.TrimSpace(cleaned) == "" {
		return nil
	}
	if len(cfg.urlKeywords) == 0 {
		cfg.urlKeywords = defaultURLKeywords
	}
	if len(cfg.stockPatterns) == 0 {
		cfg.stockPatterns = []*regexp.Regexp{defaultStockPattern}
	}

	records := map[string]*rowState{}
	var order []string
	var current *rowState

	cleaned = strings.ReplaceAll(cleaned, "\r\n", "\n")
	for _, rawLine := range strings.Split(cleaned, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		if loc := vinPattern.FindStringIndex(line); loc != nil {
			vin := strings.ToUpper(line[loc[0]:loc[1]])
			state, seen := records[vin]
			if !seen {
				state = &rowState{row: models.ParsedRow{VIN: vin}, priceRank: math.MaxInt}
				records[vin] = state
				order = append(order, vin)
			}
			current = state
			remainder := strings.TrimSpace(line[:loc[0]] + " " + line[loc[1]:])
			if remainder != "" {
				applyLine(state, remainder, cfg)
			}
			continue
		}

		if current == nil {
			continue
		}
		applyLine(current, line, cfg)
	}

	rows := make([]models.ParsedRow, 0, len(order))
	for _, vin := range order {
		rows = append(rows, records[vin].row)
	}
	return rows
}

func applyLine(state *rowState, line string, cfg heuristicConfig) {
	lower := strings.ToLower(line)

	if price := parsePrice(line); price != nil {
		if strings.Contains(lower, "msrp") || strings.Contains(lower, "sticker price") {
			if state.row.MSRP == nil {
				state.row.MSRP = price
			}
		} else {
			rank := 0
			for _, kw := range cfg.priceKeywords {
				if strings.Contains(lower, kw.keyword) {
					rank = kw.rank
					break
				}
			}
			if rank == 0 && strings.Contains(line, "$") {
				rank = 5
			}
			if rank > 0 {
				better := rank < state.priceRank ||
					(rank == state.priceRank &&
						(state.row.AdvertisedPrice == nil || price.LessThan(*state.row.AdvertisedPrice)))
				if better {
					state.row.AdvertisedPrice = price
					state.priceRank = rank
				}
			}
		}
	}

	if state.row.StockNumber == "" {
		for _, pattern := range cfg.stockPatterns {
			if m := pattern.FindStringSubmatch(line); m != nil {
				state.row.StockNumber = strings.TrimSpace(m[1])
				break
			}
		}
	}

	upper := strings.ToUpper(line)
	for _, rule := range cfg.statusRules {
		if strings.Contains(upper, rule.pattern) {
			state.row.Status = rule.status
			break
		}
	}

	if state.row.VDPURL == "" {
		vinLower := strings.ToLower(state.row.VIN)
		for _, match := range urlPattern.FindAllString(line, -1) {
			lowered := strings.ToLower(match)
			if strings.Contains(lowered, vinLower) {
				state.row.VDPURL = match
				break
			}
			if containsAny(lowered, cfg.urlKeywords) {
				state.row.VDPURL = match
				break
			}
		}
	}
}

// parsePrice pulls the first dollar amount out of a line. Returns nil when no
// well-formed amount is present.
func parsePrice(line string) *decimal.Decimal {
	m := pricePattern.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	numeric := strings.ReplaceAll(m[1], ",", "")
	value, err := decimal.NewFromString(numeric)
	if err != nil {
		return nil
	}
	return &value
}

func containsAny(s string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

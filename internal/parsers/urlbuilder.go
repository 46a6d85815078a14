package parsers

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/ternarybob/lotwatch/internal/models"
)

var (
	placeholderPattern = regexp.MustCompile(`\{([^}]+)\}`)
	cityCodeMidParam   = regexp.MustCompile(`([?&])cy=&`)
	cityCodeTailParam  = regexp.MustCompile(`[?&]cy=$`)
	doubleAmp          = regexp.MustCompile(`&&+`)
)

// BuildInventoryURL expands a dealer's inventory URL template for one model.
// Tokens resolve from scraping_config overrides first, then the model
// registry, then dealer catalog columns. The output is deterministic for
// identical inputs; URL snapshots depend on that.
//
// A missing {city_code} is tolerated: the dangling cy= query parameter is
// stripped instead. Any other unresolved token fails the build.
func BuildInventoryURL(dealer *models.Dealer, model string, registry *ModelRegistry) (string, error) {
	modelTokens, ok := registry.Lookup(model)
	if !ok {
		return "", &UnsupportedModelError{Model: model}
	}

	template := dealer.InventoryURLTemplate
	scope := dealer.ScrapingConfig.Scope()

	tokens := map[string]string{
		"homepage_url": dealer.HomepageURL,
	}
	for key, value := range modelTokens {
		if value != "" {
			tokens[key] = value
		}
	}

	// scraping_config token overrides win over the registry.
	if dealer.ScrapingConfig != nil {
		for key, value := range dealer.ScrapingConfig.Tokens {
			if value == "" {
				continue
			}
			switch key {
			case "city":
				if slug := slugify(value); slug != "" {
					tokens[key] = slug
				}
			case "state":
				tokens[key] = strings.ToLower(strings.TrimSpace(value))
			default:
				tokens[key] = strings.TrimSpace(value)
			}
		}
	}

	// Dealer catalog columns fill whatever is still unresolved.
	for key, value := range map[string]string{
		"dealer_code": dealer.Code,
		"city":        dealer.City,
		"state":       dealer.State,
	} {
		if _, present := tokens[key]; present || value == "" {
			continue
		}
		switch key {
		case "city":
			if slug := slugify(value); slug != "" {
				tokens[key] = slug
			}
		case "state":
			tokens[key] = strings.ToLower(strings.TrimSpace(value))
		default:
			tokens[key] = strings.TrimSpace(value)
		}
	}

	missing := map[string]bool{}
	built := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := strings.Trim(match, "{}")
		value, present := tokens[key]
		if !present || value == "" {
			missing[key] = true
			return ""
		}
		return value
	})

	if len(missing) > 0 {
		var unexpected []string
		for key := range missing {
			if key != "city_code" {
				unexpected = append(unexpected, key)
			}
		}
		if len(unexpected) > 0 {
			sort.Strings(unexpected)
			return "", &MissingPlaceholderError{DealerID: dealer.ID, Tokens: unexpected}
		}
		built = cleanCityCodeArtifacts(built)
	}

	if scope == models.ScopeRelative && !strings.HasPrefix(built, "http") {
		return resolveAgainst(dealer.HomepageURL, built), nil
	}
	return built, nil
}

// cleanCityCodeArtifacts removes the empty cy= query parameter left behind
// when {city_code} was absent, along with any ?/& debris.
func cleanCityCodeArtifacts(raw string) string {
	cleaned := cityCodeMidParam.ReplaceAllString(raw, "$1")
	cleaned = cityCodeTailParam.ReplaceAllString(cleaned, "")
	cleaned = strings.ReplaceAll(cleaned, "?&", "?")
	cleaned = doubleAmp.ReplaceAllString(cleaned, "&")
	return strings.TrimRight(cleaned, "?&")
}

// resolveAgainst joins a relative template result onto the dealer homepage.
func resolveAgainst(homepage, relative string) string {
	base, err := url.Parse(homepage)
	if err != nil || base.Scheme == "" {
		return relative
	}
	ref, err := url.Parse(relative)
	if err != nil {
		return relative
	}
	return base.ResolveReference(ref).String()
}

package parsers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/lotwatch/internal/models"
)

const teamVelocityFixture = `<html><head>
<link rel="canonical" href="https://www.yarkintoyota.com/inventory/new-toyota-4runner">
<script type="application/ld+json">
[
  {"@type": "BreadcrumbList", "itemListElement": []},
  {
    "@type": "Car",
    "vehicleIdentificationNumber": "jteva5br0s5057991",
    "sku": "T25123",
    "model": "4Runner",
    "vehicleModel": "4Runner SR5",
    "vehicleModelDate": "2025",
    "image": {"@type": "ImageObject", "contentUrl": "https://cdn.teamvelocity.example/photos/T25123.jpg"},
    "offers": {
      "@type": "Offer",
      "price": "46848",
      "url": "/viewdetails/new/JTEVA5BR0S5057991/2025-toyota-4runner.html"
    }
  }
]
</script>
<script type="application/ld+json">
{
  "@type": "Car",
  "vehicleIdentificationNumber": "JTEVA5BR2S5058000",
  "model": "4Runner",
  "image": "https://cdn.teamvelocity.example/photos/T25200.jpg",
  "offers": {"@type": "Offer", "price": "0", "url": "https://www.yarkintoyota.com/viewdetails/new/JTEVA5BR2S5058000/"}
}
</script>
</head><body></body></html>`

func TestParseTeamVelocity(t *testing.T) {
	rows, err := ParseTeamVelocity(teamVelocityFixture)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, "JTEVA5BR0S5057991", first.VIN)
	require.NotNil(t, first.AdvertisedPrice)
	assert.Equal(t, "46848", first.AdvertisedPrice.String())
	assert.Nil(t, first.MSRP)
	assert.Equal(t, models.ListingStatusAvailable, first.Status)
	assert.Equal(t,
		"https://www.yarkintoyota.com/viewdetails/new/JTEVA5BR0S5057991/2025-toyota-4runner.html",
		first.VDPURL)
	assert.Equal(t, "T25123", first.StockNumber)
	assert.Equal(t, "https://cdn.teamvelocity.example/photos/T25123.jpg", first.ImageURL)
	assert.Equal(t, "4Runner", first.Model)
	assert.Equal(t, "4Runner SR5", first.Trim)
	require.NotNil(t, first.Year)
	assert.Equal(t, 2025, *first.Year)

	second := rows[1]
	assert.Equal(t, "JTEVA5BR2S5058000", second.VIN)
	assert.Nil(t, second.AdvertisedPrice)
	assert.Equal(t, "https://www.yarkintoyota.com/viewdetails/new/JTEVA5BR2S5058000/", second.VDPURL)
	assert.Equal(t, "https://cdn.teamvelocity.example/photos/T25200.jpg", second.ImageURL)
	// vehicleModel missing, model doubles as trim.
	assert.Equal(t, "4Runner", second.Trim)
}

func TestParseTeamVelocityMissingCanonical(t *testing.T) {
	markup := `<script type="application/ld+json">{"@type": "Car", "vehicleIdentificationNumber": "JTEVA5BR0S5057991"}</script>`
	_, err := ParseTeamVelocity(markup)
	require.Error(t, err)

	var tvErr *TeamVelocityError
	require.True(t, errors.As(err, &tvErr))
	assert.True(t, IsBackendParseError(err))
}

func TestParseTeamVelocityEmptyContent(t *testing.T) {
	rows, err := ParseTeamVelocity("")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParseTeamVelocityNoCars(t *testing.T) {
	markup := `<link rel="canonical" href="https://www.yarkintoyota.com/">
<script type="application/ld+json">{"@type": "AutoDealer", "name": "Yarkin Toyota"}</script>
<script type="application/ld+json">not json at all</script>`
	rows, err := ParseTeamVelocity(markup)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

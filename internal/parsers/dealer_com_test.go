package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/lotwatch/internal/models"
)

const dealerComFixture = `# New Inventory

5TFJC5DB7RX001111 2024 Toyota Tundra
In Stock
MSRP $61,500
Internet Price $58,995

JTEABFAJ1RK002222 2024 Toyota Land Cruiser
Coming Soon
Dealer Price $89,750
`

func TestParseDealerComExtractsPrices(t *testing.T) {
	rows, err := ParseDealerCom(dealerComFixture)
	require.NoError(t, err)
	byVIN := rowsByVIN(rows)

	first := byVIN["5TFJC5DB7RX001111"]
	require.NotNil(t, first.AdvertisedPrice)
	assert.Equal(t, "58995", first.AdvertisedPrice.String())
	require.NotNil(t, first.MSRP)
	assert.Equal(t, "61500", first.MSRP.String())
	assert.Equal(t, models.ListingStatusAvailable, first.Status)

	second := byVIN["JTEABFAJ1RK002222"]
	require.NotNil(t, second.AdvertisedPrice)
	assert.Equal(t, "89750", second.AdvertisedPrice.String())
	assert.Equal(t, models.ListingStatusInTransit, second.Status)
}

func TestParseDealerComEmptyContent(t *testing.T) {
	rows, err := ParseDealerCom("")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParseDealerComStripsMarkup(t *testing.T) {
	content := `<div class="vehicle-card"><span>5TFJC5DB7RX001111</span>
<p>Sale Price $58,995</p></div>`
	rows, err := ParseDealerCom(content)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "5TFJC5DB7RX001111", rows[0].VIN)
	assert.Equal(t, "58995", rows[0].AdvertisedPrice.String())
}

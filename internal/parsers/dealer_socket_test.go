package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/lotwatch/internal/models"
)

const dealerSocketFixture = `## [2025 Toyota 4Runner TRD Off Road](https://www.peakviewtoyota.com/inventory/JTEVB5BRXS5016328) New

| Field | Value |
| VIN | JTEVB5BRXS5016328 |
| Stock # | T28067 |
| Model | 4Runner |
| Trim | TRD Off Road |

MSRP
$64,219

Your Price
$64,464

## [2025 Toyota 4Runner SR5](https://www.peakviewtoyota.com/inventory/JTEVB5BR1S5016401)

| VIN | JTEVB5BR1S5016401 |
| Stock # | T28244 |

Your Price
$46,195

## [2025 Toyota 4Runner Limited](https://www.peakviewtoyota.com/inventory/no-vin-yet)

| Stock # | T99999 |
`

func TestParseDealerSocketExtractsVINsAndPrices(t *testing.T) {
	rows, err := ParseDealerSocket(dealerSocketFixture)
	require.NoError(t, err)
	// The third section has no VIN row and is dropped.
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, "JTEVB5BRXS5016328", first.VIN)
	require.NotNil(t, first.AdvertisedPrice)
	assert.Equal(t, "64464", first.AdvertisedPrice.String())
	require.NotNil(t, first.MSRP)
	assert.Equal(t, "64219", first.MSRP.String())
	assert.Equal(t, "T28067", first.StockNumber)
	assert.Equal(t, "4Runner", first.Model)
	assert.Equal(t, "TRD Off Road", first.Trim)
	assert.Equal(t, models.ListingStatusAvailable, first.Status)
	assert.Equal(t, "https://www.peakviewtoyota.com/inventory/JTEVB5BRXS5016328", first.VDPURL)
	assert.Empty(t, first.ImageURL)

	second := rows[1]
	assert.Equal(t, "T28244", second.StockNumber)
	require.NotNil(t, second.AdvertisedPrice)
	assert.Equal(t, "46195", second.AdvertisedPrice.String())
	assert.Nil(t, second.MSRP)
}

func TestParseDealerSocketTSRPBlock(t *testing.T) {
	content := `## [2025 Toyota Tacoma](https://example.com/t1)

| VIN | 3TYLC5LN1PT000001 |

TSRP
$38,420
`
	rows, err := ParseDealerSocket(content)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].MSRP)
	assert.Equal(t, "38420", rows[0].MSRP.String())
	assert.Nil(t, rows[0].AdvertisedPrice)
}

func TestParseDealerSocketEmpty(t *testing.T) {
	rows, err := ParseDealerSocket("")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

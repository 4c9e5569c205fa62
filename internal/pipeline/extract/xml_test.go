package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXMLExtractor_Extract(t *testing.T) {
	e := &XMLExtractor{}

	t.Run("child elements as fields", func(t *testing.T) {
		data := `<?xml version="1.0"?>
<comparables>
  <comp>
    <address>123 Main St</address>
    <sale_price>450000</sale_price>
    <sqft>2100</sqft>
  </comp>
  <comp>
    <address>9 Oak Ave</address>
    <sale_price>310000</sale_price>
  </comp>
</comparables>`

		res, err := e.Extract(context.Background(), Input{FileName: "comps.xml", Data: []byte(data)})
		require.NoError(t, err)
		assert.Empty(t, res.Errors)
		require.Len(t, res.Records, 2)

		assert.Equal(t, "123 Main St", res.Records[0].Address)
		require.NotNil(t, res.Records[0].SalePriceUSD)
		assert.InDelta(t, 450000, *res.Records[0].SalePriceUSD, 0.001)
		require.NotNil(t, res.Records[0].GLASqft)
		assert.Equal(t, "comp", res.Records[0].SourceTable)
	})

	t.Run("attributes as fields", func(t *testing.T) {
		data := `<export>
  <property address="77 Hill Rd" city="Boise" state="ID" sale_price="225000"/>
</export>`

		res, err := e.Extract(context.Background(), Input{FileName: "attrs.xml", Data: []byte(data)})
		require.NoError(t, err)
		require.Len(t, res.Records, 1)
		assert.Equal(t, "77 Hill Rd", res.Records[0].Address)
		assert.Equal(t, "Boise", res.Records[0].City)
	})

	t.Run("elements without identity are dropped", func(t *testing.T) {
		data := `<export>
  <meta><generated>2019-01-01</generated></meta>
  <comp><address>1 Real St</address></comp>
</export>`

		res, err := e.Extract(context.Background(), Input{FileName: "meta.xml", Data: []byte(data)})
		require.NoError(t, err)
		require.Len(t, res.Records, 1)
		assert.Equal(t, "1 Real St", res.Records[0].Address)
	})

	t.Run("truncated document keeps parsed records", func(t *testing.T) {
		data := `<export><comp><address>2 Done Dr</address></comp><comp><address>3 Half`

		res, err := e.Extract(context.Background(), Input{FileName: "cut.xml", Data: []byte(data)})
		require.NoError(t, err)
		assert.NotEmpty(t, res.Errors)
		require.Len(t, res.Records, 1)
		assert.Equal(t, "2 Done Dr", res.Records[0].Address)
	})
}

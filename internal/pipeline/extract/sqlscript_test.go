package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLScriptExtractor_Extract(t *testing.T) {
	e := &SQLScriptExtractor{}

	t.Run("multi-tuple insert", func(t *testing.T) {
		script := `
-- legacy TOTAL export
CREATE TABLE comps (address TEXT, sale_price REAL, sqft INTEGER);
INSERT INTO comps (address, sale_price, sqft) VALUES
  ('123 Main St', 450000, 2100),
  ('9 Oak Ave', 310000, NULL);
`
		res, err := e.Extract(context.Background(), Input{FileName: "dump.sql", Data: []byte(script)})
		require.NoError(t, err)
		assert.Empty(t, res.Errors)
		require.Len(t, res.Records, 2)

		assert.Equal(t, "123 Main St", res.Records[0].Address)
		require.NotNil(t, res.Records[0].SalePriceUSD)
		assert.InDelta(t, 450000, *res.Records[0].SalePriceUSD, 0.001)
		assert.Equal(t, "comps", res.Records[0].SourceTable)

		// NULL renders as an absent field, not zero.
		assert.Nil(t, res.Records[1].GLASqft)
	})

	t.Run("escaped quotes in literals", func(t *testing.T) {
		script := `INSERT INTO comps (address, sale_price) VALUES ('O''Brien''s Court 12', 200000);`

		res, err := e.Extract(context.Background(), Input{FileName: "dump.sql", Data: []byte(script)})
		require.NoError(t, err)
		require.Len(t, res.Records, 1)
		assert.Equal(t, "O'Brien's Court 12", res.Records[0].Address)
	})

	t.Run("semicolons inside literals do not split", func(t *testing.T) {
		script := `INSERT INTO comps (address, sale_price) VALUES ('1 Semi; Colon Way', 150000);`

		res, err := e.Extract(context.Background(), Input{FileName: "dump.sql", Data: []byte(script)})
		require.NoError(t, err)
		require.Len(t, res.Records, 1)
		assert.Equal(t, "1 Semi; Colon Way", res.Records[0].Address)
	})

	t.Run("insert without column list is a statement error", func(t *testing.T) {
		script := `
INSERT INTO comps VALUES ('no columns', 1);
INSERT INTO comps (address, sale_price) VALUES ('2 Good St', 250000);
`
		res, err := e.Extract(context.Background(), Input{FileName: "dump.sql", Data: []byte(script)})
		require.NoError(t, err)
		assert.Len(t, res.Errors, 1)
		require.Len(t, res.Records, 1)
		assert.Equal(t, "2 Good St", res.Records[0].Address)
	})

	t.Run("value count mismatch is a statement error", func(t *testing.T) {
		script := `INSERT INTO comps (address, sale_price) VALUES ('3 Odd St');`

		res, err := e.Extract(context.Background(), Input{FileName: "dump.sql", Data: []byte(script)})
		require.NoError(t, err)
		assert.NotEmpty(t, res.Errors)
		assert.Empty(t, res.Records)
	})

	t.Run("quoted identifiers", func(t *testing.T) {
		script := "INSERT INTO \"legacy comps\" (\"address\", `sale_price`) VALUES ('4 Quote Rd', 175000);"

		res, err := e.Extract(context.Background(), Input{FileName: "dump.sql", Data: []byte(script)})
		require.NoError(t, err)
		require.Len(t, res.Records, 1)
		assert.Equal(t, "legacy comps", res.Records[0].SourceTable)
	})

	t.Run("non-insert statements ignored", func(t *testing.T) {
		script := `
BEGIN TRANSACTION;
CREATE TABLE comps (address TEXT);
COMMIT;
`
		res, err := e.Extract(context.Background(), Input{FileName: "ddl.sql", Data: []byte(script)})
		require.NoError(t, err)
		assert.Empty(t, res.Records)
		assert.Empty(t, res.Errors)
	})
}

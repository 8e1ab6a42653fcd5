package handlers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfellner/marketdash/internal/models"
)

func TestParseTransactionsCSV(t *testing.T) {
	input := csvHeader + "\n" +
		"AAPL,BUY,10,185.64,2024-01-02,1,initial position\n" +
		"msft,sell,5,410.10,2024-02-15,,trimmed\n"

	ts, rowErrs, err := parseTransactionsCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, ts, 2)

	assert.Equal(t, "AAPL", ts[0].Ticker)
	assert.Equal(t, models.TransactionBuy, ts[0].Type)
	assert.Equal(t, "185.64", ts[0].PurchasePrice.String())
	assert.Equal(t, 1, ts[0].PortfolioID)
	assert.NotEqual(t, ts[0].ID, ts[1].ID)

	// Case and default portfolio are normalised.
	assert.Equal(t, "MSFT", ts[1].Ticker)
	assert.Equal(t, models.TransactionSell, ts[1].Type)
	assert.Equal(t, 1, ts[1].PortfolioID)
	assert.Equal(t, "trimmed", ts[1].Comment)
}

func TestParseTransactionsCSVCollectsRowErrors(t *testing.T) {
	input := csvHeader + "\n" +
		"AAPL,BUY,10,185.64,2024-01-02,1,ok\n" +
		"MSFT,HOLD,5,410.10,2024-02-15,1,bad type\n" +
		"NVDA,BUY,-3,880.00,2024-02-15,1,negative quantity\n" +
		"TSLA,BUY,abc,200.00,2024-02-15,1,bad quantity\n" +
		"AMZN,BUY,2,175.00,02/15/2024,1,bad date\n"

	ts, rowErrs, err := parseTransactionsCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, "AAPL", ts[0].Ticker)

	require.Len(t, rowErrs, 4)
	assert.Contains(t, rowErrs[0], "row 3")
	assert.Contains(t, rowErrs[0], "BUY or SELL")
	assert.Contains(t, rowErrs[1], "non-negative")
	assert.Contains(t, rowErrs[2], "invalid quantity")
	assert.Contains(t, rowErrs[3], "invalid date")
}

func TestParseTransactionsCSVToleratesExportQuirks(t *testing.T) {
	// Excel-style export: UTF-8 BOM plus capitalised header names.
	input := "\ufeffTicker,Type,Quantity,Price,Date,Portfolio_ID,Comment\n" +
		"AAPL,BUY,10,185.64,2024-01-02,1,from spreadsheet\n"

	ts, rowErrs, err := parseTransactionsCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, ts, 1)
	assert.Equal(t, "AAPL", ts[0].Ticker)
	assert.Equal(t, "from spreadsheet", ts[0].Comment)
}

func TestParseTransactionsCSVRejectsBadHeader(t *testing.T) {
	_, _, err := parseTransactionsCSV(strings.NewReader("symbol,side,qty\nAAPL,BUY,10\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected header")
}

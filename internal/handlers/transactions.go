package handlers

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/rfellner/marketdash/internal/models"
)

const csvHeader = "ticker,type,quantity,price,date,portfolio_id,comment"

type transactionRequest struct {
	Ticker        string          `json:"ticker"`
	Type          string          `json:"type"`
	Quantity      decimal.Decimal `json:"quantity"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	PurchaseDate  string          `json:"purchase_date"`
	PortfolioID   int             `json:"portfolio_id"`
	Comment       string          `json:"comment"`
}

func (req *transactionRequest) toModel() (*models.Transaction, error) {
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}

	txType := models.TransactionType(strings.ToUpper(strings.TrimSpace(req.Type)))
	if txType != models.TransactionBuy && txType != models.TransactionSell {
		return nil, fmt.Errorf("type must be BUY or SELL")
	}

	if req.Quantity.IsNegative() {
		return nil, fmt.Errorf("quantity must be non-negative")
	}

	date, err := time.Parse("2006-01-02", req.PurchaseDate)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", req.PurchaseDate)
	}

	portfolioID := req.PortfolioID
	if portfolioID == 0 {
		portfolioID = 1
	}

	return &models.Transaction{
		ID:            uuid.New(),
		Ticker:        ticker,
		Type:          txType,
		Quantity:      req.Quantity,
		PurchasePrice: req.PurchasePrice,
		PurchaseDate:  date,
		PortfolioID:   portfolioID,
		Comment:       strings.TrimSpace(req.Comment),
	}, nil
}

// CreateTransaction handles POST /api/transactions
func (h *Handler) CreateTransaction(c echo.Context) error {
	var req transactionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	t, err := req.toModel()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if err := h.repo.InsertTransaction(c.Request().Context(), t); err != nil {
		h.log.Error("inserting transaction", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "unable to record transaction"})
	}
	return c.JSON(http.StatusCreated, t)
}

// ListTransactions handles GET /api/transactions
// Query params:
// - portfolio_id: defaults to 1
func (h *Handler) ListTransactions(c echo.Context) error {
	portfolioID := 1
	if v := c.QueryParam("portfolio_id"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "portfolio_id must be an integer"})
		}
		portfolioID = n
	}

	ts, err := h.repo.ListTransactions(c.Request().Context(), portfolioID)
	if err != nil {
		h.log.Error("listing transactions", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "unable to fetch transactions"})
	}
	return c.JSON(http.StatusOK, ts)
}

// UploadTransactions handles POST /api/transactions/upload
// Accepts a CSV file (multipart field "file") matching the template. Rows
// that fail to parse are reported individually; valid rows are still
// inserted.
func (h *Handler) UploadTransactions(c echo.Context) error {
	start := time.Now()

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, JobResponse{
			Success: false,
			Message: `multipart file field "file" is required`,
		})
	}
	file, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, JobResponse{
			Success: false,
			Message: fmt.Sprintf("opening upload: %v", err),
		})
	}
	defer file.Close()

	ts, rowErrs, err := parseTransactionsCSV(file)
	if err != nil {
		return c.JSON(http.StatusBadRequest, JobResponse{
			Success: false,
			Message: fmt.Sprintf("parsing CSV: %v", err),
		})
	}

	count, err := h.repo.InsertTransactions(c.Request().Context(), ts)
	if err != nil {
		h.log.Error("inserting uploaded transactions", "error", err)
		return c.JSON(http.StatusInternalServerError, JobResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to insert transactions: %v", err),
		})
	}

	return c.JSON(http.StatusOK, JobResponse{
		Success: true,
		Message: fmt.Sprintf("Imported %d transactions", count),
		Count:   count,
		Errors:  rowErrs,
		Elapsed: time.Since(start).String(),
	})
}

// TransactionTemplate handles GET /api/transactions/template
func (h *Handler) TransactionTemplate(c echo.Context) error {
	template := csvHeader + "\n" + "AAPL,BUY,10,185.64,2024-01-02,1,initial position\n"
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="transactions_template.csv"`)
	return c.Blob(http.StatusOK, "text/csv", []byte(template))
}

// PortfolioSummary handles GET /api/portfolio/summary
func (h *Handler) PortfolioSummary(c echo.Context) error {
	portfolioID := 1
	if v := c.QueryParam("portfolio_id"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "portfolio_id must be an integer"})
		}
		portfolioID = n
	}

	positions, err := h.repo.PortfolioSummary(c.Request().Context(), portfolioID)
	if err != nil {
		h.log.Error("querying portfolio summary", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "unable to fetch portfolio summary"})
	}
	return c.JSON(http.StatusOK, positions)
}

// parseTransactionsCSV parses template-format CSV rows into transactions.
// Individual bad rows are collected as error strings; a malformed file (bad
// header, unreadable CSV) fails the whole parse.
func parseTransactionsCSV(r io.Reader) ([]models.Transaction, []string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	// Spreadsheet exports often prepend a UTF-8 BOM and capitalise headers.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	if !strings.EqualFold(strings.Join(header, ","), csvHeader) {
		return nil, nil, fmt.Errorf("unexpected header %q (expected %q)", strings.Join(header, ","), csvHeader)
	}

	var (
		ts      []models.Transaction
		rowErrs []string
	)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading row %d: %w", line, err)
		}
		if len(record) != 7 {
			rowErrs = append(rowErrs, fmt.Sprintf("row %d: expected 7 fields, got %d", line, len(record)))
			continue
		}

		portfolioID := 0
		if strings.TrimSpace(record[5]) != "" {
			portfolioID, err = strconv.Atoi(strings.TrimSpace(record[5]))
			if err != nil {
				rowErrs = append(rowErrs, fmt.Sprintf("row %d: invalid portfolio_id %q", line, record[5]))
				continue
			}
		}

		quantity, err := decimal.NewFromString(strings.TrimSpace(record[2]))
		if err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("row %d: invalid quantity %q", line, record[2]))
			continue
		}
		price, err := decimal.NewFromString(strings.TrimSpace(record[3]))
		if err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("row %d: invalid price %q", line, record[3]))
			continue
		}

		req := transactionRequest{
			Ticker:        record[0],
			Type:          record[1],
			Quantity:      quantity,
			PurchasePrice: price,
			PurchaseDate:  record[4],
			PortfolioID:   portfolioID,
			Comment:       record[6],
		}
		t, err := req.toModel()
		if err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("row %d: %v", line, err))
			continue
		}
		ts = append(ts, *t)
	}

	return ts, rowErrs, nil
}

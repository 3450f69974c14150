package preprocess

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/amadeling/kp-forecasting-bma/internal/models"

	"github.com/xuri/excelize/v2"
)

// column aliases accepted in uploaded files, lowercased
var (
	productAliases  = map[string]bool{"product_id": true, "product": true, "id_produk": true}
	dateAliases     = map[string]bool{"date": true, "tanggal": true}
	quantityAliases = map[string]bool{"quantity": true, "total_jumlah": true, "qty": true}
)

// dateLayouts are the date forms seen in uploaded spreadsheets
var dateLayouts = []string{
	models.DateOnly,
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
}

// FilePreprocessor normalizes uploaded spreadsheets into training records
type FilePreprocessor struct{}

// New creates a file preprocessor
func New() *FilePreprocessor {
	return &FilePreprocessor{}
}

// Normalize parses an uploaded .xlsx or .csv file into TrainingRecords.
// Any malformed content is the uploader's fault and is reported as an
// error the caller maps to a client error, not a server one.
func (p *FilePreprocessor) Normalize(filename string, r io.Reader) ([]models.TrainingRecord, error) {
	var rows [][]string
	var err error

	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".xlsx"):
		rows, err = readExcel(r)
	case strings.HasSuffix(strings.ToLower(filename), ".csv"):
		rows, err = csv.NewReader(r).ReadAll()
	default:
		return nil, fmt.Errorf("unsupported file type %q: upload .xlsx or .csv", filename)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}

	return normalizeRows(rows)
}

func readExcel(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return f.GetRows(f.GetSheetName(0))
}

func normalizeRows(rows [][]string) ([]models.TrainingRecord, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("file has no data rows")
	}

	productCol, dateCol, quantityCol := -1, -1, -1
	for i, cell := range rows[0] {
		name := strings.ToLower(strings.TrimSpace(cell))
		switch {
		case productAliases[name]:
			productCol = i
		case dateAliases[name]:
			dateCol = i
		case quantityAliases[name]:
			quantityCol = i
		}
	}
	if productCol < 0 || dateCol < 0 || quantityCol < 0 {
		return nil, fmt.Errorf("missing required columns: need product id, date and quantity")
	}

	records := make([]models.TrainingRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if isEmpty(row) {
			continue
		}
		if len(row) <= productCol || len(row) <= dateCol || len(row) <= quantityCol {
			return nil, fmt.Errorf("row %d: too few columns", i+2)
		}

		productID := strings.TrimSpace(row[productCol])
		if productID == "" {
			return nil, fmt.Errorf("row %d: empty product id", i+2)
		}

		date, err := parseDate(strings.TrimSpace(row[dateCol]))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}

		quantity, err := strconv.ParseFloat(strings.TrimSpace(row[quantityCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid quantity %q", i+2, row[quantityCol])
		}

		records = append(records, models.TrainingRecord{
			ProductID: productID,
			Date:      date,
			Quantity:  quantity,
		})
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("file has no data rows")
	}
	return records, nil
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, value); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

func isEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

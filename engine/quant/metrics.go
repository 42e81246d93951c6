package quant

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/AlphaAgentAI/alphaagent-mvp/engine/docstore"
	"github.com/AlphaAgentAI/alphaagent-mvp/engine/domain"
)

const (
	// metricsDir is the docstore prefix holding the per-ticker workbooks.
	metricsDir = "spreadsheets"
	// metricsSheet is the preferred worksheet name; the first sheet is the
	// fallback.
	metricsSheet = "Key Metrics"
	// headerScanRows bounds the search for the "Metric" header row.
	headerScanRows = 50
	// maxMetricRows bounds the rows read below the header.
	maxMetricRows = 200
)

// Row is one metric row from a workbook: the rendered cell text plus a
// parsed numeric value when the cell is numeric.
type Row struct {
	Name     string
	Raw      string
	Value    float64
	HasValue bool
	Unit     string
	Note     string
}

// Metrics is the ordered metric rows of one ticker's workbook.
type Metrics []Row

// Formatted renders each row as "value unit" or "value unit (note)" keyed by
// metric name, the shape synthesis prompts consume.
func (m Metrics) Formatted() map[string]string {
	out := make(map[string]string, len(m))
	for _, r := range m {
		s := strings.TrimSpace(r.Raw + " " + r.Unit)
		if r.Note != "" {
			s = fmt.Sprintf("%s (%s)", s, r.Note)
		}
		out[r.Name] = s
	}
	return out
}

// Numeric returns the parseable rows keyed by metric name, the shape the
// calculators consume.
func (m Metrics) Numeric() map[string]float64 {
	out := make(map[string]float64, len(m))
	for _, r := range m {
		if r.HasValue {
			out[r.Name] = r.Value
		}
	}
	return out
}

// Structured returns the parseable rows as domain metrics, preserving order.
func (m Metrics) Structured() []domain.Metric {
	var out []domain.Metric
	for _, r := range m {
		if r.HasValue {
			out = append(out, domain.Metric{Name: r.Name, Value: r.Value, Unit: r.Unit, Note: r.Note})
		}
	}
	return out
}

// Loader reads per-ticker metric workbooks from a document store.
type Loader struct {
	store  docstore.Store
	logger *slog.Logger
}

// NewLoader creates a Loader. logger may be nil.
func NewLoader(store docstore.Store, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{store: store, logger: logger}
}

// Key returns the docstore key of a ticker's metrics workbook.
func Key(ticker string) string {
	return path.Join(metricsDir, ticker+"_Key_Metrics.xlsx")
}

// Load reads and parses one ticker's metrics. The sheet is scanned for a
// literal "Metric" header in column A; rows below it are read until the
// first blank name. A missing workbook yields domain.ErrNotFound.
func (l *Loader) Load(ctx context.Context, ticker string) (Metrics, error) {
	key := Key(ticker)
	data, err := l.store.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("quant: metrics %s: %w", ticker, err)
	}

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("quant: open %s: %w", key, err)
	}
	defer wb.Close()

	sheet := wb.GetSheetList()[0]
	for _, s := range wb.GetSheetList() {
		if s == metricsSheet {
			sheet = s
			break
		}
	}

	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("quant: read sheet %s: %w", sheet, err)
	}

	start := -1
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		if strings.EqualFold(strings.TrimSpace(cell(rows[i], 0)), "metric") {
			start = i + 1
			break
		}
	}
	if start < 0 {
		l.logger.Warn("no metric header found", "ticker", ticker, "sheet", sheet)
		return nil, nil
	}

	var metrics Metrics
	for i := start; i < len(rows) && i < start+maxMetricRows; i++ {
		name := strings.TrimSpace(cell(rows[i], 0))
		if name == "" {
			break
		}
		raw := strings.TrimSpace(cell(rows[i], 1))
		row := Row{
			Name: name,
			Raw:  raw,
			Unit: strings.TrimSpace(cell(rows[i], 2)),
			Note: strings.TrimSpace(cell(rows[i], 3)),
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			row.Value = v
			row.HasValue = true
		}
		metrics = append(metrics, row)
	}
	return metrics, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

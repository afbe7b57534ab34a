// internal/export/export.go
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/domain"
)

// ErrNoTrades is returned when no trade matches the export criteria.
var ErrNoTrades = errors.New("no trades match the export criteria")

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format     ExportFormat
	StartTime  time.Time
	EndTime    time.Time
	MintFilter string      // Filter by token mint
	SideFilter domain.Side // Filter by side (buy/sell)
	OutputDir  string
}

// TradeExporter writes observed trades to files
type TradeExporter struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewTradeExporter creates a new trade exporter
func NewTradeExporter(logger *zap.Logger) *TradeExporter {
	return &TradeExporter{
		logger: logger.Named("export"),
		now:    time.Now,
	}
}

// ExportTrades exports trades based on the provided options
func (te *TradeExporter) ExportTrades(trades []domain.Trade, options ExportOptions) (string, error) {
	filtered := filterTrades(trades, options)
	if len(filtered) == 0 {
		return "", ErrNoTrades
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.Before(filtered[j].Timestamp)
	})

	outputPath := filepath.Join(options.OutputDir, te.generateFilename(options))
	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	switch options.Format {
	case FormatCSV:
		err = exportToCSV(filtered, outputPath)
	case FormatJSON:
		err = te.exportToJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	te.logger.Info("Trades exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

func filterTrades(trades []domain.Trade, options ExportOptions) []domain.Trade {
	var filtered []domain.Trade
	for _, trade := range trades {
		if !options.StartTime.IsZero() && trade.Timestamp.Before(options.StartTime) {
			continue
		}
		if !options.EndTime.IsZero() && !trade.Timestamp.Before(options.EndTime) {
			continue
		}
		if options.MintFilter != "" && trade.Mint != options.MintFilter {
			continue
		}
		if options.SideFilter != "" && trade.Side != options.SideFilter {
			continue
		}
		filtered = append(filtered, trade)
	}
	return filtered
}

func (te *TradeExporter) generateFilename(options ExportOptions) string {
	timestamp := te.now().Format("20060102_150405")

	prefix := "trades_all"
	if options.SideFilter != "" {
		prefix = fmt.Sprintf("trades_%s", options.SideFilter)
	}
	if mint := options.MintFilter; mint != "" {
		if len(mint) > 8 {
			mint = mint[:8]
		}
		prefix += "_" + mint
	}

	return fmt.Sprintf("%s_%s.%s", prefix, timestamp, options.Format)
}

// CSVHeaders returns the column names of the CSV export.
func CSVHeaders() []string {
	return []string{
		"timestamp", "signature", "slot", "mint", "side", "trader",
		"price_sol", "token_amount", "sol_amount",
		"virtual_sol_reserves", "virtual_token_reserves",
	}
}

func csvRecord(t domain.Trade) []string {
	return []string{
		t.Timestamp.UTC().Format(time.RFC3339),
		t.Signature,
		strconv.FormatUint(t.Slot, 10),
		t.Mint,
		string(t.Side),
		t.Trader,
		strconv.FormatFloat(t.PriceInQuote, 'f', -1, 64),
		strconv.FormatFloat(t.BaseAmount, 'f', -1, 64),
		strconv.FormatFloat(t.QuoteAmount, 'f', -1, 64),
		strconv.FormatUint(t.VirtualSolReserves, 10),
		strconv.FormatUint(t.VirtualTokenReserves, 10),
	}
}

func exportToCSV(trades []domain.Trade, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, trade := range trades {
		if err := writer.Write(csvRecord(trade)); err != nil {
			return fmt.Errorf("failed to write trade: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func (te *TradeExporter) exportToJSON(trades []domain.Trade, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	exportData := struct {
		ExportTime time.Time      `json:"export_time"`
		TradeCount int            `json:"trade_count"`
		Trades     []domain.Trade `json:"trades"`
		Summary    ExportSummary  `json:"summary"`
	}{
		ExportTime: te.now(),
		TradeCount: len(trades),
		Trades:     trades,
		Summary:    CalculateSummary(trades),
	}

	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ExportSummary contains summary statistics for exported trades
type ExportSummary struct {
	TotalTrades     int       `json:"total_trades"`
	BuyCount        int       `json:"buy_count"`
	SellCount       int       `json:"sell_count"`
	UniqueMints     int       `json:"unique_mints"`
	UniqueTraders   int       `json:"unique_traders"`
	TotalVolume     float64   `json:"total_volume"`
	TotalBuyVolume  float64   `json:"total_buy_volume"`
	TotalSellVolume float64   `json:"total_sell_volume"`
	NetFlow         float64   `json:"net_flow"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
}

// CalculateSummary aggregates trades sorted by timestamp. Volumes are in SOL.
func CalculateSummary(trades []domain.Trade) ExportSummary {
	summary := ExportSummary{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return summary
	}

	summary.StartDate = trades[0].Timestamp
	summary.EndDate = trades[len(trades)-1].Timestamp

	mints := make(map[string]struct{})
	traders := make(map[string]struct{})
	for _, trade := range trades {
		mints[trade.Mint] = struct{}{}
		traders[trade.Trader] = struct{}{}

		switch trade.Side {
		case domain.SideBuy:
			summary.BuyCount++
			summary.TotalBuyVolume += trade.QuoteAmount
		case domain.SideSell:
			summary.SellCount++
			summary.TotalSellVolume += trade.QuoteAmount
		}
	}

	summary.UniqueMints = len(mints)
	summary.UniqueTraders = len(traders)
	summary.TotalVolume = summary.TotalBuyVolume + summary.TotalSellVolume
	summary.NetFlow = summary.TotalBuyVolume - summary.TotalSellVolume
	return summary
}

// DailyReport represents the activity of one day
type DailyReport struct {
	Date            time.Time      `json:"date"`
	TradeCount      int            `json:"trade_count"`
	Summary         ExportSummary  `json:"summary"`
	HourlyBreakdown []HourlyStats  `json:"hourly_breakdown"`
	Trades          []domain.Trade `json:"trades"`
}

// HourlyStats represents trading statistics for an hour
type HourlyStats struct {
	Hour       int     `json:"hour"`
	TradeCount int     `json:"trade_count"`
	BuyCount   int     `json:"buy_count"`
	SellCount  int     `json:"sell_count"`
	Volume     float64 `json:"volume"`
}

// ExportDailyReport writes a JSON report of the trades on date. It returns an
// empty path when the day had no trades.
func (te *TradeExporter) ExportDailyReport(trades []domain.Trade, date time.Time, outputDir string) (string, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())

	filtered := filterTrades(trades, ExportOptions{
		StartTime: startOfDay,
		EndTime:   startOfDay.Add(24 * time.Hour),
	})
	if len(filtered) == 0 {
		te.logger.Info("No trades for daily report", zap.Time("date", startOfDay))
		return "", nil
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.Before(filtered[j].Timestamp)
	})

	report := DailyReport{
		Date:            startOfDay,
		TradeCount:      len(filtered),
		Trades:          filtered,
		Summary:         CalculateSummary(filtered),
		HourlyBreakdown: calculateHourlyBreakdown(filtered),
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(outputDir, fmt.Sprintf("daily_report_%s.json", startOfDay.Format("20060102")))
	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	te.logger.Info("Daily report exported",
		zap.String("file", outputPath),
		zap.Time("date", startOfDay),
		zap.Int("trades", len(filtered)))

	return outputPath, nil
}

func calculateHourlyBreakdown(trades []domain.Trade) []HourlyStats {
	hourlyMap := make(map[int]*HourlyStats)
	for _, trade := range trades {
		hour := trade.Timestamp.Hour()
		stats, exists := hourlyMap[hour]
		if !exists {
			stats = &HourlyStats{Hour: hour}
			hourlyMap[hour] = stats
		}

		stats.TradeCount++
		stats.Volume += trade.QuoteAmount
		switch trade.Side {
		case domain.SideBuy:
			stats.BuyCount++
		case domain.SideSell:
			stats.SellCount++
		}
	}

	var breakdown []HourlyStats
	for hour := 0; hour < 24; hour++ {
		if stats, exists := hourlyMap[hour]; exists {
			breakdown = append(breakdown, *stats)
		}
	}
	return breakdown
}

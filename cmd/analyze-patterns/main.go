// analyze-patterns runs a one-off pattern detection pass against the candle
// service and prints what each detector found, without persisting signals.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"pattern-engine/internal/candles"
	"pattern-engine/internal/patterns"

	"github.com/joho/godotenv"
)

func main() {
	symbolsFlag := flag.String("symbols", "BTCUSDT", "comma separated symbols to analyze")
	timeframe := flag.String("timeframe", "1h", "candle timeframe")
	limit := flag.Int("limit", 100, "number of candles to fetch per symbol")
	baseURL := flag.String("base-url", "", "candle service base URL (default CANDLES_BASE_URL)")
	minConfidence := flag.Float64("min-confidence", 0, "only emit detections at or above this confidence")
	flag.Parse()

	godotenv.Load()
	godotenv.Load(".env")

	url := *baseURL
	if url == "" {
		url = os.Getenv("CANDLES_BASE_URL")
	}
	if url == "" {
		fmt.Println("❌ candle service URL required (-base-url or CANDLES_BASE_URL)")
		os.Exit(1)
	}

	symbols := splitSymbols(*symbolsFlag)
	if len(symbols) == 0 {
		fmt.Println("❌ at least one symbol required")
		os.Exit(1)
	}

	supplier := candles.NewHTTPSupplier(url, 10*time.Second)
	registry := patterns.NewRegistry()
	cfg := patterns.DefaultConfig()
	if *minConfidence > 0 {
		cfg.ConfidenceThreshold = *minConfidence
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("📊 PATTERN ANALYSIS  timeframe=%s limit=%d threshold=%.0f\n", *timeframe, *limit, cfg.ConfidenceThreshold)
	fmt.Println(strings.Repeat("=", 70))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	totalDetections := 0
	for _, symbol := range symbols {
		series, err := supplier.GetCandles(ctx, symbol, *timeframe, *limit)
		if err != nil {
			fmt.Printf("\n❌ %s: failed to fetch candles: %v\n", symbol, err)
			continue
		}

		fmt.Printf("\n🔍 %s (%d candles", symbol, len(series))
		if len(series) > 0 {
			fmt.Printf(", %s .. %s",
				series[0].Timestamp.Format("2006-01-02 15:04"),
				series[len(series)-1].Timestamp.Format("2006-01-02 15:04"))
		}
		fmt.Println(")")

		if len(series) < cfg.MinCandles {
			fmt.Printf("   ⚠️  only %d candles, need %d\n", len(series), cfg.MinCandles)
			continue
		}

		detections := registry.Detect(series, "", symbol, *timeframe, cfg)
		sort.Slice(detections, func(i, j int) bool {
			return detections[i].Confidence > detections[j].Confidence
		})

		for _, d := range detections {
			fmt.Printf("   ✅ %-28s confidence=%5.1f price=%.2f detected=%s\n",
				d.PatternType, d.Confidence, d.PriceLevel, d.DetectedAt.Format("2006-01-02 15:04"))
		}
		if len(detections) == 0 {
			fmt.Println("   no patterns above threshold")
		}
		totalDetections += len(detections)
	}

	fmt.Println()
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Done. %d detection(s) across %d symbol(s).\n", totalDetections, len(symbols))
}

func splitSymbols(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(strings.ToUpper(part)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

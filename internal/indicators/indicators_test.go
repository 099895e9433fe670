package indicators

import (
	"errors"
	"math"
	"testing"

	"github.com/skalibog/fxbot/internal/config"
	"github.com/skalibog/fxbot/pkg/models"
)

func candlesFromCloses(closes []float64) []*models.Candle {
	candles := make([]*models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = &models.Candle{Close: c}
	}
	return candles
}

func TestComputeInsufficientData(t *testing.T) {
	engine := NewEngine(config.StrategyConfig{SMAFast: 21, SMAMedium: 50, SMATrend: 200, RSIPeriod: 14})

	_, err := engine.Compute(candlesFromCloses(make([]float64, 10)))
	if err == nil {
		t.Fatal("ожидалась ошибка при нехватке свечей")
	}

	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("ожидалась InsufficientDataError, получено %T", err)
	}
	if insufficient.Need != 200 || insufficient.Have != 10 {
		t.Errorf("InsufficientDataError = %+v, ожидалось Need=200 Have=10", insufficient)
	}
}

func TestComputeValues(t *testing.T) {
	engine := NewEngine(config.StrategyConfig{SMAFast: 2, SMAMedium: 3, SMATrend: 4, RSIPeriod: 2})

	snap, err := engine.Compute(candlesFromCloses([]float64{1, 2, 3, 4}))
	if err != nil {
		t.Fatalf("Compute() вернул ошибку: %v", err)
	}

	const eps = 1e-9
	if math.Abs(snap.SMAFast-3.5) > eps {
		t.Errorf("SMAFast = %v, ожидалось 3.5", snap.SMAFast)
	}
	if math.Abs(snap.SMAMedium-3) > eps {
		t.Errorf("SMAMedium = %v, ожидалось 3", snap.SMAMedium)
	}
	if math.Abs(snap.SMATrend-2.5) > eps {
		t.Errorf("SMATrend = %v, ожидалось 2.5", snap.SMATrend)
	}
}

func TestRSIBounds(t *testing.T) {
	engine := NewEngine(config.StrategyConfig{SMAFast: 2, SMAMedium: 3, SMATrend: 4, RSIPeriod: 2})

	// Серия только из роста: средняя потеря нулевая, RSI равен 100
	snap, err := engine.Compute(candlesFromCloses([]float64{1.0, 1.1, 1.2, 1.3, 1.4}))
	if err != nil {
		t.Fatalf("Compute() вернул ошибку: %v", err)
	}
	if snap.RSI != 100 {
		t.Errorf("RSI растущей серии = %v, ожидалось 100", snap.RSI)
	}

	// Смешанная серия остается в пределах [0, 100]
	snap, err = engine.Compute(candlesFromCloses([]float64{1.0, 1.2, 1.1, 1.3, 1.05, 1.15}))
	if err != nil {
		t.Fatalf("Compute() вернул ошибку: %v", err)
	}
	if snap.RSI < 0 || snap.RSI > 100 {
		t.Errorf("RSI = %v вне диапазона [0, 100]", snap.RSI)
	}
}

func TestSeriesLengths(t *testing.T) {
	engine := NewEngine(config.StrategyConfig{SMAFast: 2, SMAMedium: 3, SMATrend: 3, RSIPeriod: 2})
	closes := []float64{1, 2, 3, 4, 5}

	if got := engine.TrendSeries(closes); len(got) != len(closes) {
		t.Errorf("длина TrendSeries = %d, ожидалось %d", len(got), len(closes))
	}
	if got := engine.RSISeries(closes); len(got) != len(closes) {
		t.Errorf("длина RSISeries = %d, ожидалось %d", len(got), len(closes))
	}
}

package levels

import (
	"math"
	"testing"

	"github.com/skalibog/fxbot/internal/config"
	"github.com/skalibog/fxbot/pkg/models"
)

func testConfig() config.LevelsConfig {
	return config.LevelsConfig{Window: 4, Tolerance: 0.0002}
}

// flatSeries строит серию одинаковых свечей, в которую тесты
// врезают экстремумы по индексам
func flatSeries(n int) []*models.Candle {
	candles := make([]*models.Candle, n)
	for i := range candles {
		candles[i] = &models.Candle{High: 1.2000, Low: 1.1050}
	}
	return candles
}

func TestDetectGroupsCloseMinima(t *testing.T) {
	locator := NewLocator(testConfig())

	candles := flatSeries(15)
	candles[4] = &models.Candle{High: 1.2000, Low: 1.1000}
	candles[9] = &models.Candle{High: 1.2000, Low: 1.1001}
	candles[6] = &models.Candle{High: 1.2100, Low: 1.1050}

	lv := locator.Detect(candles)

	if len(lv.Support) != 1 {
		t.Fatalf("уровней поддержки = %d, ожидался 1", len(lv.Support))
	}
	support := lv.Support[0]
	if math.Abs(support.Price-1.10005) > 1e-9 {
		t.Errorf("цена поддержки = %v, ожидалось среднее 1.10005", support.Price)
	}
	if support.Strength != 2 {
		t.Errorf("сила поддержки = %d, ожидалось 2", support.Strength)
	}
	if support.LastSeen != 9 {
		t.Errorf("последнее касание = %d, ожидалось 9", support.LastSeen)
	}

	if len(lv.Resistance) != 1 {
		t.Fatalf("уровней сопротивления = %d, ожидался 1", len(lv.Resistance))
	}
	if lv.Resistance[0].Price != 1.2100 {
		t.Errorf("цена сопротивления = %v, ожидалось 1.2100", lv.Resistance[0].Price)
	}
}

func TestDetectSeparatesDistantMinima(t *testing.T) {
	locator := NewLocator(testConfig())

	// Два минимума дальше допуска друг от друга дают два уровня,
	// кластер из двух точек ранжируется выше одиночного
	candles := flatSeries(16)
	candles[3] = &models.Candle{High: 1.2000, Low: 1.1000}
	candles[8] = &models.Candle{High: 1.2000, Low: 1.1001}
	candles[12] = &models.Candle{High: 1.2000, Low: 1.0900}

	lv := locator.Detect(candles)

	if len(lv.Support) != 2 {
		t.Fatalf("уровней поддержки = %d, ожидалось 2", len(lv.Support))
	}
	if lv.Support[0].Strength != 2 {
		t.Errorf("первым должен идти более сильный уровень, сила = %d", lv.Support[0].Strength)
	}
	if lv.Support[1].Price != 1.0900 {
		t.Errorf("второй уровень = %v, ожидалось 1.0900", lv.Support[1].Price)
	}
}

func TestDetectStrictExtrema(t *testing.T) {
	locator := NewLocator(testConfig())

	// Равные соседние минимумы не являются строгими экстремумами
	candles := flatSeries(10)
	candles[4] = &models.Candle{High: 1.2000, Low: 1.1000}
	candles[5] = &models.Candle{High: 1.2000, Low: 1.1000}

	lv := locator.Detect(candles)
	if len(lv.Support) != 0 {
		t.Errorf("уровней поддержки = %d, ожидалось 0 для равных минимумов", len(lv.Support))
	}
}

func TestNearestLevels(t *testing.T) {
	lv := &Levels{
		Support: []models.Level{
			{Price: 1.1000, Kind: models.Support, Strength: 3},
			{Price: 1.0900, Kind: models.Support, Strength: 1},
		},
		Resistance: []models.Level{
			{Price: 1.1500, Kind: models.Resistance, Strength: 2},
		},
	}

	if level, ok := lv.NearestSupportBelow(1.1200); !ok || level.Price != 1.1000 {
		t.Errorf("NearestSupportBelow(1.1200) = %v, %v; ожидалось 1.1000", level.Price, ok)
	}
	// Первый уровень выше цены, берется следующий по рангу
	if level, ok := lv.NearestSupportBelow(1.0950); !ok || level.Price != 1.0900 {
		t.Errorf("NearestSupportBelow(1.0950) = %v, %v; ожидалось 1.0900", level.Price, ok)
	}
	if _, ok := lv.NearestSupportBelow(1.0800); ok {
		t.Error("ниже 1.0800 поддержки нет")
	}

	if level, ok := lv.NearestResistanceAbove(1.1200); !ok || level.Price != 1.1500 {
		t.Errorf("NearestResistanceAbove(1.1200) = %v, %v; ожидалось 1.1500", level.Price, ok)
	}
	if _, ok := lv.NearestResistanceAbove(1.1600); ok {
		t.Error("выше 1.1600 сопротивления нет")
	}
}

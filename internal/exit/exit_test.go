package exit

import (
	"testing"

	"github.com/skalibog/fxbot/internal/config"
	"github.com/skalibog/fxbot/internal/levels"
	"github.com/skalibog/fxbot/pkg/models"
)

func testConfig() config.ExitConfig {
	return config.ExitConfig{
		DivergenceWindow: 5,
		LevelTolerance:   0.0002,
		Precedence:       "levels_first",
	}
}

func position(direction models.Direction, entry, stop, profit float64) *models.Position {
	return &models.Position{
		Symbol:           "EURUSD",
		Direction:        direction,
		EntryPrice:       entry,
		StopLoss:         stop,
		Size:             0.1,
		UnrealizedProfit: profit,
	}
}

// series строит свечи с одинаковыми экстремумами и дает тестам
// менять отдельные точки
func series(n int, high, low, close float64) []*models.Candle {
	candles := make([]*models.Candle, n)
	for i := range candles {
		candles[i] = &models.Candle{High: high, Low: low, Close: close}
	}
	return candles
}

func flatRSI(n int, value float64) []float64 {
	rsi := make([]float64, n)
	for i := range rsi {
		rsi[i] = value
	}
	return rsi
}

func TestNoExitWithoutProfit(t *testing.T) {
	ev := NewEvaluator(testConfig())
	candles := series(8, 1.1100, 1.1000, 1.1050)
	rsi := flatRSI(8, 65)

	tests := []struct {
		name   string
		pos    *models.Position
	}{
		{"нет позиции", nil},
		{"нулевая прибыль", position(models.Buy, 1.1000, 1.0950, 0)},
		{"убыточная позиция", position(models.Buy, 1.1000, 1.0950, -25)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if d := ev.Evaluate(tt.pos, candles, rsi, nil); d.Exit {
				t.Errorf("Evaluate() = %+v, выход не ожидался", d)
			}
		})
	}
}

func TestBearishDivergenceClosesBuy(t *testing.T) {
	ev := NewEvaluator(testConfig())

	// Цена ставит новый максимум, RSI нет
	candles := series(8, 1.1100, 1.1000, 1.1050)
	candles[7] = &models.Candle{High: 1.1120, Low: 1.1040, Close: 1.1110}
	rsi := flatRSI(8, 65)
	rsi[4] = 72
	rsi[7] = 66

	d := ev.Evaluate(position(models.Buy, 1.1000, 1.0950, 50), candles, rsi, nil)
	if !d.Exit {
		t.Fatal("ожидался выход по расхождению")
	}
	if d.Reason != ReasonDivergence {
		t.Errorf("причина = %q, ожидалось %q", d.Reason, ReasonDivergence)
	}
}

func TestBullishDivergenceClosesSell(t *testing.T) {
	ev := NewEvaluator(testConfig())

	// Цена ставит новый минимум, RSI нет
	candles := series(8, 1.1100, 1.1000, 1.1050)
	candles[7] = &models.Candle{High: 1.1060, Low: 1.0980, Close: 1.0990}
	rsi := flatRSI(8, 35)
	rsi[4] = 28
	rsi[7] = 34

	d := ev.Evaluate(position(models.Sell, 1.1080, 1.1150, 50), candles, rsi, nil)
	if !d.Exit {
		t.Fatal("ожидался выход по расхождению")
	}
	if d.Reason != ReasonDivergence {
		t.Errorf("причина = %q, ожидалось %q", d.Reason, ReasonDivergence)
	}
}

func TestNoDivergenceWhenRSIConfirms(t *testing.T) {
	ev := NewEvaluator(testConfig())

	// Новый максимум цены подтвержден новым максимумом RSI
	candles := series(8, 1.1100, 1.1000, 1.1050)
	candles[7] = &models.Candle{High: 1.1120, Low: 1.1040, Close: 1.1110}
	rsi := flatRSI(8, 65)
	rsi[7] = 74

	d := ev.Evaluate(position(models.Buy, 1.1000, 1.0950, 50), candles, rsi, nil)
	if d.Exit {
		t.Errorf("Evaluate() = %+v, выход не ожидался", d)
	}
}

func TestLevelReturnClosesBuy(t *testing.T) {
	ev := NewEvaluator(testConfig())

	candles := series(8, 1.1100, 1.1000, 1.1001)
	rsi := flatRSI(8, 60)
	lv := &levels.Levels{
		Support: []models.Level{{Price: 1.1000, Kind: models.Support, Strength: 2}},
	}

	d := ev.Evaluate(position(models.Buy, 1.1050, 1.0950, 10), candles, rsi, lv)
	if !d.Exit {
		t.Fatal("ожидался выход по возврату к уровню")
	}
	if d.Reason != ReasonLevelReturn {
		t.Errorf("причина = %q, ожидалось %q", d.Reason, ReasonLevelReturn)
	}
}

func TestLevelReturnClosesSell(t *testing.T) {
	ev := NewEvaluator(testConfig())

	candles := series(8, 1.1100, 1.1000, 1.1099)
	rsi := flatRSI(8, 40)
	lv := &levels.Levels{
		Resistance: []models.Level{{Price: 1.1100, Kind: models.Resistance, Strength: 2}},
	}

	d := ev.Evaluate(position(models.Sell, 1.1050, 1.1150, 10), candles, rsi, lv)
	if !d.Exit {
		t.Fatal("ожидался выход по возврату к уровню")
	}
	if d.Reason != ReasonLevelReturn {
		t.Errorf("причина = %q, ожидалось %q", d.Reason, ReasonLevelReturn)
	}
}

func TestLevelReturnOutsideTolerance(t *testing.T) {
	ev := NewEvaluator(testConfig())

	candles := series(8, 1.1100, 1.1000, 1.1010)
	rsi := flatRSI(8, 60)
	lv := &levels.Levels{
		Support: []models.Level{{Price: 1.1000, Kind: models.Support, Strength: 2}},
	}

	d := ev.Evaluate(position(models.Buy, 1.1050, 1.0950, 10), candles, rsi, lv)
	if d.Exit {
		t.Errorf("Evaluate() = %+v, цена вне допуска уровня", d)
	}
}

func TestProfitTarget(t *testing.T) {
	cfg := testConfig()
	cfg.ProfitTarget = config.ProfitTargetConfig{Enabled: true, Multiple: 2}
	ev := NewEvaluator(cfg)

	// Дистанция стопа 0.0050, цель для покупки: вход + 0.0100
	candles := series(8, 1.1110, 1.1000, 1.1105)
	rsi := flatRSI(8, 60)

	d := ev.Evaluate(position(models.Buy, 1.1000, 1.0950, 100), candles, rsi, nil)
	if !d.Exit {
		t.Fatal("ожидался выход по достижению цели")
	}
	if d.Reason != ReasonProfitTarget {
		t.Errorf("причина = %q, ожидалось %q", d.Reason, ReasonProfitTarget)
	}

	// До цели выхода нет
	candles = series(8, 1.1080, 1.1000, 1.1080)
	d = ev.Evaluate(position(models.Buy, 1.1000, 1.0950, 50), candles, rsi, nil)
	if d.Exit {
		t.Errorf("Evaluate() = %+v, цель еще не достигнута", d)
	}
}

func TestPrecedenceOrdersChecks(t *testing.T) {
	// Расхождение и цель срабатывают одновременно:
	// порядок причин задается конфигурацией
	candles := series(8, 1.1100, 1.1000, 1.1050)
	candles[7] = &models.Candle{High: 1.1120, Low: 1.1040, Close: 1.1110}
	rsi := flatRSI(8, 65)
	rsi[4] = 72
	rsi[7] = 66
	pos := func() *models.Position { return position(models.Buy, 1.1000, 1.0950, 100) }

	cfg := testConfig()
	cfg.ProfitTarget = config.ProfitTargetConfig{Enabled: true, Multiple: 2}

	d := NewEvaluator(cfg).Evaluate(pos(), candles, rsi, nil)
	if d.Reason != ReasonDivergence {
		t.Errorf("причина = %q, при levels_first ожидалось %q", d.Reason, ReasonDivergence)
	}

	cfg.Precedence = "profit_target_first"
	d = NewEvaluator(cfg).Evaluate(pos(), candles, rsi, nil)
	if d.Reason != ReasonProfitTarget {
		t.Errorf("причина = %q, при profit_target_first ожидалось %q", d.Reason, ReasonProfitTarget)
	}
}

package patterns

import (
	"testing"

	"github.com/skalibog/fxbot/pkg/models"
)

func candle(open, close float64) *models.Candle {
	return &models.Candle{Open: open, Close: close, High: close, Low: open}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		open  float64
		close float64
		want  models.Direction
	}{
		{"бычья", 1.1000, 1.1010, models.Buy},
		{"медвежья", 1.1010, 1.1000, models.Sell},
		{"нейтральная", 1.1000, 1.1000, models.None},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(candle(tt.open, tt.close)); got != tt.want {
				t.Errorf("Classify() = %v, ожидалось %v", got, tt.want)
			}
		})
	}
}

func TestConsecutiveReversal(t *testing.T) {
	bull := func() *models.Candle { return candle(1.1000, 1.1010) }
	bear := func() *models.Candle { return candle(1.1010, 1.1000) }
	flat := func() *models.Candle { return candle(1.1000, 1.1000) }

	tests := []struct {
		name    string
		candles []*models.Candle
		minRun  int
		wantOK  bool
		wantDir models.Direction
		wantRun int
	}{
		{
			name:    "разворот вверх после трех медвежьих",
			candles: []*models.Candle{bull(), bear(), bear(), bear(), bull()},
			minRun:  3,
			wantOK:  true,
			wantDir: models.Buy,
			wantRun: 3,
		},
		{
			name:    "разворот вниз после четырех бычьих",
			candles: []*models.Candle{bull(), bull(), bull(), bull(), bear()},
			minRun:  3,
			wantOK:  true,
			wantDir: models.Sell,
			wantRun: 4,
		},
		{
			name:    "серия короче минимума",
			candles: []*models.Candle{bull(), bear(), bear(), bull()},
			minRun:  3,
			wantOK:  false,
		},
		{
			name:    "нейтральная свеча разрывает серию",
			candles: []*models.Candle{bear(), bear(), flat(), bear(), bull()},
			minRun:  3,
			wantOK:  false,
		},
		{
			name:    "нейтральная последняя свеча не дает сигнала",
			candles: []*models.Candle{bear(), bear(), bear(), flat()},
			minRun:  3,
			wantOK:  false,
		},
		{
			name:    "слишком короткая серия",
			candles: []*models.Candle{bear(), bull()},
			minRun:  3,
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rev, ok := ConsecutiveReversal(tt.candles, tt.minRun)
			if ok != tt.wantOK {
				t.Fatalf("ConsecutiveReversal() ok = %v, ожидалось %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if rev.Direction != tt.wantDir {
				t.Errorf("направление = %v, ожидалось %v", rev.Direction, tt.wantDir)
			}
			if rev.RunLength != tt.wantRun {
				t.Errorf("длина серии = %d, ожидалось %d", rev.RunLength, tt.wantRun)
			}
		})
	}
}

func TestTrendCrossoverRecent(t *testing.T) {
	trend := []float64{0, 0, 1.1000, 1.1000, 1.1000, 1.1000}

	tests := []struct {
		name     string
		closes   []float64
		lookback int
		want     bool
	}{
		{
			name:     "пересечение снизу вверх",
			closes:   []float64{1.0990, 1.0992, 1.0995, 1.0998, 1.1002, 1.1005},
			lookback: 3,
			want:     true,
		},
		{
			name:     "пересечение за пределами окна",
			closes:   []float64{1.0990, 1.0992, 1.0995, 1.1002, 1.1005, 1.1008},
			lookback: 2,
			want:     false,
		},
		{
			name:     "без пересечения",
			closes:   []float64{1.1002, 1.1003, 1.1004, 1.1005, 1.1006, 1.1007},
			lookback: 5,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrendCrossoverRecent(tt.closes, trend, tt.lookback); got != tt.want {
				t.Errorf("TrendCrossoverRecent() = %v, ожидалось %v", got, tt.want)
			}
		})
	}
}

func TestTrendCrossoverIgnoresEmptyWindow(t *testing.T) {
	// Нулевые значения средней до заполнения окна не считаются пересечением
	closes := []float64{1.0990, 1.1005, 1.1006}
	trend := []float64{0, 1.1000, 1.1000}
	if TrendCrossoverRecent(closes, trend, 3) {
		t.Error("незаполненное окно средней не должно давать пересечение")
	}
}

func TestPatternString(t *testing.T) {
	candles := []*models.Candle{
		candle(1.1000, 1.1010),
		candle(1.1010, 1.1000),
		candle(1.1000, 1.1000),
		candle(1.1000, 1.1015),
	}

	if got := PatternString(candles, 4); got != "+-.+" {
		t.Errorf("PatternString() = %q, ожидалось %q", got, "+-.+")
	}
	if got := PatternString(candles, 2); got != ".+" {
		t.Errorf("PatternString() = %q, ожидалось %q", got, ".+")
	}
	if got := PatternString(candles, 10); got != "+-.+" {
		t.Errorf("PatternString() с избыточным количеством = %q, ожидалось %q", got, "+-.+")
	}
}

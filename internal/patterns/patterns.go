package patterns

import (
	"strings"

	"github.com/skalibog/fxbot/pkg/models"
)

// Classify определяет направление свечи: бычья, медвежья или нейтральная.
// Нейтральная свеча (open == close) разрывает последовательную серию.
func Classify(c *models.Candle) models.Direction {
	switch {
	case c.Close > c.Open:
		return models.Buy
	case c.Close < c.Open:
		return models.Sell
	default:
		return models.None
	}
}

// Reversal сигнатура разворота: направление последней свечи и длина
// непосредственно предшествующей серии противоположного направления
type Reversal struct {
	Direction models.Direction
	RunLength int
}

// ConsecutiveReversal сканирует серию от последней свечи назад и ищет разворот:
// серию из minRun и более свечей одного направления, за которой следует
// свеча противоположного направления.
func ConsecutiveReversal(candles []*models.Candle, minRun int) (Reversal, bool) {
	if len(candles) < minRun+1 {
		return Reversal{}, false
	}

	last := Classify(candles[len(candles)-1])
	if last == models.None {
		return Reversal{}, false
	}

	// Считаем длину серии противоположного направления перед последней свечой
	opposite := last.Opposite()
	run := 0
	for i := len(candles) - 2; i >= 0; i-- {
		if Classify(candles[i]) != opposite {
			break
		}
		run++
	}

	if run < minRun {
		return Reversal{}, false
	}

	return Reversal{Direction: last, RunLength: run}, true
}

// TrendCrossoverRecent сообщает, пересекала ли цена закрытия трендовую среднюю
// в пределах последних lookback свечей. Пересечение определяется сменой знака
// разности close-минус-средняя между соседними свечами.
func TrendCrossoverRecent(closes, trend []float64, lookback int) bool {
	n := len(closes)
	if len(trend) != n || n < 2 {
		return false
	}

	start := n - lookback
	if start < 1 {
		start = 1
	}

	for i := start; i < n; i++ {
		// Нулевые значения средней означают незаполненное окно
		if trend[i-1] == 0 || trend[i] == 0 {
			continue
		}
		prev := closes[i-1] - trend[i-1]
		curr := closes[i] - trend[i]
		if (prev < 0 && curr > 0) || (prev > 0 && curr < 0) {
			return true
		}
	}

	return false
}

// PatternString строит визуальное представление последних свечей для отладки:
// "+" для бычьей, "-" для медвежьей, "." для нейтральной, справа самая свежая.
func PatternString(candles []*models.Candle, count int) string {
	var b strings.Builder
	start := len(candles) - count
	if start < 0 {
		start = 0
	}
	for _, c := range candles[start:] {
		switch Classify(c) {
		case models.Buy:
			b.WriteByte('+')
		case models.Sell:
			b.WriteByte('-')
		default:
			b.WriteByte('.')
		}
	}
	return b.String()
}

package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/skalibog/fxbot/internal/config"
)

// InvalidStopError возникает при нулевой или отрицательной дистанции стопа
type InvalidStopError struct {
	Distance float64
}

func (e *InvalidStopError) Error() string {
	return fmt.Sprintf("недопустимая дистанция стопа: %.6f", e.Distance)
}

// Sizer преобразует баланс, допустимый риск и дистанцию стопа в размер позиции
type Sizer struct {
	cfg config.RiskConfig
}

// NewSizer создает новый расчетчик размера позиции
func NewSizer(cfg config.RiskConfig) *Sizer {
	return &Sizer{
		cfg: cfg,
	}
}

// Size рассчитывает размер позиции в лотах под фиксированный бюджет риска.
// Лот округляется вверх до шага 0.01.
func (s *Sizer) Size(balance, riskPct, entryPrice, stopPrice, pipSize, pipValuePerLot float64) (float64, error) {
	distance := math.Abs(entryPrice - stopPrice)
	if distance <= 0 {
		return 0, &InvalidStopError{Distance: entryPrice - stopPrice}
	}

	stopPips := distance / pipSize
	riskAmount := balance * riskPct
	lot := riskAmount / (stopPips * pipValuePerLot)

	rounded, _ := decimal.NewFromFloat(lot).RoundUp(2).Float64()
	return rounded, nil
}

// SizeFor рассчитывает размер позиции для символа по настройкам риска
func (s *Sizer) SizeFor(symbol string, balance, entryPrice, stopPrice float64) (float64, error) {
	return s.Size(balance, s.cfg.RiskPerTrade, entryPrice, stopPrice, s.PipSize(symbol), s.cfg.PipValuePerLot)
}

// PipSize возвращает размер пипса для символа. Пары, котируемые в иеноподобных
// валютах, используют шаг 0.01, остальные 0.0001. Соответствие задается
// конфигурацией, а не зашивается по символам.
func (s *Sizer) PipSize(symbol string) float64 {
	for _, quote := range s.cfg.YenQuoted {
		if strings.Contains(symbol, quote) {
			return s.cfg.YenPipSize
		}
	}
	return s.cfg.DefaultPipSize
}

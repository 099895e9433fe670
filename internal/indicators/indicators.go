package indicators

import (
	"fmt"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/fxbot/internal/config"
	"github.com/skalibog/fxbot/pkg/models"
)

// InsufficientDataError возникает, когда свечей меньше, чем требует окно индикатора
type InsufficientDataError struct {
	Need int
	Have int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("недостаточно данных для расчета индикаторов: требуется %d свечей, доступно %d", e.Need, e.Have)
}

// Snapshot значения индикаторов в последней точке серии.
// Пересчитывается на каждом цикле, нигде не накапливается.
type Snapshot struct {
	SMAFast   float64
	SMAMedium float64
	SMATrend  float64
	RSI       float64
}

// Engine рассчитывает скользящие средние и осциллятор RSI по серии свечей
type Engine struct {
	cfg config.StrategyConfig
}

// NewEngine создает новый расчетчик индикаторов
func NewEngine(cfg config.StrategyConfig) *Engine {
	return &Engine{
		cfg: cfg,
	}
}

// Compute рассчитывает все индикаторы в последней точке серии.
// Расчет детерминирован: одинаковые свечи дают одинаковый результат.
func (e *Engine) Compute(candles []*models.Candle) (*Snapshot, error) {
	if len(candles) < e.cfg.SMATrend {
		return nil, &InsufficientDataError{Need: e.cfg.SMATrend, Have: len(candles)}
	}

	closes := models.Closes(candles)

	smaFast := talib.Sma(closes, e.cfg.SMAFast)
	smaMedium := talib.Sma(closes, e.cfg.SMAMedium)
	smaTrend := talib.Sma(closes, e.cfg.SMATrend)
	rsi := talib.Rsi(closes, e.cfg.RSIPeriod)

	last := len(closes) - 1
	return &Snapshot{
		SMAFast:   smaFast[last],
		SMAMedium: smaMedium[last],
		SMATrend:  smaTrend[last],
		RSI:       rsi[last],
	}, nil
}

// TrendSeries возвращает серию трендовой скользящей средней.
// Значения до заполнения окна равны нулю.
func (e *Engine) TrendSeries(closes []float64) []float64 {
	return talib.Sma(closes, e.cfg.SMATrend)
}

// RSISeries возвращает серию значений RSI со сглаживанием Уайлдера.
// При нулевой средней потере RSI равен 100, деления на ноль нет.
func (e *Engine) RSISeries(closes []float64) []float64 {
	return talib.Rsi(closes, e.cfg.RSIPeriod)
}

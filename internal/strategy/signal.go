package strategy

import (
	"fmt"

	"github.com/skalibog/fxbot/internal/config"
	"github.com/skalibog/fxbot/internal/indicators"
	"github.com/skalibog/fxbot/internal/patterns"
	"github.com/skalibog/fxbot/pkg/logger"
	"github.com/skalibog/fxbot/pkg/models"
	"go.uber.org/zap"
)

// Имена проверок генератора сигналов
const (
	CheckTrend      = "trend"
	CheckSeparation = "separation"
	CheckPattern    = "pattern"
	CheckMomentum   = "momentum"
)

// Diagnostic структурированная запись о несостоявшемся сигнале:
// кандидат направления и первая не прошедшая проверка.
// Диагностика не влияет на дальнейшие решения, только фиксируется.
type Diagnostic struct {
	Candidate   models.Direction
	FailedCheck string
	Detail      string
}

// Generator генерирует торговые сигналы по стратегии пересечения
// скользящих средних с подтверждением RSI
type Generator struct {
	cfg        config.StrategyConfig
	indicators *indicators.Engine
}

// NewGenerator создает новый генератор сигналов
func NewGenerator(cfg config.StrategyConfig, ind *indicators.Engine) *Generator {
	if cfg.Debug.DisableSeparation || cfg.Debug.DisablePattern || cfg.Debug.DisableMomentum {
		logger.Warn("Включен отладочный режим генератора: часть проверок отключена",
			zap.Bool("disable_separation", cfg.Debug.DisableSeparation),
			zap.Bool("disable_pattern", cfg.Debug.DisablePattern),
			zap.Bool("disable_momentum", cfg.Debug.DisableMomentum))
	}
	return &Generator{
		cfg:        cfg,
		indicators: ind,
	}
}

// Generate оценивает последнюю свечу серии и возвращает сигнал.
// Сигнал срабатывает только если все четыре проверки проходят для одного
// направления; иначе возвращается сигнал NONE с диагностикой первой
// не прошедшей проверки.
func (g *Generator) Generate(candles []*models.Candle, snap *indicators.Snapshot) (models.Signal, *Diagnostic) {
	latest := candles[len(candles)-1]
	none := models.Signal{
		Symbol:    latest.Symbol,
		Direction: models.None,
		Price:     latest.Close,
		Timestamp: latest.CloseTime,
	}

	logger.Debug("Оценка сигнала",
		zap.String("symbol", latest.Symbol),
		zap.Float64("close", latest.Close),
		zap.Float64("sma_trend", snap.SMATrend),
		zap.Float64("rsi", snap.RSI),
		zap.String("pattern", patterns.PatternString(candles, 10)))

	// Проверка (a): положение цены относительно трендовой средней
	var candidate models.Direction
	switch {
	case latest.Close > snap.SMATrend:
		candidate = models.Buy
	case latest.Close < snap.SMATrend:
		candidate = models.Sell
	default:
		return none, &Diagnostic{
			Candidate:   models.None,
			FailedCheck: CheckTrend,
			Detail:      "цена закрытия совпадает с трендовой средней",
		}
	}

	// Проверка (b): разделение быстрой и средней скользящих.
	// Недавнее пересечение трендовой средней снимает это требование,
	// поскольку свежее пересечение законно сужает разрыв.
	if !g.cfg.Debug.DisableSeparation {
		separation := abs(snap.SMAFast - snap.SMAMedium)
		if separation < g.cfg.SeparationThreshold {
			if !g.recentCrossover(candles) {
				return none, &Diagnostic{
					Candidate:   candidate,
					FailedCheck: CheckSeparation,
					Detail:      fmt.Sprintf("разделение средних %.6f ниже порога %.6f", separation, g.cfg.SeparationThreshold),
				}
			}
		}
	}

	// Проверка (c): разворотный паттерн, ориентированный по кандидату
	if !g.cfg.Debug.DisablePattern {
		rev, ok := patterns.ConsecutiveReversal(candles, g.cfg.ReversalRun)
		if !ok || rev.Direction != candidate {
			return none, &Diagnostic{
				Candidate:   candidate,
				FailedCheck: CheckPattern,
				Detail:      fmt.Sprintf("нет разворота из %d и более свечей против направления %s", g.cfg.ReversalRun, candidate),
			}
		}
	}

	// Проверка (d): подтверждение моментумом
	if !g.cfg.Debug.DisableMomentum {
		if candidate == models.Buy && snap.RSI <= 50 {
			return none, &Diagnostic{
				Candidate:   candidate,
				FailedCheck: CheckMomentum,
				Detail:      fmt.Sprintf("RSI %.2f не выше 50", snap.RSI),
			}
		}
		if candidate == models.Sell && snap.RSI >= 50 {
			return none, &Diagnostic{
				Candidate:   candidate,
				FailedCheck: CheckMomentum,
				Detail:      fmt.Sprintf("RSI %.2f не ниже 50", snap.RSI),
			}
		}
	}

	// Стоп-лосс ставится на быструю среднюю: расстояние до нее
	// становится базой риска для расчета размера позиции
	return models.Signal{
		Symbol:    latest.Symbol,
		Direction: candidate,
		StopLoss:  snap.SMAFast,
		Price:     latest.Close,
		Timestamp: latest.CloseTime,
	}, nil
}

// recentCrossover проверяет недавнее пересечение трендовой средней.
// Серия короче трендового окна пересечения дать не может.
func (g *Generator) recentCrossover(candles []*models.Candle) bool {
	if len(candles) < g.cfg.SMATrend {
		return false
	}
	closes := models.Closes(candles)
	trend := g.indicators.TrendSeries(closes)
	return patterns.TrendCrossoverRecent(closes, trend, g.cfg.CrossoverLookback)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

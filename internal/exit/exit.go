package exit

import (
	"fmt"
	"math"

	"github.com/skalibog/fxbot/internal/config"
	"github.com/skalibog/fxbot/internal/levels"
	"github.com/skalibog/fxbot/pkg/models"
)

// Причины закрытия позиции
const (
	ReasonDivergence   = "divergence"
	ReasonLevelReturn  = "level_return"
	ReasonProfitTarget = "profit_target"
)

// Decision результат оценки выхода
type Decision struct {
	Exit   bool
	Reason string
	Detail string
}

// Evaluator решает, закрывать ли открытую прибыльную позицию.
// Убыточные позиции этим механизмом не оцениваются: жесткий стоп-лосс,
// если настроен, работает отдельно и безусловно.
type Evaluator struct {
	cfg config.ExitConfig
}

// NewEvaluator создает новый оценщик выхода
func NewEvaluator(cfg config.ExitConfig) *Evaluator {
	return &Evaluator{
		cfg: cfg,
	}
}

// Evaluate проверяет условия выхода для позиции. Любое сработавшее условие
// дает безусловное закрытие всей позиции, частичных выходов нет.
// Порядок проверок при включенной фиксированной цели задается конфигурацией.
func (e *Evaluator) Evaluate(pos *models.Position, candles []*models.Candle, rsi []float64, lv *levels.Levels) Decision {
	if pos == nil || pos.UnrealizedProfit <= 0 {
		return Decision{}
	}

	current := candles[len(candles)-1].Close

	checks := []func() Decision{
		func() Decision { return e.checkDivergence(pos, candles, rsi) },
		func() Decision { return e.checkLevelReturn(pos, current, lv) },
	}
	if e.cfg.ProfitTarget.Enabled {
		target := func() Decision { return e.checkProfitTarget(pos, current) }
		if e.cfg.Precedence == "profit_target_first" {
			checks = append([]func() Decision{target}, checks...)
		} else {
			checks = append(checks, target)
		}
	}

	for _, check := range checks {
		if d := check(); d.Exit {
			return d
		}
	}
	return Decision{}
}

// checkDivergence ищет расхождение цены и RSI в последнем окне:
// для покупки цена ставит более высокий максимум при более низком
// максимуме RSI, для продажи симметрично по минимумам.
func (e *Evaluator) checkDivergence(pos *models.Position, candles []*models.Candle, rsi []float64) Decision {
	w := e.cfg.DivergenceWindow
	n := len(candles)
	if n < w+1 || len(rsi) != n {
		return Decision{}
	}

	latest := candles[n-1]
	rsiNow := rsi[n-1]

	priorHigh, priorLow := candles[n-1-w].High, candles[n-1-w].Low
	priorRSIHigh, priorRSILow := rsi[n-1-w], rsi[n-1-w]
	for i := n - w; i < n-1; i++ {
		priorHigh = math.Max(priorHigh, candles[i].High)
		priorLow = math.Min(priorLow, candles[i].Low)
		priorRSIHigh = math.Max(priorRSIHigh, rsi[i])
		priorRSILow = math.Min(priorRSILow, rsi[i])
	}

	switch pos.Direction {
	case models.Buy:
		if latest.High > priorHigh && rsiNow < priorRSIHigh {
			return Decision{
				Exit:   true,
				Reason: ReasonDivergence,
				Detail: fmt.Sprintf("медвежье расхождение: цена %.5f выше %.5f, RSI %.2f ниже %.2f", latest.High, priorHigh, rsiNow, priorRSIHigh),
			}
		}
	case models.Sell:
		if latest.Low < priorLow && rsiNow > priorRSILow {
			return Decision{
				Exit:   true,
				Reason: ReasonDivergence,
				Detail: fmt.Sprintf("бычье расхождение: цена %.5f ниже %.5f, RSI %.2f выше %.2f", latest.Low, priorLow, rsiNow, priorRSILow),
			}
		}
	}
	return Decision{}
}

// checkLevelReturn проверяет возврат цены к ближайшему уровню:
// для покупки к поддержке ниже цены входа, для продажи к сопротивлению выше
func (e *Evaluator) checkLevelReturn(pos *models.Position, current float64, lv *levels.Levels) Decision {
	if lv == nil {
		return Decision{}
	}

	var level models.Level
	var ok bool
	switch pos.Direction {
	case models.Buy:
		level, ok = lv.NearestSupportBelow(pos.EntryPrice)
	case models.Sell:
		level, ok = lv.NearestResistanceAbove(pos.EntryPrice)
	}
	if !ok {
		return Decision{}
	}

	if math.Abs(current-level.Price) <= e.cfg.LevelTolerance {
		return Decision{
			Exit:   true,
			Reason: ReasonLevelReturn,
			Detail: fmt.Sprintf("цена %.5f вернулась к уровню %s %.5f (сила %d)", current, level.Kind, level.Price, level.Strength),
		}
	}
	return Decision{}
}

// checkProfitTarget проверяет фиксированную цель по прибыли:
// кратное дистанции стопа от цены входа
func (e *Evaluator) checkProfitTarget(pos *models.Position, current float64) Decision {
	distance := math.Abs(pos.EntryPrice - pos.StopLoss)
	if distance == 0 {
		return Decision{}
	}

	target := pos.EntryPrice + float64(pos.Direction)*distance*e.cfg.ProfitTarget.Multiple
	reached := (pos.Direction == models.Buy && current >= target) ||
		(pos.Direction == models.Sell && current <= target)
	if reached {
		return Decision{
			Exit:   true,
			Reason: ReasonProfitTarget,
			Detail: fmt.Sprintf("цена %.5f достигла цели %.5f", current, target),
		}
	}
	return Decision{}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skalibog/fxbot/internal/advisory"
	"github.com/skalibog/fxbot/internal/config"
	"github.com/skalibog/fxbot/internal/contingency"
	"github.com/skalibog/fxbot/internal/exit"
	"github.com/skalibog/fxbot/internal/indicators"
	"github.com/skalibog/fxbot/internal/levels"
	"github.com/skalibog/fxbot/internal/risk"
	"github.com/skalibog/fxbot/internal/storage"
	"github.com/skalibog/fxbot/internal/strategy"
	"github.com/skalibog/fxbot/pkg/logger"
	"github.com/skalibog/fxbot/pkg/models"
	"go.uber.org/zap"
)

// CandleSource поставляет упорядоченную серию свечей символа
type CandleSource interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error)
}

// BalanceSource поставляет текущий баланс счета
type BalanceSource interface {
	GetBalance(ctx context.Context) (float64, error)
}

// Notifier получает обновления состояния символов для отображения
type Notifier interface {
	UpdateStatus(status models.SymbolStatus)
}

// Engine управляет циклами оценки символов. Каждый символ обслуживается
// собственной горутиной с одной входящей очередью: тики и уведомления
// об ордерах сериализуются, перекрывающихся циклов по символу нет.
// Символы независимы и не разделяют изменяемого состояния.
type Engine struct {
	cfg     *config.Config
	source  CandleSource
	balance BalanceSource
	store   storage.Storage
	exec    contingency.Execution
	events  <-chan models.OrderEvent
	advisor *advisory.Client

	indicators *indicators.Engine
	generator  *strategy.Generator
	sizer      *risk.Sizer
	locator    *levels.Locator
	exitEval   *exit.Evaluator

	machines map[string]*contingency.Machine
	queues   map[string]chan models.OrderEvent

	mu       sync.RWMutex
	notifier Notifier
}

// New создает движок оценки
func New(cfg *config.Config, source CandleSource, balance BalanceSource, store storage.Storage,
	exec contingency.Execution, events <-chan models.OrderEvent, advisor *advisory.Client) *Engine {

	ind := indicators.NewEngine(cfg.Strategy)
	e := &Engine{
		cfg:        cfg,
		source:     source,
		balance:    balance,
		store:      store,
		exec:       exec,
		events:     events,
		advisor:    advisor,
		indicators: ind,
		generator:  strategy.NewGenerator(cfg.Strategy, ind),
		sizer:      risk.NewSizer(cfg.Risk),
		locator:    levels.NewLocator(cfg.Levels),
		exitEval:   exit.NewEvaluator(cfg.Exit),
		machines:   make(map[string]*contingency.Machine),
		queues:     make(map[string]chan models.OrderEvent),
	}

	for _, symbol := range cfg.Trading.Symbols {
		e.machines[symbol] = contingency.NewMachine(symbol, cfg.Contingency, exec)
		e.queues[symbol] = make(chan models.OrderEvent, 32)
	}

	return e
}

// SetNotifier подключает получателя обновлений состояния
func (e *Engine) SetNotifier(n Notifier) {
	e.mu.Lock()
	e.notifier = n
	e.mu.Unlock()
}

// Machine возвращает машину каскадного плана символа
func (e *Engine) Machine(symbol string) *contingency.Machine {
	return e.machines[symbol]
}

// Run запускает циклы оценки и блокируется до отмены контекста
func (e *Engine) Run(ctx context.Context, ticks <-chan time.Time) error {
	var wg sync.WaitGroup

	// Размножение тиков по символам
	symbolTicks := make(map[string]chan time.Time, len(e.cfg.Trading.Symbols))
	for _, symbol := range e.cfg.Trading.Symbols {
		symbolTicks[symbol] = make(chan time.Time, 1)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case t, ok := <-ticks:
				if !ok {
					return
				}
				for _, ch := range symbolTicks {
					select {
					case ch <- t:
					default:
						// Символ еще занят предыдущим циклом, тик пропускается
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Маршрутизация уведомлений исполнителя по очередям символов
	if e.events != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case ev, ok := <-e.events:
					if !ok {
						return
					}
					queue, known := e.queues[ev.Symbol]
					if !known {
						logger.Debug("Уведомление для неизвестного символа", zap.String("symbol", ev.Symbol))
						continue
					}
					select {
					case queue <- ev:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for _, symbol := range e.cfg.Trading.Symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			e.runSymbol(ctx, symbol, symbolTicks[symbol])
		}(symbol)
	}

	wg.Wait()
	return ctx.Err()
}

// runSymbol последовательно обрабатывает тики и уведомления одного символа
func (e *Engine) runSymbol(ctx context.Context, symbol string, ticks <-chan time.Time) {
	machine := e.machines[symbol]
	queue := e.queues[symbol]

	for {
		select {
		case ev := <-queue:
			machine.HandleEvent(ctx, ev)
			e.persistPlan(ctx, machine)
		case <-ticks:
			e.safeEvaluate(ctx, symbol)
		case <-ctx.Done():
			return
		}
	}
}

// safeEvaluate изолирует цикл символа: ошибка или паника одного символа
// не прерывает оценку остальных, символ пропускает один цикл
func (e *Engine) safeEvaluate(ctx context.Context, symbol string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Паника в цикле оценки, символ пропущен",
				zap.String("symbol", symbol), zap.Any("panic", r))
		}
	}()

	if err := e.evaluate(ctx, symbol); err != nil {
		var insufficient *indicators.InsufficientDataError
		if errors.As(err, &insufficient) {
			logger.Debug("Цикл пропущен: недостаточно данных",
				zap.String("symbol", symbol), zap.Error(err))
			return
		}
		logger.Error("Ошибка цикла оценки, символ пропущен",
			zap.String("symbol", symbol), zap.Error(err))
	}
}

// evaluate выполняет один цикл оценки символа
func (e *Engine) evaluate(ctx context.Context, symbol string) error {
	machine := e.machines[symbol]

	candles, err := e.source.GetKlines(ctx, symbol, e.cfg.Trading.Interval, e.cfg.Trading.CandlesCount)
	if err != nil {
		return fmt.Errorf("ошибка получения свечей: %w", err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("источник вернул пустую серию свечей")
	}

	if err := e.store.SaveCandles(ctx, candles); err != nil {
		logger.Warn("Не удалось сохранить свечи", zap.String("symbol", symbol), zap.Error(err))
	}

	snap, err := e.indicators.Compute(candles)
	if err != nil {
		return err
	}

	currentPrice := candles[len(candles)-1].Close
	machine.UpdatePrice(currentPrice)
	machine.EnsureProtection(ctx)

	// Уровни пересчитываются один раз за цикл, не на каждый тик
	lv := e.locator.Detect(candles)

	if machine.Active() {
		e.evaluateExit(ctx, symbol, machine, candles, snap, lv, currentPrice)
	} else {
		e.evaluateEntry(ctx, symbol, machine, candles, snap, currentPrice)
	}

	e.notify(symbol, machine, currentPrice)
	return nil
}

// evaluateExit проверяет условия выхода для открытой позиции плана
func (e *Engine) evaluateExit(ctx context.Context, symbol string, machine *contingency.Machine,
	candles []*models.Candle, snap *indicators.Snapshot, lv *levels.Levels, currentPrice float64) {

	pos := machine.Position()
	if pos == nil {
		return
	}

	rsi := e.indicators.RSISeries(models.Closes(candles))
	decision := e.exitEval.Evaluate(pos, candles, rsi, lv)

	if !decision.Exit && e.advisor.Enabled() && pos.UnrealizedProfit > 0 {
		verdict := e.advisor.MonitorTrade(ctx, pos, snap, currentPrice)
		// Рекомендация выхода становится самостоятельным триггером только
		// в обязательном режиме и при достаточной уверенности
		if verdict.ShouldExit && e.advisor.Mandatory() && verdict.Confidence >= e.advisor.MinConfidence() {
			decision = exit.Decision{Exit: true, Reason: "advisory", Detail: verdict.Reason}
		}
	}

	if !decision.Exit {
		return
	}

	logger.Info("Условие выхода выполнено",
		zap.String("symbol", symbol),
		zap.String("reason", decision.Reason),
		zap.String("detail", decision.Detail),
		zap.Float64("profit", pos.UnrealizedProfit))

	if err := machine.ClosePosition(ctx, decision.Reason); err != nil {
		logger.Error("Не удалось закрыть позицию, план остается в текущей стадии",
			zap.String("symbol", symbol), zap.Error(err))
		return
	}
	e.persistPlan(ctx, machine)
}

// evaluateEntry оценивает сигнал входа и при успехе открывает каскадный план
func (e *Engine) evaluateEntry(ctx context.Context, symbol string, machine *contingency.Machine,
	candles []*models.Candle, snap *indicators.Snapshot, currentPrice float64) {

	sig, diag := e.generator.Generate(candles, snap)
	if diag != nil {
		if diag.FailedCheck != "" {
			logger.Debug("Сигнал не состоялся",
				zap.String("symbol", symbol),
				zap.String("candidate", diag.Candidate.String()),
				zap.String("failed_check", diag.FailedCheck),
				zap.String("detail", diag.Detail))
		}
		return
	}
	if sig.Direction == models.None {
		return
	}

	if err := e.store.SaveSignal(ctx, &sig); err != nil {
		logger.Warn("Не удалось сохранить сигнал", zap.String("symbol", symbol), zap.Error(err))
	}

	if e.advisor.Enabled() {
		verdict := e.advisor.VerifyTradeSetup(ctx, sig, snap)
		blocked := !verdict.Approved || verdict.Confidence < e.advisor.MinConfidence()
		if blocked && e.advisor.Mandatory() {
			logger.Info("Сделка заблокирована консультацией",
				zap.String("symbol", symbol),
				zap.Float64("confidence", verdict.Confidence),
				zap.String("reason", verdict.Reason))
			return
		}
	}

	balance, err := e.balance.GetBalance(ctx)
	if err != nil {
		logger.Error("Не удалось получить баланс, сигнал пропущен",
			zap.String("symbol", symbol), zap.Error(err))
		return
	}

	lot, err := e.sizer.SizeFor(symbol, balance, sig.Price, sig.StopLoss)
	if err != nil {
		var invalidStop *risk.InvalidStopError
		if errors.As(err, &invalidStop) {
			logger.Warn("Сигнал отброшен: недопустимый стоп",
				zap.String("symbol", symbol), zap.Error(err))
			return
		}
		logger.Error("Ошибка расчета размера позиции", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	if err := machine.Start(ctx, sig, lot); err != nil {
		var conflict *contingency.PlanConflictError
		if errors.As(err, &conflict) {
			logger.Warn("Сигнал отброшен: план уже активен",
				zap.String("symbol", symbol), zap.String("stage", string(conflict.Stage)))
			return
		}
		logger.Error("Не удалось открыть каскадный план",
			zap.String("symbol", symbol), zap.Error(err))
		return
	}
	e.persistPlan(ctx, machine)
}

// persistPlan сохраняет снимок плана для восстановления после перезапуска
func (e *Engine) persistPlan(ctx context.Context, machine *contingency.Machine) {
	snapshot := machine.Snapshot()
	if snapshot == nil {
		return
	}
	snapshot.Timestamp = time.Now()
	if err := e.store.SavePlanSnapshot(ctx, snapshot); err != nil {
		logger.Warn("Не удалось сохранить снимок плана",
			zap.String("symbol", snapshot.Symbol), zap.Error(err))
	}
}

// notify передает состояние символа получателю обновлений
func (e *Engine) notify(symbol string, machine *contingency.Machine, price float64) {
	e.mu.RLock()
	notifier := e.notifier
	e.mu.RUnlock()
	if notifier == nil {
		return
	}

	status := models.SymbolStatus{
		Symbol:       symbol,
		Stage:        machine.Stage(),
		CurrentPrice: price,
		Timestamp:    time.Now(),
	}
	if pos := machine.Position(); pos != nil {
		status.Recommendation = pos.Direction.String()
		status.Profit = pos.UnrealizedProfit
	} else {
		status.Recommendation = models.None.String()
	}
	notifier.UpdateStatus(status)
}

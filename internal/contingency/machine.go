package contingency

import (
	"context"
	"fmt"
	"time"

	"github.com/skalibog/fxbot/internal/config"
	"github.com/skalibog/fxbot/pkg/logger"
	"github.com/skalibog/fxbot/pkg/models"
	"go.uber.org/zap"
)

// PlanConflictError возникает при попытке создать второй план для символа,
// у которого уже есть план в нетерминальной стадии
type PlanConflictError struct {
	Symbol string
	Stage  models.PlanStage
}

func (e *PlanConflictError) Error() string {
	return fmt.Sprintf("для %s уже существует активный план в стадии %s", e.Symbol, e.Stage)
}

// Execution интерфейс внешнего исполнителя ордеров. Машина не общается
// с площадкой напрямую: она выдает намерения и потребляет уведомления.
type Execution interface {
	PlaceMarket(ctx context.Context, symbol string, direction models.Direction, size float64) (models.OrderRef, error)
	PlaceStop(ctx context.Context, symbol string, direction models.Direction, price, size float64) (models.OrderRef, error)
	PlaceLimit(ctx context.Context, symbol string, direction models.Direction, price, size float64) (models.OrderRef, error)
	Cancel(ctx context.Context, symbol string, ref models.OrderRef) error
}

// pendingOrder отложенный ордер, ожидающий срабатывания или исполнения
type pendingOrder struct {
	kind      models.OrderKind
	direction models.Direction
	price     float64
	size      float64
}

// Plan состояние каскадного плана для одного символа
type Plan struct {
	Symbol     string
	Stage      models.PlanStage
	Direction  models.Direction
	BaseLot    float64
	TradeCount int
	EntryPrice float64
	StopPrice  float64
}

// Machine управляет каскадом ордеров одного символа. Все методы
// синхронные: сериализация вызовов обеспечивается циклом символа,
// который доставляет тики и уведомления по одной очереди.
type Machine struct {
	cfg      config.ContingencyConfig
	exec     Execution
	symbol   string
	plan     *Plan
	position *models.Position
	pending  map[models.OrderRef]pendingOrder
	// wanted хранит ордер, который не удалось разместить,
	// для повтора на следующем подходящем триггере
	wanted *pendingOrder
}

// NewMachine создает машину каскадного плана для символа
func NewMachine(symbol string, cfg config.ContingencyConfig, exec Execution) *Machine {
	return &Machine{
		cfg:     cfg,
		exec:    exec,
		symbol:  symbol,
		pending: make(map[models.OrderRef]pendingOrder),
	}
}

// Active сообщает, есть ли у символа план в нетерминальной стадии
func (m *Machine) Active() bool {
	return m.plan != nil && !m.plan.Stage.Terminal()
}

// Stage возвращает текущую стадию плана
func (m *Machine) Stage() models.PlanStage {
	if m.plan == nil {
		return ""
	}
	return m.plan.Stage
}

// Position возвращает текущую открытую позицию плана
func (m *Machine) Position() *models.Position {
	return m.position
}

// PendingCount возвращает число отложенных ордеров
func (m *Machine) PendingCount() int {
	return len(m.pending)
}

// Start открывает начальный рыночный ордер по сигналу и одновременно ставит
// защитный стоп двойного размера на уровне стоп-лосса сигнала.
func (m *Machine) Start(ctx context.Context, sig models.Signal, baseLot float64) error {
	if m.Active() {
		return &PlanConflictError{Symbol: m.symbol, Stage: m.plan.Stage}
	}

	marketRef, err := m.exec.PlaceMarket(ctx, m.symbol, sig.Direction, baseLot)
	if err != nil {
		return fmt.Errorf("ошибка открытия рыночного ордера: %w", err)
	}

	// Рыночный ордер считается исполненным при открытии, его подтверждение
	// лишь уточняет цену входа
	m.plan = &Plan{
		Symbol:     m.symbol,
		Stage:      models.StageInitial,
		Direction:  sig.Direction,
		BaseLot:    baseLot,
		TradeCount: 1,
		EntryPrice: sig.Price,
		StopPrice:  sig.StopLoss,
	}
	m.position = &models.Position{
		Symbol:     m.symbol,
		Direction:  sig.Direction,
		EntryPrice: sig.Price,
		Size:       baseLot,
		StopLoss:   sig.StopLoss,
		OpenTime:   sig.Timestamp,
	}
	m.pending = map[models.OrderRef]pendingOrder{
		marketRef: {kind: models.OrderMarket, direction: sig.Direction, price: sig.Price, size: baseLot},
	}
	m.wanted = nil

	logger.Info("Открыт каскадный план",
		zap.String("symbol", m.symbol),
		zap.String("direction", sig.Direction.String()),
		zap.Float64("lot", baseLot),
		zap.Float64("entry", sig.Price),
		zap.Float64("stop", sig.StopLoss))

	stop := pendingOrder{
		kind:      models.OrderStop,
		direction: sig.Direction.Opposite(),
		price:     sig.StopLoss,
		size:      m.nextLot(),
	}
	if err := m.place(ctx, stop); err != nil {
		logger.Warn("Не удалось разместить защитный стоп, попытка повторится",
			zap.String("symbol", m.symbol), zap.Error(err))
		return nil
	}
	m.plan.Stage = models.StageStopPending
	return nil
}

// HandleEvent обрабатывает асинхронное уведомление исполнителя.
// Уведомления по неизвестным ордерам и повторные уведомления по уже
// продвинувшемуся плану игнорируются без ошибки.
func (m *Machine) HandleEvent(ctx context.Context, ev models.OrderEvent) {
	if m.plan == nil || m.plan.Stage.Terminal() {
		logger.Debug("Позднее уведомление вне активного плана",
			zap.String("symbol", m.symbol), zap.String("ref", string(ev.Ref)))
		return
	}

	order, known := m.pending[ev.Ref]
	if !known {
		logger.Debug("Уведомление по неизвестному ордеру, пропуск",
			zap.String("symbol", m.symbol), zap.String("ref", string(ev.Ref)))
		return
	}

	switch ev.Kind {
	case models.EventCancelled:
		delete(m.pending, ev.Ref)

	case models.EventTriggered:
		// Срабатывание стопа лишь помечает стадию, каскад продолжится
		// по факту исполнения
		if order.kind == models.OrderStop && m.plan.Stage == models.StageStopPending {
			m.plan.Stage = models.StageStopTriggered
			logger.Info("Защитный стоп сработал",
				zap.String("symbol", m.symbol), zap.Float64("price", order.price))
		}

	case models.EventFilled:
		delete(m.pending, ev.Ref)
		m.handleFill(ctx, order, ev)
	}
}

// handleFill продвигает каскад по факту исполнения ордера
func (m *Machine) handleFill(ctx context.Context, order pendingOrder, ev models.OrderEvent) {
	switch order.kind {
	case models.OrderMarket:
		// Подтверждение начального входа: уточняем цену
		if m.position != nil && ev.Price > 0 {
			m.position.EntryPrice = ev.Price
		}

	case models.OrderStop:
		m.applyFill(order, ev.Price)
		m.plan.TradeCount++
		if m.plan.Stage == models.StageStopPending {
			m.plan.Stage = models.StageStopTriggered
		}
		if m.reachedLimit() {
			return
		}
		next := pendingOrder{
			kind:      models.OrderLimit,
			direction: m.plan.Direction,
			price:     m.plan.EntryPrice,
			size:      m.nextLot(),
		}
		if err := m.place(ctx, next); err != nil {
			logger.Warn("Не удалось разместить лимитный ордер каскада, попытка повторится",
				zap.String("symbol", m.symbol), zap.Error(err))
			return
		}
		if m.plan.Stage == models.StageStopTriggered {
			m.plan.Stage = models.StageLimitPending
		}

	case models.OrderLimit:
		m.applyFill(order, ev.Price)
		m.plan.TradeCount++
		m.plan.Stage = models.StageEscalated
		if m.reachedLimit() {
			return
		}
		next := pendingOrder{
			kind:      models.OrderStop,
			direction: m.plan.Direction.Opposite(),
			price:     m.plan.StopPrice,
			size:      m.nextLot(),
		}
		if err := m.place(ctx, next); err != nil {
			logger.Warn("Не удалось разместить стоп каскада, попытка повторится",
				zap.String("symbol", m.symbol), zap.Error(err))
		}
	}
}

// EnsureProtection повторяет неудавшееся размещение ордера каскада.
// Вызывается циклом символа на каждом подходящем триггере.
func (m *Machine) EnsureProtection(ctx context.Context) {
	if !m.Active() || m.wanted == nil {
		return
	}
	wanted := *m.wanted
	if err := m.place(ctx, wanted); err != nil {
		logger.Warn("Повторное размещение ордера не удалось",
			zap.String("symbol", m.symbol), zap.Error(err))
		return
	}
	switch {
	case wanted.kind == models.OrderStop && m.plan.Stage == models.StageInitial:
		m.plan.Stage = models.StageStopPending
	case wanted.kind == models.OrderLimit && m.plan.Stage == models.StageStopTriggered:
		m.plan.Stage = models.StageLimitPending
	}
}

// ClosePosition закрывает открытую позицию, отменяет отложенные ордера
// и переводит план в терминальную стадию. Неудачная отмена фиксируется
// как предмет сверки, но не мешает локальному закрытию плана.
func (m *Machine) ClosePosition(ctx context.Context, reason string) error {
	if !m.Active() {
		return nil
	}

	if m.position != nil {
		_, err := m.exec.PlaceMarket(ctx, m.symbol, m.position.Direction.Opposite(), m.position.Size)
		if err != nil {
			return fmt.Errorf("ошибка закрытия позиции: %w", err)
		}
	}

	// Рыночные ордера не отменяются: они уже исполнены, их запись в pending
	// ждала лишь уточнения цены входа
	for ref, order := range m.pending {
		if order.kind == models.OrderMarket {
			continue
		}
		if err := m.exec.Cancel(ctx, m.symbol, ref); err != nil {
			logger.Warn("Не удалось отменить отложенный ордер, требуется сверка",
				zap.String("symbol", m.symbol),
				zap.String("ref", string(ref)),
				zap.Error(err))
		}
	}

	logger.Info("Каскадный план закрыт",
		zap.String("symbol", m.symbol),
		zap.String("reason", reason),
		zap.Int("trade_count", m.plan.TradeCount))

	m.pending = make(map[models.OrderRef]pendingOrder)
	m.position = nil
	m.wanted = nil
	m.plan.Stage = models.StageClosed
	return nil
}

// UpdatePrice пересчитывает нереализованную прибыль позиции по текущей цене
func (m *Machine) UpdatePrice(price float64) {
	if m.position == nil {
		return
	}
	m.position.UnrealizedProfit = (price - m.position.EntryPrice) * float64(m.position.Direction) * m.position.Size
}

// Snapshot возвращает минимальное состояние плана для персистентности
func (m *Machine) Snapshot() *models.PlanSnapshot {
	if m.plan == nil {
		return nil
	}
	return &models.PlanSnapshot{
		Symbol:     m.plan.Symbol,
		Stage:      m.plan.Stage,
		Direction:  m.plan.Direction,
		BaseLot:    m.plan.BaseLot,
		TradeCount: m.plan.TradeCount,
		EntryPrice: m.plan.EntryPrice,
		StopPrice:  m.plan.StopPrice,
	}
}

// nextLot размер следующего ордера каскада: base × (trade_count + 1)
func (m *Machine) nextLot() float64 {
	return m.plan.BaseLot * float64(m.plan.TradeCount+1)
}

// reachedLimit проверяет достижение предельной глубины каскада
func (m *Machine) reachedLimit() bool {
	if m.plan.TradeCount < m.cfg.MaxTrades {
		return false
	}
	logger.Warn("Достигнута предельная глубина каскада, эскалация остановлена",
		zap.String("symbol", m.symbol), zap.Int("trade_count", m.plan.TradeCount))
	return true
}

// place размещает ордер у исполнителя и учитывает его как отложенный.
// При ошибке ордер запоминается для повтора.
func (m *Machine) place(ctx context.Context, order pendingOrder) error {
	var ref models.OrderRef
	var err error
	switch order.kind {
	case models.OrderStop:
		ref, err = m.exec.PlaceStop(ctx, m.symbol, order.direction, order.price, order.size)
	case models.OrderLimit:
		ref, err = m.exec.PlaceLimit(ctx, m.symbol, order.direction, order.price, order.size)
	default:
		ref, err = m.exec.PlaceMarket(ctx, m.symbol, order.direction, order.size)
	}
	if err != nil {
		m.wanted = &order
		return err
	}
	m.wanted = nil
	m.pending[ref] = order
	logger.Debug("Размещен ордер каскада",
		zap.String("symbol", m.symbol),
		zap.String("kind", order.kind.String()),
		zap.String("direction", order.direction.String()),
		zap.Float64("price", order.price),
		zap.Float64("size", order.size))
	return nil
}

// applyFill применяет исполнение к нетто-позиции. Противоположное исполнение
// большего размера разворачивает позицию, вход пересчитывается при развороте.
func (m *Machine) applyFill(order pendingOrder, price float64) {
	var current float64
	entry := price
	stop := 0.0
	var openTime time.Time
	if m.position != nil {
		current = float64(m.position.Direction) * m.position.Size
		entry = m.position.EntryPrice
		stop = m.position.StopLoss
		openTime = m.position.OpenTime
	}
	if m.plan != nil {
		stop = m.plan.StopPrice
	}

	net := current + float64(order.direction)*order.size
	switch {
	case net == 0:
		m.position = nil
	default:
		direction := models.Buy
		if net < 0 {
			direction = models.Sell
		}
		flipped := m.position == nil || direction != m.position.Direction
		if flipped && price > 0 {
			entry = price
		}
		size := net
		if size < 0 {
			size = -size
		}
		m.position = &models.Position{
			Symbol:     m.symbol,
			Direction:  direction,
			EntryPrice: entry,
			Size:       size,
			StopLoss:   stop,
			OpenTime:   openTime,
		}
	}
}

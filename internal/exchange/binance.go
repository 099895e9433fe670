package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/skalibog/fxbot/internal/config"
	"github.com/skalibog/fxbot/pkg/logger"
	"github.com/skalibog/fxbot/pkg/models"
	"go.uber.org/zap"
)

const placeAttempts = 3

// ExecutionError возникает, когда площадка отклоняет ордер.
// План остается в текущей стадии, шаг каскада будет повторен.
type ExecutionError struct {
	Op  string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("ошибка исполнения (%s): %v", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Client клиент Binance: источник свечей и баланса, исполнитель ордеров
// и источник асинхронных уведомлений об их судьбе
type Client struct {
	futures *futures.Client
	events  chan models.OrderEvent

	mu   sync.Mutex
	refs map[int64]models.OrderRef
	ids  map[models.OrderRef]int64
}

// NewClient создает новый клиент Binance
func NewClient(cfg config.BinanceConfig) (*Client, error) {
	futures.UseTestnet = cfg.Testnet
	futuresClient := futures.NewClient(cfg.APIKey, cfg.APISecret)

	return &Client{
		futures: futuresClient,
		events:  make(chan models.OrderEvent, 64),
		refs:    make(map[int64]models.OrderRef),
		ids:     make(map[models.OrderRef]int64),
	}, nil
}

// GetKlines получает исторические свечи
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	klines, err := c.futures.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}

	candles := make([]*models.Candle, len(klines))
	for i, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closePrice, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)

		candles[i] = &models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  time.Unix(k.OpenTime/1000, 0),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			CloseTime: time.Unix(k.CloseTime/1000, 0),
		}
	}

	return candles, nil
}

// GetBalance возвращает баланс счета в котируемой валюте
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	balances, err := c.futures.NewGetBalanceService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения баланса: %w", err)
	}

	for _, b := range balances {
		if b.Asset == "USDT" {
			balance, err := strconv.ParseFloat(b.Balance, 64)
			if err != nil {
				return 0, fmt.Errorf("ошибка разбора баланса: %w", err)
			}
			return balance, nil
		}
	}

	return 0, fmt.Errorf("баланс USDT не найден")
}

// PlaceMarket размещает рыночный ордер
func (c *Client) PlaceMarket(ctx context.Context, symbol string, direction models.Direction, size float64) (models.OrderRef, error) {
	return c.place(ctx, "market", func() (*futures.CreateOrderResponse, error) {
		return c.futures.NewCreateOrderService().
			Symbol(symbol).
			Side(sideFor(direction)).
			Type(futures.OrderTypeMarket).
			Quantity(formatQuantity(size)).
			Do(ctx)
	})
}

// PlaceStop размещает стоп-ордер по указанной цене срабатывания
func (c *Client) PlaceStop(ctx context.Context, symbol string, direction models.Direction, price, size float64) (models.OrderRef, error) {
	return c.place(ctx, "stop", func() (*futures.CreateOrderResponse, error) {
		return c.futures.NewCreateOrderService().
			Symbol(symbol).
			Side(sideFor(direction)).
			Type(futures.OrderTypeStopMarket).
			StopPrice(formatPrice(price)).
			Quantity(formatQuantity(size)).
			Do(ctx)
	})
}

// PlaceLimit размещает лимитный ордер
func (c *Client) PlaceLimit(ctx context.Context, symbol string, direction models.Direction, price, size float64) (models.OrderRef, error) {
	return c.place(ctx, "limit", func() (*futures.CreateOrderResponse, error) {
		return c.futures.NewCreateOrderService().
			Symbol(symbol).
			Side(sideFor(direction)).
			Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(formatPrice(price)).
			Quantity(formatQuantity(size)).
			Do(ctx)
	})
}

// Cancel отменяет отложенный ордер
func (c *Client) Cancel(ctx context.Context, symbol string, ref models.OrderRef) error {
	c.mu.Lock()
	id, ok := c.ids[ref]
	c.mu.Unlock()
	if !ok {
		return &ExecutionError{Op: "cancel", Err: fmt.Errorf("неизвестный ордер %s", ref)}
	}

	_, err := c.futures.NewCancelOrderService().
		Symbol(symbol).
		OrderID(id).
		Do(ctx)
	if err != nil {
		return &ExecutionError{Op: "cancel", Err: err}
	}
	return nil
}

// Events возвращает канал уведомлений об ордерах
func (c *Client) Events() <-chan models.OrderEvent {
	return c.events
}

// StartUserStream подписывается на пользовательский поток площадки
// и транслирует судьбу ордеров в канал уведомлений
func (c *Client) StartUserStream(ctx context.Context) error {
	listenKey, err := c.futures.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return fmt.Errorf("ошибка открытия пользовательского потока: %w", err)
	}

	// Продление ключа потока каждые полчаса
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.futures.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx); err != nil {
					logger.Warn("Не удалось продлить ключ пользовательского потока", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	handler := func(event *futures.WsUserDataEvent) {
		if event.Event != futures.UserDataEventTypeOrderTradeUpdate {
			return
		}
		c.dispatch(event.OrderTradeUpdate)
	}
	errHandler := func(err error) {
		logger.Error("Ошибка пользовательского потока", zap.Error(err))
	}

	_, _, err = futures.WsUserDataServe(listenKey, handler, errHandler)
	if err != nil {
		return fmt.Errorf("ошибка подписки на пользовательский поток: %w", err)
	}
	return nil
}

// dispatch преобразует обновление ордера площадки в наше уведомление
func (c *Client) dispatch(update futures.WsOrderTradeUpdate) {
	c.mu.Lock()
	ref, ok := c.refs[update.ID]
	c.mu.Unlock()
	if !ok {
		// Чужой ордер, не наш каскад
		return
	}

	price, _ := strconv.ParseFloat(update.AveragePrice, 64)
	event := models.OrderEvent{
		Ref:       ref,
		Symbol:    update.Symbol,
		Price:     price,
		Timestamp: time.Now(),
	}

	switch update.Status {
	case futures.OrderStatusTypeFilled:
		// Исполнение стопа означает и его срабатывание
		if update.Type == futures.OrderTypeStopMarket {
			triggered := event
			triggered.Kind = models.EventTriggered
			c.emit(triggered)
		}
		event.Kind = models.EventFilled
		c.emit(event)
	case futures.OrderStatusTypeCanceled, futures.OrderStatusTypeExpired:
		event.Kind = models.EventCancelled
		c.emit(event)
	}
}

// emit отправляет уведомление без блокировки потока площадки
func (c *Client) emit(event models.OrderEvent) {
	select {
	case c.events <- event:
	default:
		logger.Warn("Канал уведомлений переполнен, уведомление отброшено",
			zap.String("symbol", event.Symbol), zap.String("ref", string(event.Ref)))
	}
}

// place выполняет размещение ордера с повторами и учетом соответствия
// внутреннего идентификатора ордеру площадки
func (c *Client) place(ctx context.Context, op string, create func() (*futures.CreateOrderResponse, error)) (models.OrderRef, error) {
	b := &backoff.Backoff{
		Min:    250 * time.Millisecond,
		Max:    2 * time.Second,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt < placeAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(b.Duration()):
			case <-ctx.Done():
				return "", &ExecutionError{Op: op, Err: ctx.Err()}
			}
		}

		resp, err := create()
		if err != nil {
			lastErr = err
			logger.Warn("Площадка отклонила ордер",
				zap.String("op", op), zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}

		ref := models.OrderRef(uuid.NewString())
		c.mu.Lock()
		c.refs[resp.OrderID] = ref
		c.ids[ref] = resp.OrderID
		c.mu.Unlock()
		return ref, nil
	}

	return "", &ExecutionError{Op: op, Err: lastErr}
}

func sideFor(direction models.Direction) futures.SideType {
	if direction == models.Sell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func formatQuantity(size float64) string {
	return strconv.FormatFloat(size, 'f', 2, 64)
}

func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', 5, 64)
}

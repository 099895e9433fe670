package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/skalibog/fxbot/internal/config"
	"github.com/skalibog/fxbot/pkg/models"
)

// Storage интерфейс для работы с хранилищем данных
type Storage interface {
	SaveCandles(ctx context.Context, candles []*models.Candle) error
	SaveSignal(ctx context.Context, signal *models.Signal) error
	GetSignalHistory(ctx context.Context, symbol string, limit int) ([]*models.Signal, error)
	SavePlanSnapshot(ctx context.Context, snapshot *models.PlanSnapshot) error
	LatestPlanSnapshot(ctx context.Context, symbol string) (*models.PlanSnapshot, error)
	Close()
}

// InfluxDBStorage реализует интерфейс Storage с использованием InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	return &InfluxDBStorage{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Organization),
		writeAPI: client.WriteAPI(cfg.Organization, cfg.Bucket),
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

// SaveCandles сохраняет свечи
func (s *InfluxDBStorage) SaveCandles(ctx context.Context, candles []*models.Candle) error {
	for _, candle := range candles {
		point := influxdb2.NewPoint(
			"candles",
			map[string]string{
				"symbol":   candle.Symbol,
				"interval": candle.Interval,
			},
			map[string]interface{}{
				"open":   candle.Open,
				"high":   candle.High,
				"low":    candle.Low,
				"close":  candle.Close,
				"volume": candle.Volume,
			},
			candle.OpenTime,
		)
		s.writeAPI.WritePoint(point)
	}

	s.writeAPI.Flush()
	return nil
}

// SaveSignal сохраняет торговый сигнал
func (s *InfluxDBStorage) SaveSignal(ctx context.Context, signal *models.Signal) error {
	point := influxdb2.NewPoint(
		"signals",
		map[string]string{
			"symbol": signal.Symbol,
		},
		map[string]interface{}{
			"direction": signal.Direction.String(),
			"stop_loss": signal.StopLoss,
			"price":     signal.Price,
		},
		signal.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()
	return nil
}

// GetSignalHistory получает историю сигналов
func (s *InfluxDBStorage) GetSignalHistory(ctx context.Context, symbol string, limit int) ([]*models.Signal, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "signals")
			|> filter(fn: (r) => r.symbol == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, s.bucket, symbol, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса истории сигналов: %w", err)
	}

	var signals []*models.Signal
	for result.Next() {
		record := result.Record()

		direction, _ := record.ValueByKey("direction").(string)
		stopLoss, _ := record.ValueByKey("stop_loss").(float64)
		price, _ := record.ValueByKey("price").(float64)

		signals = append(signals, &models.Signal{
			Symbol:    symbol,
			Direction: parseDirection(direction),
			StopLoss:  stopLoss,
			Price:     price,
			Timestamp: record.Time(),
		})
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return signals, nil
}

// SavePlanSnapshot сохраняет состояние каскадного плана для восстановления
func (s *InfluxDBStorage) SavePlanSnapshot(ctx context.Context, snapshot *models.PlanSnapshot) error {
	timestamp := snapshot.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	point := influxdb2.NewPoint(
		"plans",
		map[string]string{
			"symbol": snapshot.Symbol,
		},
		map[string]interface{}{
			"stage":       string(snapshot.Stage),
			"direction":   snapshot.Direction.String(),
			"base_lot":    snapshot.BaseLot,
			"trade_count": snapshot.TradeCount,
			"entry_price": snapshot.EntryPrice,
			"stop_price":  snapshot.StopPrice,
		},
		timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()
	return nil
}

// LatestPlanSnapshot возвращает последнее сохраненное состояние плана символа
func (s *InfluxDBStorage) LatestPlanSnapshot(ctx context.Context, symbol string) (*models.PlanSnapshot, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "plans")
			|> filter(fn: (r) => r.symbol == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: 1)
	`, s.bucket, symbol)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса состояния плана: %w", err)
	}

	if result.Next() {
		record := result.Record()

		stage, _ := record.ValueByKey("stage").(string)
		direction, _ := record.ValueByKey("direction").(string)
		baseLot, _ := record.ValueByKey("base_lot").(float64)
		tradeCount, _ := record.ValueByKey("trade_count").(int64)
		entryPrice, _ := record.ValueByKey("entry_price").(float64)
		stopPrice, _ := record.ValueByKey("stop_price").(float64)

		return &models.PlanSnapshot{
			Symbol:     symbol,
			Stage:      models.PlanStage(stage),
			Direction:  parseDirection(direction),
			BaseLot:    baseLot,
			TradeCount: int(tradeCount),
			EntryPrice: entryPrice,
			StopPrice:  stopPrice,
			Timestamp:  record.Time(),
		}, nil
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return nil, nil
}

// parseDirection восстанавливает направление из строкового представления
func parseDirection(s string) models.Direction {
	switch s {
	case "BUY":
		return models.Buy
	case "SELL":
		return models.Sell
	default:
		return models.None
	}
}

package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jpillora/backoff"
	"github.com/skalibog/fxbot/internal/config"
	"github.com/skalibog/fxbot/internal/indicators"
	"github.com/skalibog/fxbot/pkg/logger"
	"github.com/skalibog/fxbot/pkg/models"
	"go.uber.org/zap"
)

// Режимы работы консультационного сервиса
const (
	ModeOff       = "off"
	ModeAdvisory  = "advisory"
	ModeMandatory = "mandatory"
)

const requestAttempts = 2

// Verdict ответ консультационного сервиса
type Verdict struct {
	Approved   bool    `json:"approved"`
	ShouldExit bool    `json:"should_exit"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Client обращается к внешнему консультационному сервису за оценкой
// сделки. Сервис опционален: в режиме "advisory" вердикт только
// логируется, в режиме "mandatory" блокирует действие при низкой
// уверенности. Ошибки сервиса никогда не блокируют торговлю.
type Client struct {
	cfg  config.AdvisoryConfig
	http *http.Client
}

// NewClient создает клиент консультационного сервиса
func NewClient(cfg config.AdvisoryConfig) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Enabled сообщает, включен ли сервис
func (c *Client) Enabled() bool {
	return c.cfg.Mode != ModeOff && c.cfg.Endpoint != ""
}

// Mandatory сообщает, блокирует ли низкая уверенность действие
func (c *Client) Mandatory() bool {
	return c.cfg.Mode == ModeMandatory
}

// MinConfidence возвращает порог уверенности
func (c *Client) MinConfidence() float64 {
	return c.cfg.MinConfidence
}

type verifyRequest struct {
	Kind      string  `json:"kind"`
	Symbol    string  `json:"symbol"`
	Direction string  `json:"direction"`
	Price     float64 `json:"price"`
	StopLoss  float64 `json:"stop_loss,omitempty"`
	Entry     float64 `json:"entry,omitempty"`
	Profit    float64 `json:"profit,omitempty"`
	SMAFast   float64 `json:"sma_fast"`
	SMAMedium float64 `json:"sma_medium"`
	SMATrend  float64 `json:"sma_trend"`
	RSI       float64 `json:"rsi"`
}

// VerifyTradeSetup запрашивает оценку предполагаемой сделки перед открытием.
// При выключенном сервисе сделка одобряется с полной уверенностью;
// при ошибке сервиса сделка одобряется с нулевой уверенностью и логом.
func (c *Client) VerifyTradeSetup(ctx context.Context, sig models.Signal, snap *indicators.Snapshot) Verdict {
	if !c.Enabled() {
		return Verdict{Approved: true, Reason: "консультация отключена", Confidence: 1.0}
	}

	verdict, err := c.request(ctx, verifyRequest{
		Kind:      "verify",
		Symbol:    sig.Symbol,
		Direction: sig.Direction.String(),
		Price:     sig.Price,
		StopLoss:  sig.StopLoss,
		SMAFast:   snap.SMAFast,
		SMAMedium: snap.SMAMedium,
		SMATrend:  snap.SMATrend,
		RSI:       snap.RSI,
	})
	if err != nil {
		logger.Error("Ошибка консультации по сделке, сделка пропускается без блокировки",
			zap.String("symbol", sig.Symbol), zap.Error(err))
		return Verdict{Approved: true, Reason: fmt.Sprintf("ошибка консультации: %v", err), Confidence: 0}
	}

	logger.Info("Вердикт консультации по сделке",
		zap.String("symbol", sig.Symbol),
		zap.Bool("approved", verdict.Approved),
		zap.Float64("confidence", verdict.Confidence),
		zap.String("reason", verdict.Reason))
	return verdict
}

// MonitorTrade запрашивает рекомендацию по открытой позиции.
// При выключенном сервисе или ошибке выход не рекомендуется.
func (c *Client) MonitorTrade(ctx context.Context, pos *models.Position, snap *indicators.Snapshot, currentPrice float64) Verdict {
	if !c.Enabled() {
		return Verdict{Reason: "консультация отключена"}
	}

	verdict, err := c.request(ctx, verifyRequest{
		Kind:      "monitor",
		Symbol:    pos.Symbol,
		Direction: pos.Direction.String(),
		Price:     currentPrice,
		Entry:     pos.EntryPrice,
		Profit:    pos.UnrealizedProfit,
		SMAFast:   snap.SMAFast,
		SMAMedium: snap.SMAMedium,
		SMATrend:  snap.SMATrend,
		RSI:       snap.RSI,
	})
	if err != nil {
		logger.Error("Ошибка консультации по позиции, позиция удерживается",
			zap.String("symbol", pos.Symbol), zap.Error(err))
		return Verdict{Reason: fmt.Sprintf("ошибка консультации: %v", err)}
	}

	if verdict.ShouldExit {
		logger.Info("Консультация рекомендует выход",
			zap.String("symbol", pos.Symbol),
			zap.Float64("confidence", verdict.Confidence),
			zap.String("reason", verdict.Reason))
	}
	return verdict
}

// request выполняет запрос к сервису с повтором
func (c *Client) request(ctx context.Context, payload verifyRequest) (Verdict, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Verdict{}, fmt.Errorf("ошибка кодирования запроса: %w", err)
	}

	b := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    3 * time.Second,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt < requestAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(b.Duration()):
			case <-ctx.Done():
				return Verdict{}, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
		if err != nil {
			return Verdict{}, fmt.Errorf("ошибка формирования запроса: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		var verdict Verdict
		decodeErr := json.NewDecoder(resp.Body).Decode(&verdict)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("сервис вернул статус %d", resp.StatusCode)
			continue
		}
		if decodeErr != nil {
			lastErr = fmt.Errorf("ошибка разбора ответа: %w", decodeErr)
			continue
		}
		return verdict, nil
	}

	return Verdict{}, lastErr
}

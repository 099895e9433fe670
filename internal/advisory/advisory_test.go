package advisory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skalibog/fxbot/internal/config"
	"github.com/skalibog/fxbot/internal/indicators"
	"github.com/skalibog/fxbot/pkg/models"
)

func testSignal() models.Signal {
	return models.Signal{Symbol: "EURUSD", Direction: models.Buy, Price: 1.1000, StopLoss: 1.0950}
}

func testSnapshot() *indicators.Snapshot {
	return &indicators.Snapshot{SMAFast: 1.0980, SMAMedium: 1.0970, SMATrend: 1.0950, RSI: 62}
}

func TestDisabledApprovesEverything(t *testing.T) {
	client := NewClient(config.AdvisoryConfig{Mode: ModeOff, TimeoutSeconds: 1})

	if client.Enabled() {
		t.Error("выключенный сервис не должен быть включен")
	}

	verdict := client.VerifyTradeSetup(context.Background(), testSignal(), testSnapshot())
	if !verdict.Approved || verdict.Confidence != 1.0 {
		t.Errorf("вердикт = %+v, ожидалось одобрение с полной уверенностью", verdict)
	}

	verdict = client.MonitorTrade(context.Background(), &models.Position{Symbol: "EURUSD"}, testSnapshot(), 1.1000)
	if verdict.ShouldExit {
		t.Error("выключенный сервис не должен рекомендовать выход")
	}
}

func TestVerifyTradeSetup(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("не удалось разобрать запрос: %v", err)
		}
		if req["kind"] != "verify" || req["symbol"] != "EURUSD" {
			t.Errorf("запрос = %v, ожидался verify для EURUSD", req)
		}

		json.NewEncoder(w).Encode(Verdict{Approved: false, Reason: "слабый тренд", Confidence: 0.4})
	}))
	defer server.Close()

	client := NewClient(config.AdvisoryConfig{
		Mode:           ModeMandatory,
		Endpoint:       server.URL,
		APIKey:         "secret",
		MinConfidence:  0.7,
		TimeoutSeconds: 2,
	})

	verdict := client.VerifyTradeSetup(context.Background(), testSignal(), testSnapshot())
	if verdict.Approved {
		t.Error("сервис отклонил сделку, вердикт должен это отразить")
	}
	if verdict.Confidence != 0.4 || verdict.Reason != "слабый тренд" {
		t.Errorf("вердикт = %+v, ожидалась уверенность 0.4", verdict)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("авторизация = %q, ожидался Bearer-токен", gotAuth)
	}
	if !client.Mandatory() {
		t.Error("режим mandatory должен блокировать")
	}
}

func TestServiceErrorNeverBlocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(config.AdvisoryConfig{
		Mode:           ModeAdvisory,
		Endpoint:       server.URL,
		TimeoutSeconds: 2,
	})

	verdict := client.VerifyTradeSetup(context.Background(), testSignal(), testSnapshot())
	if !verdict.Approved {
		t.Error("ошибка сервиса не должна блокировать сделку")
	}
	if verdict.Confidence != 0 {
		t.Errorf("уверенность = %v, при ошибке ожидался ноль", verdict.Confidence)
	}

	verdict = client.MonitorTrade(context.Background(), &models.Position{Symbol: "EURUSD"}, testSnapshot(), 1.1000)
	if verdict.ShouldExit {
		t.Error("ошибка сервиса не должна рекомендовать выход")
	}
}

func TestMonitorTrade(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		if req["kind"] != "monitor" {
			t.Errorf("kind = %v, ожидался monitor", req["kind"])
		}
		json.NewEncoder(w).Encode(Verdict{ShouldExit: true, Reason: "разворот тренда", Confidence: 0.9})
	}))
	defer server.Close()

	client := NewClient(config.AdvisoryConfig{
		Mode:           ModeAdvisory,
		Endpoint:       server.URL,
		TimeoutSeconds: 2,
	})

	pos := &models.Position{Symbol: "EURUSD", Direction: models.Buy, EntryPrice: 1.1000, UnrealizedProfit: 20}
	verdict := client.MonitorTrade(context.Background(), pos, testSnapshot(), 1.1050)
	if !verdict.ShouldExit || verdict.Confidence != 0.9 {
		t.Errorf("вердикт = %+v, ожидалась рекомендация выхода", verdict)
	}
}

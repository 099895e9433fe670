package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skalibog/fxbot/internal/advisory"
	"github.com/skalibog/fxbot/internal/config"
	"github.com/skalibog/fxbot/internal/engine"
	"github.com/skalibog/fxbot/internal/exchange"
	"github.com/skalibog/fxbot/internal/storage"
	"github.com/skalibog/fxbot/internal/ui"
	"github.com/skalibog/fxbot/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Init()
	defer logger.GetLogger().Sync()

	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	flag.Parse()

	logger.Info("Проверка наличия файла конфигурации", zap.String("path", *configPath))
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Fatal("Файл конфигурации не найден", zap.String("path", *configPath))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Обработка сигналов завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nЗавершение работы...")
		cancel()
		time.Sleep(5 * time.Second) // Даем горутинам время на завершение
		os.Exit(0)
	}()

	// Инициализируем хранилище
	store, err := storage.NewInfluxDBStorage(cfg.Storage)
	if err != nil {
		logger.Fatal("Ошибка инициализации хранилища", zap.Error(err))
	}
	defer store.Close()

	// Инициализируем клиент биржи
	client, err := exchange.NewClient(cfg.Binance)
	if err != nil {
		logger.Fatal("Ошибка инициализации клиента биржи", zap.Error(err))
	}

	if err := client.StartUserStream(ctx); err != nil {
		logger.Fatal("Ошибка подписки на пользовательский поток", zap.Error(err))
	}

	advisor := advisory.NewClient(cfg.Advisory)

	eng := engine.New(cfg, client, client, store, client, client.Events(), advisor)

	// Сверка после перезапуска: нетерминальный план в хранилище означает,
	// что на площадке могли остаться ордера каскада
	for _, symbol := range cfg.Trading.Symbols {
		snapshot, err := store.LatestPlanSnapshot(ctx, symbol)
		if err != nil {
			logger.Warn("Не удалось получить сохраненный план", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if snapshot != nil && !snapshot.Stage.Terminal() {
			logger.Warn("Обнаружен незавершенный план, требуется сверка с площадкой",
				zap.String("symbol", symbol),
				zap.String("stage", string(snapshot.Stage)),
				zap.Int("trade_count", snapshot.TradeCount))
		}
	}

	// Инициализируем UI
	userInterface := ui.NewTermUI(cfg.UI)
	eng.SetNotifier(userInterface)

	// Запускаем циклы оценки в горутине
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Trading.IntervalSeconds) * time.Second)
		defer ticker.Stop()

		if err := eng.Run(ctx, ticker.C); err != nil && ctx.Err() == nil {
			logger.Error("Движок оценки завершился с ошибкой", zap.Error(err))
		}
	}()

	// Запускаем UI в основном потоке (блокирующий вызов)
	userInterface.Start()
	cancel()
}

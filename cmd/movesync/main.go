package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/movesync/internal/config"
	"github.com/annel0/movesync/internal/eventbus"
	"github.com/annel0/movesync/internal/game"
	"github.com/annel0/movesync/internal/logging"
	"github.com/annel0/movesync/internal/observability"
)

func main() {
	mode := flag.String("mode", "local", "Режим процесса: server | client | local")
	ip := flag.String("ip", "", "Адрес сервера (режим client)")
	port := flag.Int("port", 0, "KCP порт сервера; интенты идут на port+1")
	configPath := flag.String("config", "", "Путь к YAML конфигурации")
	flag.Parse()

	// Инициализируем систему логирования
	if err := logging.InitDefaultLogger("movesync-" + *mode); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("❌ Ошибка загрузки конфигурации: %v", err)
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	// Флаги перекрывают конфигурацию
	if *port > 0 {
		cfg.Server.Port = *port
		cfg.Client.Port = *port
	}
	if *ip != "" {
		cfg.Client.IP = *ip
	}

	logging.Info("🎮 Запуск movesync: mode=%s port=%d tick=%dHz", *mode, cfg.Server.GetPort(), cfg.Sim.GetTickRate())

	ctx := context.Background()

	// === ШИНА СОБЫТИЙ ===
	// Наблюдатели жизненного цикла подключаются к in-memory шине;
	// при настроенном NATS события зеркалируются в JetStream.
	bus := eventbus.NewMemoryBus(1024)
	eventbus.Init(bus)

	if err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("Не удалось запустить логирование событий: %v", err)
	}

	if cfg.EventBus.URL != "" {
		retention := time.Duration(cfg.EventBus.Retention) * time.Hour
		if retention <= 0 {
			retention = 24 * time.Hour
		}
		jsBus, err := eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream, retention)
		if err != nil {
			logging.Warn("NATS недоступен, события остаются локальными: %v", err)
		} else {
			if _, err := eventbus.MirrorTo(ctx, bus, jsBus); err != nil {
				logging.Warn("Не удалось включить зеркалирование событий: %v", err)
			}
			defer jsBus.Close()
		}
	}

	// === ТЕЛЕМЕТРИЯ ===
	if cfg.Tracing.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, "movesync-"+*mode)
		if err != nil {
			logging.Warn("OpenTelemetry не инициализирован: %v", err)
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logging.Warn("Ошибка остановки телеметрии: %v", err)
				}
			}()
		}
	}

	switch *mode {
	case "server":
		runServer(cfg, bus)
	case "client":
		runClient(ctx, cfg, bus)
	case "local":
		runLocal(ctx, cfg, bus)
	default:
		fmt.Fprintf(os.Stderr, "Неизвестный режим: %s (ожидается server | client | local)\n", *mode)
		os.Exit(2)
	}
}

// runServer поднимает авторитативный сервер и ждёт сигнала завершения
func runServer(cfg *config.Config, bus eventbus.EventBus) {
	metrics := game.NewServerMetrics()

	exporter := eventbus.NewMetricsExporter(bus)
	exporter.StartHTTP(fmt.Sprintf(":%d", cfg.Server.GetMetricsPort()))
	defer exporter.Stop()

	opts := game.OptionsFromConfig(cfg)
	opts.Bus = bus
	opts.Metrics = metrics

	server, err := game.NewGameServer(opts)
	if err != nil {
		logging.Error("❌ Ошибка создания сервера: %v", err)
		log.Fatalf("❌ Ошибка создания сервера: %v", err)
	}

	if err := server.Start(); err != nil {
		logging.Error("❌ Ошибка запуска сервера: %v", err)
		log.Fatalf("❌ Ошибка запуска сервера: %v", err)
	}

	logging.Info("✅ Сервер готов принимать соединения на %s", opts.Addr)

	waitForSignal()

	logging.Info("📡 Завершение работы сервера...")
	server.Stop()
	logging.Info("👋 Сервер успешно остановлен")
}

// runClient подключается к серверу и гоняет кадровый цикл до сигнала
// или потери соединения
func runClient(ctx context.Context, cfg *config.Config, bus eventbus.EventBus) {
	opts := game.ClientOptionsFromConfig(cfg)
	opts.Bus = bus
	// Headless клиент: источник ввода — случайное блуждание
	opts.Input = game.NewRandomWalkInput(opts.FrameRate, time.Now().UnixNano())

	client, err := game.NewClient(opts)
	if err != nil {
		logging.Error("❌ Ошибка создания клиента: %v", err)
		log.Fatalf("❌ Ошибка создания клиента: %v", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		logging.Error("❌ Ошибка подключения к %s: %v", opts.Addr, err)
		log.Fatalf("❌ Ошибка подключения: %v", err)
	}

	logging.Info("✅ Клиент подключён к %s", opts.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info("📡 Получен сигнал %v, отключение...", sig)
	case <-client.Done():
		logging.Info("📡 Соединение завершено сервером")
	}

	if err := client.Close(); err != nil {
		logging.Warn("Ошибка закрытия клиента: %v", err)
	}
	logging.Info("👋 Клиент успешно остановлен")
}

// runLocal поднимает сервер и клиента в одном процессе (режим одиночной игры)
func runLocal(ctx context.Context, cfg *config.Config, bus eventbus.EventBus) {
	metrics := game.NewServerMetrics()

	serverOpts := game.OptionsFromConfig(cfg)
	serverOpts.Bus = bus
	serverOpts.Metrics = metrics

	server, err := game.NewGameServer(serverOpts)
	if err != nil {
		logging.Error("❌ Ошибка создания сервера: %v", err)
		log.Fatalf("❌ Ошибка создания сервера: %v", err)
	}
	if err := server.Start(); err != nil {
		logging.Error("❌ Ошибка запуска сервера: %v", err)
		log.Fatalf("❌ Ошибка запуска сервера: %v", err)
	}

	clientOpts := game.ClientOptionsFromConfig(cfg)
	clientOpts.Bus = bus
	clientOpts.Input = game.NewRandomWalkInput(clientOpts.FrameRate, time.Now().UnixNano())

	client, err := game.NewClient(clientOpts)
	if err != nil {
		server.Stop()
		logging.Error("❌ Ошибка создания клиента: %v", err)
		log.Fatalf("❌ Ошибка создания клиента: %v", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		server.Stop()
		logging.Error("❌ Ошибка подключения: %v", err)
		log.Fatalf("❌ Ошибка подключения: %v", err)
	}

	logging.Info("✅ Локальный режим запущен: сервер и клиент в одном процессе")

	waitForSignal()

	logging.Info("📡 Завершение локального режима...")
	if err := client.Close(); err != nil {
		logging.Warn("Ошибка закрытия клиента: %v", err)
	}
	server.Stop()
	logging.Info("👋 Процесс успешно остановлен")
}

// waitForSignal блокируется до SIGINT/SIGTERM
func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Info("📡 Получен сигнал %v", sig)
}

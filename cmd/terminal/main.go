// cmd/terminal/main.go
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"perp-trading-terminal/internal/core/domain/account"
	"perp-trading-terminal/internal/core/domain/auth"
	"perp-trading-terminal/internal/core/domain/candles"
	"perp-trading-terminal/internal/core/domain/feeds"
	"perp-trading-terminal/internal/core/domain/orderbook"
	"perp-trading-terminal/internal/events"
	"perp-trading-terminal/internal/infrastructure/api/clob"
	rediscache "perp-trading-terminal/internal/infrastructure/cache/redis"
	"perp-trading-terminal/internal/infrastructure/config"
	"perp-trading-terminal/internal/infrastructure/persistence/postgres"
	"perp-trading-terminal/internal/infrastructure/transport/stream"
	"perp-trading-terminal/pkg/interval"
	"perp-trading-terminal/pkg/logger"
)

func main() {
	// Загружаем конфигурацию
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		log.Fatalf("Не удалось загрузить конфигурацию: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Некорректная конфигурация: %v", err)
	}

	if err := logger.InitGlobal(cfg.Logging.Path, cfg.Logging.Level, cfg.Logging.Debug); err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}

	printHeader("ТОРГОВЫЙ ТЕРМИНАЛ PERP-ФЬЮЧЕРСОВ")
	fmt.Printf("🔧 Конфигурация:\n")
	fmt.Printf("   API: %s\n", cfg.Backend.APIBase)
	fmt.Printf("   Поток: %s\n", cfg.Backend.WSURL)
	fmt.Printf("   Символ: %s\n", cfg.DefaultSymbol)
	fmt.Printf("   Тикерная лента: %s\n", strings.Join(cfg.WatchSymbols, ", "))
	fmt.Printf("   Глубина стакана: %d\n", cfg.MarketData.OrderBookDepth)
	fmt.Printf("   Лимит свечей: %d\n", cfg.MarketData.CandleLimit)
	fmt.Println()

	startTime := time.Now()

	// Шина событий
	bus := events.NewEventBus()
	bus.Start()

	// Сессия и REST-клиент
	sessionStore, err := auth.NewStore(cfg.Session.File)
	if err != nil {
		log.Fatalf("Не удалось открыть файл сессии: %v", err)
	}
	if cfg.Session.PendingReferralCode != "" {
		if err := sessionStore.SetPendingReferral(cfg.Session.PendingReferralCode); err != nil {
			logger.Warn("⚠️ Реферальный код не сохранен: %v", err)
		}
	}

	api := clob.NewClient(cfg.Backend.APIBase, cfg.Backend.RequestTimeout, sessionStore)

	// Realtime-поток
	streamClient := stream.NewClient(stream.Config{
		URL:               cfg.Backend.WSURL,
		ReconnectAttempts: cfg.Stream.ReconnectAttempts,
		ReconnectDelay:    cfg.Stream.ReconnectDelay,
		ReconnectDelayMax: cfg.Stream.ReconnectDelayMax,
		PingInterval:      cfg.Stream.PingInterval,
	}, nil, bus)

	if session := sessionStore.Current(); session != nil {
		streamClient.SetToken(session.Token)
	}

	// Доменные сервисы рыночных данных
	bookFeed := orderbook.NewFeed(streamClient, api, bus, cfg.MarketData.OrderBookDepth)
	candleStore := candles.NewStore(streamClient, api, bus, cfg.MarketData.CandleLimit)
	priceFeed := feeds.NewPriceFeed(streamClient, bus)
	tradeFeed := feeds.NewTradeFeed(streamClient, bus, cfg.MarketData.TradeFeedMax)
	lastPrices := feeds.NewLastPriceIndex(streamClient)

	// Пользовательские сервисы
	dispatcher := account.NewDispatcher(streamClient, bus)
	xpTracker := account.NewXPTracker(streamClient, api, bus)
	fundingState := account.NewFundingState(streamClient, bus)

	// Опциональный Redis для тёплого старта
	var redisService *rediscache.Service
	if cfg.Redis.Enabled {
		redisService = rediscache.NewService(&cfg.Redis)
		if err := redisService.Start(); err != nil {
			logger.Warn("⚠️ Redis недоступен, кэш отключен: %v", err)
			redisService = nil
		} else {
			writer := rediscache.NewCacheWriter(redisService.GetCache(), candleStore, priceFeed)
			for _, eventType := range writer.GetSubscribedEvents() {
				bus.Subscribe(eventType, writer)
			}
			candleStore.SetWarmSource(redisService.GetCache())
		}
	}

	// Опциональный журнал рыночных данных в PostgreSQL
	var journal *postgres.Journal
	if cfg.Database.Enabled {
		db, err := postgres.Connect(&cfg.Database)
		if err != nil {
			logger.Warn("⚠️ PostgreSQL недоступен, журнал отключен: %v", err)
		} else {
			defer db.Close()
			journal = postgres.NewJournal(db, streamClient)
		}
	}

	// Запуск: слушатели регистрируются до подключения потока,
	// чтобы не потерять первые события после установки соединения
	bookFeed.Start()
	candleStore.Start()
	priceFeed.Start()
	tradeFeed.Start()
	lastPrices.Start()
	dispatcher.Start()
	fundingState.Start()
	if journal != nil {
		journal.Start()
	}

	streamClient.Start()

	// Открываем рынок по умолчанию и тикерную ленту
	bookFeed.SetSymbol(cfg.DefaultSymbol)
	candleStore.SetSymbol(cfg.DefaultSymbol)
	tradeFeed.SetSymbol(cfg.DefaultSymbol)
	fundingState.SetSymbol(cfg.DefaultSymbol)
	lastPrices.SetSymbols(cfg.WatchSymbols)

	watchPerps := make([]string, 0, len(cfg.WatchSymbols))
	for _, sym := range cfg.WatchSymbols {
		watchPerps = append(watchPerps, clob.BaseSymbol(sym)+"-PERP")
	}
	priceFeed.SetSymbols(watchPerps)

	// Трекер опыта имеет смысл только с активной сессией
	if session := sessionStore.Current(); session != nil {
		xpTracker.Start()
		if err := xpTracker.Refresh(); err != nil {
			logger.Debug("Уровень будет загружен из событий потока")
		}
	}

	// Обработка сигналов для graceful shutdown
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	// Горутина для периодического вывода статуса
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		iteration := 1
		for range ticker.C {
			printStatus(startTime, iteration, cfg, streamClient, bookFeed, candleStore, tradeFeed)
			iteration++
		}
	}()

	fmt.Println("🎮 Управление:")
	fmt.Println("   Ctrl+C - Остановить терминал")
	fmt.Println()
	printSeparator()

	// Ожидание сигнала остановки
	<-stopChan

	fmt.Println()
	printHeader("Завершение работы")
	fmt.Printf("⏱️  Время работы: %s\n", formatDuration(time.Since(startTime)))

	if journal != nil {
		journal.Stop()
	}
	fundingState.Stop()
	dispatcher.Stop()
	xpTracker.Stop()
	lastPrices.Stop()
	tradeFeed.Stop()
	priceFeed.Stop()
	candleStore.Stop()
	bookFeed.Stop()
	streamClient.Stop()
	if redisService != nil {
		redisService.Stop()
	}
	bus.Stop()

	fmt.Println("✅ Терминал остановлен корректно")
}

func printStatus(startTime time.Time, iteration int, cfg *config.Config,
	client *stream.Client, bookFeed *orderbook.Feed,
	candleStore *candles.Store, tradeFeed *feeds.TradeFeed) {

	status := client.Status()

	fmt.Println(strings.Repeat("─", 80))
	fmt.Printf("📊 СТАТУС ТЕРМИНАЛА (итерация #%d)\n", iteration)
	fmt.Printf("   ⏱️  Время работы: %s\n", formatDuration(time.Since(startTime)))
	fmt.Printf("   🔌 Поток: %s, подписок: %d\n", status.State, status.Subscriptions)
	if status.LastError != "" {
		fmt.Printf("   ⚠️  Последняя ошибка потока: %s\n", status.LastError)
	}

	if book := bookFeed.Book(); book != nil {
		fmt.Printf("   📖 Стакан %s: bid %d / ask %d, спред %.4f (%.3f%%)\n",
			book.Symbol, len(book.Bids), len(book.Asks), book.Spread, book.SpreadPercent)
	} else {
		fmt.Printf("   📖 Стакан %s: ожидание снимка\n", cfg.DefaultSymbol)
	}

	var loaded int
	for _, iv := range interval.AllIntervals {
		data := candleStore.IntervalData(iv)
		if !data.IsLoading && data.Error == "" {
			loaded++
		}
	}
	fmt.Printf("   🕯️  Свечи: %d/%d таймфреймов загружено\n", loaded, len(interval.AllIntervals))
	fmt.Printf("   📜 Лента сделок: %d записей\n", len(tradeFeed.Trades()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	fmt.Printf("   💾 Память: %.2f MB\n", float64(m.Alloc)/1024/1024)
	fmt.Printf("   🧵 Горутин: %d\n", runtime.NumGoroutine())
	fmt.Println(strings.Repeat("─", 80))
	fmt.Println()
}

func printHeader(text string) {
	width := 80
	padding := (width - len(text)) / 2
	if padding < 0 {
		padding = 0
	}

	fmt.Println(strings.Repeat("═", width))
	fmt.Printf("%s%s%s\n",
		strings.Repeat(" ", padding),
		text,
		strings.Repeat(" ", width-len(text)-padding))
	fmt.Println(strings.Repeat("═", width))
}

func printSeparator() {
	fmt.Println(strings.Repeat("─", 80))
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	}
	return fmt.Sprintf("%dс", seconds)
}

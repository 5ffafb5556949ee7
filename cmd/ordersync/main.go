package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/ordersync/internal/api"
	"github.com/betbot/ordersync/internal/broker/paper"
	"github.com/betbot/ordersync/internal/metrics"
	"github.com/betbot/ordersync/internal/ports"
	"github.com/betbot/ordersync/internal/reconcile"
	"github.com/betbot/ordersync/internal/risk"
	"github.com/betbot/ordersync/pkg/config"
	"github.com/betbot/ordersync/pkg/journal"
	"github.com/betbot/ordersync/pkg/ledger"
	"github.com/betbot/ordersync/pkg/logger"
	"github.com/betbot/ordersync/pkg/shutdown"
)

const gracefulShutdownPeriod = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	envFile := flag.String("env", ".env", "环境变量文件（不存在时忽略）")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "未加载 %s，使用进程环境变量\n", *envFile)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		panic(fmt.Sprintf("初始化日志失败: %v", err))
	}

	if err := run(cfg); err != nil {
		logrus.Errorf("ordersync 退出: %v", err)
		_ = logger.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	seeds, err := buildSeeds(cfg.Symbols)
	if err != nil {
		return err
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sm := shutdown.NewManager()
	sm.OnShutdown("logger", func(ctx context.Context) error { return logger.Close() })

	// 策略持仓账本：badger（可选）+ 异步发布
	var (
		sink      ports.PositionLedger
		positions api.PositionSource
	)
	if cfg.LedgerPath != "" {
		store, err := ledger.OpenBadger(cfg.LedgerPath)
		if err != nil {
			return err
		}
		sm.OnShutdown("ledger_store", func(ctx context.Context) error { return store.Close() })
		sink, positions = store, store
		logrus.Infof("持仓账本: badger %s", cfg.LedgerPath)
	} else {
		mem := ledger.NewMemory()
		sink, positions = mem, mem
		logrus.Info("持仓账本: 内存")
	}
	entries, err := positions.Entries()
	if err != nil {
		return err
	}
	recencyFloor := ledger.MaxRecency(entries)
	if recencyFloor > 0 {
		logrus.Infof("持仓账本已有 %d 条记录，新鲜度从 %d 继续", len(entries), recencyFloor)
	}

	publisher := ledger.NewAsync(sink, cfg.CommandBuffer)
	go publisher.Run(rootCtx)
	sm.OnShutdown("ledger_publisher", publisher.Close)

	engineOpts := []reconcile.Option{
		reconcile.WithLedger(publisher),
		reconcile.WithRecencyFloor(recencyFloor),
	}
	apiOpts := []api.Option{api.WithPositions(positions)}

	// 成交记录（可选）
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return err
		}
		sm.OnShutdown("journal", func(ctx context.Context) error { return j.Close() })
		writer := journal.NewWriter(j, 0)
		go writer.Run(rootCtx)
		sm.OnShutdown("journal_writer", writer.Close)
		engineOpts = append(engineOpts, reconcile.WithFillRecorder(writer))
		apiOpts = append(apiOpts, api.WithFills(j))
		logrus.Infof("成交记录: sqlite %s", cfg.JournalPath)
	}

	broker := paper.New(paper.Config{
		AckDelay:         cfg.AckDelay(),
		RateLimit:        cfg.Paper.RateLimit,
		Burst:            cfg.Paper.Burst,
		FillMarketOrders: cfg.Paper.FillMarketOrders,
		RecencyFloor:     recencyFloor,
	})

	registry := reconcile.NewRegistry(func(symbol string) *reconcile.Worker {
		engine := reconcile.NewEngine(symbol, broker, engineOpts...)
		breaker := risk.NewCircuitBreaker(risk.CircuitBreakerConfig{
			MaxConsecutiveErrors: int64(cfg.Breaker.MaxConsecutiveErrors),
			Cooldown:             cfg.BreakerCooldown(),
		})
		return reconcile.NewWorker(engine,
			reconcile.WithResyncInterval(cfg.ResyncInterval()),
			reconcile.WithCommandBuffer(cfg.CommandBuffer),
			reconcile.WithCircuitBreaker(breaker),
		)
	})
	broker.SetRouter(registry.Listener)

	brokerDone := make(chan struct{})
	go func() {
		defer close(brokerDone)
		broker.Run(rootCtx)
	}()
	registry.Start(rootCtx)
	sm.OnShutdown("workers", func(ctx context.Context) error {
		return waitOrTimeout(ctx, func() {
			registry.Wait()
			<-brokerDone
		})
	})

	if err := seedSymbols(rootCtx, registry, broker, seeds); err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		if _, err := metrics.StartAsync(rootCtx, cfg.MetricsAddr); err != nil {
			logrus.Errorf("metrics/pprof 启动失败: %v", err)
		}
	}
	if cfg.APIAddr != "" {
		if _, err := api.New(registry, apiOpts...).StartAsync(rootCtx, cfg.APIAddr); err != nil {
			return err
		}
	}

	logrus.Infof("ordersync 已启动: %d 个标的", len(registry.Symbols()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logrus.Info("收到停止信号，正在关闭...")
	// 先 cancel root ctx：worker、券商分发与 HTTP 服务停止
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownPeriod)
	defer shutdownCancel()
	if failed := sm.Shutdown(shutdownCtx); failed > 0 {
		return fmt.Errorf("%d 个组件关闭失败", failed)
	}
	return nil
}

// seedSymbols 注册标的并发布配置中的初始目标持仓与逻辑订单
func seedSymbols(ctx context.Context, registry *reconcile.Registry, broker *paper.Broker, seeds []symbolSeed) error {
	for _, s := range seeds {
		if s.hasLastPrice {
			broker.SetLastPrice(s.symbol, s.lastPrice)
		}
		w := registry.Worker(s.symbol)
		if err := w.SetDesiredPosition(ctx, s.desiredPosition); err != nil {
			return err
		}
		for _, st := range s.strategies {
			if err := w.PublishLogicalOrders(ctx, st.id, st.position, st.orders); err != nil {
				return err
			}
		}
		logrus.WithField("symbol", s.symbol).Infof("标的已注册: 目标持仓=%d 策略数=%d", s.desiredPosition, len(s.strategies))
	}
	return nil
}

func waitOrTimeout(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

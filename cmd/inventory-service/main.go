// cmd/inventory-service/main.go
package main

import (
	"context"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"stockhold/internal/pkg/bootstrap"
	"stockhold/internal/pkg/config"
	"stockhold/internal/pkg/logger"
	"stockhold/internal/pkg/mq"
	"stockhold/internal/pkg/tracing"
	"stockhold/internal/service/inventory/application"
	"stockhold/internal/service/inventory/domain/port"
	"stockhold/internal/service/inventory/infrastructure"
	"stockhold/internal/service/inventory/infrastructure/adapter"
	"stockhold/internal/service/inventory/infrastructure/rule"
	"stockhold/internal/service/inventory/interfaces"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.App.ServiceName, cfg.Log.Level)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("inventory service exited")
	}
}

func run(cfg *config.Config) error {
	var (
		workers  []func(ctx context.Context) error
		cleanups []func(ctx context.Context) error
	)

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(cfg.App.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, tp.Shutdown)

	// 2. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// 3. 过期调度器
	var scheduler port.DelayScheduler
	switch cfg.App.ExpiryBackend {
	case config.ExpiryBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Infra.Redis.Addr,
			Password: cfg.Infra.Redis.Password,
			DB:       cfg.Infra.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return err
		}
		rs := adapter.NewRedisDelayScheduler(client, cfg.Infra.Redis.DelayKey, cfg.Infra.Redis.PollInterval, cfg.Infra.Redis.BatchSize)
		scheduler = rs
		workers = append(workers, rs.Run)
		cleanups = append(cleanups, func(context.Context) error { return client.Close() })
	default:
		ts := adapter.NewTimerScheduler()
		scheduler = ts
		cleanups = append(cleanups, func(context.Context) error { ts.Close(); return nil })
	}
	log.Info().Str("backend", cfg.App.ExpiryBackend).Dur("delay", cfg.App.ExpiryDelay).Msg("expiry scheduler ready")

	// 4. 事件发布: 日志 + WebSocket，配置了 broker 时再加上 Kafka
	hub := interfaces.NewEventHub()
	workers = append(workers, hub.Run)
	publishers := []port.EventPublisher{adapter.NewEventLogAdapter(), hub}
	if len(cfg.Infra.Kafka.Brokers) > 0 {
		writer := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.EventTopic)
		publishers = append(publishers, adapter.NewEventKafkaAdapter(writer))
		cleanups = append(cleanups, func(context.Context) error { return writer.Close() })
		log.Info().Strs("brokers", cfg.Infra.Kafka.Brokers).Str("topic", cfg.Infra.Kafka.EventTopic).Msg("kafka event publisher enabled")
	}

	// 5. 准入策略
	policy, err := rule.NewCELAdmissionPolicy(cfg.App.AdmissionPolicy)
	if err != nil {
		return err
	}

	// 6. 组装应用服务
	ledger := infrastructure.NewMemoryStockLedger()
	orders := infrastructure.NewMemoryOrderRegistry(nil)
	svc := application.NewReservationService(ledger, orders, scheduler,
		application.WithExpiryDelay(cfg.App.ExpiryDelay),
		application.WithPublisher(adapter.NewMultiPublisher(publishers...)),
		application.WithAdmissionPolicy(policy),
		application.WithMetrics(application.NewMetrics(reg)),
		application.WithStrictInvariants(cfg.App.StrictInvariants),
	)

	for _, p := range cfg.Seed {
		if err := svc.RegisterProduct(context.Background(), p.ID, p.Name, p.Count); err != nil {
			return err
		}
	}

	handler := interfaces.NewInventoryHandler(svc, hub, reg)
	return bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      cfg.App.ServiceName,
		Port:             cfg.App.Port,
		RegisterHandlers: func(mux *http.ServeMux) { handler.RegisterRoutes(mux) },
		Workers:          workers,
		Cleanups:         cleanups,
	})
}

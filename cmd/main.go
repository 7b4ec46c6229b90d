package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirsrus/telerelay/controller/ingest"
	"github.com/kirsrus/telerelay/controller/manager"
	"github.com/kirsrus/telerelay/pkg/config"
	"github.com/kirsrus/telerelay/pkg/logger"
	"github.com/kirsrus/telerelay/pkg/metric"
	"github.com/kirsrus/telerelay/service"
	kafkaSvcMod "github.com/kirsrus/telerelay/service/kafka"
	mqttSvcMod "github.com/kirsrus/telerelay/service/mqtt"
	natsSvcMod "github.com/kirsrus/telerelay/service/nats"
	streamSvcMod "github.com/kirsrus/telerelay/service/stream"
	webSvcMod "github.com/kirsrus/telerelay/service/web"
	wsfeedSvcMod "github.com/kirsrus/telerelay/service/wsfeed"
	dbStoreMod "github.com/kirsrus/telerelay/store/db"
	"github.com/kirsrus/telerelay/store/memory"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var (
	cfg *config.Config
	log *logrus.Logger
)

func main() {
	configFile := flag.StringP("config", "c", config.FileName, "файл конфигурации")
	logLevel := flag.StringP("log-level", "l", "", "уровень логирования (перекрывает конфигурацию)")
	port := flag.UintP("port", "p", 0, "порт WEB-сервера (перекрывает конфигурацию)")
	flag.Parse()

	cfg = config.GetWithPath(*configFile)
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *port != 0 {
		cfg.Http.Port = *port
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.WarnLevel
	}
	log = logger.GetWithConfig(logger.Config{
		File:    cfg.LogFile(),
		Level:   level,
		Console: cfg.Log.Console,
	})

	if err := run(); err != nil {
		fmt.Printf("ОШИБКА: в процессе работы произошла ошибка: %v\n", err)
		if file := cfg.LogFile(); file != "" && !cfg.Log.Console {
			fmt.Printf("Для подробностей смотри лог: %s\n", file)
		}
		log.Fatal(errors.ErrorStack(err))
	}
}

func run() error {
	// Отлавливаем сигнал завершения работы программы
	chanInterrupt := make(chan os.Signal, 1)
	signal.Notify(chanInterrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// region Хранилище телеметрии

	thresholds := cfg.InitialThresholds()
	telemetry, err := memory.NewTelemetry(&memory.ConfigTelemetry{
		Log:        log,
		Capacity:   cfg.Store.Capacity,
		Thresholds: &thresholds,
	})
	if err != nil {
		return errors.Trace(err)
	}

	// endregion
	// region Настройка БД

	managerConfig := manager.ConfigManager{
		Log:              log,
		Telemetry:        telemetry,
		DashboardHistory: uint(cfg.Store.DashboardHistory),
		ProbeCache:       time.Duration(cfg.Db.ProbeCache) * time.Second,
	}
	if !cfg.Db.Disabled {
		dsn := cfg.Db.Dsn
		if cfg.Db.Type == dbStoreMod.TypeSqlite && dsn == "" {
			dsn = cfg.DbFile()
		}
		dbStore, err := dbStoreMod.NewDb(ctx, &dbStoreMod.ConfigDb{
			Log:  log,
			Type: cfg.Db.Type,
			Dsn:  dsn,
		})
		if err != nil {
			return errors.Trace(err)
		}
		defer func() {
			if err := dbStore.Close(); err != nil {
				log.Warnf("ошибка закрытия БД: %v", err)
			}
		}()
		managerConfig.VisitStore = dbStore
	}

	// endregion
	// region Поток замеров и внешние шины

	streamSvc, err := streamSvcMod.NewHub(&streamSvcMod.ConfigHub{
		Log:                log,
		SubscriberCapacity: cfg.Http.StreamBuffer,
	})
	if err != nil {
		return errors.Trace(err)
	}
	managerConfig.StreamSvc = streamSvc

	sources := make(map[string]service.IngestSvc)
	if cfg.Mqtt.Enabled {
		mqttSvc, err := mqttSvcMod.NewMqtt(ctx, &mqttSvcMod.ConfigMqtt{
			Log:      log,
			Broker:   cfg.Mqtt.Broker,
			Topic:    cfg.Mqtt.Topic,
			ClientID: cfg.Mqtt.ClientID,
			Qos:      cfg.Mqtt.Qos,
		})
		if err != nil {
			return errors.Trace(err)
		}
		sources[metric.SourceMQTT] = mqttSvc
	}
	if cfg.Feed.Enabled {
		for i, url := range cfg.Feed.URLs {
			feedSvc, err := wsfeedSvcMod.NewFeed(ctx, &wsfeedSvcMod.ConfigFeed{
				Log: log,
				URL: url,
			})
			if err != nil {
				return errors.Trace(err)
			}
			sources[fmt.Sprintf("%s%d", metric.SourceFeed, i+1)] = feedSvc
		}
	}
	if len(sources) != 0 {
		ingestCtl, err := ingest.NewIngest(ctx, sources, &ingest.ConfigIngest{Log: log})
		if err != nil {
			return errors.Trace(err)
		}
		managerConfig.IngestCtl = ingestCtl
	}

	if cfg.Kafka.Enabled {
		relaySvc, err := kafkaSvcMod.NewKafka(ctx, &kafkaSvcMod.ConfigKafka{
			Log:           log,
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			QueueCapacity: cfg.Kafka.QueueCapacity,
		})
		if err != nil {
			return errors.Trace(err)
		}
		defer func() {
			if err := relaySvc.Close(); err != nil {
				log.Warnf("ошибка закрытия подключения к Kafka: %v", err)
			}
		}()
		managerConfig.RelaySvc = relaySvc
	}

	if cfg.Nats.Enabled {
		notifierSvc, err := natsSvcMod.NewNats(&natsSvcMod.ConfigNats{
			Log:     log,
			URL:     cfg.Nats.URL,
			Subject: cfg.Nats.Subject,
		})
		if err != nil {
			return errors.Trace(err)
		}
		defer func() { _ = notifierSvc.Close() }()
		managerConfig.NotifierSvc = notifierSvc
	}

	var metrics *metric.Metric
	if !cfg.Metrics.Disabled {
		metrics = metric.New()
		managerConfig.Metric = metrics
	}

	// endregion
	// region Менеджер управления всеми

	managerCtl, err := manager.NewManager(ctx, &managerConfig)
	if err != nil {
		return errors.Trace(err)
	}

	// endregion
	// region Контроллер WEB

	webSvc, err := webSvcMod.NewWeb(ctx, managerCtl, streamSvc, &webSvcMod.ConfigWeb{
		Log:         log,
		WebPort:     cfg.Http.Port,
		MetricsPath: cfg.Metrics.Path,
		Metric:      metrics,
	})
	if err != nil {
		return errors.Trace(err)
	}

	// endregion

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return errors.Trace(managerCtl.Serve())
	})
	g.Go(func() error {
		return errors.Trace(webSvc.Serve())
	})

	// Процесс завершения работы
	select {
	case <-chanInterrupt:
		log.Info("получена команда на завершение работы программы")
	case <-gctx.Done():
		log.Warn("одна из служб завершила работу")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := webSvc.Shutdown(shutdownCtx); err != nil {
		log.Warnf("ошибка остановки HTTP-сервера: %v", err)
	}

	return errors.Trace(g.Wait())
}

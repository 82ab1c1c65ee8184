// replayctl строит кеш записи, перематывает её и обслуживает REST API управления.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/annel0/replay-engine/internal/api"
	"github.com/annel0/replay-engine/internal/auth"
	"github.com/annel0/replay-engine/internal/config"
	"github.com/annel0/replay-engine/internal/container"
	"github.com/annel0/replay-engine/internal/eventbus"
	"github.com/annel0/replay-engine/internal/logging"
	"github.com/annel0/replay-engine/internal/metrics"
	"github.com/annel0/replay-engine/internal/observability"
	"github.com/annel0/replay-engine/internal/playback"
	"github.com/annel0/replay-engine/internal/protocol"
	"github.com/annel0/replay-engine/internal/state"
)

const usage = `Использование: replayctl <команда> [флаги] <запись>

Команды:
  analyze  построить кеш записи (каталог или .mcpr)
  seek     загрузить запись и перемотать по списку времён
  serve    загрузить запись и открыть REST API управления`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "analyze":
		err = runAnalyze(os.Args[2:])
	case "seek":
		err = runSeek(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logging.Error("❌ %v", err)
		logging.CloseLogger()
		os.Exit(1)
	}
	logging.CloseLogger()
}

// common - флаги, общие для всех команд
type common struct {
	configPath *string
	backend    *string
	protocol   *int
	logLevel   *string
}

func commonFlags(fs *flag.FlagSet) *common {
	return &common{
		configPath: fs.String("config", "", "YAML файл конфигурации (по умолчанию REPLAY_CONFIG)"),
		backend:    fs.String("cache", "", "хранилище кеша: file, badger, redis, memory"),
		protocol:   fs.Int("protocol", 0, "версия протокола; 0 - из метаданных записи"),
		logLevel:   fs.String("log", "", "уровень логирования"),
	}
}

// env - собранное окружение одной команды
type env struct {
	cfg       *config.Config
	container container.Container
	registry  *protocol.Registry
	reg       *prometheus.Registry
	metrics   *metrics.Collector
	bus       eventbus.EventBus
	closers   []func()
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func setup(ctx context.Context, c *common, path string) (*env, error) {
	cfg, err := config.Load(*c.configPath)
	if err != nil {
		return nil, err
	}
	if *c.backend != "" {
		cfg.Cache.Backend = *c.backend
	}
	if *c.protocol != 0 {
		cfg.Protocol.Version = int32(*c.protocol)
	}
	if *c.logLevel != "" {
		cfg.Logging.Level = *c.logLevel
	}

	if err := logging.InitLogger(logging.Options{
		Level: logging.ParseLevel(cfg.Logging.Level),
		Dir:   cfg.Logging.Dir,
	}); err != nil {
		log.Printf("❌ Ошибка инициализации логирования: %v", err)
	}

	e := &env{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			e.close()
		}
	}()

	rec, err := container.OpenRecording(path)
	if err != nil {
		return nil, err
	}
	slots, err := openSlots(ctx, cfg, path)
	if err != nil {
		_ = rec.Close()
		return nil, err
	}
	e.container = container.New(rec, slots)
	e.closers = append(e.closers, func() {
		if err := e.container.Close(); err != nil {
			logging.Warn("Ошибка закрытия записи: %v", err)
		}
	})

	version := protocol.Version(cfg.Protocol.Version)
	if version == 0 {
		meta, err := e.container.Meta(ctx)
		if err != nil {
			return nil, err
		}
		version = protocol.Version(meta.Protocol)
	}
	if e.registry, err = protocol.NewRegistry(version); err != nil {
		return nil, err
	}

	e.reg = prometheus.NewRegistry()
	e.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	e.metrics = metrics.New("replay", e.reg)

	if err := e.setupEvents(ctx); err != nil {
		return nil, err
	}

	shutdown, err := observability.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		logging.Warn("⚠️ Трассировка отключена: %v", err)
	} else {
		e.closers = append(e.closers, func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		})
	}

	ok = true
	return e, nil
}

// setupEvents поднимает шину событий: JetStream, если задан URL, иначе память
func (e *env) setupEvents(ctx context.Context) error {
	if url := e.cfg.EventBus.URL; url != "" {
		js, err := eventbus.NewJetStreamBus(url, e.cfg.EventBus.Stream, e.cfg.EventBus.GetRetention())
		if err != nil {
			return err
		}
		e.bus = js
	} else {
		e.bus = eventbus.NewMemoryBus(256)
	}
	e.closers = append(e.closers, func() { _ = e.bus.Close() })

	sub, err := eventbus.StartLoggingListener(ctx, e.bus)
	if err != nil {
		return err
	}
	e.closers = append(e.closers, sub.Unsubscribe)

	exporter := eventbus.NewMetricsExporter(e.bus, e.reg, 5*time.Second)
	exporter.Start()
	e.closers = append(e.closers, exporter.Stop)
	return nil
}

// openSlots выбирает хранилище кеша по конфигурации
func openSlots(ctx context.Context, cfg *config.Config, path string) (container.Slots, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	// Кеши разных записей в общих хранилищах разделяются префиксом
	prefix := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs)) + "/"

	switch backend := cfg.Cache.GetBackend(); backend {
	case config.BackendFile:
		dir := cfg.Cache.Dir
		switch {
		case dir != "":
			dir = filepath.Join(dir, prefix)
		case filepath.Ext(abs) == "":
			dir = abs
		default:
			dir = strings.TrimSuffix(abs, filepath.Ext(abs)) + ".cache"
		}
		return container.NewFileSlots(dir)
	case config.BackendBadger:
		dbPath := cfg.Cache.BadgerPath
		if dbPath == "" {
			dbPath = filepath.Join(filepath.Dir(abs), ".replay-cache")
		}
		return container.OpenBadgerSlots(dbPath, prefix)
	case config.BackendRedis:
		rc := container.DefaultRedisConfig()
		rc.Addr = cfg.Cache.GetRedisAddr()
		rc.Password = cfg.Cache.Redis.Password
		rc.DB = cfg.Cache.Redis.DB
		rc.TTL = cfg.Cache.GetRedisTTL()
		slots, err := container.NewRedisSlots(ctx, rc)
		if err != nil {
			return nil, err
		}
		return slots.Scope(prefix), nil
	case config.BackendMemory:
		return container.NewMemorySlots(), nil
	default:
		return nil, fmt.Errorf("неизвестное хранилище кеша: %s", backend)
	}
}

func (e *env) controller(sink state.Sink) *playback.Controller {
	opts := []playback.Option{
		playback.WithMetrics(e.metrics),
		playback.WithEventBus(e.bus),
	}
	if e.cfg.Cache.ChunkSize > 0 {
		opts = append(opts, playback.WithChunkSize(e.cfg.Cache.ChunkSize))
	}
	return playback.New(e.container, e.registry, sink, opts...)
}

// progressPrinter печатает прогресс раз в 10%
func progressPrinter() func(float64) {
	last := -1
	return func(p float64) {
		step := int(p * 10)
		if step != last {
			last = step
			logging.Info("⏳ %3.0f%%", p*100)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	c := commonFlags(fs)
	summary := fs.Bool("summary", false, "вывести сводку модели после построения")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("нужен путь к записи")
	}

	ctx, cancel := signalContext()
	defer cancel()
	e, err := setup(ctx, c, fs.Arg(0))
	if err != nil {
		return err
	}
	defer e.close()

	ctl := e.controller(state.Discard)
	started := time.Now()
	if err := ctl.Load(ctx, progressPrinter()); err != nil {
		return err
	}
	defer ctl.Release()
	logging.Info("✅ Кеш готов за %v, длительность записи %d мс", time.Since(started), ctl.Duration())

	if *summary {
		s, err := ctl.Summary()
		if err != nil {
			return err
		}
		printSummary(s)
	}
	return nil
}

func printSummary(s state.Summary) {
	fmt.Printf("Изменения возможностей: %d, тегов: %d, миров: %d\n", len(s.Features), len(s.Tags), len(s.Worlds))
	for _, w := range s.Worlds {
		fmt.Printf("  мир с %d мс: измерение %q, объектов %d\n", w.Start, w.Info.Dimension, len(w.Things))
	}
}

func runSeek(args []string) error {
	fs := flag.NewFlagSet("seek", flag.ExitOnError)
	c := commonFlags(fs)
	times := fs.String("t", "", "времена перемотки в мс через запятую")
	out := fs.String("out", "", "файл .tmcpr для отправленных пакетов")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("нужен путь к записи")
	}
	targets, err := parseTimes(*times)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	e, err := setup(ctx, c, fs.Arg(0))
	if err != nil {
		return err
	}
	defer e.close()

	stats := api.NewPacketStats()
	var (
		target int32
		sink   = stats.Sink(nil)
	)
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		bw := bufio.NewWriter(f)
		defer bw.Flush()
		rw := protocol.NewRecordingWriter(bw)
		sink = stats.Sink(func(p protocol.Packet) error {
			if p.ID < 0 {
				return nil
			}
			return rw.WritePacket(target, p)
		})
	}

	ctl := e.controller(sink)
	if err := ctl.Load(ctx, progressPrinter()); err != nil {
		return err
	}
	defer ctl.Release()

	for _, target = range targets {
		started := time.Now()
		if err := ctl.Seek(target); err != nil {
			return fmt.Errorf("перемотка на %d: %w", target, err)
		}
		logging.Info("⏩ %d мс за %v", target, time.Since(started))
	}
	for kind, n := range stats.Counts() {
		fmt.Printf("%-24s %d\n", kind, n)
	}
	return nil
}

func parseTimes(s string) ([]int32, error) {
	var out []int32
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseInt(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("неверное время %q: %w", part, err)
		}
		out = append(out, int32(v))
	}
	if len(out) == 0 {
		return nil, errors.New("не заданы времена перемотки")
	}
	return out, nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	c := commonFlags(fs)
	issue := fs.Bool("issue-token", true, "выпустить токен управления при старте")
	preload := fs.Bool("load", true, "загрузить запись до запуска API")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("нужен путь к записи")
	}

	ctx, cancel := signalContext()
	defer cancel()
	e, err := setup(ctx, c, fs.Arg(0))
	if err != nil {
		return err
	}
	defer e.close()

	signer, err := auth.NewSignerFromBase64(e.cfg.API.GetJWTSecret(), 0)
	if err != nil {
		return err
	}
	if *issue {
		token, err := signer.Generate("replayctl", true)
		if err != nil {
			return err
		}
		logging.Info("🔐 Токен управления: %s", token)
	}

	stats := api.NewPacketStats()
	ctl := e.controller(stats.Sink(nil))
	defer ctl.Release()
	if *preload {
		if err := ctl.Load(ctx, progressPrinter()); err != nil {
			return err
		}
	}

	server := api.NewRestServer(api.Config{
		Port:       fmt.Sprintf(":%d", e.cfg.API.GetPort()),
		Controller: ctl,
		Signer:     signer,
		Summary:    func() (interface{}, error) { return ctl.Summary() },
		Packets:    stats,
		Registry:   e.reg,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	logging.Info("✅ Сервис запущен, запись %s", fs.Arg(0))
	logging.Info("   ❤️  Health check: http://localhost:%d/health", e.cfg.API.GetPort())

	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал, завершение работы...")
	case err := <-errCh:
		return err
	}

	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	return server.Stop(sctx)
}

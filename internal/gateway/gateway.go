// Package gateway wires the engine together: storage, model client, capture
// loop, query engine, alert delivery and the daily maintenance job.
package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/retracehq/retrace/internal/alert"
	"github.com/retracehq/retrace/internal/bus"
	"github.com/retracehq/retrace/internal/capture"
	"github.com/retracehq/retrace/internal/config"
	"github.com/retracehq/retrace/internal/notify"
	"github.com/retracehq/retrace/internal/query"
	"github.com/retracehq/retrace/internal/store"
	"github.com/retracehq/retrace/internal/vision"
)

// maintenanceSpec runs retention eviction nightly, off the busy hours.
const maintenanceSpec = "0 3 * * *"

// timeNow is swapped in tests that need a fixed clock.
var timeNow = time.Now

// Options allow tests to substitute the screen, the model and the signal
// source.
type Options struct {
	DataDir         string
	Sampler         capture.Sampler
	AnalyzerFactory capture.AnalyzerFactory
	SignalChan      chan os.Signal
}

// Service is the assembled engine.
type Service struct {
	cfg       *config.Config
	store     *store.Store
	bus       *bus.AlertBus
	inspector *alert.Inspector
	scheduler *capture.Scheduler
	engine    *query.Engine
	exchanges *vision.ExchangeLog
	cron      *cron.Cron

	newAnalyzer capture.AnalyzerFactory
	signalChan  chan os.Signal
}

func New(cfg *config.Config) (*Service, error) {
	return NewWithOptions(cfg, Options{})
}

func NewWithOptions(cfg *config.Config, opts Options) (*Service, error) {
	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = config.DataDir()
	}

	st, err := store.New(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	exchanges, err := vision.OpenExchangeLog(filepath.Join(dataDir, "logs", "exchanges.db"))
	if err != nil {
		return nil, fmt.Errorf("open exchange log: %w", err)
	}

	factory := opts.AnalyzerFactory
	if factory == nil {
		factory = func(mc config.ModelConfig) (vision.Analyzer, error) {
			return vision.New(mc, exchanges)
		}
	}
	sampler := opts.Sampler
	if sampler == nil {
		sampler = &capture.ScreenSampler{}
	}

	b := bus.NewAlertBus(bus.DefaultBufSize)
	b.Subscribe("console", func(a bus.Alert) {
		line := fmt.Sprintf("[alert] %s (%s): %s", a.Kind, a.ErrorType, a.Message)
		if a.Suggestion != "" {
			line += " | suggestion: " + a.Suggestion
		}
		log.Print(line)
	})
	inspector := alert.NewInspector(b)

	s := &Service{
		cfg:         cfg,
		store:       st,
		bus:         b,
		inspector:   inspector,
		scheduler:   capture.NewScheduler(st, inspector, sampler, factory),
		engine:      query.NewEngine(st),
		exchanges:   exchanges,
		cron:        cron.New(),
		newAnalyzer: factory,
		signalChan:  opts.SignalChan,
	}

	if cfg.Notify.Telegram.Enabled {
		sink, err := notify.NewTelegramSink(cfg.Notify.Telegram)
		if err != nil {
			log.Printf("[gateway] telegram sink disabled: %v", err)
		} else {
			sink.Attach(b)
		}
	}

	if _, err := s.cron.AddFunc(maintenanceSpec, func() {
		if err := s.Maintain(); err != nil {
			log.Printf("[gateway] maintenance: %v", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule maintenance: %w", err)
	}

	return s, nil
}

// Run starts dispatch, cron and (if configured) capture, then blocks until
// a termination signal arrives.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.bus.Dispatch(ctx)
	s.cron.Start()

	if s.cfg.Capture.Enabled {
		if err := s.StartCapture(); err != nil {
			log.Printf("[gateway] capture start warning: %v", err)
		}
	}

	if err := s.Maintain(); err != nil {
		log.Printf("[gateway] startup maintenance: %v", err)
	}

	sigCh := s.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}

	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Printf("[gateway] shutting down...")
	return s.Shutdown()
}

// Shutdown stops capture (letting an in-flight analysis finish), the cron
// scheduler and the exchange log.
func (s *Service) Shutdown() error {
	s.scheduler.Stop()
	<-s.cron.Stop().Done()
	if err := s.exchanges.Close(); err != nil {
		return fmt.Errorf("close exchange log: %w", err)
	}
	return nil
}

func (s *Service) StartCapture() error {
	return s.scheduler.Start(*s.cfg)
}

func (s *Service) StopCapture() {
	s.scheduler.Stop()
}

func (s *Service) Status() capture.Status {
	return s.scheduler.Status()
}

// History returns the raw records of one day (YYYY-MM-DD).
func (s *Service) History(date string) ([]store.SummaryRecord, error) {
	return s.store.Summaries(date)
}

// Latest returns today's newest record, or nil when the day is empty.
func (s *Service) Latest() (*store.SummaryRecord, error) {
	records, err := s.store.Summaries(timeNow().Format(store.DayLayout))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[len(records)-1], nil
}

func (s *Service) Days() ([]string, error) {
	return s.store.Days()
}

// Search answers a natural-language query with matching records.
func (s *Service) Search(rawQuery string) (*query.Result, error) {
	return s.engine.Search(rawQuery, timeNow())
}

// Context renders a search result into the bounded text block fed to the
// model on the Ask path.
func (s *Service) Context(result *query.Result, includeDetail bool) string {
	return query.BuildContext(result, s.cfg.Storage.MaxContextChars, includeDetail)
}

// Ask answers a question about past activity: it searches, renders the
// matches into a bounded context and lets the model answer over it.
func (s *Service) Ask(ctx context.Context, question string) (string, error) {
	result, err := s.engine.Search(question, timeNow())
	if err != nil {
		return "", fmt.Errorf("search: %w", err)
	}

	contextText := s.Context(result, wantsDetail(question))
	analyzer, err := s.newAnalyzer(s.cfg.Model)
	if err != nil {
		return "", fmt.Errorf("build model client: %w", err)
	}
	answer, err := analyzer.Chat(ctx, contextText, question)
	if err != nil {
		return "", fmt.Errorf("model: %w", err)
	}
	return answer, nil
}

// detailMarkers are question words that ask for specifics rather than an
// overview; they switch the context to include record detail text.
var detailMarkers = []string{"detail", "exact", "specifically", "verbatim", "error message", "what did it say"}

func wantsDetail(question string) bool {
	lower := strings.ToLower(question)
	for _, marker := range detailMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// SelfTest verifies the configured model backend end to end and returns
// its reply.
func (s *Service) SelfTest(ctx context.Context) (string, error) {
	analyzer, err := s.newAnalyzer(s.cfg.Model)
	if err != nil {
		return "", fmt.Errorf("build model client: %w", err)
	}
	reply, err := analyzer.Chat(ctx, "", "Reply with the single word OK.")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s: %s", analyzer.Name(), strings.TrimSpace(reply)), nil
}

// Maintain applies retention policy: old partitions, screenshots and log
// snapshots beyond the retention window, and records over the count cap.
func (s *Service) Maintain() error {
	return s.store.Maintain(s.cfg.Storage.RetentionDays, s.cfg.Storage.MaxScreenshots, timeNow())
}

func (s *Service) Config() config.Config {
	return *s.cfg
}

// ApplyConfig validates, persists and applies a new configuration. A
// running capture loop picks it up at its next tick.
func (s *Service) ApplyConfig(cfg config.Config) error {
	cfg.Normalize()
	if err := config.SaveConfig(&cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if err := s.scheduler.Apply(cfg); err != nil {
		return err
	}
	*s.cfg = cfg
	return nil
}

// Profile operations: named saved configurations.

func (s *Service) ListProfiles() ([]string, error) {
	return config.ListProfiles()
}

func (s *Service) SaveProfile(name string) error {
	return config.SaveProfile(name, s.cfg)
}

// LoadProfile applies a saved profile as the live configuration.
func (s *Service) LoadProfile(name string) error {
	cfg, err := config.LoadProfile(name)
	if err != nil {
		return err
	}
	return s.ApplyConfig(*cfg)
}

func (s *Service) DeleteProfile(name string) error {
	return config.DeleteProfile(name)
}

// RecentExchanges exposes the model diagnostics log.
func (s *Service) RecentExchanges(n int) ([]vision.Exchange, error) {
	return s.exchanges.Recent(n)
}

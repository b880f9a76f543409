package gateway

import (
	"context"
	"image"
	"image/color"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/retracehq/retrace/internal/config"
	"github.com/retracehq/retrace/internal/store"
	"github.com/retracehq/retrace/internal/vision"
)

type fakeAnalyzer struct {
	analyzeOut string
	chatOut    string
	lastChat   atomic.Value
}

func (f *fakeAnalyzer) Name() string { return "fake" }

func (f *fakeAnalyzer) Analyze(ctx context.Context, imageB64, prompt string) (string, error) {
	return f.analyzeOut, nil
}

func (f *fakeAnalyzer) Chat(ctx context.Context, contextText, question string) (string, error) {
	f.lastChat.Store(contextText)
	return f.chatOut, nil
}

type staticSampler struct{ n atomic.Int64 }

func (s *staticSampler) Sample() (image.Image, error) {
	i := s.n.Add(1)
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if (x+int(i))%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img, nil
}

func newTestService(t *testing.T, analyzer *fakeAnalyzer) *Service {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("RETRACE_DATA_DIR", dir)

	cfg := config.DefaultConfig()
	cfg.Capture.IntervalMS = 10

	s, err := NewWithOptions(cfg, Options{
		DataDir: dir,
		Sampler: &staticSampler{},
		AnalyzerFactory: func(config.ModelConfig) (vision.Analyzer, error) {
			return analyzer, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

const analysisOut = `{"summary":"Editing report.md","detail":"markdown file","app":"Obsidian","has_issue":false,"confidence":0.8}`

func TestServiceCaptureLifecycle(t *testing.T) {
	s := newTestService(t, &fakeAnalyzer{analyzeOut: analysisOut})

	if s.Status().Running {
		t.Fatal("should start stopped")
	}
	if err := s.StartCapture(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	s.StopCapture()

	st := s.Status()
	if st.Running {
		t.Fatal("should be stopped")
	}
	if st.Records == 0 {
		t.Fatal("no records captured")
	}

	records, err := s.History(time.Now().Format(store.DayLayout))
	if err != nil {
		t.Fatal(err)
	}
	if int64(len(records)) != st.Records {
		t.Fatalf("history has %d records, status says %d", len(records), st.Records)
	}
}

func TestServiceAskFeedsContextToModel(t *testing.T) {
	analyzer := &fakeAnalyzer{chatOut: "You were editing report.md."}
	s := newTestService(t, analyzer)

	now := time.Now()
	if err := s.store.Append(store.SummaryRecord{
		Timestamp: now.Add(-time.Minute).Format(store.TimeLayout),
		Summary:   "Editing report.md",
		App:       "Obsidian",
	}); err != nil {
		t.Fatal(err)
	}

	answer, err := s.Ask(context.Background(), "what was I doing in the last 10 minutes")
	if err != nil {
		t.Fatal(err)
	}
	if answer != "You were editing report.md." {
		t.Fatalf("answer = %q", answer)
	}

	contextText, _ := analyzer.lastChat.Load().(string)
	if !strings.Contains(contextText, "Editing report.md") {
		t.Fatalf("model context missing the record:\n%s", contextText)
	}
}

func TestServiceLatest(t *testing.T) {
	s := newTestService(t, &fakeAnalyzer{})

	latest, err := s.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if latest != nil {
		t.Fatalf("empty day should yield nil, got %+v", latest)
	}

	now := time.Now()
	for i, summary := range []string{"first", "second"} {
		if err := s.store.Append(store.SummaryRecord{
			Timestamp: now.Add(time.Duration(i) * time.Second).Format(store.TimeLayout),
			Summary:   summary,
		}); err != nil {
			t.Fatal(err)
		}
	}

	latest, err = s.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.Summary != "second" {
		t.Fatalf("latest = %+v", latest)
	}
}

func TestServiceSelfTest(t *testing.T) {
	s := newTestService(t, &fakeAnalyzer{chatOut: "OK"})

	out, err := s.SelfTest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out != "fake: OK" {
		t.Fatalf("selftest = %q", out)
	}
}

func TestServiceApplyConfigPersists(t *testing.T) {
	s := newTestService(t, &fakeAnalyzer{})

	cfg := s.Config()
	cfg.Capture.IntervalMS = 5000
	if err := s.ApplyConfig(cfg); err != nil {
		t.Fatal(err)
	}
	if got := s.Config().Capture.IntervalMS; got != 5000 {
		t.Fatalf("live interval = %d", got)
	}

	loaded, err := config.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Capture.IntervalMS != 5000 {
		t.Fatalf("persisted interval = %d", loaded.Capture.IntervalMS)
	}
}

func TestServiceProfileRoundTrip(t *testing.T) {
	s := newTestService(t, &fakeAnalyzer{})

	cfg := s.Config()
	cfg.Capture.IntervalMS = 2500
	if err := s.ApplyConfig(cfg); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveProfile("work"); err != nil {
		t.Fatal(err)
	}

	cfg.Capture.IntervalMS = 9999
	if err := s.ApplyConfig(cfg); err != nil {
		t.Fatal(err)
	}

	if err := s.LoadProfile("work"); err != nil {
		t.Fatal(err)
	}
	if got := s.Config().Capture.IntervalMS; got != 2500 {
		t.Fatalf("interval after profile load = %d", got)
	}

	names, err := s.ListProfiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "work" {
		t.Fatalf("profiles = %v", names)
	}
	if err := s.DeleteProfile("work"); err != nil {
		t.Fatal(err)
	}
}

func TestServiceMaintainEvictsOldDays(t *testing.T) {
	s := newTestService(t, &fakeAnalyzer{})

	old := time.Now().AddDate(0, 0, -30)
	if err := s.store.Append(store.SummaryRecord{
		Timestamp: old.Format(store.TimeLayout),
		Summary:   "ancient activity",
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.Maintain(); err != nil {
		t.Fatal(err)
	}
	days, err := s.Days()
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range days {
		if d == old.Format(store.DayLayout) {
			t.Fatal("expired day survived maintenance")
		}
	}
}

func TestServiceRunStopsOnSignal(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RETRACE_DATA_DIR", dir)

	cfg := config.DefaultConfig()
	cfg.Capture.Enabled = false
	sigCh := make(chan os.Signal, 1)

	s, err := NewWithOptions(cfg, Options{
		DataDir: dir,
		Sampler: &staticSampler{},
		AnalyzerFactory: func(config.ModelConfig) (vision.Analyzer, error) {
			return &fakeAnalyzer{}, nil
		},
		SignalChan: sigCh,
	})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	time.Sleep(30 * time.Millisecond)
	sigCh <- syscall.SIGTERM

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on signal")
	}
}

// Package capture runs the periodic screen capture loop: sample a frame,
// decide whether it changed enough to matter, ask the vision model what is
// happening, persist the result and raise alerts for visible problems.
package capture

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/retracehq/retrace/internal/alert"
	"github.com/retracehq/retrace/internal/config"
	"github.com/retracehq/retrace/internal/fingerprint"
	"github.com/retracehq/retrace/internal/store"
	"github.com/retracehq/retrace/internal/vision"
)

// AnalyzerFactory builds a model client for the given configuration.
// Injected so tests can substitute a fake backend.
type AnalyzerFactory func(config.ModelConfig) (vision.Analyzer, error)

// Status is a point-in-time snapshot of the capture loop.
type Status struct {
	Running  bool
	Provider string
	Records  int64
	Skipped  int64
	Dropped  int64
}

// Scheduler drives the capture loop. At most one analysis pipeline is in
// flight at a time; a tick that fires while one is running is dropped, not
// queued, so a slow model can never build a backlog.
type Scheduler struct {
	store       *store.Store
	inspector   *alert.Inspector
	sampler     Sampler
	newAnalyzer AnalyzerFactory

	mu       sync.Mutex
	running  bool
	cfg      config.Config
	analyzer vision.Analyzer
	stop     chan struct{}
	loopDone chan struct{}

	detector  Detector
	inFlight  atomic.Bool
	pipelines sync.WaitGroup

	records int64
	skipped int64
	dropped int64
}

func NewScheduler(st *store.Store, insp *alert.Inspector, sampler Sampler, factory AnalyzerFactory) *Scheduler {
	return &Scheduler{
		store:       st,
		inspector:   insp,
		sampler:     sampler,
		newAnalyzer: factory,
	}
}

// Start begins ticking with the given configuration. The change detector
// baseline is reset so the first frame is always analyzed.
func (s *Scheduler) Start(cfg config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("capture already running")
	}

	analyzer, err := s.newAnalyzer(cfg.Model)
	if err != nil {
		return fmt.Errorf("build model client: %w", err)
	}

	s.cfg = cfg
	s.analyzer = analyzer
	s.detector.Reset()
	s.inspector.Clear()
	s.stop = make(chan struct{})
	s.loopDone = make(chan struct{})
	s.running = true

	log.Printf("[capture] started: provider=%s interval=%dms", analyzer.Name(), cfg.Capture.IntervalMS)
	go s.loop(s.stop, s.loopDone)
	return nil
}

// Stop halts the loop. An analysis already in flight completes and is
// recorded; Stop returns only after it has, so no tick starts afterwards
// and no record is half-written.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stop)
	s.running = false
	done := s.loopDone
	s.mu.Unlock()

	<-done
	s.pipelines.Wait()
	log.Printf("[capture] stopped")
}

// Apply swaps in a new configuration. It takes effect at the next tick;
// the model client is rebuilt only when the model section changed.
func (s *Scheduler) Apply(cfg config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running && cfg.Model != s.cfg.Model {
		analyzer, err := s.newAnalyzer(cfg.Model)
		if err != nil {
			return fmt.Errorf("build model client: %w", err)
		}
		s.analyzer = analyzer
	}
	s.cfg = cfg
	return nil
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running: s.running,
		Records: atomic.LoadInt64(&s.records),
		Skipped: atomic.LoadInt64(&s.skipped),
		Dropped: atomic.LoadInt64(&s.dropped),
	}
	if s.analyzer != nil {
		st.Provider = s.analyzer.Name()
	}
	return st
}

func (s *Scheduler) snapshot() (config.Config, vision.Analyzer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.analyzer
}

func (s *Scheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	cfg, _ := s.snapshot()
	interval := time.Duration(cfg.Capture.IntervalMS) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cfg, analyzer := s.snapshot()
			if next := time.Duration(cfg.Capture.IntervalMS) * time.Millisecond; next != interval {
				interval = next
				ticker.Reset(interval)
			}
			if !s.inFlight.CompareAndSwap(false, true) {
				atomic.AddInt64(&s.dropped, 1)
				continue
			}
			s.pipelines.Add(1)
			go func() {
				defer s.pipelines.Done()
				defer s.inFlight.Store(false)
				s.runTick(cfg, analyzer)
			}()
		}
	}
}

// runTick executes one full capture pipeline. It deliberately ignores the
// stop signal: once started, a tick runs to completion.
func (s *Scheduler) runTick(cfg config.Config, analyzer vision.Analyzer) {
	img, err := s.sampler.Sample()
	if err != nil {
		log.Printf("[capture] sample failed: %v", err)
		return
	}
	now := time.Now()

	hash := fingerprint.Compute(img)
	if cfg.Capture.SkipUnchangedEnabled() {
		if skip, _ := s.detector.Decide(hash, cfg.Capture.ChangeThreshold); skip {
			atomic.AddInt64(&s.skipped, 1)
			return
		}
	}
	s.detector.Commit(hash)

	jpg, err := encodeJPEG(img, cfg.Capture.CompressQuality)
	if err != nil {
		log.Printf("[capture] %v", err)
		return
	}
	ref, err := s.store.SaveScreenshot(jpg, now)
	if err != nil {
		log.Printf("[capture] save screenshot: %v", err)
		ref = ""
	}

	recentCtx := buildRecentContext(s.store, now, cfg.Capture.RecentSummaryLimit, cfg.Capture.RecentDetailLimit)
	prompt := fmt.Sprintf(analysisPrompt, recentCtx)

	out, err := analyzer.Analyze(context.Background(), encodeBase64(jpg), prompt)
	if err != nil {
		log.Printf("[capture] analyze failed: %v", err)
		cooldown := time.Duration(cfg.Capture.AlertCooldownSeconds) * time.Second
		s.inspector.EmitModelError(err, "capture", now, cooldown)
		return
	}

	analysis := ParseAnalysis(out)
	finding := alert.Finding{
		App:          analysis.App,
		Summary:      analysis.Summary,
		Detail:       analysis.Detail,
		IssueType:    analysis.IssueType,
		IssueSummary: analysis.IssueSummary,
		Suggestion:   analysis.Suggestion,
		Confidence:   analysis.Confidence,
	}

	emit := false
	if analysis.HasIssue {
		cooldown := time.Duration(cfg.Capture.AlertCooldownSeconds) * time.Second
		emit = s.inspector.EvaluateIssue(finding, now, cooldown, cfg.Capture.AlertConfidenceThreshold)
	}
	if emit && finding.Suggestion == "" {
		finding.Suggestion = s.generateSuggestion(analyzer, analysis, recentCtx)
		analysis.Suggestion = finding.Suggestion
	}

	record := store.SummaryRecord{
		Timestamp:    now.Format(store.TimeLayout),
		Summary:      analysis.Summary,
		App:          analysis.App,
		Action:       deriveAction(analysis.Summary),
		Keywords:     ExtractKeywords(analysis.Summary + " " + analysis.App),
		HasIssue:     analysis.HasIssue,
		IssueType:    analysis.IssueType,
		IssueSummary: analysis.IssueSummary,
		Suggestion:   analysis.Suggestion,
		Confidence:   analysis.Confidence,
		Detail:       analysis.Detail,
		DetailRef:    ref,
		Provider:     analyzer.Name(),
	}
	if err := s.store.Append(record); err != nil {
		log.Printf("[capture] append record: %v", err)
	}
	atomic.AddInt64(&s.records, 1)

	if emit {
		s.inspector.EmitIssue(finding, now)
		snapshot := fmt.Sprintf("issue: %s\ntype: %s\napp: %s\nsuggestion: %s\n\nrecent activity:\n%s\n",
			analysis.IssueMessage(), analysis.IssueType, analysis.App, finding.Suggestion, recentCtx)
		if _, err := s.store.WriteLogSnapshot("alert", snapshot); err != nil {
			log.Printf("[capture] write alert snapshot: %v", err)
		}
	}
}

const suggestionTimeout = 30 * time.Second

func (s *Scheduler) generateSuggestion(analyzer vision.Analyzer, analysis Analysis, recentCtx string) string {
	question := fmt.Sprintf(
		"The screen shows this problem: %s (%s, in %s). Give 2-3 short concrete steps to resolve it.",
		analysis.IssueMessage(), analysis.IssueType, analysis.App)

	ctx, cancel := context.WithTimeout(context.Background(), suggestionTimeout)
	defer cancel()
	answer, err := analyzer.Chat(ctx, recentCtx, question)
	if err != nil {
		log.Printf("[capture] suggestion generation failed: %v", err)
		return ""
	}
	return answer
}

// deriveAction tags the record with the first recognized activity verb in
// the summary, feeding the per-window activity rollup.
func deriveAction(summary string) string {
	lower := strings.ToLower(summary)
	for _, action := range keywordActions {
		if strings.Contains(lower, action) {
			return action
		}
	}
	return ""
}

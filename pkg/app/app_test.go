package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/AnalystCouncil/config"
	"github.com/dyike/AnalystCouncil/internal/history"
	"github.com/dyike/AnalystCouncil/internal/logger"
	"github.com/dyike/AnalystCouncil/internal/quote"
	"github.com/dyike/AnalystCouncil/models"
)

type countingClient struct {
	mu     sync.Mutex
	models []string
	delay  time.Duration
}

func (c *countingClient) Generate(ctx context.Context, modelID string, msgs []*schema.Message, opts ...model.Option) (string, error) {
	c.mu.Lock()
	c.models = append(c.models, modelID)
	c.mu.Unlock()
	time.Sleep(c.delay)
	return "Investment opinion: Buy", nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := *config.DefaultConfigWithRoot(t.TempDir())
	cfg.QuoteProvider = config.QuoteProviderNone
	return cfg
}

func testBuilder(client *countingClient) EngineBuilder {
	return func(cfg config.Config) (*Engine, error) {
		return BuildEngine(cfg, WithClient(client), WithQuotes(quote.None{}), WithLogger(logger.Discard()))
	}
}

func TestBuildEngineRunsCouncilEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	client := &countingClient{}
	engine, err := testBuilder(client)(cfg)
	if err != nil {
		t.Fatalf("BuildEngine: %v", err)
	}
	defer engine.Close()

	experts, chair := engine.Members()
	if len(experts) != 5 || chair.ID != "chairman" {
		t.Fatalf("unexpected members %d %+v", len(experts), chair)
	}

	report, err := engine.Analyze(context.Background(), "AAPL", false)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.SystemStatus != models.SystemAllOK || report.SucceededExperts() != 5 || !report.Chair.Succeeded() {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(client.models) != 6 {
		t.Fatalf("expected 5 expert calls and 1 chair call, got %d", len(client.models))
	}

	engine.Council.Wait()
	recs, err := engine.Recent(context.Background(), 10)
	if err != nil || len(recs) != 1 || recs[0].Verdict != "Buy" {
		t.Fatalf("Recent = %+v, %v", recs, err)
	}
	data, err := os.ReadFile(cfg.HistoryFile)
	if err != nil || !strings.Contains(string(data), "- AAPL") {
		t.Fatalf("markdown history not written: %v", err)
	}
}

func TestBuildEngineWithoutHistoryStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.HistoryDBPath = ""
	engine, err := testBuilder(&countingClient{})(cfg)
	if err != nil {
		t.Fatalf("BuildEngine: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Recent(context.Background(), 5); !errors.Is(err, history.ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestBuildEngineRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.ChairQuorum = 9
	if _, err := testBuilder(&countingClient{})(cfg); err == nil {
		t.Fatal("expected validation error")
	}

	cfg = testConfig(t)
	cfg.RosterPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := testBuilder(&countingClient{})(cfg); err == nil {
		t.Fatal("expected roster error")
	}
}

func TestEngineClosePersistsRunInFlight(t *testing.T) {
	cfg := testConfig(t)
	engine, err := testBuilder(&countingClient{delay: 150 * time.Millisecond})(cfg)
	if err != nil {
		t.Fatalf("BuildEngine: %v", err)
	}

	type outcome struct {
		report *models.CouncilReport
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		report, err := engine.Analyze(context.Background(), "AAPL", false)
		done <- outcome{report, err}
	}()
	time.Sleep(50 * time.Millisecond)
	engine.Close()

	out := <-done
	if out.err != nil || out.report.SystemStatus != models.SystemAllOK {
		t.Fatalf("run in flight: %v", out.err)
	}
	store, err := history.OpenSQLite(cfg.HistoryDBPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer store.Close()
	recs, err := store.Recent(context.Background(), 10)
	if err != nil || len(recs) != 1 || recs[0].ID != out.report.ID {
		t.Fatalf("run in flight not persisted: %+v, %v", recs, err)
	}
}

func TestEngineOwnsItsLogFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.LogFile = filepath.Join(t.TempDir(), "council.log")
	cfg.LogLevel = "debug"
	engine, err := BuildEngine(cfg, WithClient(&countingClient{}), WithQuotes(quote.None{}))
	if err != nil {
		t.Fatalf("BuildEngine: %v", err)
	}
	if _, err := engine.Analyze(context.Background(), "AAPL", false); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	engine.Close()

	data, err := os.ReadFile(cfg.LogFile)
	if err != nil || !strings.Contains(string(data), "council session finished") {
		t.Fatalf("log file not written: %v", err)
	}
}

func TestEngineCloseIsIdempotent(t *testing.T) {
	engine, err := testBuilder(&countingClient{})(testConfig(t))
	if err != nil {
		t.Fatalf("BuildEngine: %v", err)
	}
	engine.Close()
	engine.Close()
}

func TestRuntimeReloadsOnConfigChange(t *testing.T) {
	dir := t.TempDir()
	initial := *config.DefaultConfigWithRoot(dir)
	initial.QuoteProvider = config.QuoteProviderNone
	mgr, err := config.NewManager(
		config.WithConfigPath(filepath.Join(dir, "config.json")),
		config.WithInitialConfig(&initial),
		config.WithDebounce(20*time.Millisecond),
		config.WithLogger(logger.Discard()),
	)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	var (
		mu     sync.Mutex
		topics []string
	)
	rt, err := NewRuntime(mgr,
		WithBuilder(testBuilder(&countingClient{})),
		WithRuntimeLogger(logger.Discard()),
		WithNotifier(func(topic, payload string) {
			mu.Lock()
			topics = append(topics, topic)
			mu.Unlock()
		}),
	)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	defer rt.Close()

	first := rt.Engine()
	if first == nil || first.Config.ChairQuorum != 1 {
		t.Fatalf("unexpected first engine %+v", first)
	}

	if err := mgr.Set("chair_quorum", "3"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	second := rt.Engine()
	if second.Version == first.Version || second.Config.ChairQuorum != 3 {
		t.Fatalf("engine not rebuilt: v%d quorum %d", second.Version, second.Config.ChairQuorum)
	}

	if _, err := rt.Analyze(context.Background(), "MSFT", false); err != nil {
		t.Fatalf("Analyze through runtime: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(topics) != 2 || topics[0] != "engine.reloaded" || topics[1] != "engine.reloaded" {
		t.Fatalf("unexpected notifications %v", topics)
	}
}

func TestRuntimeKeepsEngineWhenRebuildFails(t *testing.T) {
	dir := t.TempDir()
	mgr, err := config.NewManager(config.WithConfigPath(filepath.Join(dir, "config.json")), config.WithLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	calls := 0
	build := testBuilder(&countingClient{})
	rt, err := NewRuntime(mgr, WithRuntimeLogger(logger.Discard()), WithBuilder(func(cfg config.Config) (*Engine, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("provider misconfigured")
		}
		cfg.QuoteProvider = config.QuoteProviderNone
		return build(cfg)
	}))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	defer rt.Close()

	before := rt.Engine()
	if err := mgr.Set("max_tokens", "2000"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if rt.Engine() != before {
		t.Fatal("failed rebuild must keep the previous engine")
	}
}

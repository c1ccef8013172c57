package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/predexchange/internal/config"
	"github.com/alanyoungcy/predexchange/internal/domain"
	"github.com/alanyoungcy/predexchange/internal/replay"
)

const (
	bookA = `{"event_type":"book","market":"0xabc","asset_id":"123","timestamp":"1000","bids":[{"price":"0.4","size":"100"}],"asks":[{"price":"0.42","size":"80"}]}`
	bookB = `{"event_type":"book","market":"0xabc","asset_id":"123","timestamp":"2000","bids":[{"price":"0.41","size":"90"}],"asks":[{"price":"0.43","size":"70"}]}`
)

// memLog is an EventLog over a fixed slice.
type memLog struct {
	src   *replay.MemorySource
	stats domain.LogStats
}

func newMemLog(events ...domain.RawEvent) *memLog {
	return &memLog{src: replay.NewMemorySource(events), stats: domain.LogStats{TotalEvents: int64(len(events))}}
}

func (l *memLog) Append(context.Context, []domain.RawEvent) error { return nil }

func (l *memLog) Scan(ctx context.Context, f domain.EventFilter, fn func(domain.RawEvent) error) error {
	return l.src.Scan(ctx, f, fn)
}

func (l *memLog) Stats(context.Context) (domain.LogStats, error) { return l.stats, nil }

func (l *memLog) FirstIngestTS(context.Context) (int64, bool, error) { return 0, false, nil }

type memRuns struct{ saved []domain.SimRun }

func (r *memRuns) Save(_ context.Context, run domain.SimRun) error {
	r.saved = append(r.saved, run)
	return nil
}

func (r *memRuns) Get(context.Context, string) (domain.SimRun, error) {
	return domain.SimRun{}, domain.ErrNotFound
}

type fakeArchiver struct{ filter domain.EventFilter }

func (a *fakeArchiver) Export(_ context.Context, f domain.EventFilter) (string, int64, error) {
	a.filter = f
	return "export/abc/1.jsonl", 2, nil
}

func (a *fakeArchiver) ArchiveBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type fakeBlobs struct{ objects map[string]string }

func (b *fakeBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	body, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (b *fakeBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := b.objects[path]
	return ok, nil
}

func rawEvents(t *testing.T) []domain.RawEvent {
	t.Helper()
	return []domain.RawEvent{
		{ID: 1, MarketID: "0xabc", AssetID: "123", EventType: "book", IngestTS: 100, Payload: json.RawMessage(bookA)},
		{ID: 2, MarketID: "0xabc", AssetID: "123", EventType: "book", IngestTS: 200, Payload: json.RawMessage(bookB)},
	}
}

func testApp(t *testing.T, mutate func(*config.Config)) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Replay.MarketID = "0xabc"
	cfg.Replay.AssetID = "123"
	if mutate != nil {
		mutate(&cfg)
	}
	var out bytes.Buffer
	a := New(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.out = &out
	return a, &out
}

func TestReplayModeOutputs(t *testing.T) {
	tests := []struct {
		output string
		check  func(t *testing.T, body []byte)
	}{
		{"mid", func(t *testing.T, body []byte) {
			var pts []domain.MidPoint
			if err := json.Unmarshal(body, &pts); err != nil {
				t.Fatal(err)
			}
			if len(pts) != 2 || pts[1].Mid == nil || math.Abs(*pts[1].Mid-0.42) > 1e-9 {
				t.Errorf("points = %+v", pts)
			}
		}},
		{"series", func(t *testing.T, body []byte) {
			var rows []domain.MetricsRow
			if err := json.Unmarshal(body, &rows); err != nil {
				t.Fatal(err)
			}
			if len(rows) != 1 || rows[0].DepthBid != 90 {
				t.Errorf("rows = %+v", rows)
			}
		}},
		{"heatmap", func(t *testing.T, body []byte) {
			var rows []domain.HeatmapRow
			if err := json.Unmarshal(body, &rows); err != nil {
				t.Fatal(err)
			}
			if len(rows) != 1 || len(rows[0].Bids) != 1 {
				t.Errorf("rows = %+v", rows)
			}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.output, func(t *testing.T) {
			a, out := testApp(t, func(c *config.Config) { c.Replay.Output = tc.output })
			if err := a.ReplayMode(context.Background(), &Dependencies{EventLog: newMemLog(rawEvents(t)...)}); err != nil {
				t.Fatalf("ReplayMode: %v", err)
			}
			tc.check(t, out.Bytes())
		})
	}
}

func TestReplayFromObjectStorage(t *testing.T) {
	var jsonl bytes.Buffer
	if err := replay.WriteJSONL(&jsonl, rawEvents(t)); err != nil {
		t.Fatal(err)
	}
	a, out := testApp(t, func(c *config.Config) { c.Replay.Source = "export/abc/1.jsonl" })
	deps := &Dependencies{BlobReader: &fakeBlobs{objects: map[string]string{"export/abc/1.jsonl": jsonl.String()}}}
	if err := a.ReplayMode(context.Background(), deps); err != nil {
		t.Fatalf("ReplayMode: %v", err)
	}
	var pts []domain.MidPoint
	if err := json.Unmarshal(out.Bytes(), &pts); err != nil || len(pts) != 2 {
		t.Fatalf("points = %s (%v)", out.String(), err)
	}
}

func TestReplayFromMissingObject(t *testing.T) {
	a, _ := testApp(t, func(c *config.Config) { c.Replay.Source = "export/missing.jsonl" })
	err := a.ReplayMode(context.Background(), &Dependencies{BlobReader: &fakeBlobs{}})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSimulateModeSavesRun(t *testing.T) {
	runs := &memRuns{}
	a, out := testApp(t, nil)
	if err := a.SimulateMode(context.Background(), &Dependencies{EventLog: newMemLog(rawEvents(t)...), SimRuns: runs}); err != nil {
		t.Fatalf("SimulateMode: %v", err)
	}
	if len(runs.saved) != 1 {
		t.Fatalf("saved %d runs", len(runs.saved))
	}
	run := runs.saved[0]
	if run.StrategyName != "mm_inventory" || run.EventsProcessed != 2 || len(run.RunID) != 8 {
		t.Errorf("run = %+v", run)
	}
	if !strings.Contains(out.String(), run.RunID) {
		t.Errorf("output does not include run id: %s", out.String())
	}
}

func TestSimulateModeUnknownStrategy(t *testing.T) {
	a, _ := testApp(t, func(c *config.Config) { c.Simulation.Strategy = "martingale" })
	if err := a.SimulateMode(context.Background(), &Dependencies{EventLog: newMemLog()}); err == nil {
		t.Fatal("expected unknown strategy error")
	}
}

func TestStatsMode(t *testing.T) {
	a, out := testApp(t, nil)
	if err := a.StatsMode(context.Background(), &Dependencies{EventLog: newMemLog(rawEvents(t)...)}); err != nil {
		t.Fatalf("StatsMode: %v", err)
	}
	var stats domain.LogStats
	if err := json.Unmarshal(out.Bytes(), &stats); err != nil || stats.TotalEvents != 2 {
		t.Errorf("stats = %s (%v)", out.String(), err)
	}
}

func TestExportModeUsesReplayWindow(t *testing.T) {
	arch := &fakeArchiver{}
	a, out := testApp(t, func(c *config.Config) { c.Replay.StartTS = 150 })
	if err := a.ExportMode(context.Background(), &Dependencies{Archiver: arch}); err != nil {
		t.Fatalf("ExportMode: %v", err)
	}
	if arch.filter.MarketID != "0xabc" || arch.filter.Start == nil || *arch.filter.Start != 150 || arch.filter.End != nil {
		t.Errorf("filter = %+v", arch.filter)
	}
	if !strings.Contains(out.String(), "export/abc/1.jsonl") {
		t.Errorf("output = %s", out.String())
	}
}

func TestExportModeNeedsArchiver(t *testing.T) {
	a, _ := testApp(t, nil)
	if err := a.ExportMode(context.Background(), &Dependencies{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNeeds(t *testing.T) {
	tests := []struct {
		name               string
		mutate             func(*config.Config)
		postgres, rds, obj bool
	}{
		{"ingest", nil, true, true, false},
		{"ingest with archive", func(c *config.Config) {
			c.S3.Enabled, c.Pipeline.ArchiveEnabled = true, true
		}, true, true, true},
		{"ingest without redis", func(c *config.Config) { c.Redis.Enabled = false }, true, false, false},
		{"replay from postgres", func(c *config.Config) { c.Mode = "replay" }, true, false, false},
		{"replay from s3", func(c *config.Config) {
			c.Mode, c.Replay.Source, c.S3.Enabled = "replay", "export/x.jsonl", true
		}, false, false, true},
		{"simulate from s3", func(c *config.Config) {
			c.Mode, c.Replay.Source, c.S3.Enabled = "simulate", "export/x.jsonl", true
		}, true, false, true},
		{"export", func(c *config.Config) { c.Mode, c.S3.Enabled = "export", true }, true, false, true},
		{"stats", func(c *config.Config) { c.Mode = "stats" }, true, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Defaults()
			if tc.mutate != nil {
				tc.mutate(&cfg)
			}
			if got := needsPostgres(&cfg); got != tc.postgres {
				t.Errorf("needsPostgres = %v", got)
			}
			if got := needsRedis(&cfg); got != tc.rds {
				t.Errorf("needsRedis = %v", got)
			}
			if got := needsS3(&cfg); got != tc.obj {
				t.Errorf("needsS3 = %v", got)
			}
		})
	}
}

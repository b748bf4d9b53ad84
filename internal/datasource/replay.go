package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/scaleout/eseries-collector/internal/catalog"
	"github.com/scaleout/eseries-collector/internal/model"
	"github.com/scaleout/eseries-collector/internal/telemetry"
)

// batchFilePattern matches "<endpoint>_<system_id>_<batch>.json", the
// naming convention the companion rawcapture tool writes and spec.md §4.2
// "Replay mode" reads back. Keyed by catalog endpoint name rather than
// measurement name deliberately: several endpoints collapse onto one
// measurement (see catalog.MeasurementName), and decodeBatchFile below
// switches on the endpoint name to special-case envelopes like env_power
// and analyzed_controller_statistics, so per-measurement file names would
// collide and lose that distinction. See DESIGN.md.
var batchFilePattern = regexp.MustCompile(`^(.+)_([^_]+)_(\d+)\.json$`)

// ReplayConfig configures a ReplaySource.
type ReplayConfig struct {
	Dir         string
	SystemID    string // overrides the file-name-derived system id when set
	WatchForNew bool   // fsnotify watch for newly-appearing batch files
}

// ReplaySource implements DataSource by reading JSON snapshots from disk
// instead of an HTTP session, generalizing the teacher's idea of a
// polymorphic Fetcher to "replay a previously captured batch" (spec.md §4.4).
type ReplaySource struct {
	cfg ReplayConfig
	log telemetry.Logger

	mu         sync.Mutex
	batches    []int
	batchIdx   int
	systemID   string
	systemName string

	watcher    *fsnotify.Watcher
	newBatchCh chan int
}

// NewReplaySource constructs a ReplaySource rooted at cfg.Dir.
func NewReplaySource(cfg ReplayConfig, log telemetry.Logger) *ReplaySource {
	return &ReplaySource{
		cfg:        cfg,
		log:        log,
		systemID:   unknownSystemID,
		systemName: unknownSystemName,
	}
}

func (s *ReplaySource) SystemID() string   { return s.systemID }
func (s *ReplaySource) SystemName() string { return s.systemName }

// Init enumerates the batch numbers present in cfg.Dir and, if WatchForNew
// is set, starts an fsnotify watch so HasMoreBatches also reports batches
// whose files land later (spec.md §4.4 "Replay mode can tail a directory").
func (s *ReplaySource) Init(ctx context.Context) error {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return fmt.Errorf("replay: read directory %s: %w", s.cfg.Dir, err)
	}

	batchSet := make(map[int]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := batchFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if s.systemID == unknownSystemID && s.cfg.SystemID == "" {
			s.systemID = m[2]
		}
		if n, err := strconv.Atoi(m[3]); err == nil {
			batchSet[n] = true
		}
	}
	if s.cfg.SystemID != "" {
		s.systemID = s.cfg.SystemID
	}
	if s.systemID == "" {
		s.systemID = unknownSystemID
	}
	s.systemName = s.systemID

	batches := make([]int, 0, len(batchSet))
	for n := range batchSet {
		batches = append(batches, n)
	}
	sort.Ints(batches)
	s.batches = batches
	s.batchIdx = 0

	if len(batches) == 0 {
		return fmt.Errorf("replay: no batch files matching <endpoint>_<system_id>_<batch>.json found in %s", s.cfg.Dir)
	}

	if s.cfg.WatchForNew {
		if err := s.startWatch(ctx); err != nil {
			s.log.WarnCtx(ctx, "replay directory watch failed to start", "error", err)
		}
	}
	return nil
}

func (s *ReplaySource) startWatch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.cfg.Dir); err != nil {
		w.Close()
		return err
	}
	s.watcher = w
	s.newBatchCh = make(chan int, 16)

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				m := batchFilePattern.FindStringSubmatch(filepath.Base(ev.Name))
				if m == nil {
					continue
				}
				n, err := strconv.Atoi(m[3])
				if err != nil {
					continue
				}
				s.mu.Lock()
				known := false
				for _, b := range s.batches {
					if b == n {
						known = true
						break
					}
				}
				if !known {
					s.batches = append(s.batches, n)
					sort.Ints(s.batches)
				}
				s.mu.Unlock()
				select {
				case s.newBatchCh <- n:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.WarnCtx(ctx, "replay directory watch error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// HasMoreBatches reports whether a not-yet-replayed batch exists on disk.
func (s *ReplaySource) HasMoreBatches() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchIdx < len(s.batches)
}

// AdvanceBatch moves the cursor to the next batch number.
func (s *ReplaySource) AdvanceBatch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchIdx >= len(s.batches) {
		return fmt.Errorf("replay: no more batches in %s", s.cfg.Dir)
	}
	s.batchIdx++
	return nil
}

func (s *ReplaySource) currentBatch() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchIdx >= len(s.batches) {
		return 0, false
	}
	return s.batches[s.batchIdx], true
}

func (s *ReplaySource) collect(ctx context.Context, cat model.Category) (*model.CollectionResult, error) {
	result := model.NewCollectionResult()
	batch, ok := s.currentBatch()
	if !ok {
		return result, fmt.Errorf("replay: no current batch")
	}

	for _, name := range catalog.Names(cat) {
		if name == "ethernet_interface_config_alias" {
			continue
		}
		path := filepath.Join(s.cfg.Dir, fmt.Sprintf("%s_%s_%d.json", name, s.systemID, batch))
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				if model.IsOptionalEndpoint(name) {
					s.log.InfoCtx(ctx, "optional feature snapshot absent", "endpoint", name, "batch", batch)
				}
				continue
			}
			s.log.ErrorCtx(ctx, "replay read failed", "endpoint", name, "error", err)
			continue
		}
		recs, measurementErr := decodeBatchFile(name, data)
		if measurementErr != nil {
			s.log.ErrorCtx(ctx, "replay decode failed", "endpoint", name, "error", measurementErr)
			continue
		}
		m, _ := catalog.MeasurementName(name)
		for i := range recs {
			recs[i]["system_id"] = s.systemID
			recs[i]["storage_system_name"] = s.systemName
		}
		result.Add(m, recs...)
	}
	return result, nil
}

func decodeBatchFile(name string, data []byte) ([]model.Record, error) {
	if name == "env_power" || name == "env_temp" {
		return unwrapEnvironmentalEnvelope(name, data), nil
	}
	if name == "analyzed_controller_statistics" {
		return []model.Record{wrapControllerStatistics(data)}, nil
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var raw []map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		out := make([]model.Record, len(raw))
		for i, r := range raw {
			out[i] = model.Record(r)
		}
		return out, nil
	}
	var single map[string]any
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []model.Record{model.Record(single)}, nil
}

func (s *ReplaySource) CollectPerformance(ctx context.Context) (*model.CollectionResult, error) {
	return s.collect(ctx, model.CategoryPerformance)
}
func (s *ReplaySource) CollectConfiguration(ctx context.Context) (*model.CollectionResult, error) {
	return s.collect(ctx, model.CategoryConfiguration)
}
func (s *ReplaySource) CollectEvents(ctx context.Context) (*model.CollectionResult, error) {
	return s.collect(ctx, model.CategoryEvents)
}
func (s *ReplaySource) CollectEnvironmental(ctx context.Context) (*model.CollectionResult, error) {
	return s.collect(ctx, model.CategoryEnvironmental)
}

// Close stops the directory watch, if any.
func (s *ReplaySource) Close(ctx context.Context) error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

var _ Replayer = (*ReplaySource)(nil)

package scan

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gfimx/internal/baseline"
	"gfimx/internal/config"
	"gfimx/internal/fault"
	"gfimx/internal/logging"
	"gfimx/internal/policy"
	"gfimx/internal/stage"
)

// ScanConfig sizes the pipeline.
type ScanConfig struct {
	ChunkSize       int
	TraverseWorkers int
	ReadWorkers     int
	HashWorkers     int
	SinkWorkers     int
	IdleTimeout     time.Duration
	Compare         string
	StageLevels     map[string]string
}

// ConfigFrom maps the [scan] and [logging] config sections.
func ConfigFrom(cfg *config.Config) ScanConfig {
	return ScanConfig{
		ChunkSize:       cfg.Scan.ChunkSize,
		TraverseWorkers: cfg.Scan.TraverseWorkers,
		ReadWorkers:     cfg.Scan.ReadWorkers,
		HashWorkers:     cfg.Scan.HashWorkers,
		SinkWorkers:     cfg.Scan.SinkWorkers,
		IdleTimeout:     time.Duration(cfg.Scan.IdleTimeoutMS) * time.Millisecond,
		Compare:         cfg.Scan.Compare,
		StageLevels:     cfg.Logging.StageOverrides,
	}
}

func (c ScanConfig) withDefaults() ScanConfig {
	def := config.Default().Scan
	if c.ChunkSize <= 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.TraverseWorkers <= 0 {
		c.TraverseWorkers = def.TraverseWorkers
	}
	if c.ReadWorkers <= 0 {
		c.ReadWorkers = def.ReadWorkers
	}
	if c.HashWorkers <= 0 {
		c.HashWorkers = def.HashWorkers
	}
	if c.SinkWorkers <= 0 {
		c.SinkWorkers = def.SinkWorkers
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = time.Duration(def.IdleTimeoutMS) * time.Millisecond
	}
	if c.Compare == "" {
		c.Compare = config.CompareContent
	}
	return c
}

// Target is one unit of scanning: a set of root paths plus filters. Roots
// may be directories or regular files.
type Target struct {
	Name        string
	Dirs        []string
	IgnoreFiles *policy.Filter
	IgnoreDirs  *policy.Filter
}

// Summary describes a finished scan.
type Summary struct {
	ScanID    string        `json:"scan_id"`
	Target    string        `json:"target"`
	Roots     int           `json:"roots"`
	Dirs      int64         `json:"dirs"`
	Files     int64         `json:"files"`
	Bytes     int64         `json:"bytes"`
	Added     int64         `json:"added"`
	Modified  int64         `json:"modified"`
	Unchanged int64         `json:"unchanged"`
	Failed    int64         `json:"failed"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Changes   []Change      `json:"changes"`
}

// Scanner runs scans one at a time against a baseline store.
type Scanner struct {
	mu       sync.Mutex
	cfg      ScanConfig
	store    baseline.Store
	logger   *slog.Logger
	reporter Reporter
	metrics  Metrics
	stat     StatFunc
	open     OpenFunc
	now      func() time.Time

	active atomic.Pointer[pipeline]
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithReporter publishes every change as it is detected.
func WithReporter(r Reporter) Option {
	return func(s *Scanner) { s.reporter = r }
}

// WithMetrics records pipeline observations.
func WithMetrics(m Metrics) Option {
	return func(s *Scanner) { s.metrics = m }
}

// WithStat replaces the ownership lookup.
func WithStat(fn StatFunc) Option {
	return func(s *Scanner) { s.stat = fn }
}

// WithOpen replaces the file handle constructor.
func WithOpen(fn OpenFunc) Option {
	return func(s *Scanner) { s.open = fn }
}

// NewScanner builds a scanner. A nil logger discards output.
func NewScanner(cfg ScanConfig, store baseline.Store, logger *slog.Logger, opts ...Option) *Scanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Scanner{
		cfg:    cfg.withDefaults(),
		store:  store,
		logger: logger,
		stat:   LstatOwner,
		open:   OpenHandle,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stages reports the health of each stage of the scan in progress, in
// pipeline order. It returns nil while no scan is running.
func (s *Scanner) Stages() []stage.Health {
	p := s.active.Load()
	if p == nil {
		return nil
	}
	return []stage.Health{
		p.traverser.Health(),
		p.reader.Health(),
		p.hasher.Health(),
		p.sink.Health(),
	}
}

type pipeline struct {
	traverser *stage.Stage[string, Progress]
	reader    *stage.Stage[Progress, Chunk]
	hasher    *stage.Stage[Chunk, Digest]
	sink      *stage.Stage[Digest, Change]
	changes   *stage.Queue[Change]

	walk  *traverseState
	hash  *hashState
	store *sinkState
}

// Scan walks the target, hashes every regular file, and compares the result
// against the baseline. Scans are serialized. The returned summary is valid
// even when an error is returned.
func (s *Scanner) Scan(ctx context.Context, target Target) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := Summary{ScanID: uuid.NewString(), Target: target.Name, Started: s.now()}
	ctx = fault.WithScanID(ctx, summary.ScanID)
	ctx = fault.WithTarget(ctx, target.Name)
	logger := logging.WithContext(ctx, s.logger)

	p, err := s.build(ctx, target, logger)
	if err != nil {
		return summary, err
	}
	s.active.Store(p)
	defer s.active.Store(nil)

	dirs, files, failed := s.resolveRoots(target, logger)
	summary.Roots = len(dirs) + len(files)
	summary.Failed += failed
	for _, dir := range dirs {
		if err := p.traverser.Collector().Send(dir); err != nil {
			return summary, err
		}
	}
	for _, f := range files {
		if err := p.reader.Collector().Send(NewProgress(s.open(f.path, f.size), s.cfg.ChunkSize)); err != nil {
			return summary, err
		}
	}

	logger.Info("scan started", logging.Int("roots", summary.Roots))

	idle := s.cfg.IdleTimeout
	var (
		wg      sync.WaitGroup
		errMu   sync.Mutex
		runErrs []error
	)
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				errMu.Lock()
				runErrs = append(runErrs, fault.Wrap(fault.ErrTransient, name, "run", "", err))
				errMu.Unlock()
			}
		}()
	}
	run(StageTraverser, func() error {
		return p.traverser.Run(stage.UntilIdle(ctx, idle, nil, p.traverser.Busy))
	})
	run(StageReader, func() error {
		return p.reader.Run(stage.UntilIdle(ctx, idle, p.traverser.Done(), p.reader.Busy))
	})
	run(StageHasher, func() error {
		return p.hasher.Run(stage.UntilIdle(ctx, idle, p.reader.Done(), p.hasher.Busy))
	})
	run(StageSink, func() error {
		return p.sink.Run(stage.UntilIdle(ctx, idle, p.hasher.Done(), p.sink.Busy))
	})

	s.collect(ctx, p, &summary, logger, idle)
	wg.Wait()

	summary.Dirs = p.walk.listed.Load()
	summary.Files = p.walk.found.Load() + int64(len(files))
	summary.Bytes = p.hash.bytes.Load()
	summary.Added = p.store.added.Load()
	summary.Modified = p.store.modified.Load()
	summary.Unchanged = p.store.unchanged.Load()
	summary.Failed += p.traverser.Stats().Failed + p.reader.Stats().Failed +
		p.hasher.Stats().Failed + p.sink.Stats().Failed
	summary.Duration = s.now().Sub(summary.Started)

	if left := p.hash.table.Len(); left > 0 {
		logger.Debug("accumulators left after scan", logging.Int("entries", left))
	}
	if s.metrics != nil {
		s.metrics.ObserveScan(target.Name, summary.Duration)
	}

	logger.Info("scan finished",
		logging.Int64("files", summary.Files),
		logging.Int64("added", summary.Added),
		logging.Int64("modified", summary.Modified),
		logging.Int64("failed", summary.Failed),
		logging.Duration("duration", summary.Duration),
	)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, errors.Join(runErrs...)
}

func (s *Scanner) build(ctx context.Context, target Target, logger *slog.Logger) (*pipeline, error) {
	opts := func(name string) []stage.Option {
		o := []stage.Option{
			stage.WithLogger(logging.ForStage(logger, name, s.cfg.StageLevels)),
		}
		if s.metrics != nil {
			o = append(o, stage.WithObserver(s.metrics.ObserveStage))
		}
		return o
	}

	p := &pipeline{
		traverser: stage.New[string, Progress](StageTraverser, opts(StageTraverser)...),
		reader:    stage.New[Progress, Chunk](StageReader, opts(StageReader)...),
		hasher:    stage.New[Chunk, Digest](StageHasher, opts(StageHasher)...),
		sink:      stage.New[Digest, Change](StageSink, opts(StageSink)...),
		changes:   stage.NewQueue[Change](),
		walk: &traverseState{
			ctx:    fault.WithStage(ctx, StageTraverser),
			files:  target.IgnoreFiles,
			dirs:   target.IgnoreDirs,
			open:   s.open,
			chunk:  s.cfg.ChunkSize,
			logger: logging.ForStage(logger, StageTraverser, s.cfg.StageLevels),
		},
		hash: &hashState{table: NewTable(), metrics: s.metrics},
		store: &sinkState{
			ctx:     fault.WithStage(ctx, StageSink),
			store:   s.store,
			compare: s.cfg.Compare,
			stat:    s.stat,
			now:     s.now,
			logger:  logging.ForStage(logger, StageSink, s.cfg.StageLevels),
		},
	}
	readState := &readState{ctx: ctx, chunkSize: s.cfg.ChunkSize}

	if err := p.traverser.SetDrain(p.reader.Collector()); err != nil {
		return nil, err
	}
	if err := p.reader.SetDrain(p.hasher.Collector()); err != nil {
		return nil, err
	}
	if err := p.hasher.SetDrain(p.sink.Collector()); err != nil {
		return nil, err
	}
	if err := p.sink.SetDrain(p.changes.Collector()); err != nil {
		return nil, err
	}

	if err := stage.Attach(p.traverser, s.cfg.TraverseWorkers, traverse, p.walk); err != nil {
		return nil, err
	}
	if err := stage.Attach(p.reader, s.cfg.ReadWorkers, read, readState); err != nil {
		return nil, err
	}
	if err := stage.Attach(p.hasher, s.cfg.HashWorkers, hashChunk, p.hash); err != nil {
		return nil, err
	}
	if err := stage.Attach(p.sink, s.cfg.SinkWorkers, sink, p.store); err != nil {
		return nil, err
	}
	return p, nil
}

// collect consumes the sink drain until the sink has shut down.
func (s *Scanner) collect(ctx context.Context, p *pipeline, summary *Summary, logger *slog.Logger, idle time.Duration) {
	handle := func(c Change) {
		c.ScanID = summary.ScanID
		c.Target = summary.Target
		summary.Changes = append(summary.Changes, c)
		if s.metrics != nil {
			s.metrics.ObserveChange(string(c.Kind))
		}
		if s.reporter != nil {
			if err := s.reporter.Report(ctx, c); err != nil {
				logging.WarnWithContext(logger, "change report failed", "report_failed",
					logging.Path(c.Identity),
					logging.Error(err),
					logging.Impact("change recorded in baseline but not published"),
				)
			}
		}
	}
	for {
		if c, ok := p.changes.Next(idle); ok {
			handle(c)
			continue
		}
		select {
		case <-p.sink.Done():
			p.changes.Close()
			for _, c := range p.changes.Drain() {
				handle(c)
			}
			return
		default:
		}
	}
}

type rootFile struct {
	path string
	size int64
}

// resolveRoots classifies target roots into directories and files, dropping
// duplicates, roots nested under another directory root, symlinks, and
// ignored paths.
func (s *Scanner) resolveRoots(target Target, logger *slog.Logger) ([]string, []rootFile, int64) {
	var failed int64
	seen := map[string]struct{}{}
	var dirs []string
	var files []rootFile

	for _, raw := range target.Dirs {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		path, err := filepath.Abs(raw)
		if err != nil {
			failed++
			continue
		}
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}

		info, err := os.Lstat(path)
		if err != nil {
			failed++
			logging.WarnWithContext(logger, "scan root unavailable", "root_unavailable",
				logging.Path(path),
				logging.Error(err),
				logging.Impact("root skipped"),
			)
			continue
		}
		switch mode := info.Mode(); {
		case mode&fs.ModeSymlink != 0:
			logger.Debug("skipping symlink root", logging.Path(path))
		case mode.IsDir():
			if !target.IgnoreDirs.IgnoreDir(path) {
				dirs = append(dirs, path)
			}
		case mode.IsRegular():
			if !target.IgnoreFiles.IgnoreFile(path) && !target.IgnoreDirs.IgnoreDir(filepath.Dir(path)) {
				files = append(files, rootFile{path: path, size: info.Size()})
			}
		}
	}

	dirs = outermost(dirs)
	kept := files[:0]
	for _, f := range files {
		if !under(f.path, dirs) {
			kept = append(kept, f)
		}
	}
	return dirs, kept, failed
}

// outermost drops directories contained in another listed directory.
func outermost(dirs []string) []string {
	sort.Strings(dirs)
	out := dirs[:0]
	for _, d := range dirs {
		if !under(d, out) {
			out = append(out, d)
		}
	}
	return out
}

func under(path string, dirs []string) bool {
	for _, d := range dirs {
		if path == d {
			return true
		}
		if strings.HasPrefix(path, strings.TrimSuffix(d, string(filepath.Separator))+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Package loader is the Incremental Loader: walks discovered paths,
// categorizes them against the store's known files, and drives the
// Semantic Chunker and Chunk Store to bring the store's contents up to
// date, isolating per-file failures so one bad document never aborts a
// run.
package loader

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"docbase/internal/categorize"
	"docbase/internal/chunker"
	"docbase/internal/config"
	"docbase/internal/hashutil"
	"docbase/internal/obs"
	"docbase/internal/store"
)

// FileError pairs a path with the error encountered processing it.
type FileError struct {
	Path    string
	Kind    string
	Message string
}

// Stats is the result of a Load call.
type Stats struct {
	FilesSkipped   int
	FilesAdded     int
	FilesUpdated   int
	FilesDeleted   int
	ChunksInserted int
	ChunksDeleted  int
	Duration       time.Duration
	PerFileErrors  []FileError
}

// Loader drives the ingestion write path.
type Loader struct {
	cfg     config.LoaderConfig
	store   store.Store
	chunker *chunker.Chunker
	metrics obs.Metrics
	log     zerolog.Logger
}

// Option configures a Loader during construction.
type Option func(*Loader)

// WithMetrics sets a custom metrics sink.
func WithMetrics(m obs.Metrics) Option { return func(l *Loader) { l.metrics = m } }

// New constructs a Loader.
func New(cfg config.LoaderConfig, st store.Store, ch *chunker.Chunker, log zerolog.Logger, opts ...Option) *Loader {
	l := &Loader{
		cfg:     cfg,
		store:   st,
		chunker: ch,
		metrics: obs.NoopMetrics{},
		log:     log.With().Str("component", "loader").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load walks paths (files, or directories walked recursively), categorizes
// the discovered files against the store, chunks and writes the add/update
// set with bounded concurrency, and applies deletes when Cleanup is set. A
// failure on one file is recorded in Stats.PerFileErrors and never aborts
// the run.
func (l *Loader) Load(ctx context.Context, paths []string) (Stats, error) {
	start := time.Now()

	discovered, err := l.discover(paths)
	if err != nil {
		return Stats{}, err
	}

	var known map[string]categorize.KnownFile
	if l.cfg.Cleanup {
		// Deletion requires comparing against every File record the store
		// knows about, not just the ones under the paths just discovered.
		known, err = l.allKnownFiles(ctx)
	} else {
		known, err = l.knownFiles(ctx, discovered)
	}
	if err != nil {
		return Stats{}, err
	}

	var res categorize.Result
	if l.cfg.Force {
		res = categorize.ForceUpdate(discovered, known, l.cfg.Cleanup)
	} else {
		res = categorize.Categorize(ctx, discovered, known, l.cfg.Cleanup)
		unchanged := len(res.Skip)
		if !l.cfg.Update {
			// Modified files stay as they are in the store; count them as
			// skipped rather than dropping them from the stats.
			res.Skip = append(res.Skip, res.Update...)
			res.Update = nil
		}
		if !l.cfg.Resume {
			// Without resume, a matching hash is not trusted as done: the
			// unchanged files are re-chunked like any other update.
			res.Update = append(res.Update, res.Skip[:unchanged]...)
			res.Skip = res.Skip[unchanged:]
		}
	}

	stats := Stats{
		FilesSkipped: len(res.Skip),
	}
	for path, err := range res.Errors {
		stats.PerFileErrors = append(stats.PerFileErrors, FileError{Path: path, Kind: "file_io", Message: err.Error()})
	}

	if l.cfg.DryRun {
		stats.FilesAdded = len(res.Add)
		stats.FilesUpdated = len(res.Update)
		stats.FilesDeleted = len(res.Delete)
		stats.Duration = time.Since(start)
		sortErrors(stats.PerFileErrors)
		return stats, nil
	}

	toProcess := append(append([]string{}, res.Add...), res.Update...)
	addedSet := make(map[string]bool, len(res.Add))
	for _, p := range res.Add {
		addedSet[p] = true
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	limit := l.cfg.MaxParallelFiles
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)

	for _, path := range toProcess {
		path := path
		g.Go(func() error {
			inserted, ferr := l.processFile(gctx, path)
			mu.Lock()
			defer mu.Unlock()
			if ferr != nil {
				stats.PerFileErrors = append(stats.PerFileErrors, FileError{Path: path, Kind: errorKind(ferr), Message: ferr.Error()})
				return nil
			}
			if addedSet[path] {
				stats.FilesAdded++
			} else {
				stats.FilesUpdated++
			}
			stats.ChunksInserted += inserted
			return nil
		})
	}
	_ = g.Wait()

	if l.cfg.Cleanup {
		for _, path := range res.Delete {
			count, derr := l.store.DeleteFile(ctx, path)
			if derr != nil {
				stats.PerFileErrors = append(stats.PerFileErrors, FileError{Path: path, Kind: errorKind(derr), Message: derr.Error()})
				continue
			}
			stats.FilesDeleted++
			stats.ChunksDeleted += count
		}
	}

	stats.Duration = time.Since(start)
	sortErrors(stats.PerFileErrors)
	l.metrics.ObserveHistogram("load_duration_ms", float64(stats.Duration.Milliseconds()), nil)
	for i := 0; i < stats.FilesAdded; i++ {
		l.metrics.IncCounter("files_added", nil)
	}
	for i := 0; i < stats.FilesUpdated; i++ {
		l.metrics.IncCounter("files_updated", nil)
	}
	for i := 0; i < stats.FilesDeleted; i++ {
		l.metrics.IncCounter("files_deleted", nil)
	}
	l.log.Debug().
		Int("added", stats.FilesAdded).
		Int("updated", stats.FilesUpdated).
		Int("deleted", stats.FilesDeleted).
		Int("skipped", stats.FilesSkipped).
		Msg("load complete")
	return stats, nil
}

func (l *Loader) processFile(ctx context.Context, path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	hash, err := hashutil.HashFile(ctx, path)
	if err != nil {
		return 0, err
	}

	title := deriveTitle(path, content)
	category := deriveCategory(path)

	chunks, err := l.chunker.Chunk(ctx, string(content), chunker.DocumentMeta{Title: title, Category: category})
	if err != nil {
		return 0, err
	}

	if err := l.store.UpsertFile(ctx, path, hash, category, l.cfg.Repository, title); err != nil {
		return 0, err
	}

	storeChunks := make([]store.Chunk, len(chunks))
	for i, c := range chunks {
		storeChunks[i] = store.Chunk{
			ChunkIndex:    c.ChunkIndex,
			TotalChunks:   c.TotalChunks,
			StartSentence: c.StartSentence,
			EndSentence:   c.EndSentence,
			Content:       c.Content,
			Embedding:     c.Embedding,
			AvgSimilarity: c.AvgSimilarity,
			Metadata: store.ChunkMetadata{
				Title:     c.Metadata.Title,
				Category:  c.Metadata.Category,
				Keywords:  c.Metadata.Keywords,
				WordCount: c.Metadata.WordCount,
				CharCount: c.Metadata.CharCount,
			},
		}
	}

	if err := l.store.ReplaceChunks(ctx, path, hash, storeChunks); err != nil {
		return 0, err
	}
	return len(storeChunks), nil
}

// discover walks paths recursively, keeping files whose extension is in
// cfg.AllowedExtensions (all files if the allow-list is empty).
func (l *Loader) discover(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if l.allowed(p) {
				out = append(out, p)
			}
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if l.allowed(path) {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(out)
	return out, nil
}

func (l *Loader) allowed(path string) bool {
	if len(l.cfg.AllowedExtensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, a := range l.cfg.AllowedExtensions {
		if strings.ToLower(a) == ext {
			return true
		}
	}
	return false
}

// knownFiles looks up store.FileRecords for every discovered path,
// skipping paths the store has never seen (the categorizer treats those
// as Add).
func (l *Loader) knownFiles(ctx context.Context, discovered []string) (map[string]categorize.KnownFile, error) {
	known := make(map[string]categorize.KnownFile)
	for _, path := range discovered {
		rec, err := l.store.GetFile(ctx, path)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			known[path] = categorize.KnownFile{FilePath: rec.FilePath, ContentHash: rec.ContentHash}
		}
	}
	return known, nil
}

// allKnownFiles lists every File record the store holds, for the delete
// side of categorization, which discovered-paths-only lookups can never
// surface since a deleted file is by definition absent from the current
// walk.
func (l *Loader) allKnownFiles(ctx context.Context) (map[string]categorize.KnownFile, error) {
	recs, err := l.store.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]categorize.KnownFile, len(recs))
	for _, rec := range recs {
		known[rec.FilePath] = categorize.KnownFile{FilePath: rec.FilePath, ContentHash: rec.ContentHash}
	}
	return known, nil
}

func sortErrors(errs []FileError) {
	sort.Slice(errs, func(i, j int) bool { return errs[i].Path < errs[j].Path })
}

func errorKind(err error) string {
	return strings.TrimSuffix(strings.SplitN(err.Error(), ":", 2)[0], " ")
}

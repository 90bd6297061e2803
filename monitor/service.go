package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/hazyhaar/pagewatch/detect"
	"github.com/hazyhaar/pagewatch/fetch"
	"github.com/hazyhaar/pagewatch/normalize"
	"github.com/hazyhaar/pagewatch/notify"
	"github.com/hazyhaar/pagewatch/snapshot"
)

// ErrSiteNotFound is returned for an unknown site ID.
var ErrSiteNotFound = errors.New("monitor: site not found")

// CycleResult is the outcome of one monitoring cycle for one site.
type CycleResult struct {
	SiteID     string   `json:"site_id"`
	URL        string   `json:"url"`
	Status     string   `json:"status"`
	Added      []string `json:"added,omitempty"`
	AddedChars int      `json:"added_chars,omitempty"`
	Digest     string   `json:"digest,omitempty"`
	DurationMs int64    `json:"duration_ms"`
	ErrorMsg   string   `json:"error,omitempty"`
	Err        error    `json:"-"`
}

// Service runs monitoring cycles over the configured sites. Cycles for
// distinct targets run independently; a per-target lock serializes the
// read-compare-persist sequence so snapshots never race.
type Service struct {
	config     *Config
	store      *snapshot.Store
	fetcher    *fetch.Fetcher
	normalizer normalize.Normalizer
	notifier   notify.Notifier
	preview    *notify.PreviewRenderer
	logger     *slog.Logger
	newID      func() string
	cron       *cron.Cron

	locks keyedLocks

	mu       sync.Mutex
	failures map[string]int
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithFetcher overrides the default fetcher (tests use httptest-backed ones).
func WithFetcher(f *fetch.Fetcher) ServiceOption {
	return func(s *Service) { s.fetcher = f }
}

// WithNormalizer overrides the normalizer backend.
func WithNormalizer(n normalize.Normalizer) ServiceOption {
	return func(s *Service) { s.normalizer = n }
}

// WithNotifier overrides the notifier (default: log notifier, plus webhook
// when configured).
func WithNotifier(n notify.Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithIDGenerator overrides watch-log ID generation (deterministic in tests).
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) { s.newID = fn }
}

// New creates a Service over a validated Config and an opened store.
func New(cfg *Config, store *snapshot.Store, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("monitor: nil config")
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	svc := &Service{
		config:   cfg,
		store:    store,
		logger:   logger,
		preview:  notify.NewPreviewRenderer(0),
		newID:    uuid.NewString,
		failures: make(map[string]int),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.fetcher == nil {
		svc.fetcher = fetch.New(fetch.Config{
			Timeout:   time.Duration(cfg.FetchTime),
			MaxBytes:  cfg.MaxBytes,
			UserAgent: cfg.UserAgent,
		})
	}
	if svc.normalizer == nil {
		n, err := normalize.New(cfg.ExtractMode, normalize.Options{
			MinSentenceChars: cfg.MinSentenceChars,
			KeepDynamic:      cfg.KeepDynamic,
		})
		if err != nil {
			return nil, err
		}
		svc.normalizer = n
	}
	if svc.notifier == nil {
		notifiers := notify.Multi{notify.NewLog(logger)}
		if cfg.WebhookURL != "" {
			wh, err := notify.NewWebhook(cfg.WebhookURL, 0)
			if err != nil {
				return nil, err
			}
			notifiers = append(notifiers, wh)
		}
		svc.notifier = notifiers
	}

	return svc, nil
}

// conf returns the current config. Reload swaps the pointer under s.mu;
// the Config itself is read-only after validation.
func (s *Service) conf() *Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Sites returns the configured sites.
func (s *Service) Sites() []*Site {
	return s.conf().Sites
}

// Site returns a configured site by ID, or nil.
func (s *Service) Site(id string) *Site {
	for _, site := range s.conf().Sites {
		if site.ID == id {
			return site
		}
	}
	return nil
}

// CheckSite runs one monitoring cycle for a site immediately, bypassing the
// failure skip. Returns ErrSiteNotFound for unknown IDs.
func (s *Service) CheckSite(ctx context.Context, siteID string) (*CycleResult, error) {
	site := s.Site(siteID)
	if site == nil {
		return nil, fmt.Errorf("%w: %s", ErrSiteNotFound, siteID)
	}
	return s.runCycle(ctx, site), nil
}

// CheckAll runs one cycle per site concurrently and returns all results.
// One site's failure never aborts the others.
func (s *Service) CheckAll(ctx context.Context) []*CycleResult {
	sites := s.conf().Sites
	results := make([]*CycleResult, len(sites))
	var wg sync.WaitGroup
	for i, site := range sites {
		wg.Add(1)
		go func(i int, site *Site) {
			defer wg.Done()
			results[i] = s.runCycle(ctx, site)
		}(i, site)
	}
	wg.Wait()
	return results
}

// History returns the watch log for a site.
func (s *Service) History(ctx context.Context, siteID string, limit int) ([]*snapshot.WatchLogEntry, error) {
	site := s.Site(siteID)
	if site == nil {
		return nil, fmt.Errorf("%w: %s", ErrSiteNotFound, siteID)
	}
	return s.store.History(ctx, site.URL, limit)
}

// Snapshot returns the current snapshot for a site, or nil before the
// baseline run.
func (s *Service) Snapshot(ctx context.Context, siteID string) (*snapshot.PageSnapshot, error) {
	site := s.Site(siteID)
	if site == nil {
		return nil, fmt.Errorf("%w: %s", ErrSiteNotFound, siteID)
	}
	return s.store.Load(ctx, site.URL, site.Selector)
}

// RecentChanges returns the latest change cycles across all sites.
func (s *Service) RecentChanges(ctx context.Context, limit int) ([]*snapshot.WatchLogEntry, error) {
	return s.store.RecentChanges(ctx, limit)
}

// FailCount returns the consecutive failure count for a site.
func (s *Service) FailCount(siteID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[siteID]
}

// detectorFor merges per-site threshold overrides with the global defaults.
func (s *Service) detectorFor(site *Site) *detect.Detector {
	cfg := s.conf()
	opts := detect.Options{
		MinAddedChars:     cfg.MinAddedChars,
		MinAddedSentences: cfg.MinAddedSentences,
	}
	if site.MinAddedChars > 0 {
		opts.MinAddedChars = site.MinAddedChars
	}
	if site.MinAddedSentences > 0 {
		opts.MinAddedSentences = site.MinAddedSentences
	}
	return detect.New(opts)
}

// runCycle executes one bounded detection cycle: load snapshot, fetch,
// normalize, compare, persist, notify. The per-target lock covers the whole
// read-compare-persist window.
func (s *Service) runCycle(ctx context.Context, site *Site) *CycleResult {
	log := s.logger.With("site", site.ID, "url", site.URL)
	start := time.Now()

	unlock := s.locks.lock(site.key())
	defer unlock()

	res := &CycleResult{SiteID: site.ID, URL: site.URL}
	entry := &snapshot.WatchLogEntry{ID: s.newID(), URL: site.URL}

	finish := func() *CycleResult {
		res.DurationMs = time.Since(start).Milliseconds()
		entry.DurationMs = res.DurationMs
		entry.Status = res.Status
		entry.Digest = res.Digest
		entry.AddedCount = len(res.Added)
		entry.AddedChars = res.AddedChars
		if res.Err != nil {
			res.ErrorMsg = res.Err.Error()
			entry.ErrorMsg = res.ErrorMsg
			s.recordFailure(site)
		} else {
			s.recordSuccess(site)
		}
		if err := s.store.InsertLog(ctx, entry); err != nil {
			log.Warn("watch log insert failed", "error", err)
		}
		return res
	}

	prev, err := s.store.Load(ctx, site.URL, site.Selector)
	if err != nil {
		// A store failure is not a first run: abort without touching state.
		res.Status = snapshot.StatusError
		res.Err = fmt.Errorf("load snapshot: %w", err)
		log.Error("cycle: snapshot load failed", "error", err)
		return finish()
	}

	var etag, lastMod, rawHash string
	if prev != nil {
		etag, lastMod, rawHash = prev.ETag, prev.LastModified, prev.RawHash
	}

	fres, err := s.fetcher.Fetch(ctx, site.URL, etag, lastMod, rawHash)
	if fres != nil {
		entry.StatusCode = fres.StatusCode
	}
	if err != nil {
		res.Status = snapshot.StatusError
		res.Err = fmt.Errorf("fetch: %w", err)
		log.Warn("cycle: fetch failed", "error", err)
		return finish()
	}

	if !fres.Changed {
		// 304 or identical raw body: nothing to normalize.
		res.Status = snapshot.StatusUnchanged
		if prev != nil {
			res.Digest = prev.Digest
			if err := s.store.Touch(ctx, site.URL, site.Selector); err != nil {
				log.Warn("cycle: touch failed", "error", err)
			}
		}
		log.Debug("cycle: content unchanged (fetch)")
		return finish()
	}

	sentences, err := s.normalizer.Normalize(fres.Body, site.Selector)
	if err != nil {
		// Parse failure: cycle aborted, prior snapshot untouched.
		res.Status = snapshot.StatusError
		res.Err = err
		log.Warn("cycle: normalize failed", "error", err)
		return finish()
	}

	now := time.Now().UnixMilli()
	next := &snapshot.PageSnapshot{
		URL:          site.URL,
		Selector:     site.Selector,
		Sentences:    sentences,
		RawHash:      fres.RawHash,
		ETag:         fres.ETag,
		LastModified: fres.LastMod,
		CapturedAt:   now,
		CheckedAt:    now,
	}

	if prev == nil {
		// First observation: store the baseline, report nothing.
		next.Digest = detect.Digest(sentences)
		if err := s.store.Save(ctx, next); err != nil {
			res.Status = snapshot.StatusError
			res.Err = fmt.Errorf("save baseline: %w", err)
			return finish()
		}
		res.Status = snapshot.StatusBaseline
		res.Digest = next.Digest
		log.Info("cycle: baseline stored", "sentences", len(sentences))
		return finish()
	}

	out := s.detectorFor(site).Compare(prev.Sentences, prev.Digest, sentences)
	next.Digest = out.Digest
	res.Digest = out.Digest

	switch {
	case out.Digest == prev.Digest:
		// Markup-only change: text identical, raw body differed. Persist the
		// new raw hash so future fetches short-circuit again.
		next.CapturedAt = prev.CapturedAt
		if err := s.store.Save(ctx, next); err != nil {
			res.Status = snapshot.StatusError
			res.Err = fmt.Errorf("save snapshot: %w", err)
			return finish()
		}
		res.Status = snapshot.StatusUnchanged
		log.Debug("cycle: content unchanged (text)")

	case out.NoiseFiltered:
		// Below threshold: do not advance the snapshot, so small edits
		// accumulate until they cross it.
		res.Status = snapshot.StatusNoise
		if err := s.store.Touch(ctx, site.URL, site.Selector); err != nil {
			log.Warn("cycle: touch failed", "error", err)
		}
		log.Info("cycle: change below noise threshold")

	case !out.Changed:
		// Reordered or removed content only: advance the snapshot silently.
		if err := s.store.Save(ctx, next); err != nil {
			res.Status = snapshot.StatusError
			res.Err = fmt.Errorf("save snapshot: %w", err)
			return finish()
		}
		res.Status = snapshot.StatusReordered
		log.Debug("cycle: content reordered, nothing added")

	default:
		if err := s.store.Save(ctx, next); err != nil {
			res.Status = snapshot.StatusError
			res.Err = fmt.Errorf("save snapshot: %w", err)
			return finish()
		}
		res.Status = snapshot.StatusChanged
		res.Added = out.Added
		res.AddedChars = out.AddedChars()
		change := &notify.Change{
			Site:       site.Name,
			URL:        site.URL,
			Added:      out.Added,
			AddedChars: res.AddedChars,
			Preview:    s.preview.Render(string(fres.Body), site.URL),
			DetectedAt: time.Now().UTC(),
		}
		if err := s.notifier.Notify(ctx, change); err != nil {
			// Delivery failure does not invalidate the detection.
			log.Warn("cycle: notify failed", "error", err)
		}
		log.Info("cycle: new content detected",
			"added_sentences", len(out.Added), "added_chars", res.AddedChars)
	}

	return finish()
}

func (s *Service) recordFailure(site *Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[site.ID]++
}

func (s *Service) recordSuccess(site *Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, site.ID)
}

// keyedLocks hands out one mutex per target key.
type keyedLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	if k.m == nil {
		k.m = make(map[string]*sync.Mutex)
	}
	l, ok := k.m[key]
	if !ok {
		l = &sync.Mutex{}
		k.m[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}

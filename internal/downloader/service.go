package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	domain "github.com/pulsedev/pulse/internal/biz/download"
	"github.com/pulsedev/pulse/pkg/config"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Service stages export packages from the distribution server. It fetches
// the published index, narrows it to the scope minus the packages already
// applied, then downloads each archive with checksum verification into the
// staging filesystem.
type Service struct {
	cfg     config.DownloaderConfig
	fs      afero.Fs
	client  *http.Client
	limiter *rate.Limiter
	cursor  domain.Cursor
	clock   clockwork.Clock
	logger  *zap.Logger
}

func NewService(cfg config.DownloaderConfig, fs afero.Fs, cursor domain.Cursor, clock clockwork.Clock, logger *zap.Logger) *Service {
	var limiter *rate.Limiter
	if cfg.RateLimitBytes > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitBytes), cfg.RateLimitBytes)
	}
	return &Service{
		cfg:     cfg,
		fs:      fs,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		limiter: limiter,
		cursor:  cursor,
		clock:   clock,
		logger:  logger,
	}
}

type handle struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (h *handle) Cancel() {
	h.once.Do(h.cancel)
}

// Start launches one download run. The returned channel delivers exactly
// one Result; cancelling the handle aborts the run and surfaces a context
// error instead.
func (s *Service) Start(ctx context.Context, scope domain.Scope) (domain.Handle, <-chan domain.Result) {
	runCtx, cancel := context.WithCancel(ctx)
	results := make(chan domain.Result, 1)

	go func() {
		defer cancel()
		set, err := s.fetch(runCtx, scope)
		if err != nil {
			results <- domain.Result{Err: err}
			return
		}
		results <- domain.Result{Set: set}
	}()

	return &handle{cancel: cancel}, results
}

// Discard removes the staged archives of a delivered set.
func (s *Service) Discard(set domain.BatchSet) error {
	var result *multierror.Error
	for _, b := range set.Batches {
		if b.Path == "" {
			continue
		}
		if err := s.fs.Remove(b.Path); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, fmt.Errorf("remove %s: %w", b.Path, err))
		}
	}
	return result.ErrorOrNil()
}

func (s *Service) fetch(ctx context.Context, scope domain.Scope) (domain.BatchSet, error) {
	index, err := s.fetchIndex(ctx)
	if err != nil {
		return domain.BatchSet{}, fmt.Errorf("fetch index: %w", err)
	}

	wanted := selectPackages(index.Packages, scope, s.clock.Now(), s.cfg.WideDays)

	ids := lo.Map(wanted, func(p indexPackage, _ int) string { return p.ID })
	applied, err := s.cursor.Applied(ctx, ids)
	if err != nil {
		return domain.BatchSet{}, fmt.Errorf("read applied cursor: %w", err)
	}
	wanted = lo.Filter(wanted, func(p indexPackage, _ int) bool { return !applied[p.ID] })

	s.logger.Info("download plan resolved",
		zap.String("scope", string(scope)),
		zap.Int("packages", len(wanted)),
		zap.Int("already_applied", len(ids)-len(wanted)))

	set := domain.BatchSet{Scope: scope}
	for _, pkg := range wanted {
		batch, err := s.stage(ctx, pkg)
		if err != nil {
			if derr := s.Discard(set); derr != nil {
				s.logger.Warn("failed to discard partial staging", zap.Error(derr))
			}
			return domain.BatchSet{}, fmt.Errorf("stage package %s: %w", pkg.ID, err)
		}
		set.Batches = append(set.Batches, batch)
	}
	return set, nil
}

// selectPackages applies the scope: increments of today always, plus the
// full-day packages of the WideDays window when the scope is wide.
// Increments of past days are superseded by their full-day package and are
// never fetched.
func selectPackages(all []indexPackage, scope domain.Scope, now time.Time, wideDays int) []indexPackage {
	today := now.Format("2006-01-02")
	cutoff := now.AddDate(0, 0, -wideDays).Format("2006-01-02")

	wanted := lo.Filter(all, func(p indexPackage, _ int) bool {
		if p.Day == today {
			return p.Hour >= 0
		}
		if scope != domain.ScopeWide {
			return false
		}
		return p.Hour < 0 && p.Day >= cutoff && p.Day < today
	})

	sort.Slice(wanted, func(i, j int) bool {
		if wanted[i].Day != wanted[j].Day {
			return wanted[i].Day < wanted[j].Day
		}
		return wanted[i].Hour < wanted[j].Hour
	})
	return wanted
}

func (s *Service) fetchIndex(ctx context.Context) (*indexDocument, error) {
	url := s.cfg.BaseURL + "/index.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from index", resp.StatusCode)
	}

	var doc indexDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return &doc, nil
}

func (s *Service) stage(ctx context.Context, pkg indexPackage) (domain.Batch, error) {
	url := s.cfg.BaseURL + "/" + strings.TrimPrefix(pkg.Path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Batch{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return domain.Batch{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Batch{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := s.fs.MkdirAll(s.cfg.StagingDir, 0o755); err != nil {
		return domain.Batch{}, err
	}
	path := filepath.Join(s.cfg.StagingDir, strings.ReplaceAll(pkg.ID, "/", "_")+".ndjson")
	file, err := s.fs.Create(path)
	if err != nil {
		return domain.Batch{}, err
	}

	hasher := sha256.New()
	body := newRateLimitedReader(ctx, resp.Body, s.limiter)
	size, err := io.Copy(file, io.TeeReader(body, hasher))
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = s.fs.Remove(path)
		return domain.Batch{}, err
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	if pkg.SHA256 != "" && !strings.EqualFold(sum, pkg.SHA256) {
		_ = s.fs.Remove(path)
		return domain.Batch{}, fmt.Errorf("checksum mismatch: index has %s, downloaded %s", pkg.SHA256, sum)
	}

	s.logger.Debug("package staged",
		zap.String("package", pkg.ID),
		zap.Int64("bytes", size))

	return domain.Batch{
		PackageID: pkg.ID,
		Day:       pkg.Day,
		Hour:      pkg.Hour,
		Path:      path,
		Size:      size,
		Checksum:  sum,
	}, nil
}

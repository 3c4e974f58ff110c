// Package intake orchestrates upload processing: classify by size, derive a
// bounded preview, persist the latest-upload cache record, and drive progress.
package intake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fairlens/backend/internal/logging"
	"github.com/fairlens/backend/internal/models"
	"github.com/fairlens/backend/internal/preview"
	"github.com/fairlens/backend/internal/progress"
)

// Status describes one processing invocation.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// PlaceholderPreview is the content preview cached for a large file before its
// head has been decoded.
const PlaceholderPreview = "loading partial preview…"

// DecodeFailedPreview replaces the content preview when the file is not valid
// text. The upload itself still succeeds.
const DecodeFailedPreview = "preview unavailable: file could not be decoded as text"

// Cache is the slice of the persistence layer the controller needs. Every call
// is best-effort: failures are logged and swallowed.
type Cache interface {
	Save(ctx context.Context, blob io.Reader, meta models.UploadMetadata) error
	SaveMetadata(ctx context.Context, meta models.UploadMetadata) error
	SaveBlob(ctx context.Context, blob io.Reader) error
	Delete(ctx context.Context) error
}

// Config tunes the processing policy. Zero values fall back to defaults.
type Config struct {
	// SizeThreshold separates the small (full decode) and large (partial
	// preview + streaming) paths.
	SizeThreshold int64
	// PreviewByteBudget is how many head bytes of a large file are decoded.
	PreviewByteBudget int
	// PreviewCharBudget bounds the cached content preview.
	PreviewCharBudget int
	// MaxPreviewRows / MaxPreviewCols bound the tabular preview grid.
	MaxPreviewRows int
	MaxPreviewCols int
	// HeuristicStep and HeuristicInterval tune the fallback progress strategy
	// used when the source length is unknown.
	HeuristicStep     int
	HeuristicInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.SizeThreshold <= 0 {
		c.SizeThreshold = 1 << 20 // 1 MiB
	}
	if c.PreviewByteBudget <= 0 {
		c.PreviewByteBudget = 64 << 10 // 64 KiB
	}
	if c.PreviewCharBudget <= 0 {
		c.PreviewCharBudget = 4000
	}
	if c.MaxPreviewRows <= 0 {
		c.MaxPreviewRows = 50
	}
	if c.MaxPreviewCols <= 0 {
		c.MaxPreviewCols = 30
	}
	if c.HeuristicStep <= 0 {
		c.HeuristicStep = progress.DefaultStep
	}
	if c.HeuristicInterval <= 0 {
		c.HeuristicInterval = progress.DefaultInterval
	}
}

// Job identifies one ProcessFile invocation.
type Job struct {
	ID         string `json:"id"`
	Generation uint64 `json:"-"`
}

// State is a point-in-time snapshot of the controller, safe to hand to the
// HTTP surface.
type State struct {
	JobID        string                 `json:"jobId,omitempty"`
	Status       Status                 `json:"status,omitempty"`
	Progress     int                    `json:"progress"`
	Metadata     *models.UploadMetadata `json:"metadata,omitempty"`
	TablePreview *models.TablePreview   `json:"tablePreview,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// Controller owns the current upload session. A new ProcessFile call or a
// Clear supersedes any in-flight background work: superseded continuations
// check their generation and become no-ops.
type Controller struct {
	cfg   Config
	cache Cache
	log   zerolog.Logger

	mu    sync.RWMutex
	gen   uint64 // guarded by mu; incremented per invocation
	state State
}

// NewController creates a controller over the given cache.
func NewController(cfg Config, cache Cache) *Controller {
	cfg.applyDefaults()
	return &Controller{
		cfg:   cfg,
		cache: cache,
		log:   logging.NewLogger("intake"),
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Clear abandons the current upload: any in-flight background work becomes a
// no-op and the cache record is deleted.
func (c *Controller) Clear(ctx context.Context) {
	c.mu.Lock()
	c.gen++
	c.state = State{}
	c.mu.Unlock()

	if err := c.cache.Delete(ctx); err != nil {
		c.log.Warn().Err(err).Msg("cache delete skipped")
	}
}

// ProcessFile ingests one uploaded file. It returns once the file's bytes have
// been fully consumed; preview refinement for large files may still be running
// in the background when it returns.
func (c *Controller) ProcessFile(ctx context.Context, name string, declaredSize int64, contentType string, src io.Reader) *Job {
	c.mu.Lock()
	c.gen++
	job := &Job{ID: uuid.New().String(), Generation: c.gen}
	c.state = State{JobID: job.ID, Status: StatusProcessing}
	c.mu.Unlock()

	c.log.Info().
		Str("job", job.ID[:8]).
		Str("name", name).
		Int64("size", declaredSize).
		Msg("processing upload")

	if declaredSize >= 0 && declaredSize <= c.cfg.SizeThreshold {
		c.processSmall(ctx, job, name, declaredSize, contentType, src)
	} else {
		c.processLarge(ctx, job, name, declaredSize, contentType, src)
	}
	return job
}

// processSmall fully decodes the file in a single pass.
func (c *Controller) processSmall(ctx context.Context, job *Job, name string, declaredSize int64, contentType string, src io.Reader) {
	data, err := io.ReadAll(src)
	if err != nil {
		c.failJob(job, fmt.Sprintf("reading upload: %v", err))
		return
	}

	meta := models.UploadMetadata{
		Name: name,
		Size: int64(len(data)),
		Type: contentType,
	}

	var table *models.TablePreview
	if utf8.Valid(data) {
		text := string(data)
		meta.ContentPreview = truncateRunes(text, c.cfg.PreviewCharBudget)
		table, _ = preview.Parse(text, c.cfg.MaxPreviewRows, c.cfg.MaxPreviewCols)
	} else {
		meta.ContentPreview = DecodeFailedPreview
	}

	if !c.alive(job) {
		return
	}
	if err := c.cache.Save(ctx, bytes.NewReader(data), meta); err != nil {
		c.log.Warn().Err(err).Str("job", job.ID[:8]).Msg("cache save skipped")
	}

	c.finishJob(job, meta, table)
}

// processLarge writes a placeholder cache record, then concurrently refines
// the preview from the head bytes while spooling the body under the progress
// tracker. The two background legs are independent; neither gates the other.
func (c *Controller) processLarge(ctx context.Context, job *Job, name string, declaredSize int64, contentType string, src io.Reader) {
	placeholder := models.UploadMetadata{
		Name:           name,
		Size:           declaredSize,
		Type:           contentType,
		ContentPreview: PlaceholderPreview,
	}
	c.setMetadata(job, placeholder, nil)
	if err := c.cache.SaveMetadata(ctx, placeholder); err != nil {
		c.log.Warn().Err(err).Str("job", job.ID[:8]).Msg("placeholder cache write skipped")
	}

	body, finish := c.trackProgress(job, declaredSize, src)

	head := make([]byte, c.cfg.PreviewByteBudget)
	n, readErr := io.ReadFull(body, head)
	head = head[:n]
	if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
		finish(readErr)
		c.failJob(job, fmt.Sprintf("reading upload: %v", readErr))
		return
	}

	// Refine the preview from the head while the body keeps streaming. The
	// refinement can outlive the originating request, so it is detached from
	// the request's cancellation.
	go c.refinePreview(context.WithoutCancel(ctx), job, placeholder, head)

	// Each chunk boundary of the spool re-checks the generation, so a newer
	// upload or a clear stops a stale spool before it publishes.
	blob := &guardedReader{c: c, job: job, src: io.MultiReader(bytes.NewReader(head), body)}
	if err := c.cache.SaveBlob(ctx, blob); err != nil {
		if errors.Is(err, errSuperseded) {
			finish(err)
			return
		}
		c.log.Warn().Err(err).Str("job", job.ID[:8]).Msg("blob cache write skipped")
		// The cache is best-effort but the source must still be drained so
		// progress terminates.
		if _, drainErr := io.Copy(io.Discard, blob); drainErr != nil {
			if !errors.Is(drainErr, errSuperseded) {
				c.failJob(job, fmt.Sprintf("reading upload: %v", drainErr))
			}
			finish(drainErr)
			return
		}
	}

	finish(nil)
	c.completeJob(job)
}

// errSuperseded aborts background work belonging to a superseded invocation.
var errSuperseded = errors.New("upload superseded")

type guardedReader struct {
	c   *Controller
	job *Job
	src io.Reader
}

func (g *guardedReader) Read(p []byte) (int, error) {
	if !g.c.alive(g.job) {
		return 0, errSuperseded
	}
	return g.src.Read(p)
}

// refinePreview decodes the head slice and re-persists refined metadata. It
// runs concurrently with the streaming pass and checks liveness before every
// state or cache mutation.
func (c *Controller) refinePreview(ctx context.Context, job *Job, meta models.UploadMetadata, head []byte) {
	text, ok := decodeHead(head)
	if !ok {
		meta.ContentPreview = DecodeFailedPreview
		c.setMetadata(job, meta, nil)
		if c.alive(job) {
			if err := c.cache.SaveMetadata(ctx, meta); err != nil {
				c.log.Warn().Err(err).Str("job", job.ID[:8]).Msg("refined cache write skipped")
			}
		}
		return
	}

	meta.ContentPreview = truncateRunes(text, c.cfg.PreviewCharBudget)
	table, _ := preview.Parse(text, c.cfg.MaxPreviewRows, c.cfg.MaxPreviewCols)

	c.setMetadata(job, meta, table)
	if !c.alive(job) {
		return
	}
	if err := c.cache.SaveMetadata(ctx, meta); err != nil {
		c.log.Warn().Err(err).Str("job", job.ID[:8]).Msg("refined cache write skipped")
	}
}

// trackProgress wraps src in the strategy matching its capabilities and
// returns the wrapped reader plus a finish callback. When the total size is
// known the stream strategy reports real consumption; otherwise a heuristic
// ticker synthesizes progress until finish is called.
func (c *Controller) trackProgress(job *Job, declaredSize int64, src io.Reader) (io.Reader, func(error)) {
	if declaredSize >= 0 {
		r := progress.NewReader(src, declaredSize, func(pct int) {
			c.setProgress(job, pct)
		})
		return r, func(err error) {
			if err == nil {
				c.setProgress(job, 100)
			}
		}
	}

	t := progress.NewTicker(c.cfg.HeuristicStep, c.cfg.HeuristicInterval, func(pct int) {
		c.setProgressAllowReset(job, pct)
	})
	return src, func(err error) {
		if err != nil {
			t.Fail()
		} else {
			t.Finish()
		}
	}
}

// alive reports whether job is still the current generation.
func (c *Controller) alive(job *Job) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return job.Generation == c.gen
}

func (c *Controller) setProgress(job *Job, pct int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if job.Generation != c.gen {
		return
	}
	if pct > c.state.Progress {
		c.state.Progress = pct
	}
}

// setProgressAllowReset is the heuristic-strategy variant: a Fail resets the
// indicator to 0.
func (c *Controller) setProgressAllowReset(job *Job, pct int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if job.Generation != c.gen {
		return
	}
	c.state.Progress = pct
}

func (c *Controller) setMetadata(job *Job, meta models.UploadMetadata, table *models.TablePreview) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if job.Generation != c.gen {
		return
	}
	m := meta
	c.state.Metadata = &m
	c.state.TablePreview = table
}

func (c *Controller) finishJob(job *Job, meta models.UploadMetadata, table *models.TablePreview) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if job.Generation != c.gen {
		return
	}
	m := meta
	c.state.Metadata = &m
	c.state.TablePreview = table
	c.state.Progress = 100
	c.state.Status = StatusComplete
}

func (c *Controller) completeJob(job *Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if job.Generation != c.gen {
		return
	}
	c.state.Progress = 100
	c.state.Status = StatusComplete
}

func (c *Controller) failJob(job *Job, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if job.Generation != c.gen {
		return
	}
	c.state.Status = StatusError
	c.state.Error = msg
	c.log.Error().Str("job", job.ID[:8]).Msg(msg)
}

// decodeHead interprets head bytes as UTF-8 text, dropping a trailing partial
// rune left by the byte-budget cut.
func decodeHead(head []byte) (string, bool) {
	trimmed := head
	for i := 0; i < utf8.UTFMax && len(trimmed) > 0 && !utf8.Valid(trimmed); i++ {
		trimmed = trimmed[:len(trimmed)-1]
	}
	if !utf8.Valid(trimmed) {
		return "", false
	}
	return string(trimmed), true
}

func truncateRunes(s string, budget int) string {
	if utf8.RuneCountInString(s) <= budget {
		return s
	}
	runes := []rune(s)
	return string(runes[:budget])
}

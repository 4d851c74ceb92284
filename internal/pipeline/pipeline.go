// Package pipeline runs one uploaded image through preprocessing, inference,
// interpretation and report generation.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Brownie44l1/xray-api/internal/interpret"
	"github.com/Brownie44l1/xray-api/internal/model"
	"github.com/Brownie44l1/xray-api/internal/preprocess"
	"github.com/Brownie44l1/xray-api/internal/report"
	"github.com/Brownie44l1/xray-api/internal/repository"
	"github.com/Brownie44l1/xray-api/internal/storage"
	"go.uber.org/zap"
)

// Classifier is the loaded model. Implementations must be safe for
// concurrent use.
type Classifier interface {
	Classify(ctx context.Context, in model.Tensor) (model.Tensor, error)
}

// Cache remembers results by image hash. Get returns nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context, hash string) (*interpret.Result, error)
	Set(ctx context.Context, hash string, result interpret.Result) error
}

// Upload is one received file.
type Upload struct {
	Filename string
	Data     []byte
}

// Outcome is the success payload returned to clients.
type Outcome struct {
	Prediction        string  `json:"prediction"`
	Confidence        float64 `json:"confidence"`
	ImageURL          string  `json:"image_url"`
	ReportID          string  `json:"report_id"`
	ReportDownloadURL string  `json:"report_download_url"`
}

type Config struct {
	Labels           interpret.LabelSet
	ImageSize        int
	MaxPixels        int64
	InferenceTimeout time.Duration
	// PublicBaseURL prefixes report download links. Empty gives relative links.
	PublicBaseURL string
}

type Pipeline struct {
	classifier Classifier
	normalizer preprocess.Normalizer
	labels     interpret.LabelSet
	timeout    time.Duration
	baseURL    string
	uploads    *storage.UploadStore
	reports    *report.Generator
	ledger     repository.ReportRepository
	cache      Cache
	now        func() time.Time
	log        *zap.Logger
}

type Option func(*Pipeline)

// WithCache enables result caching.
func WithCache(c Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithLedger records every generated report.
func WithLedger(r repository.ReportRepository) Option {
	return func(p *Pipeline) { p.ledger = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

func New(cfg Config, classifier Classifier, uploads *storage.UploadStore, reports *report.Generator, opts ...Option) *Pipeline {
	labels := cfg.Labels
	if len(labels) == 0 {
		labels = interpret.DefaultLabels
	}

	p := &Pipeline{
		classifier: classifier,
		normalizer: preprocess.Normalizer{Size: cfg.ImageSize, MaxPixels: cfg.MaxPixels},
		labels:     slices.Clone(labels),
		timeout:    cfg.InferenceTimeout,
		baseURL:    strings.TrimRight(cfg.PublicBaseURL, "/"),
		uploads:    uploads,
		reports:    reports,
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Labels is the label set results are drawn from.
func (p *Pipeline) Labels() interpret.LabelSet {
	return slices.Clone(p.labels)
}

// Run processes one upload. Failures are *Error; nothing is retried.
func (p *Pipeline) Run(ctx context.Context, up Upload) (*Outcome, error) {
	if len(up.Data) == 0 {
		return nil, &Error{Kind: KindValidation, Op: "validate", Err: ErrNoFile}
	}

	at := p.now()
	log := p.log.With(zap.String("filename", up.Filename), zap.Int("size", len(up.Data)))

	uploadPath, err := p.uploads.Save(up.Filename, up.Data)
	if err != nil {
		return nil, p.fail(log, KindIO, "save upload", err)
	}
	log.Debug("upload stored", zap.String("path", uploadPath))

	hash := digest(up.Data)
	result, err := p.predict(ctx, log, up.Data, hash)
	if err != nil {
		return nil, err
	}

	artifact, err := p.reports.Generate(up.Data, result, at)
	if err != nil {
		return nil, p.fail(log, KindIO, "generate report", err)
	}

	if p.ledger != nil {
		err := p.ledger.Insert(ctx, &repository.Report{
			ID:          artifact.ReportID,
			Label:       result.Label,
			Confidence:  result.Confidence,
			ReportPath:  artifact.Path,
			UploadPath:  uploadPath,
			ImageSHA256: hash,
			CreatedAt:   at,
		})
		if err != nil {
			if rmErr := p.reports.Remove(artifact); rmErr != nil {
				log.Warn("failed to remove unrecorded report", zap.Error(rmErr))
			}
			return nil, p.fail(log, KindIO, "record report", err)
		}
	}

	log.Info("prediction complete",
		zap.String("report_id", artifact.ReportID),
		zap.String("prediction", result.Label),
		zap.Float64("confidence", result.Confidence))

	return &Outcome{
		Prediction:        result.Label,
		Confidence:        result.Confidence,
		ImageURL:          artifact.ImageURL,
		ReportID:          artifact.ReportID,
		ReportDownloadURL: p.DownloadURL(artifact.ReportID),
	}, nil
}

// DownloadURL is where a stored report is served.
func (p *Pipeline) DownloadURL(reportID string) string {
	return p.baseURL + "/reports/" + reportID
}

func (p *Pipeline) predict(ctx context.Context, log *zap.Logger, data []byte, hash string) (interpret.Result, error) {
	if cached := p.cached(ctx, log, hash); cached != nil {
		log.Debug("cache hit", zap.String("sha256", hash))
		return *cached, nil
	}

	tensor, err := p.normalizer.Normalize(data)
	if err != nil {
		return interpret.Result{}, p.fail(log, KindDecode, "normalize", err)
	}

	inferCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		inferCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := p.classifier.Classify(inferCtx, tensor)
	if err != nil {
		return interpret.Result{}, p.fail(log, KindInference, "classify", err)
	}
	if rank := out.Rank(); rank < 1 || rank > 2 {
		return interpret.Result{}, p.fail(log, KindInference, "classify",
			fmt.Errorf("classifier returned rank %d output (shape %v)", rank, out.Shape))
	}
	log.Debug("inference done", zap.Int64s("shape", out.Shape), zap.Duration("took", time.Since(start)))

	result, err := interpret.Interpret(out, p.labels)
	if err != nil {
		return interpret.Result{}, p.fail(log, KindInterpretation, "interpret", err)
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, hash, result); err != nil {
			log.Warn("failed to cache result", zap.Error(err))
		}
	}
	return result, nil
}

// cached ignores cache errors and entries whose label is no longer valid.
func (p *Pipeline) cached(ctx context.Context, log *zap.Logger, hash string) *interpret.Result {
	if p.cache == nil {
		return nil
	}
	res, err := p.cache.Get(ctx, hash)
	if err != nil {
		log.Warn("failed to read cache", zap.Error(err))
		return nil
	}
	if res == nil || !slices.Contains(p.labels, res.Label) || res.Confidence < 0 || res.Confidence > 1 {
		return nil
	}
	return res
}

func (p *Pipeline) fail(log *zap.Logger, kind Kind, op string, err error) error {
	log.Error("processing failed", zap.String("kind", kind.String()), zap.String("op", op), zap.Error(err))
	return &Error{Kind: kind, Op: op, Err: err}
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

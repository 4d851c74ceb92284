package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Brownie44l1/xray-api/internal/cache"
	"github.com/Brownie44l1/xray-api/internal/chat"
	"github.com/Brownie44l1/xray-api/internal/config"
	"github.com/Brownie44l1/xray-api/internal/handlers"
	"github.com/Brownie44l1/xray-api/internal/interpret"
	"github.com/Brownie44l1/xray-api/internal/model"
	"github.com/Brownie44l1/xray-api/internal/pipeline"
	"github.com/Brownie44l1/xray-api/internal/preprocess"
	"github.com/Brownie44l1/xray-api/internal/report"
	"github.com/Brownie44l1/xray-api/internal/repository/sqlite"
	"github.com/Brownie44l1/xray-api/internal/storage"
	"go.uber.org/zap"
)

type App struct {
	config   *config.Config
	log      *zap.Logger
	model    *model.Server
	db       *sqlite.DB
	cache    *cache.RedisCache
	Pipeline *pipeline.Pipeline
	Reports  *sqlite.ReportRepository
}

// New loads the model and opens every store. Close releases them.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{config: cfg, log: log}

	modelServer, err := model.NewServer(model.Options{
		ModelPath:    cfg.Model.Path,
		MetadataPath: cfg.Model.MetadataPath,
		LibraryPath:  cfg.Model.LibraryPath,
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model server: %w", err)
	}
	a.model = modelServer

	if err := checkLabels(modelServer.Metadata, cfg.Model.Labels); err != nil {
		a.Close()
		return nil, err
	}
	if err := checkImageSize(modelServer.Metadata, cfg.Model.ImageSize); err != nil {
		a.Close()
		return nil, err
	}

	uploads, err := storage.NewUploadStore(cfg.Upload.Dir)
	if err != nil {
		a.Close()
		return nil, err
	}

	db, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.db = db
	a.Reports = sqlite.NewReportRepository(db)

	opts := []pipeline.Option{
		pipeline.WithLedger(a.Reports),
		pipeline.WithLogger(log),
	}
	if c := a.connectCache(); c != nil {
		opts = append(opts, pipeline.WithCache(c))
	}

	a.Pipeline = pipeline.New(pipeline.Config{
		Labels:           cfg.Model.Labels,
		ImageSize:        cfg.Model.ImageSize,
		MaxPixels:        cfg.Upload.MaxPixels,
		InferenceTimeout: cfg.Inference.Timeout,
		PublicBaseURL:    cfg.Server.PublicBaseURL,
	}, modelServer, uploads, report.NewGenerator(cfg.Report.Dir, cfg.Report.Title), opts...)

	return a, nil
}

// connectCache returns nil when caching is off or Redis is unreachable.
func (a *App) connectCache() *cache.RedisCache {
	if !a.config.Redis.Enabled {
		return nil
	}

	c := cache.NewRedisCache(cache.Options{
		Addr:     a.config.Redis.Addr,
		Password: a.config.Redis.Password,
		DB:       a.config.Redis.DB,
		TTL:      a.config.Redis.TTL,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		a.log.Warn("redis connection failed, cache disabled", zap.Error(err))
		c.Close()
		return nil
	}

	a.log.Info("redis connected", zap.String("addr", a.config.Redis.Addr))
	a.cache = c
	return c
}

// checkLabels rejects a label set that cannot match the model's output width.
func checkLabels(meta model.Metadata, labels interpret.LabelSet) error {
	if len(meta.OutputShape) == 0 {
		return nil
	}
	width := meta.OutputShape[len(meta.OutputShape)-1]
	if width > 1 && int(width) != len(labels) {
		return fmt.Errorf("model outputs %d classes but %d labels are configured", width, len(labels))
	}
	if len(meta.Classes) > 0 && len(meta.Classes) != len(labels) {
		return fmt.Errorf("model metadata lists %d classes but %d labels are configured", len(meta.Classes), len(labels))
	}
	return nil
}

// checkImageSize rejects an image size whose tensor the model cannot accept.
func checkImageSize(meta model.Metadata, size int) error {
	if meta.ImageSize > 0 && meta.ImageSize != size {
		return fmt.Errorf("model metadata expects %dx%d images but model.image_size is %d", meta.ImageSize, meta.ImageSize, size)
	}
	if len(meta.InputShape) == 0 {
		return nil
	}
	if want, got := model.NumElements(meta.InputShape), size*size*preprocess.Channels; want != got {
		return fmt.Errorf("model input %v holds %d values but model.image_size %d gives %d", meta.InputShape, want, size, got)
	}
	return nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	h := handlers.NewHandler(a.Pipeline, a.Reports, chat.New(), a.config.Upload.MaxSize, a.log)

	srv := &http.Server{
		Addr:         a.config.Server.Port,
		Handler:      handlers.Routes(h, a.config.Server.AllowedOrigin, a.log),
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server starting",
			zap.String("port", a.config.Server.Port),
			zap.Strings("labels", a.config.Model.Labels),
			zap.String("reports", a.config.Report.Dir))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.model != nil {
		a.model.Close()
	}
}

package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"gorm.io/gorm"

	"wedsite/internal/database"
	"wedsite/internal/errcode"
	"wedsite/internal/metrics"
	"wedsite/internal/pagecache"
	"wedsite/internal/profile"
	"wedsite/internal/render"
	"wedsite/internal/site"
	"wedsite/internal/storage"
	"wedsite/internal/tasks"
)

const (
	maxImageBytes   = 10 << 20
	thumbnailURLTTL = 10 * time.Minute
)

// Storage is the object store subset the publish task needs.
type Storage interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	CopyObject(ctx context.Context, srcKey, dstKey string, limit int64) error
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

// PublishTaskHandler 负责消费站点发布任务：渲染只读页面并写入对象存储。
type PublishTaskHandler struct {
	db       *gorm.DB
	storage  Storage
	notifier Publisher
	cache    *pagecache.Cache
	renderer *render.Renderer
	themes   *render.ThemeStyles
	shots    Screenshotter
	logger   *slog.Logger
	now      func() time.Time
}

// PublishOption configures a PublishTaskHandler.
type PublishOption func(*PublishTaskHandler)

// WithScreenshotter enables thumbnails.
func WithScreenshotter(s Screenshotter) PublishOption {
	return func(h *PublishTaskHandler) { h.shots = s }
}

// WithPageCache invalidates cached public pages after each publish.
func WithPageCache(c *pagecache.Cache) PublishOption {
	return func(h *PublishTaskHandler) { h.cache = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) PublishOption {
	return func(h *PublishTaskHandler) { h.now = now }
}

// NewPublishTaskHandler 创建任务处理器。
func NewPublishTaskHandler(
	db *gorm.DB,
	store Storage,
	notifier Publisher,
	themes *render.ThemeStyles,
	logger *slog.Logger,
	opts ...PublishOption,
) *PublishTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &PublishTaskHandler{
		db:       db,
		storage:  store,
		notifier: notifier,
		renderer: render.New(logger),
		themes:   themes,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ProcessTask 实现 asynq.Handler。
func (h *PublishTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.SitePublishPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("site_id", uint64(payload.SiteID)),
		slog.Int64("revision", payload.Revision),
	)

	var model database.Site
	if err := h.db.WithContext(ctx).First(&model, payload.SiteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("site not found, skipping task")
			return nil
		}
		log.Error("query site failed", slog.Any("error", err))
		return err
	}
	if model.Revision > payload.Revision {
		log.Info("newer revision saved since enqueue, skipping", slog.Int64("current_revision", model.Revision))
		return nil
	}

	log = log.With(slog.Uint64("user_id", uint64(model.UserID)))
	log.Info("publishing site")

	defer func() {
		if retErr == nil {
			return
		}
		metrics.SitePublished("error")
		if !isFinalAsynqAttempt(ctx) {
			return
		}
		_ = h.db.WithContext(ctx).Model(&model).Update("status", database.SiteFailed).Error
		notify := SitePublishNotifyMessage{
			Status:        StatusError,
			SiteID:        model.ID,
			Revision:      payload.Revision,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.SystemError,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := publishNotify(ctx, h.notifier, model.UserID, notify); err != nil {
			log.Error("publish error notification failed", slog.Any("error", err))
		}
	}()

	rec := profile.Record{}
	if len(model.Fields) > 0 {
		if err := json.Unmarshal(model.Fields, &rec); err != nil {
			log.Error("decode site fields failed", slog.Any("error", err))
			return fmt.Errorf("decode site fields: %w", err)
		}
	}

	slug := strings.TrimSpace(rec.Get(profile.KeySlug))
	if slug == "" {
		slug = fmt.Sprintf("site-%d", model.ID)
	}

	urls, missing, err := h.copyImages(ctx, model.UserID, slug, rec)
	if err != nil {
		log.Error("copy images failed", slog.Any("error", err))
		return err
	}

	var page bytes.Buffer
	if _, err := h.renderer.Site(ctx, &page, rec, h.themes, render.Options{
		ImageURL: func(key string) string { return urls[key] },
		Now:      h.now,
	}); err != nil {
		log.Error("render site failed", slog.Any("error", err))
		return fmt.Errorf("render site: %w", err)
	}

	pageKey := storage.PublishedPageKey(slug)
	if _, err := h.storage.UploadFile(ctx, pageKey, bytes.NewReader(page.Bytes()), int64(page.Len()), "text/html; charset=utf-8"); err != nil {
		log.Error("upload page failed", slog.Any("error", err))
		return err
	}

	oldSlug := storage.SlugOfPublishedKey(model.PublishedKey)
	if oldSlug != "" && oldSlug != slug {
		if err := h.storage.DeletePrefix(ctx, storage.PublishedPrefix(oldSlug)); err != nil {
			log.Warn("remove previous publish failed", slog.String("old_slug", oldSlug), slog.Any("error", err))
		}
	}

	publishedAt := h.now()
	if err := h.db.WithContext(ctx).Model(&model).Updates(map[string]any{
		"published_key": pageKey,
		"status":        database.SitePublished,
		"published_at":  &publishedAt,
	}).Error; err != nil {
		log.Error("update site failed", slog.Any("error", err))
		return err
	}

	if h.cache != nil {
		h.cache.Invalidate(ctx, slug, oldSlug)
	}

	notify := SitePublishNotifyMessage{
		Status:        StatusPublished,
		SiteID:        model.ID,
		Slug:          slug,
		Revision:      payload.Revision,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}
	result := "ok"
	if len(missing) > 0 {
		result = "missing"
		notify.ErrorCode = errcode.ResourceMissing
		notify.ErrorMessage = "some images are missing and were left out of the published page"
		notify.MissingKeys = missing
		log.Warn("site published with missing images",
			slog.Int("missing_count", len(missing)),
			slog.Any("missing_keys", missing),
		)
	}
	if err := publishNotify(ctx, h.notifier, model.UserID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}
	metrics.SitePublished(result)

	if h.shots != nil {
		if err := h.generateThumbnail(ctx, &model, rec); err != nil {
			log.Warn("generate site thumbnail failed", slog.Any("error", err))
		}
	}

	log.Info("site published", slog.String("slug", slug), slog.String("object_key", pageKey))
	return nil
}

// copyImages copies every referenced image into the publish prefix and
// returns the relative URL of each key. Keys that are foreign, missing or
// oversized are blanked in rec and reported.
func (h *PublishTaskHandler) copyImages(ctx context.Context, userID uint, slug string, rec profile.Record) (map[string]string, []string, error) {
	urls := make(map[string]string)
	lost := make(map[string]bool)
	var missing []string
	drop := func(id, key string) {
		rec[id] = ""
		if !lost[key] {
			lost[key] = true
			missing = append(missing, key)
		}
	}
	for _, f := range site.Build(rec).Images() {
		key := strings.TrimSpace(f.Value)
		if _, done := urls[key]; done {
			continue
		}
		if lost[key] || !storage.IsUserAssetKey(userID, key) {
			drop(f.ID, key)
			continue
		}
		dest := storage.PublishedAssetKey(slug, key)
		if err := h.storage.CopyObject(ctx, key, dest, maxImageBytes); err != nil {
			if storage.IsUnavailable(err) {
				drop(f.ID, key)
				continue
			}
			return nil, nil, fmt.Errorf("copy image %q: %w", key, err)
		}
		urls[key] = strings.TrimPrefix(dest, storage.PublishedPrefix(slug))
	}
	return urls, missing, nil
}

// generateThumbnail renders the page again with presigned image URLs, since
// a page loaded from memory cannot resolve the relative ones.
func (h *PublishTaskHandler) generateThumbnail(ctx context.Context, model *database.Site, rec profile.Record) error {
	var page bytes.Buffer
	if _, err := h.renderer.Site(ctx, &page, rec, h.themes, render.Options{
		ImageURL: func(key string) string {
			u, err := h.storage.GeneratePresignedURL(ctx, key, thumbnailURLTTL)
			if err != nil {
				h.logger.Warn("presign thumbnail image failed", slog.String("object_key", key), slog.Any("error", err))
				return ""
			}
			return u
		},
		Now: h.now,
	}); err != nil {
		return fmt.Errorf("render thumbnail page: %w", err)
	}

	shot, err := h.shots.Screenshot(ctx, page.String())
	if err != nil {
		return fmt.Errorf("capture thumbnail: %w", err)
	}

	objectName := fmt.Sprintf("thumbnails/site/%d/preview.jpg", model.ID)
	if _, err := h.storage.UploadFile(ctx, objectName, bytes.NewReader(shot), int64(len(shot)), "image/jpeg"); err != nil {
		return fmt.Errorf("upload thumbnail: %w", err)
	}
	if err := h.db.WithContext(ctx).Model(model).Update("preview_key", objectName).Error; err != nil {
		return fmt.Errorf("update site preview key: %w", err)
	}
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"wedsite/internal/api/middleware"
	"wedsite/internal/database"
	"wedsite/internal/form"
	"wedsite/internal/metrics"
	"wedsite/internal/pagecache"
	"wedsite/internal/profile"
	"wedsite/internal/render"
	"wedsite/internal/site"
	"wedsite/internal/storage"
	"wedsite/internal/tasks"
)

const (
	publishDelay      = 5 * time.Second
	publishMaxRetry   = 5
	previewURLTTL     = 15 * time.Minute
	maxPublishedBytes = 5 << 20
)

// Enqueuer is the asynq client subset the handlers need.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// SiteStorage is the object store subset the site handler needs.
type SiteStorage interface {
	ReadObject(ctx context.Context, objectKey string, limit int64) ([]byte, string, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
}

// SiteHandler 负责站点草稿的读取、保存与发布，以及公开页面的访问。
type SiteHandler struct {
	db      *gorm.DB
	queue   Enqueuer
	storage SiteStorage
	cache   *pagecache.Cache
	themes  *render.ThemeStyles
	schema  form.Schema
	logger  *slog.Logger
}

// NewSiteHandler 构造 SiteHandler。themes 为 nil 时不限制主题取值。
func NewSiteHandler(db *gorm.DB, queue Enqueuer, storageClient SiteStorage, cache *pagecache.Cache, themes *render.ThemeStyles, logger *slog.Logger) *SiteHandler {
	schema := form.DefaultSchema()
	if themes != nil {
		schema = schema.WithOptions(profile.KeyTheme, themes.Names())
	}
	return &SiteHandler{
		db:      db,
		queue:   queue,
		storage: storageClient,
		cache:   cache,
		themes:  themes,
		schema:  schema,
		logger:  logger,
	}
}

type siteRequest struct {
	Fields profile.Record `json:"fields" binding:"required"`
}

type siteResponse struct {
	Fields      profile.Record `json:"fields"`
	Revision    int64          `json:"revision"`
	Status      string         `json:"status"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// GetSite 返回当前用户的站点草稿；尚未保存过时返回默认模板的记录。
func (h *SiteHandler) GetSite(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	model, err := h.findSite(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, siteResponse{
				Fields: site.Build(profile.Record{}).Record(),
				Status: database.SiteDraft,
			})
			return
		}
		h.loggerFromContext(c).Error("query site failed", slog.Any("error", err))
		Internal(c, "failed to query site")
		return
	}

	rec, err := decodeFields(model.Fields)
	if err != nil {
		Internal(c, "failed to decode site")
		return
	}
	c.JSON(http.StatusOK, newSiteResponse(*model, rec))
}

// PutSite 保存整份记录，校验通过后递增版本并排队发布。
func (h *SiteHandler) PutSite(c *gin.Context) {
	var req siteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.Uint64("user_id", uint64(userID)))

	rec := req.Fields
	if err := h.schema.Check(rec); err != nil {
		metrics.SiteSaved("rejected")
		var fieldErrs form.Errors
		if errors.As(err, &fieldErrs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "fields": fieldErrs})
			return
		}
		BadRequest(c, err.Error())
		return
	}
	if err := site.CheckGroups(rec); err != nil {
		metrics.SiteSaved("rejected")
		BadRequest(c, err.Error())
		return
	}
	for _, f := range site.Build(rec).Images() {
		if !storage.IsUserAssetKey(userID, f.Value) {
			metrics.SiteSaved("rejected")
			logger.Info("save rejected: foreign image key", slog.String("field", f.ID))
			Forbidden(c, "invalid image object key")
			return
		}
	}

	slug := strings.TrimSpace(rec.Get(profile.KeySlug))
	if slug != "" {
		var count int64
		if err := h.db.WithContext(ctx).Model(&database.Site{}).
			Where("slug = ? AND user_id <> ?", slug, userID).
			Count(&count).Error; err != nil {
			metrics.SiteSaved("error")
			Internal(c, "failed to check slug")
			return
		}
		if count > 0 {
			metrics.SiteSaved("rejected")
			Conflict(c, "slug already taken")
			return
		}
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		metrics.SiteSaved("error")
		Internal(c, "failed to encode site")
		return
	}

	var model database.Site
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ?", userID).First(&model).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			model = database.Site{UserID: userID, Slug: slug, Fields: datatypes.JSON(raw), Revision: 1, Status: database.SitePublishing}
			return tx.Create(&model).Error
		case err != nil:
			return err
		}
		return tx.Model(&model).Updates(map[string]any{
			"slug":     slug,
			"fields":   datatypes.JSON(raw),
			"revision": gorm.Expr("revision + 1"),
			"status":   database.SitePublishing,
		}).Error
	})
	if err != nil {
		metrics.SiteSaved("error")
		logger.Error("save site failed", slog.Any("error", err))
		Internal(c, "failed to save site")
		return
	}
	if err := h.db.WithContext(ctx).First(&model, model.ID).Error; err != nil {
		metrics.SiteSaved("error")
		Internal(c, "failed to reload site")
		return
	}

	if err := h.enqueuePublish(c, model, publishDelay); err != nil {
		logger.Error("enqueue publish failed", slog.Any("error", err))
	}
	metrics.SiteSaved("accepted")
	logger.Info("site saved", slog.Int64("revision", model.Revision), slog.Int("fields", len(rec)))
	c.JSON(http.StatusOK, newSiteResponse(model, rec))
}

// PublishSite 立即排队发布当前版本。
func (h *SiteHandler) PublishSite(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	model, err := h.findSite(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "site not found")
			return
		}
		Internal(c, "failed to query site")
		return
	}
	h.acceptPublish(c, *model)
}

// InternalPublish 供运维脚本按站点 ID 触发重新发布，需内部密钥。
func (h *SiteHandler) InternalPublish(c *gin.Context) {
	siteID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid site id")
		return
	}

	var model database.Site
	if err := h.db.WithContext(c.Request.Context()).First(&model, uint(siteID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "site not found")
			return
		}
		Internal(c, "failed to query site")
		return
	}
	h.acceptPublish(c, model)
}

func (h *SiteHandler) acceptPublish(c *gin.Context, model database.Site) {
	if err := h.enqueuePublish(c, model, 0); err != nil {
		h.loggerFromContext(c).Error("enqueue publish failed", slog.Any("error", err))
		Internal(c, "failed to enqueue publish")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message":  "publish request accepted",
		"revision": model.Revision,
	})
}

func (h *SiteHandler) enqueuePublish(c *gin.Context, model database.Site, delay time.Duration) error {
	task, err := tasks.NewSitePublishTask(model.ID, model.Revision, middleware.GetCorrelationID(c))
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.MaxRetry(publishMaxRetry)}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	_, err = h.queue.Enqueue(task, opts...)
	return err
}

// GetSchema 返回结构化表单的字段定义，主题选项取自已加载的主题。
func (h *SiteHandler) GetSchema(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"groups": h.schema})
}

// ListThemes 返回可选主题名称。
func (h *SiteHandler) ListThemes(c *gin.Context) {
	names := []string{render.DefaultTheme}
	if h.themes != nil {
		names = h.themes.Names()
	}
	c.JSON(http.StatusOK, gin.H{"themes": names})
}

// PreviewSite 以只读方式渲染当前草稿，图片使用临时预签名链接。
func (h *SiteHandler) PreviewSite(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c)

	rec := site.Build(profile.Record{}).Record()
	model, err := h.findSite(ctx, userID)
	switch {
	case err == nil:
		if rec, err = decodeFields(model.Fields); err != nil {
			Internal(c, "failed to decode site")
			return
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		Internal(c, "failed to query site")
		return
	}

	var page bytes.Buffer
	_, err = render.New(logger).Site(ctx, &page, rec, h.themes, render.Options{
		ImageURL: func(key string) string {
			if !storage.IsUserAssetKey(userID, key) {
				return ""
			}
			u, err := h.storage.GeneratePresignedURL(ctx, key, previewURLTTL)
			if err != nil {
				logger.Warn("presign preview image failed", slog.String("object_key", key), slog.Any("error", err))
				return ""
			}
			return u
		},
	})
	if err != nil {
		logger.Error("render preview failed", slog.Any("error", err))
		Internal(c, "failed to render preview")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page.Bytes())
}

// PublicPage 返回已发布的站点首页，命中 Redis 缓存时不访问对象存储。
func (h *SiteHandler) PublicPage(c *gin.Context) {
	slug := c.Param("slug")
	if !form.SlugPattern.MatchString(slug) {
		NotFound(c, "page not found")
		return
	}

	ctx := c.Request.Context()
	if h.cache != nil {
		if html, ok := h.cache.Get(ctx, slug); ok {
			metrics.PageCache("hit")
			c.Header("Cache-Control", "public, max-age=60")
			c.Data(http.StatusOK, "text/html; charset=utf-8", html)
			return
		}
		metrics.PageCache("miss")
	}

	html, _, err := h.storage.ReadObject(ctx, storage.PublishedPageKey(slug), maxPublishedBytes)
	if err != nil {
		if storage.IsNoSuchKey(err) {
			NotFound(c, "page not found")
			return
		}
		h.loggerFromContext(c).Error("read published page failed", slog.String("slug", slug), slog.Any("error", err))
		Internal(c, "failed to load page")
		return
	}
	if h.cache != nil {
		h.cache.Set(ctx, slug, html)
	}
	c.Header("Cache-Control", "public, max-age=60")
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

// PublicAsset 返回已发布站点引用的图片副本。
func (h *SiteHandler) PublicAsset(c *gin.Context) {
	slug := c.Param("slug")
	name := c.Param("name")
	if !form.SlugPattern.MatchString(slug) || name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		NotFound(c, "asset not found")
		return
	}

	data, contentType, err := h.storage.ReadObject(c.Request.Context(), storage.PublishedAssetKey(slug, name), maxUploadBytes)
	if err != nil {
		if storage.IsNoSuchKey(err) {
			NotFound(c, "asset not found")
			return
		}
		Internal(c, "failed to load asset")
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, contentType, data)
}

func (h *SiteHandler) findSite(ctx context.Context, userID uint) (*database.Site, error) {
	var model database.Site
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&model).Error; err != nil {
		return nil, err
	}
	return &model, nil
}

func (h *SiteHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	return middleware.RequestLogger(c, h.logger)
}

func decodeFields(raw datatypes.JSON) (profile.Record, error) {
	rec := profile.Record{}
	if len(raw) == 0 {
		return rec, nil
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func newSiteResponse(model database.Site, rec profile.Record) siteResponse {
	return siteResponse{
		Fields:      rec,
		Revision:    model.Revision,
		Status:      model.Status,
		PublishedAt: model.PublishedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

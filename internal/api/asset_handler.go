package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"gorm.io/gorm"

	"wedsite/internal/api/middleware"
	"wedsite/internal/database"
	"wedsite/internal/storage"
)

const (
	maxUploadBytes       = 10 << 20
	defaultMaxAssets     = 200
	defaultUploadsPerDay = 100
	assetURLTTL          = 15 * time.Minute
	uploadCounterTTL     = 24 * time.Hour
)

var errMaliciousFile = errors.New("malicious file detected")

var imageTypeExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// AssetStorage is the object store subset the asset handler needs.
type AssetStorage interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

type assetStore interface {
	Create(ctx context.Context, asset database.Asset) error
	CountByUser(ctx context.Context, userID uint) (int64, error)
	ListByUser(ctx context.Context, userID uint, limit int) ([]database.Asset, error)
	Delete(ctx context.Context, userID uint, objectKey string) (bool, error)
}

type gormAssetStore struct {
	db *gorm.DB
}

func newGormAssetStore(db *gorm.DB) *gormAssetStore {
	return &gormAssetStore{db: db}
}

func (s *gormAssetStore) Create(ctx context.Context, asset database.Asset) error {
	return s.db.WithContext(ctx).Create(&asset).Error
}

func (s *gormAssetStore) CountByUser(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&database.Asset{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (s *gormAssetStore) ListByUser(ctx context.Context, userID uint, limit int) ([]database.Asset, error) {
	var assets []database.Asset
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&assets).Error
	return assets, err
}

func (s *gormAssetStore) Delete(ctx context.Context, userID uint, objectKey string) (bool, error) {
	res := s.db.WithContext(ctx).Unscoped().
		Where("user_id = ? AND object_key = ?", userID, objectKey).
		Delete(&database.Asset{})
	return res.RowsAffected > 0, res.Error
}

// AssetHandler 负责处理图片上传与访问。
type AssetHandler struct {
	store            assetStore
	Storage          AssetStorage
	Logger           *slog.Logger
	ClamdAddr        string
	MaxBytes         int64
	MIMEWhitelist    []string
	RedisClient      redisRateCounter
	maxAssetsPerUser int
	maxUploadsPerDay int
	now              func() time.Time
}

// NewAssetHandler 返回 AssetHandler 实例。clamdAddr 为空时跳过病毒扫描。
func NewAssetHandler(db *gorm.DB, storageClient AssetStorage, redisClient redisRateCounter, logger *slog.Logger, clamdAddr string, maxBytes int64, maxAssets int) *AssetHandler {
	if maxBytes <= 0 || maxBytes > maxUploadBytes {
		maxBytes = maxUploadBytes
	}
	if maxAssets <= 0 {
		maxAssets = defaultMaxAssets
	}
	return &AssetHandler{
		store:            newGormAssetStore(db),
		Storage:          storageClient,
		Logger:           logger,
		ClamdAddr:        clamdAddr,
		MaxBytes:         maxBytes,
		MIMEWhitelist:    []string{"image/png", "image/jpeg", "image/gif", "image/webp"},
		RedisClient:      redisClient,
		maxAssetsPerUser: maxAssets,
		maxUploadsPerDay: defaultUploadsPerDay,
		now:              time.Now,
	}
}

// UploadAsset 处理受保护的图片上传，并在上传前扫描病毒。
func (h *AssetHandler) UploadAsset(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.Uint64("user_id", uint64(userID)))

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if h.MaxBytes > 0 && file.Size > h.MaxBytes {
		Error(c, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	count, err := h.store.CountByUser(ctx, userID)
	if err != nil {
		logger.Error("count assets", slog.Any("error", err))
		Internal(c, "failed to check asset quota")
		return
	}
	if h.maxAssetsPerUser > 0 && count >= int64(h.maxAssetsPerUser) {
		Forbidden(c, "asset limit reached")
		return
	}

	if h.RedisClient != nil && h.maxUploadsPerDay > 0 {
		key := dailyUploadKey(userID, h.clock())
		uploads, err := incrWithTTL(ctx, h.RedisClient, key, uploadCounterTTL)
		if err != nil {
			logger.Warn("upload rate counter unavailable", slog.Any("error", err))
		} else if uploads > int64(h.maxUploadsPerDay) {
			Error(c, http.StatusTooManyRequests, "too many uploads today")
			return
		}
	}

	fileReader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	head := make([]byte, 512)
	n, _ := io.ReadFull(fileReader, head)
	fileReader.Close()

	contentType := http.DetectContentType(head[:n])
	ext, known := imageTypeExt[contentType]
	if !known || (len(h.MIMEWhitelist) > 0 && !slices.Contains(h.MIMEWhitelist, contentType)) {
		BadRequest(c, "unsupported file type")
		return
	}

	if h.ClamdAddr != "" {
		fileReader, err = file.Open()
		if err != nil {
			Internal(c, "failed to open file")
			return
		}
		err = scanForMalware(h.ClamdAddr, fileReader)
		fileReader.Close()
		if errors.Is(err, errMaliciousFile) {
			logger.Warn("upload rejected by scanner", slog.String("filename", file.Filename))
			BadRequest(c, "malicious file detected")
			return
		}
		if err != nil {
			logger.Error("scan file", slog.Any("error", err))
			Internal(c, "failed to scan file")
			return
		}
	}

	fileReader, err = file.Open()
	if err != nil {
		Internal(c, "failed to reopen file")
		return
	}
	defer fileReader.Close()

	objectKey := storage.UserAssetPrefix(userID) + uuid.NewString() + ext
	if _, err := h.Storage.UploadFile(ctx, objectKey, fileReader, file.Size, contentType); err != nil {
		logger.Error("upload file", slog.Any("error", err))
		Internal(c, "failed to upload file")
		return
	}

	if err := h.store.Create(ctx, database.Asset{
		UserID:      userID,
		ObjectKey:   objectKey,
		ContentType: contentType,
		Size:        file.Size,
	}); err != nil {
		logger.Error("record asset", slog.Any("error", err))
		if delErr := h.Storage.DeleteObject(ctx, objectKey); delErr != nil {
			logger.Warn("remove orphaned upload", slog.String("objectKey", objectKey), slog.Any("error", delErr))
		}
		Internal(c, "failed to record asset")
		return
	}

	logger.Info("asset uploaded", slog.String("objectKey", objectKey), slog.Int64("size", file.Size))
	c.JSON(http.StatusCreated, gin.H{"objectKey": objectKey})
}

// ListAssets 列出用户上传的图片，最新的在前。
func (h *AssetHandler) ListAssets(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "60"))
	if err != nil || limit <= 0 {
		limit = 60
	}
	if limit > 200 {
		limit = 200
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c)

	assets, err := h.store.ListByUser(ctx, userID, limit)
	if err != nil {
		logger.Error("list assets", slog.Any("error", err))
		Internal(c, "failed to list assets")
		return
	}

	items := make([]gin.H, 0, len(assets))
	for _, a := range assets {
		url, err := h.Storage.GeneratePresignedURL(ctx, a.ObjectKey, assetURLTTL)
		if err != nil {
			logger.Error("generate asset url", slog.String("objectKey", a.ObjectKey), slog.Any("error", err))
			continue
		}
		items = append(items, gin.H{
			"objectKey":   a.ObjectKey,
			"previewUrl":  url,
			"contentType": a.ContentType,
			"size":        a.Size,
			"createdAt":   a.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetAssetURL 返回图片的临时预签名 URL。
func (h *AssetHandler) GetAssetURL(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	objectKey := c.Query("key")
	if objectKey == "" {
		BadRequest(c, "missing key")
		return
	}
	if !storage.IsUserAssetKey(userID, objectKey) {
		Forbidden(c, "access denied")
		return
	}

	signedURL, err := h.Storage.GeneratePresignedURL(c.Request.Context(), objectKey, assetURLTTL)
	if err != nil {
		h.loggerFromContext(c).Error("generate presigned url", slog.Any("error", err))
		Internal(c, "failed to generate url")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}

// DeleteAsset 删除用户的一张图片。已发布页面使用的是副本，不受影响。
func (h *AssetHandler) DeleteAsset(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	objectKey := c.Query("key")
	if !storage.IsUserAssetKey(userID, objectKey) {
		Forbidden(c, "access denied")
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c)

	found, err := h.store.Delete(ctx, userID, objectKey)
	if err != nil {
		logger.Error("delete asset record", slog.Any("error", err))
		Internal(c, "failed to delete asset")
		return
	}
	if !found {
		NotFound(c, "asset not found")
		return
	}
	if err := h.Storage.DeleteObject(ctx, objectKey); err != nil {
		logger.Warn("delete asset object", slog.String("objectKey", objectKey), slog.Any("error", err))
	}
	c.Status(http.StatusNoContent)
}

func (h *AssetHandler) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

func (h *AssetHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	return middleware.RequestLogger(c, h.Logger)
}

func scanForMalware(addr string, r io.Reader) error {
	client := clamd.NewClamd(addr)
	abort := make(chan bool)
	defer close(abort)

	results, err := client.ScanStream(r, abort)
	if err != nil {
		return err
	}
	for result := range results {
		if result.Status != clamd.RES_OK {
			return errMaliciousFile
		}
	}
	return nil
}

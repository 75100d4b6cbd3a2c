package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"wedsite/internal/database"
	"wedsite/internal/pagecache"
	"wedsite/internal/profile"
	"wedsite/internal/render"
	"wedsite/internal/tasks"
)

type fakeQueue struct {
	tasks []*asynq.Task
}

func (q *fakeQueue) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "t", Type: task.Type()}, nil
}

func (q *fakeQueue) payload(t *testing.T, i int) tasks.SitePublishPayload {
	t.Helper()
	require.Greater(t, len(q.tasks), i)
	var p tasks.SitePublishPayload
	require.NoError(t, json.Unmarshal(q.tasks[i].Payload(), &p))
	return p
}

type memRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	if v, ok := m.data[key]; ok {
		cmd.SetVal(v)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (m *memRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]string{}
	}
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (m *memRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return redis.NewIntCmd(ctx)
}

type siteFixture struct {
	db      *gorm.DB
	queue   *fakeQueue
	storage *fakeStorage
	handler *SiteHandler
}

func newSiteFixture(t *testing.T) *siteFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	themes, err := render.NewThemeStyles("")
	require.NoError(t, err)
	f := &siteFixture{db: newTestDB(t), queue: &fakeQueue{}, storage: newFakeStorage()}
	cache := pagecache.New(&memRedis{}, time.Minute, nil)
	f.handler = NewSiteHandler(f.db, f.queue, f.storage, cache, themes, nil)
	return f
}

func (f *siteFixture) seedUser(t *testing.T, name string) uint {
	t.Helper()
	u := database.User{Username: name, PasswordHash: "x"}
	require.NoError(t, f.db.Create(&u).Error)
	return u.ID
}

func serve(handler gin.HandlerFunc, method, target string, body any, userID uint, params ...gin.Param) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = params
	if userID != 0 {
		c.Set("userID", userID)
	}
	handler(c)
	return w
}

func validRecord() profile.Record {
	return profile.Record{
		profile.KeyBrideName:   "Maria",
		profile.KeyGroomName:   "João",
		profile.KeyWeddingDate: "2026-06-20",
		profile.KeySlug:        "joao-maria",
		"venue_name":           "Quinta do Lago",
	}
}

func TestGetSiteReturnsDefaultDraft(t *testing.T) {
	f := newSiteFixture(t)
	uid := f.seedUser(t, "ana")

	w := serve(f.handler.GetSite, http.MethodGet, "/v1/site", nil, uid)
	require.Equal(t, http.StatusOK, w.Code)

	var resp siteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, database.SiteDraft, resp.Status)
	assert.Zero(t, resp.Revision)
}

func TestPutSiteRejectsIncompleteRecord(t *testing.T) {
	f := newSiteFixture(t)
	uid := f.seedUser(t, "ana")

	rec := validRecord()
	delete(rec, profile.KeyWeddingDate)
	w := serve(f.handler.PutSite, http.MethodPut, "/v1/site", gin.H{"fields": rec}, uid)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), profile.KeyWeddingDate)
	assert.Empty(t, f.queue.tasks)
}

func TestPutSiteRejectsInvalidField(t *testing.T) {
	f := newSiteFixture(t)
	uid := f.seedUser(t, "ana")

	rec := validRecord()
	rec[profile.KeySlug] = "Not A Slug!"
	w := serve(f.handler.PutSite, http.MethodPut, "/v1/site", gin.H{"fields": rec}, uid)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Fields, profile.KeySlug)
}

func TestPutSiteRejectsGroupMemberPastLimit(t *testing.T) {
	f := newSiteFixture(t)
	uid := f.seedUser(t, "ana")

	rec := validRecord()
	rec["groomsman_9223372036854775807_name"] = "x"
	w := serve(f.handler.PutSite, http.MethodPut, "/v1/site", gin.H{"fields": rec}, uid)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "groomsman_9223372036854775807_name")
	assert.Empty(t, f.queue.tasks)

	var count int64
	require.NoError(t, f.db.Model(&database.Site{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPutSiteRejectsForeignImage(t *testing.T) {
	f := newSiteFixture(t)
	uid := f.seedUser(t, "ana")

	rec := validRecord()
	rec["hero_image"] = "user-assets/999/cover.png"
	w := serve(f.handler.PutSite, http.MethodPut, "/v1/site", gin.H{"fields": rec}, uid)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPutSiteRejectsTakenSlug(t *testing.T) {
	f := newSiteFixture(t)
	other := f.seedUser(t, "other")
	require.NoError(t, f.db.Create(&database.Site{UserID: other, Slug: "joao-maria", Fields: datatypes.JSON(`{}`)}).Error)
	uid := f.seedUser(t, "ana")

	w := serve(f.handler.PutSite, http.MethodPut, "/v1/site", gin.H{"fields": validRecord()}, uid)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPutSiteSavesAndEnqueuesPublish(t *testing.T) {
	f := newSiteFixture(t)
	uid := f.seedUser(t, "ana")

	rec := validRecord()
	rec["hero_image"] = "user-assets/" + strconv.FormatUint(uint64(uid), 10) + "/cover.png"
	w := serve(f.handler.PutSite, http.MethodPut, "/v1/site", gin.H{"fields": rec}, uid)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp siteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Revision)
	assert.Equal(t, database.SitePublishing, resp.Status)

	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, tasks.TypeSitePublish, f.queue.tasks[0].Type())
	assert.Equal(t, int64(1), f.queue.payload(t, 0).Revision)

	rec["venue_name"] = "Casa Azul"
	w = serve(f.handler.PutSite, http.MethodPut, "/v1/site", gin.H{"fields": rec}, uid)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), f.queue.payload(t, 1).Revision)

	w = serve(f.handler.GetSite, http.MethodGet, "/v1/site", nil, uid)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Casa Azul", resp.Fields["venue_name"])
	assert.Equal(t, int64(2), resp.Revision)

	var model database.Site
	require.NoError(t, f.db.Where("user_id = ?", uid).First(&model).Error)
	assert.Equal(t, "joao-maria", model.Slug)
}

func TestPublishSiteRequiresSavedSite(t *testing.T) {
	f := newSiteFixture(t)
	uid := f.seedUser(t, "ana")

	w := serve(f.handler.PublishSite, http.MethodPost, "/v1/site/publish", nil, uid)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, f.db.Create(&database.Site{UserID: uid, Slug: "a-b", Revision: 3, Fields: datatypes.JSON(`{}`)}).Error)
	w = serve(f.handler.PublishSite, http.MethodPost, "/v1/site/publish", nil, uid)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, int64(3), f.queue.payload(t, 0).Revision)
}

func TestInternalPublishParsesID(t *testing.T) {
	f := newSiteFixture(t)

	w := serve(f.handler.InternalPublish, http.MethodPost, "/internal/sites/x/publish", nil, 0, gin.Param{Key: "id", Value: "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(f.handler.InternalPublish, http.MethodPost, "/internal/sites/42/publish", nil, 0, gin.Param{Key: "id", Value: "42"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPreviewRendersDraft(t *testing.T) {
	f := newSiteFixture(t)
	uid := f.seedUser(t, "ana")
	raw, _ := json.Marshal(validRecord())
	require.NoError(t, f.db.Create(&database.Site{UserID: uid, Slug: "joao-maria", Fields: datatypes.JSON(raw)}).Error)

	w := serve(f.handler.PreviewSite, http.MethodGet, "/v1/site/preview", nil, uid)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Quinta do Lago")
}

func TestPublicPageUsesCache(t *testing.T) {
	f := newSiteFixture(t)
	_, err := f.storage.UploadFile(context.Background(), "published/joao-maria/index.html", bytes.NewReader([]byte("<html>hi</html>")), 15, "text/html")
	require.NoError(t, err)

	param := gin.Param{Key: "slug", Value: "joao-maria"}
	for i := 0; i < 2; i++ {
		w := serve(f.handler.PublicPage, http.MethodGet, "/s/joao-maria", nil, 0, param)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "<html>hi</html>", w.Body.String())
	}
	assert.Equal(t, 1, f.storage.reads)

	w := serve(f.handler.PublicPage, http.MethodGet, "/s/nobody", nil, 0, gin.Param{Key: "slug", Value: "nobody"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(f.handler.PublicPage, http.MethodGet, "/s/BAD", nil, 0, gin.Param{Key: "slug", Value: "../x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublicAssetRejectsTraversal(t *testing.T) {
	f := newSiteFixture(t)
	_, err := f.storage.UploadFile(context.Background(), "published/a-b/assets/p.png", bytes.NewReader(pngHeader), int64(len(pngHeader)), "image/png")
	require.NoError(t, err)

	w := serve(f.handler.PublicAsset, http.MethodGet, "/s/a-b/assets/p.png", nil, 0,
		gin.Param{Key: "slug", Value: "a-b"}, gin.Param{Key: "name", Value: "p.png"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = serve(f.handler.PublicAsset, http.MethodGet, "/s/a-b/assets/..", nil, 0,
		gin.Param{Key: "slug", Value: "a-b"}, gin.Param{Key: "name", Value: ".."})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

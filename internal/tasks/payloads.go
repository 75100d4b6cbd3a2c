package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeSitePublish = "site:publish"
)

// SitePublishPayload 描述发布站点所需的最小信息。
// Revision 是入队时站点的版本号；消费时若已有更新的版本，任务直接跳过。
type SitePublishPayload struct {
	SiteID        uint   `json:"site_id"`
	Revision      int64  `json:"revision"`
	CorrelationID string `json:"correlation_id"`
}

// NewSitePublishTask 构造一个新的站点发布任务。
func NewSitePublishTask(siteID uint, revision int64, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(SitePublishPayload{
		SiteID:        siteID,
		Revision:      revision,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSitePublish, payload), nil
}

// NotifyChannel 返回用户的 Redis 通知频道名，worker 发布、WebSocket 订阅。
func NotifyChannel(userID uint) string {
	return fmt.Sprintf("site_notify:%d", userID)
}

package models

// NotificationType 定义了通知的类别。
type NotificationType string

const (
	NotificationTypeSimple        NotificationType = "SIMPLE"
	NotificationTypeTaskCompleted NotificationType = "TASK_COMPLETED"
	NotificationTypeTaskFailed    NotificationType = "TASK_FAILED"
)

// NotificationQuery 是列出通知时的过滤方式。
type NotificationQuery string

const (
	NotificationQueryUnread NotificationQuery = "UNREAD"
	NotificationQueryAll    NotificationQuery = "ALL"
)

// NotificationIDPrefix 是通知 ID 的固定前缀。
const NotificationIDPrefix = "NOT"

// Notification 是发送给某个用户的通知。
type Notification struct {
	ID         string           `bson:"_id" json:"_id"`
	Owner      string           `bson:"owner" json:"owner"`
	From       string           `bson:"from,omitempty" json:"from,omitempty"`
	Type       NotificationType `bson:"type" json:"type"`
	Viewed     bool             `bson:"viewed" json:"viewed"`
	Body       string           `bson:"body,omitempty" json:"body,omitempty"`
	Resolution string           `bson:"resolution,omitempty" json:"resolution,omitempty"` // 关联资源，例如任务 ID
	Meta       *MetaInfo        `bson:"meta,omitempty" json:"meta,omitempty"`
}

func (n *Notification) GetID() string { return n.ID }

func (Notification) Kind() Kind { return KindNotification }

package models

// Kind 是实体的逻辑类型标签，用于在注册表中查找其集合名称。
type Kind string

const (
	KindTask         Kind = "Task"
	KindNotification Kind = "Notification"
	KindErrorReport  Kind = "ErrorReport"
	KindDoa          Kind = "Doa"
)

// Entity 是所有持久化到文档库中的实体必须具备的能力。
// ID 在创建时分配，之后不可修改。
type Entity interface {
	GetID() string
	Kind() Kind
}

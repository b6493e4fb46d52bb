package models

// ErrorReport 记录任务失败的详细信息，通过 ID 关联到 Task.ErrorReport。
type ErrorReport struct {
	ID         string    `bson:"_id" json:"_id"`
	Code       string    `bson:"code" json:"code"`
	Message    string    `bson:"message" json:"message"`
	Details    string    `bson:"details,omitempty" json:"details,omitempty"`
	HTTPStatus int       `bson:"httpStatus" json:"httpStatus"`
	Actor      string    `bson:"actor,omitempty" json:"actor,omitempty"`
	Meta       *MetaInfo `bson:"meta,omitempty" json:"meta,omitempty"`
}

func (e *ErrorReport) GetID() string { return e.ID }

func (ErrorReport) Kind() Kind { return KindErrorReport }

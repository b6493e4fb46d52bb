package models

// RequestInfo 记录触发日志的 HTTP 请求信息。
type RequestInfo struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	RemoteAddr string `json:"remote_addr"`
	UserAgent  string `json:"user_agent"`
	Status     int    `json:"status,omitempty"`
	LatencyMs  int64  `json:"latency_ms,omitempty"`
}

// ErrorInfo 记录结构化的错误信息。
type ErrorInfo struct {
	Message    string `json:"message"`
	Type       string `json:"type,omitempty"` // 例如 "store_unavailable", "codec_failure"
	StatusCode int    `json:"status_code,omitempty"`
}

// NewErrorInfo 从 error 生成 ErrorInfo。
func NewErrorInfo(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{}
	}
	return ErrorInfo{Message: err.Error()}
}

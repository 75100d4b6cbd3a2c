package errcode

import "net/http"

// 错误码约定：
// - 0：无错误
// - 4xxx：业务可恢复/告警类错误（例如资源缺失但流程可继续），后三位与 HTTP 状态码对应
// - 5xxx：系统错误（需要中断流程）
const (
	OK                     = 0
	ValidationFailed       = 4000
	SessionExpired         = 4001
	PasswordChangeRequired = 4003
	ResourceMissing        = 4004
	SaveConflict           = 4009
	PayloadTooLarge        = 4013
	RateLimited            = 4029
	SystemError            = 5000
	SaveFailed             = 5002
)

// FromHTTPStatus 将 API 的非 2xx 状态映射为通知中使用的错误码。
// 未列出的 4xx 归为 ValidationFailed，其余归为 SaveFailed。
func FromHTTPStatus(status int) int {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ValidationFailed
	case http.StatusUnauthorized:
		return SessionExpired
	case http.StatusForbidden:
		return PasswordChangeRequired
	case http.StatusNotFound:
		return ResourceMissing
	case http.StatusConflict:
		return SaveConflict
	case http.StatusRequestEntityTooLarge:
		return PayloadTooLarge
	case http.StatusTooManyRequests:
		return RateLimited
	}
	if status >= 400 && status < 500 {
		return ValidationFailed
	}
	return SaveFailed
}

// Recoverable 报告该错误码是否属于 4xxx 告警类。
func Recoverable(code int) bool {
	return code >= 4000 && code < 5000
}

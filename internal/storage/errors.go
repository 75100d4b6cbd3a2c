package storage

import (
	"errors"
	"strings"

	"github.com/minio/minio-go/v7"
)

// ErrObjectTooLarge 表示对象超过调用方给定的大小上限。
var ErrObjectTooLarge = errors.New("object too large")

// errorCode 返回 S3 错误码（小写）；非 MinIO 错误返回空串。
func errorCode(err error) string {
	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) {
		return strings.ToLower(strings.TrimSpace(minioErr.Code))
	}
	return ""
}

// IsNoSuchKey 判断错误是否明确表示对象不存在（S3/MinIO: NoSuchKey/NotFound）。
func IsNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	switch errorCode(err) {
	case "nosuchkey", "notfound":
		return true
	case "":
	default:
		return false
	}

	// 经过网关或代理时，错误可能只剩字符串。
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "nosuchkey") ||
		strings.Contains(lower, "specified key does not exist") ||
		strings.Contains(lower, "not found")
}

// IsUnavailable 判断对象无法使用但重试也无济于事：不存在或超过大小上限。
// 发布时这类图片会从页面中去掉并报告给新人。
func IsUnavailable(err error) bool {
	return IsNoSuchKey(err) || errors.Is(err, ErrObjectTooLarge)
}

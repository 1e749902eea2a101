// Package response 统一各服务的 JSON 响应格式。
package response

import (
	"encoding/json"
	"net/http"

	"emergency-nexus/internal/pkg/apperr"
)

// ErrorDetail 是错误响应体中的 error 字段
type ErrorDetail struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	Kind       string `json:"kind"`
}

// ErrorBody 是所有错误响应的外层结构: {"error": {...}}
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// AsError 把响应体还原成带分类的错误，供 HTTP 适配器使用
func (b ErrorBody) AsError(op string) error {
	return apperr.New(apperr.ParseKind(b.Error.Kind), op, "%s", b.Error.Message)
}

// JSON 以给定状态码写出 JSON
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error 按错误分类写出错误响应
func Error(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()
	message := apperr.Message(err)
	if kind == apperr.KindInternal {
		// 内部错误不把细节暴露给调用方
		message = http.StatusText(status)
	}
	JSON(w, status, ErrorBody{Error: ErrorDetail{Message: message, StatusCode: status, Kind: kind.String()}})
}

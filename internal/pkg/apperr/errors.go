// Package apperr 定义了跨服务共享的错误分类。
// 每个 Kind 对应一个确定的 HTTP 状态码，适配器据此在服务之间还原错误类别。
package apperr

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind 是错误的分类
type Kind int

const (
	KindInternal              Kind = iota // 未预期的错误
	KindValidationInput                   // 请求字段缺失或非法，调用方的问题
	KindNotFound                          // 该位置不存在任何可用的资源提供方
	KindInsufficientCapacity              // 提供方存在，但总容量不足
	KindDownstreamUnavailable             // 下游超时、网络错误或响应格式错误
	KindConflict                          // 乐观锁版本冲突
)

var kindNames = map[Kind]string{
	KindInternal:              "INTERNAL",
	KindValidationInput:       "VALIDATION_INPUT",
	KindNotFound:              "NOT_FOUND",
	KindInsufficientCapacity:  "INSUFFICIENT_CAPACITY",
	KindDownstreamUnavailable: "DOWNSTREAM_UNAVAILABLE",
	KindConflict:              "CONFLICT",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseKind 是 String 的逆操作，未知名称按 KindInternal 处理。
func ParseKind(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return KindInternal
}

// HTTPStatus 返回该类别对应的 HTTP 状态码
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidationInput, KindInsufficientCapacity:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindDownstreamUnavailable:
		return http.StatusServiceUnavailable
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error 是带分类的业务错误
type Error struct {
	Kind    Kind
	Op      string // 产生错误的操作，仅用于日志
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New 创建一个没有底层原因的错误
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap 为底层错误附加分类。内部错误会额外记录调用栈，方便排查。
func Wrap(kind Kind, op string, err error, message string) *Error {
	if kind == KindInternal {
		err = errors.WithStack(err)
	}
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf 返回错误链中第一个 *Error 的分类，不存在则视为内部错误。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is 判断错误是否属于给定分类
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// HTTPStatus 是 KindOf(err).HTTPStatus() 的简写
func HTTPStatus(err error) int {
	return KindOf(err).HTTPStatus()
}

// Message 返回适合直接展示给调用方的错误描述
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

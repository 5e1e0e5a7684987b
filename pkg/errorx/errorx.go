package errorx

import (
	"errors"
	"fmt"
)

// CodeError 带业务错误码的自定义错误
// 实现了 error 接口，支持 %w 包装底层错误，且能被 errors.Is/errors.As 识别
type CodeError struct {
	Code  int    // 业务错误码
	Msg   string // 错误消息
	cause error  // 被包装的底层错误
}

// Error 实现 Go 标准 error 接口
// 当存在底层错误时，返回格式为 "消息: 底层错误"；否则仅返回消息
func (e *CodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.cause)
	}
	return e.Msg
}

// Unwrap 实现 errors.Unwrap 接口，支持 errors.Is/errors.As 向下追溯
func (e *CodeError) Unwrap() error {
	return e.cause
}

// Is 按错误码比较，使 errors.Is(Wrap(err, CodeX, ...), ErrX) 成立
func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New 创建一个新的 CodeError
func New(code int, msg string) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  msg,
	}
}

// Newf 创建一个带格式化消息的 CodeError
func Newf(code int, format string, args ...any) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// Wrap 包装底层错误，添加业务错误码和消息
// 用法: errorx.Wrap(err, CodeNetworkRequestFailed, "拉取会话列表失败")
func Wrap(err error, code int, msg string) *CodeError {
	return &CodeError{
		Code:  code,
		Msg:   msg,
		cause: err,
	}
}

// Wrapf 包装底层错误，支持格式化消息
// 用法: errorx.Wrapf(err, CodeNetworkRequestFailed, "拉取会话 %s 的消息失败", chatId)
func Wrapf(err error, code int, format string, args ...any) *CodeError {
	return &CodeError{
		Code:  code,
		Msg:   fmt.Sprintf(format, args...),
		cause: err,
	}
}

// GetCode 从错误中提取业务错误码，如果不是 CodeError 则返回默认码
func GetCode(err error) int {
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	return CodeServerBusy
}

// HasCode 判断错误链中是否存在指定错误码
func HasCode(err error, code int) bool {
	return errors.Is(err, &CodeError{Code: code})
}

// 业务状态码常量定义
const (
	CodeSuccess      = 1000 // 成功
	CodeInvalidParam = 1001 // 请求参数错误
	CodeServerBusy   = 1005 // 服务繁忙
	CodeUnauthorized = 1006 // 未授权/认证失败
	CodeNotFound     = 1008 // 资源不存在
	CodeDBError      = 1010 // 本地数据库错误
	CodeCacheError   = 1011 // 缓存错误

	CodeUnknownConversation  = 1101 // 会话不在本地注册表中
	CodeTransportUnavailable = 1102 // 实时通道未连接
	CodeNetworkRequestFailed = 1103 // REST 请求失败
	CodeDuplicateEvent       = 1104 // 重复事件（已忽略）
	CodeNoSelection          = 1105 // 当前没有打开的会话
)

// 预定义常用错误实例
// 这些实例既可直接返回，也可用于 errors.Is 比较
var (
	ErrInvalidParam          = New(CodeInvalidParam, "请求参数错误")
	ErrServerBusy            = New(CodeServerBusy, "服务繁忙")
	ErrUnauthorized          = New(CodeUnauthorized, "未登录或登录已失效")
	ErrUnknownConversation   = New(CodeUnknownConversation, "会话不存在")
	ErrTransportUnavailable  = New(CodeTransportUnavailable, "实时连接不可用")
	ErrNetworkRequestFailed  = New(CodeNetworkRequestFailed, "网络请求失败")
	ErrDuplicateEventIgnored = New(CodeDuplicateEvent, "重复事件已忽略")
	ErrNoSelection           = New(CodeNoSelection, "未选择会话")
)

// IsNotFound 检查错误是否为"未找到"类型（包括 gorm.ErrRecordNotFound）
func IsNotFound(err error) bool {
	var codeErr *CodeError
	if errors.As(err, &codeErr) && codeErr.Code == CodeNotFound {
		return true
	}
	return err != nil && err.Error() == "record not found"
}

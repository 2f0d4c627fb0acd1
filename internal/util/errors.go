package util

import "errors"

var (
	// ErrContentUnavailable 该范围没有任何题目，属于终态而非故障
	ErrContentUnavailable = errors.New("no assessable content for this scope")
	// ErrTransportFailure 上游网关请求失败，可由用户显式重试
	ErrTransportFailure = errors.New("upstream gateway request failed")
	// ErrInvalidTransition 非法状态流转，调用方应当阻止；防御性处理为 no-op
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrStaleSessionResponse 异步结果到达时目标会话已被替换，直接丢弃
	ErrStaleSessionResponse = errors.New("stale session response discarded")

	ErrSessionNotFound   = errors.New("session not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrMalformedQuestion = errors.New("malformed question payload")
)

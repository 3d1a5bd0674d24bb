// Package contextx 在 context.Context 中注入与提取请求级信息（请求 ID、客户端 IP、来源）。
// 使用私有类型作为 Key，防止跨包冲突。
package contextx

import "context"

type contextKey int

const (
	RequestIDKey contextKey = iota // 请求唯一标识 Key。
	IPKey                          // 客户端 IP Key。
	SourceKey                      // 调用来源 Key (http / kafka)。
)

// KeyNames 映射 Key 到日志字段名。
var KeyNames = map[contextKey]string{
	RequestIDKey: "request_id",
	IPKey:        "client_ip",
	SourceKey:    "source",
}

// WithRequestID 将请求 ID 注入到 Context 中。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID 从 Context 中提取请求 ID。
func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

// WithIP 将客户端 IP 地址注入到 Context 中。
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, IPKey, ip)
}

// GetIP 从 Context 中提取客户端 IP。
func GetIP(ctx context.Context) string {
	return getString(ctx, IPKey)
}

// WithSource 标记调用来源。
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, SourceKey, source)
}

// GetSource 返回调用来源。
func GetSource(ctx context.Context) string {
	return getString(ctx, SourceKey)
}

// LogAttrs 以 slog 键值对形式返回 Context 中已设置的字段。
func LogAttrs(ctx context.Context) []any {
	var attrs []any
	for _, key := range []contextKey{RequestIDKey, IPKey, SourceKey} {
		if v := getString(ctx, key); v != "" {
			attrs = append(attrs, KeyNames[key], v)
		}
	}
	return attrs
}

func getString(ctx context.Context, key contextKey) string {
	if val, ok := ctx.Value(key).(string); ok {
		return val
	}
	return ""
}

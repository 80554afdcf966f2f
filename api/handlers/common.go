package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/councilgate/internal/jsonx"
	"github.com/BaSui01/councilgate/llm"
	"github.com/BaSui01/councilgate/types"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// maxBodyBytes 请求体上限（1 MB）
const maxBodyBytes = 1 << 20

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"-"` // 不序列化到 JSON
}

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// 响应头已写出，编码失败时无法再改状态码
	_ = jsonx.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入成功响应
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteSuccessWithRequest 同 WriteSuccess，并回填请求 ID
func WriteSuccessWithRequest(w http.ResponseWriter, r *http.Request, data any) {
	id, _ := types.RequestID(r.Context())
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: id,
	})
}

// WriteError 写入错误响应（从 types.Error）
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = mapErrorCodeToHTTPStatus(err.Code)
	}

	errorInfo := &ErrorInfo{
		Code:       string(err.Code),
		Message:    err.Message,
		Retryable:  err.Retryable,
		HTTPStatus: status,
	}

	// 5xx 记 Error，4xx 只记 Warn
	if logger != nil {
		log := logger.Warn
		if status >= http.StatusInternalServerError {
			log = logger.Error
		}
		log("API error",
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.Int("status", status),
			zap.Bool("retryable", err.Retryable),
			zap.Error(err.Cause),
		)
	}

	WriteJSON(w, status, Response{
		Success:   false,
		Error:     errorInfo,
		Timestamp: time.Now(),
	})
}

// WriteErrorMessage 写入简单错误消息
func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	err := types.NewError(code, message).WithHTTPStatus(status)
	WriteError(w, err, logger)
}

// =============================================================================
// 🔄 错误码到 HTTP 状态码映射
// =============================================================================

func mapErrorCodeToHTTPStatus(code types.ErrorCode) int {
	switch code {
	// 4xx 客户端错误
	case types.ErrInvalidRequest:
		return http.StatusBadRequest
	case types.ErrUnauthorized:
		return http.StatusUnauthorized
	case types.ErrForbidden:
		return http.StatusForbidden
	case types.ErrRateLimited:
		return http.StatusTooManyRequests

	// 5xx 服务端错误
	case types.ErrUpstreamTimeout:
		return http.StatusGatewayTimeout
	case types.ErrServiceUnavailable, types.ErrProviderUnavailable:
		return http.StatusServiceUnavailable
	case types.ErrUpstreamError:
		return http.StatusBadGateway
	case types.ErrInternalError:
		return http.StatusInternalServerError

	// 默认
	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// 🛡️ 请求验证辅助函数
// =============================================================================

// DecodeJSONBody 解码 JSON 请求体
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil {
		err := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteError(w, err, logger)
		return err
	}

	decoder := jsonx.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields() // 严格模式：拒绝未知字段

	if err := decoder.Decode(dst); err != nil {
		apiErr := types.NewError(types.ErrInvalidRequest, "invalid JSON body").
			WithCause(err).
			WithHTTPStatus(http.StatusBadRequest)
		WriteError(w, apiErr, logger)
		return apiErr
	}

	return nil
}

// ValidateContentType 验证 Content-Type
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		err := types.NewError(types.ErrInvalidRequest, "Content-Type must be application/json")
		WriteError(w, err, logger)
		return false
	}
	return true
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateRequest 按 validate 标签校验请求，失败时写出 400。
func ValidateRequest(w http.ResponseWriter, req any, logger *zap.Logger) bool {
	err := validate.Struct(req)
	if err == nil {
		return true
	}
	msg := err.Error()
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			if fe.Param() != "" {
				parts = append(parts, fmt.Sprintf("%s: failed '%s' (%s)", fe.Namespace(), fe.Tag(), fe.Param()))
				continue
			}
			parts = append(parts, fmt.Sprintf("%s: failed '%s'", fe.Namespace(), fe.Tag()))
		}
		msg = strings.Join(parts, "; ")
	}
	WriteError(w, types.NewError(types.ErrInvalidRequest, msg).WithHTTPStatus(http.StatusBadRequest), logger)
	return false
}

// UpstreamError 把后端生成错误转换为 API 错误。
func UpstreamError(err error) *types.Error {
	if errors.Is(err, context.Canceled) {
		return types.NewError(types.ErrServiceUnavailable, "request cancelled").WithCause(err).
			WithHTTPStatus(http.StatusServiceUnavailable)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrUpstreamTimeout, "upstream call timed out").WithCause(err).WithRetryable(true)
	}

	var le *llm.Error
	if !errors.As(err, &le) {
		return types.NewError(types.ErrUpstreamError, "backend generation failed").WithCause(err)
	}
	code := types.ErrUpstreamError
	switch le.Code {
	case llm.ErrUpstreamTimeout:
		code = types.ErrUpstreamTimeout
	case llm.ErrProviderUnavailable, llm.ErrModelOverloaded:
		code = types.ErrProviderUnavailable
	case llm.ErrRateLimited, llm.ErrQuotaExceeded:
		code = types.ErrRateLimited
	}
	return types.NewError(code, le.Message).WithCause(err).WithRetryable(le.Retryable)
}

// callerFields 认证中间件注入的调用方身份，附加到审计日志
func callerFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if id, ok := types.RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	if tenant, ok := types.TenantID(ctx); ok {
		fields = append(fields, zap.String("tenant_id", tenant))
	}
	if user, ok := types.UserID(ctx); ok {
		fields = append(fields, zap.String("user_id", user))
	}
	if roles, ok := types.Roles(ctx); ok {
		fields = append(fields, zap.Strings("roles", roles))
	}
	return fields
}

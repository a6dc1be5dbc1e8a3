// Package types defines core data types and enums for the chat renderer application.
package types

// Config 应用配置
type Config struct {
	OpenAIAPIKey  string `json:"openai_api_key"`
	OpenAIBaseURL string `json:"openai_base_url"` // OpenAI 兼容 API 的 Base URL
	OpenAIModel   string `json:"openai_model"`
	SystemPrompt  string `json:"system_prompt"` // 聊天系统提示词，空则使用默认
	// 渲染配置
	HighlightStyle string `json:"highlight_style"` // chroma 代码高亮样式，默认 "github"
	HardWraps      bool   `json:"hard_wraps"`      // 单个换行渲染为 <br>
	Sanitize       bool   `json:"sanitize"`        // 渲染后是否执行 HTML 清洗，默认 true
	// 日志配置
	LogLevel string `json:"log_level"` // debug / info / warn / error
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message 单条聊天消息
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`           // 原始 Markdown 文本
	Timestamp int64  `json:"timestamp"`         // Unix 毫秒
	HTML      string `json:"html,omitempty"`    // 渲染后的 HTML（仅助手消息）
}

// RenderResult 渲染结果
type RenderResult struct {
	HTML        string `json:"html"`
	CodeBlocks  int    `json:"code_blocks"`  // 提取的代码块数量
	MathSpans   int    `json:"math_spans"`   // 提取的数学区间数量
	Citations   int    `json:"citations"`    // 规范化的引用标记数量
	HasDiagrams bool   `json:"has_diagrams"` // 输出中包含 mermaid 图表容器
}

// ErrorCode 错误代码枚举
type ErrorCode string

const (
	ErrConfig       ErrorCode = "CONFIG_ERROR"
	ErrRender       ErrorCode = "RENDER_ERROR"
	ErrChat         ErrorCode = "CHAT_ERROR"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// Package tokenizer 提供统一的 Token 计数与截断接口，
// 支持 tiktoken 精确计数与 CJK 估算器，用于控制审议记录中每条专家意见的 Token 预算。
package tokenizer

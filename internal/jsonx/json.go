// Package jsonx 统一 JSON 编解码实现，基于 jsoniter 并保持与标准库兼容的行为。
package jsonx

import jsoniter "github.com/json-iterator/go"

var (
	// JSON 全局编解码实例
	JSON = jsoniter.ConfigCompatibleWithStandardLibrary

	// Marshal is a shorthand for JSON.Marshal
	Marshal = JSON.Marshal

	// Unmarshal is a shorthand for JSON.Unmarshal
	Unmarshal = JSON.Unmarshal

	// NewDecoder is a shorthand for JSON.NewDecoder
	NewDecoder = JSON.NewDecoder

	// NewEncoder is a shorthand for JSON.NewEncoder
	NewEncoder = JSON.NewEncoder
)

// RawMessage 延迟解码的原始 JSON
type RawMessage = jsoniter.RawMessage

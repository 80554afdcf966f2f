// Package api 定义 councilgate HTTP API 的请求与响应类型。
//
// # API 概览
//
// councilgate 在提示词到达后端模型之前先交由专家审议团审议：
//   - POST /api/v1/evaluate  仅审议，返回裁决
//   - POST /api/v1/chat      审议通过后转发给后端模型
//   - GET  /api/v1/council   当前模式与专家列表
//   - /health /healthz /ready /readyz /version
//
// # 认证
//
// 配置了 server.api_keys 时，请求需携带 X-API-Key 头：
//
//	X-API-Key: your-api-key
//
// 配置了 server.jwt 时改用 Bearer Token。
//
// # 响应格式
//
// 所有接口统一返回 {success, data, error, timestamp, request_id}，
// 审议拒绝时 error.code 为 FORBIDDEN，HTTP 状态码 403。
package api

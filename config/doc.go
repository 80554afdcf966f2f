// Package config 提供 councilgate 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（前缀 COUNCILGATE_）的顺序叠加，
// 加载后使用 validator 结构体标签统一校验。
// 专家列表只在启动时读取一次，运行期间不支持热更新。
package config

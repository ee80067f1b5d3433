// Package config 提供 queryflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（QUERYFLOW_<SECTION>_<FIELD>）
// 的顺序叠加，最后执行注册的验证器与 Config.Validate。
package config

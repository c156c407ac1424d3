// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package config 提供 safetycore 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（前缀 SAFETYCORE）的顺序加载，
// Validate 会一次性收集所有问题。GuardrailsReloader 监听配置文件，
// 只把 guardrails 段的运行时阈值与开关热更新到编排器，其余配置需要重启生效。
package config

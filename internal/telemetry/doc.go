// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 safetycore 的护栏流水线提供 TracerProvider 和 MeterProvider。
// 遥测禁用时保持全局 noop 实现，不连接任何外部采集端。
package telemetry

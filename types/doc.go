// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 safetycore 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 guardrails、orchestrator、
llm、api 等上层模块提供统一的错误与上下文契约，以避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误，含 HTTP 状态码、Retryable 与 Component 标记
  - 调用方错误码：INVALID_INPUT、MISSING_SESSION、SESSION_NOT_FOUND、INVALID_CONFIG、RATE_LIMITED
  - 协作者错误码：DETECTOR_UNAVAILABLE、EXTERNAL_SERVICE_TIMEOUT、MALFORMED_MODEL_RESPONSE、UPSTREAM_ERROR

# 主要能力

  - 错误工具链：NewError 链式构造，IsRetryable / GetErrorCode / IsCode 沿错误链查找
  - Context 传播：WithRequestID / WithTraceID / WithSessionID / WithClientID 及对应读取函数
*/
package types

// Copyright (c) Wingman Authors.
// Licensed under the MIT License.

/*
Package types 提供 wingman 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent/declarative、
agent/crews、llm、api 等上层模块提供统一的错误码与上下文键。

# 核心类型

  - Error / ErrorCode：结构化错误体系，含 HTTP 状态码与 Retryable 标记
  - CONFIG_ERROR：定义加载失败（字段缺失、引用不存在、重复标识）
  - NOT_FOUND：运行前解析失败（未知 crew）
  - CAPABILITY_ERROR：单个任务的执行器失败，仅记录在该任务结果中
  - CANCELLED：调用方取消运行

# 主要能力

  - Context 传播：WithTraceID / WithRequestID / WithRunID / WithCrewID
  - 错误工具链：AsError / IsErrorCode / IsRetryable / IsCancellation
  - HTTP 映射：HTTPStatusFor
*/
package types

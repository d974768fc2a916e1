// Copyright (c) Wingman Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、
crew 运行与定义重载三个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制。所有指标按 namespace 隔离，默认 namespace 为 wingman。

# 核心类型

  - Collector：指标收集器，实现 crews.Recorder，可直接交给执行引擎。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - Crew 指标：运行总数与耗时、任务单元终态、能力调用次数（区分委托）、
    速率预算等待时间。
  - 定义指标：重载尝试结果与当前快照版本。
*/
package metrics

// Copyright (c) Wingman Authors.
// Licensed under the MIT License.

/*
包 api 定义 Wingman HTTP 接口的请求与响应数据结构。

# 概述

本包只包含传输层 DTO，不包含处理逻辑。处理器实现位于
api/handlers 子包，由 cmd/wingman serve 装配路由。

# 核心类型

  - RunRequest：运行 crew 的请求体（上下文覆盖与结构化输出开关）
  - ContentRequest / ContentResponse：内容创作快捷接口
  - CrewSummary / CrewDescription：crew 列表与解析后的执行计划
  - ReloadResponse：定义重载后发布的快照信息
  - StreamMessage：WebSocket 运行流中的事件、结果与错误消息
*/
package api

/*
Package handlers 提供 Wingman HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 crew 查询、运行、流式运行、默认上下文管理、
定义重载、调解会话以及健康检查等端点，并提供统一的响应与错误处理。
所有 Handler 均基于标准 net/http 接口，路由使用 Go 1.22 的
"METHOD /path/{param}" 模式注册。

# 核心类型

  - CrewHandler：crew 列表、计划查询、同步运行、WebSocket 流式运行、默认上下文与重载
  - SessionHandler：AI wingman 冲突调解会话（结构化结果与旧版四字段结果）
  - HealthHandler：服务健康检查（/health, /healthz, /api/v1/health, /ready, /version）
  - Response：统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo：结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码与字节数
  - HealthCheck：可插拔健康检查接口，内置 DefinitionsCheck

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）
  - 错误码 → HTTP 状态码映射：NOT_FOUND→404、INVALID_REQUEST→400、CANCELLED→408
  - 取消或超时的运行返回 408，并在 data 中附带部分结果
  - 流式运行：每个单元状态变化推送一条 event 消息，最后推送 result 或 error
*/
package handlers

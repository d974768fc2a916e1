// Copyright (c) Wingman Authors.
// Licensed under the MIT License.

/*
Package main 提供 Wingman 命令行与服务端程序入口。

# 概述

cmd/wingman 基于 cobra 组织子命令：serve 启动 HTTP API、Metrics 服务
与定义目录监听；run 在本地单次运行一个 crew；validate 与 schema 用于
编写定义文件时的校验与编辑器补全。启动前会加载 .env（joho/godotenv），
配置按 默认值 → YAML → WINGMAN_* 环境变量 的顺序合并。

# 核心类型

  - Server：组装定义存储、执行引擎、HTTP/Metrics 双端口及优雅关闭
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、run、validate、schema、version
  - 中间件链：Recovery → RequestID → SecurityHeaders → Metrics →
    OTelTracing → RequestLogger → CORS → RateLimiter（基于 IP）
  - 定义热重载：FileWatcher 轮询目录，变更后原子替换定义快照
  - 优雅关闭：信号监听 → 停止监听 → 关闭 HTTP → 关闭 Metrics → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main

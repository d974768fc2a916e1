// Copyright (c) Wingman Authors.
// Licensed under the MIT License.

/*
Package declarative 提供 Agent、Task、Crew 的声明式定义存储。

# 概述

declarative 从 YAML 或 JSON 文档加载三类定义，校验字段与引用关系后
构建不可变快照 Snapshot，并通过 Store 以写时复制方式原子发布。
并发运行中的读者要么看到旧快照，要么看到新快照，不会看到混合状态。

# 文档格式

单个文件可以包含 agents、tasks、crews（或 crew）顶级键的任意组合；
若文件名为 agents.yml、tasks.yml 或 crew.yml 且没有顶级键，则整个文档
视为对应类型的映射。字符串中的 ${VAR} 在加载时替换为环境变量，未设置
的变量保持原样。

# 校验规则

  - 字段规则通过 go-playground/validator 标签校验
  - Task 引用的 Agent 必须存在
  - Crew 引用的 Agent 与 Task 必须存在，且 Task 的 Agent 必须是 Crew 成员
  - 同一类型内标识符不得重复（跨文件同样适用）

所有问题汇总为一个 CONFIG_ERROR 返回，Store 在出错时保留原快照。

# 主要能力

  - 加载：LoadFile / LoadDir / NewSource / Load
  - 发布：Store.Reload / Store.ReloadDir / Store.Snapshot
  - Schema：Schema 基于 invopop/jsonschema 导出文档结构
*/
package declarative

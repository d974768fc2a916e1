// Copyright (c) Wingman Authors.
// Licensed under the MIT License.

/*
Package crews 实现 crew 编排核心：上下文绑定、计划解析、执行引擎与结果聚合。

# 概述

crews 将 declarative 包发布的定义快照解析为执行计划 Plan，并由 Engine
按 crew 的执行模式驱动每个任务单元，通过可插拔的 Executor 完成能力调用，
最后由 Aggregate 汇总为 CrewResult。

# 核心模型

  - Bind / Placeholders：{name} 占位符替换，未知键保持原样
  - Resolve / Plan / Unit：按声明顺序生成执行单元，未知 crew 返回 NOT_FOUND
  - Engine：顺序/并行执行、滚动窗口限流、委托调用、取消传播
  - WindowLimiter：max_rpm 滚动窗口限流器，协作式等待
  - Invocation / Executor：单次能力调用及其委托钩子
  - Aggregate / CrewResult：稳定、可重复的结果聚合
  - DefaultContext / Manager：进程级默认上下文与对外入口

# 执行语义

  - 顺序模式：单元严格按声明顺序执行，成功输出以 previous_task_output 与
    <task_id>_output 提供给后续单元；required 单元失败时后续单元记为 skipped
  - 并行模式：async_execution 单元进入受 max_concurrency 限制的 errgroup 池，
    其余单元在主线上顺序执行；任何失败都不会取消兄弟单元
  - 取消：尚未派发的单元记为 cancelled，已完成的单元保留其结果

# 单元状态机

	Pending → ContextBound → Dispatched → {Succeeded | Failed | Cancelled}
	Pending → {Skipped | Cancelled}
	ContextBound → Cancelled
*/
package crews

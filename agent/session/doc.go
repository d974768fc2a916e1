/*
Package session 在 crews 之上实现 AI wingman 冲突调解会话。

# 概述

Manager 将对话记录、冲突类型与双方背景组装为运行上下文，执行
ai_wingman_crew，并把各任务的自由文本输出解码为类型化的分析结果。

# 核心类型

  - Conversation：会话输入，transcript 必填
  - Interaction：情绪分析、双方视角、咨询师与鼓励者回应及整合对话
  - LegacyInteraction：旧版四字段扁平响应
  - Runner：运行 crew 的最小接口，由 crews.Manager 实现

# 解码顺序

每个任务输出依次尝试：内嵌 JSON 对象、"字段: 值" 行、原始文本摘录。
未成功的任务对应字段留空；整合对话缺失时返回 CAPABILITY_ERROR。
*/
package session

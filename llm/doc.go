// Copyright (c) Wingman Authors.
// Licensed under the MIT License.

/*
包 llm 提供 crew 执行引擎使用的能力执行器（Executor）实现。

# 概述

执行引擎把“某个 agent 处理某个任务”视为一次不透明的能力调用，
本包负责把这次调用翻译成具体的大语言模型请求。所有实现都满足
[crews.Executor] 接口，可以直接交给 [crews.NewEngine]。

# 核心实现

  - [Echo]：不访问网络，返回 "<agent>:<description>"，用于演练与测试
  - [OpenAI]：OpenAI 兼容的 Chat Completions 接口，适用于 OpenAI、
    DeepSeek、Qwen 以及本地推理服务
  - [Gemini]：基于 google.golang.org/genai 的 Gemini 接入

# 主要能力

  - 由 agent 的 role / goal / backstory 构造系统提示词
  - 上游 HTTP 错误映射为 types.Error（429 可重试）
  - [Instrument] 为任意执行器添加 OpenTelemetry 追踪与指标
  - [NewExecutor] 根据 config.LLMConfig 选择并装配执行器
*/
package llm

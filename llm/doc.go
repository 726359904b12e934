// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 llm 定义 localroute 路由核心的公共契约：凭据分类、Provider 选择、
请求与响应模型以及客户端接口。

# 概述

调用方按照云端 LLM REST API（Anthropic Messages / OpenAI Chat）编写代码，
通过凭据的形状决定请求走向：以全 9 结尾的凭据走本地 CLI（claude / codex），
其余凭据原样转发到真实的远端 API。

# 核心接口

  - [Client]：CreateMessage，本地与远端两种实现共享的能力集
  - [AsyncClient]：在 Client 之上增加基于有界协程池的 CreateMessageAsync

# 核心类型

  - [Route]：local / remote 路由决策，由 [Classify] 纯函数给出
  - [Provider]：claude / anthropic / codex / openai 四个大小写敏感的令牌
  - [Target]：厂商族 + 路由，例如 local-anthropic
  - [Turn] / [MessageRequest]：请求模型
  - [Envelope]：与厂商 Messages 响应结构一致的响应体

# 子包

  - transcript：多轮对话 → 单段文本
  - cli：子进程调用与进程组超时清理
  - synth：响应合成与用量估算
  - router：路由门面
  - providers：远端客户端（anthropic / openai）
  - tokenizer：词数与 tiktoken 用量估算
*/
package llm

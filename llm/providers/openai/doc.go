// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 openai 基于 sashabaranov/go-openai 提供 OpenAI Chat Completions 的远端客户端，
并负责 Messages 结构与 chat.completion 结构之间的互转（本地 codex 路径的
HTTP 响应同样复用这些转换）。

# 核心函数

  - ToChatRequest: llm.MessageRequest → openai.ChatCompletionRequest
  - FromChatResponse: openai.ChatCompletionResponse → llm.Envelope
  - StopReasonFromFinish / FinishFromStopReason: stop_reason 与 finish_reason 互转
*/
package openai

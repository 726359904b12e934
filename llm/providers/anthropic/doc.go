// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 anthropic 提供 Anthropic Messages API（/v1/messages）的远端客户端，
作为路由门面 REMOTE 分支的默认协作者。

# 协议要点

  - 认证使用 x-api-key 请求头（非 Bearer Token）
  - 携带 anthropic-version 请求头
  - 响应体直接解码为 llm.Envelope，不做改写
  - 上游 4xx/5xx 映射为 UPSTREAM 错误，保留状态码与 error.type
  - 支持 llm.CredentialOverride 运行时凭证覆盖
*/
package anthropic

// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 server 提供 HTTP 服务器生命周期管理：非阻塞启动、按 context 运行与优雅关闭。

# 核心类型

  - Manager：封装 net/http.Server 与 net.Listener，提供 Start/Run/Shutdown。
    代理服务与 Prometheus 指标服务各用一个 Manager。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小与优雅关闭超时。

Run 在 ctx 结束时优雅关闭，适合与 errgroup 组合；ListenAddr 返回
实际绑定地址，便于以 :0 启动的测试与日志输出。
*/
package server

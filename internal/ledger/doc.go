// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 ledger 记录代理的请求统计：total_requests、local_routed、
remote_forwarded、errors、blocked_requests。

# 存储后端

  - MemoryStore：进程内原子计数，默认后端
  - SQLStore：gorm，支持 sqlite（glebarez，无 cgo）、postgres、mysql，
    单表 localroute_stats，按 name upsert
  - RedisStore：单个 hash，多个代理实例共享计数

[Ledger] 包装 Store：记录失败只写日志，不影响请求；每次存储操作的耗时
通过 Observer 上报给 Prometheus。
*/
package ledger

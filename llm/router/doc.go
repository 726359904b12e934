// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 router 提供 localroute 的路由门面：同一个 CreateMessage 调用，
根据凭据形状发往本地 CLI 或远端 API。

# 调用流程

	START → CLASSIFIED ─┬→ REMOTE_DISPATCHED → DONE
	                    └→ LOCAL_FORMATTED → LOCAL_INVOKED → LOCAL_SYNTHESIZED → DONE

远端路径的结果与错误原样返回；本地路径经过校验、转写、CLI 调用与响应合成，
错误统一为 [types.Error]。

# 并发

[Router] 在 New 之后只持有不可变配置。CreateMessageAsync 把调用交给
有界协程池，返回只产出一个结果的 channel；池满时返回 SERVICE_UNAVAILABLE。
*/
package router

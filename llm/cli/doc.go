/*
Package cli 负责本地 CLI（claude / codex）的子进程生命周期。

# 概述

[Invoker] 先经 [Runner] 在搜索路径中解析可执行文件，再把对话文本写入标准输入，
在 [Spec].Timeout 约束下等待退出。子进程独占一个进程组，超时后整组强杀，
随后返回 INVOCATION_TIMEOUT；非零退出返回携带 stderr 的 CLI_PROCESS。

每次调用相互独立：不复用进程、不共享缓冲区、不做隐式重试。

# 模型别名

[ResolveModel] 把厂商模型 ID 映射为 CLI 接受的别名（opus / sonnet / haiku 等），
未知模型原样透传。
*/
package cli

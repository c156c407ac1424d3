// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 circuitbreaker 提供按连续失败次数触发的熔断器。

状态机：Closed 下连续失败达到 Threshold 进入 Open；Open 期间调用直接
返回 ErrCircuitOpen；超过 ResetTimeout 后下一次调用进入 HalfOpen 作为
试探，成功回到 Closed，失败重新 Open。Config.IsFailure 可排除不代表
下游故障的错误。
*/
package circuitbreaker

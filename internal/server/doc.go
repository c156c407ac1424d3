// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 safetycore HTTP 监听器的生命周期。

Manager 封装 net/http.Server：Start 非阻塞启动并记录实际监听地址，
Shutdown 在超时内排空请求后按注册的逆序执行关闭钩子，
WaitForShutdown 监听 SIGINT/SIGTERM 或服务异常退出。
护栏 API 与 /metrics 各使用一个 Manager。
*/
package server

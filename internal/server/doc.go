/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
阻塞运行与优雅关闭。

# 核心类型

  - Manager：封装 net/http.Server，持有 net.Listener 与异步错误通道，
    提供 Start/Run/Shutdown 等生命周期方法。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小与优雅关闭超时。

# 使用方式

councilgate 的 serve 命令为 API 与 /metrics 各创建一个 Manager，
以 signal.NotifyContext 得到的 ctx 调用 Run；收到 SIGINT/SIGTERM 后
在 ShutdownTimeout 内排空进行中的审议请求。
*/
package server

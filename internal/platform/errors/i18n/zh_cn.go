package i18n

var zhCNCatalog = &Catalog{
	locale: "zh-CN",
	messages: map[Code]string{
		CodeUnknown:            "未知错误",
		CodeProtocol:           "无效的消息格式{{if .Reason}}: {{.Reason}}{{end}}",
		CodeCapacity:           "{{if .Resource}}{{.Resource}}已满{{else}}容量已满{{end}}",
		CodeAuthorization:      "房间密码错误",
		CodeState:              "{{if .Reason}}{{.Reason}}{{else}}当前状态不允许该操作{{end}}",
		CodeNotFound:           "{{if .Resource}}{{.Resource}}不存在{{else}}不存在{{end}}",
		CodeRateLimited:        "发送消息过于频繁，请稍后再试",
		CodeContentRejected:    "{{if .Reason}}{{.Reason}}{{else}}消息被拒绝{{end}}",
		CodeLivenessTimeout:    "连接超时",
		CodeTransport:          "连接错误",
		CodeReconnectExhausted: "已重连 {{.Attempts}} 次，停止重连",
		CodeEngine:             "{{if .Reason}}{{.Reason}}{{else}}游戏拒绝了该操作{{end}}",
		CodeInternal:           "服务器内部错误",
	},
}

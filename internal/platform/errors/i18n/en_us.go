package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnknown            = "UNKNOWN"
	CodeProtocol           = "PROTOCOL_ERROR"
	CodeCapacity           = "CAPACITY_EXCEEDED"
	CodeAuthorization      = "AUTHORIZATION_FAILED"
	CodeState              = "INVALID_STATE"
	CodeNotFound           = "NOT_FOUND"
	CodeRateLimited        = "RATE_LIMITED"
	CodeContentRejected    = "CONTENT_REJECTED"
	CodeLivenessTimeout    = "LIVENESS_TIMEOUT"
	CodeTransport          = "TRANSPORT_ERROR"
	CodeReconnectExhausted = "RECONNECT_EXHAUSTED"
	CodeEngine             = "ENGINE_REJECTED"
	CodeInternal           = "INTERNAL"
)

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		CodeUnknown:            "Unknown error",
		CodeProtocol:           "Invalid message{{if .Reason}}: {{.Reason}}{{end}}",
		CodeCapacity:           "{{if .Resource}}{{.Resource}} is full{{else}}Capacity exceeded{{end}}",
		CodeAuthorization:      "Room password does not match",
		CodeState:              "{{if .Reason}}{{.Reason}}{{else}}Operation not allowed right now{{end}}",
		CodeNotFound:           "{{if .Resource}}{{.Resource}} not found{{else}}Not found{{end}}",
		CodeRateLimited:        "Sending messages too quickly, try again later",
		CodeContentRejected:    "{{if .Reason}}{{.Reason}}{{else}}Message rejected{{end}}",
		CodeLivenessTimeout:    "Connection timed out",
		CodeTransport:          "Connection error",
		CodeReconnectExhausted: "Gave up reconnecting after {{.Attempts}} attempts",
		CodeEngine:             "{{if .Reason}}{{.Reason}}{{else}}Action rejected by the game{{end}}",
		CodeInternal:           "Internal server error",
	},
}

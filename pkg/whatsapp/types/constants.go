package types

const (
	APIBase          = "/api"
	EndpointSessions = "/sessions"
	EndpointStart    = "/start"
	EndpointStop     = "/stop"
	EndpointAuthQR   = "/auth/qr"

	HeaderAPIKey = "X-Api-Key"
)

// Webhook event names pushed by the gateway
const (
	EventSessionStatus = "session.status"
	EventMessage       = "message"
	EventMessageAny    = "message.any"
)

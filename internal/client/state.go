package client

// State is the lifecycle of a logical chat session
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFallbackPolling
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFallbackPolling:
		return "fallback_polling"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of a Session
type Status struct {
	State            State  `json:"state"`
	RetryCount       int    `json:"retryCount"`
	FallbackAttempts int    `json:"fallbackAttempts"`
	LastError        string `json:"lastError,omitempty"`
	UsingFallback    bool   `json:"usingFallback"`
}

// StateChange is delivered to OnStateChange observers in transition order
type StateChange struct {
	From State
	To   State
}

// Texts surfaced through Status.LastError
const (
	FallbackActiveText = "Usando modo de conexión alternativo"
	FallbackFailedText = "No se pudo establecer conexión. Verifica tu conexión a internet."
)

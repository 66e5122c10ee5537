package response

const (
	ErrCodeSuccess = 2000 // Success

	ErrCodeNotFound    = 4004 // Unknown route
	ErrCodeRateLimited = 4029 // Too many connection attempts

	ErrCodeInternal = 5000 // Unexpected failure
)

// message
var msg = map[int]string{
	ErrCodeSuccess: "success",

	ErrCodeNotFound:    "route not found",
	ErrCodeRateLimited: "rate limit exceeded",

	ErrCodeInternal: "internal error",
}

// Msg returns the text attached to code, or the internal error text for
// unknown codes
func Msg(code int) string {
	if m, ok := msg[code]; ok {
		return m
	}
	return msg[ErrCodeInternal]
}

// ErrorBody is the JSON body of every non-WebSocket error response
type ErrorBody struct {
	Code    int    `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func NewError(code int, detail string) ErrorBody {
	return ErrorBody{Code: code, Error: Msg(code), Message: detail}
}

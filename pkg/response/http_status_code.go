package response

const (
	ErrCodeSuccess         = 2000 // Success
	ErrCodeInvalidCommand  = 4001 // Command failed validation
	ErrCodeUnknownCommand  = 4002 // Command type not recognized
	ErrCodeParamInvalid    = 4003 // Path or query parameter invalid
	ErrCodeUnauthenticated = 4010 // Missing or rejected credential
	ErrCodeForbidden       = 4030 // Internal key missing or wrong
	ErrCodeRateLimited     = 4290 // Too many handshakes
	ErrCodeUnavailable     = 5030 // Dependency not reachable
)

// message
var msg = map[int]string{
	ErrCodeSuccess:         "success",
	ErrCodeInvalidCommand:  "invalid command",
	ErrCodeUnknownCommand:  "unknown command",
	ErrCodeParamInvalid:    "invalid parameter",
	ErrCodeUnauthenticated: "unauthenticated",
	ErrCodeForbidden:       "forbidden",
	ErrCodeRateLimited:     "rate limit exceeded",
	ErrCodeUnavailable:     "service unavailable",
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Code    int    `json:"code" example:"4001"`
	Message string `json:"message" example:"invalid command"`
	Detail  string `json:"detail,omitempty" example:"notify-user requires userId"`
}

func Msg(code int) string {
	if m, ok := msg[code]; ok {
		return m
	}
	return "unknown error"
}

func Error(code int, detail string) ErrorResponse {
	return ErrorResponse{Code: code, Message: Msg(code), Detail: detail}
}

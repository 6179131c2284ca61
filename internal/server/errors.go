package server

// ErrorCode classifies error events sent over the socket so clients can
// react without parsing the message text.
type ErrorCode string

const (
	CodeAuthenticationError ErrorCode = "authentication_error"
	CodeValidationError     ErrorCode = "validation_error"
	CodeAuthorizationError  ErrorCode = "authorization_error"
	CodePersistenceError    ErrorCode = "persistence_error"
	CodeInternalError       ErrorCode = "internal_error"
	CodeServerBusy          ErrorCode = "server_busy"
)

type ErrorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func errorEvent(code ErrorCode, groupId int, msg string) *ServerEvent {
	return &ServerEvent{
		Type:      EventError,
		Timestamp: Now(),
		GroupId:   groupId,
		Error: &ErrorBody{
			Code:    code,
			Message: msg,
		},
	}
}

func validationError(groupId int, msg string) *ServerEvent {
	return errorEvent(CodeValidationError, groupId, msg)
}

func authorizationError(groupId int, msg string) *ServerEvent {
	return errorEvent(CodeAuthorizationError, groupId, msg)
}

func persistenceError(groupId int, msg string) *ServerEvent {
	return errorEvent(CodePersistenceError, groupId, msg)
}

func internalError(groupId int) *ServerEvent {
	return errorEvent(CodeInternalError, groupId, "something went wrong, please try again")
}

func serverBusyError(groupId int) *ServerEvent {
	return errorEvent(CodeServerBusy, groupId, "server is busy, please try again")
}

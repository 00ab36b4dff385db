package command

// Response is the structured reply for one protocol command. Data stays
// nil for everything except status, so it renders as JSON null.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Success builds a successful response.
func Success(message string, data any) Response {
	return Response{Success: true, Message: message, Data: data}
}

// Failure builds a failed response with no data.
func Failure(message string) Response {
	return Response{Success: false, Message: message}
}

package server

// errorBody is the failure shape shared with the relay's result contract.
type errorBody struct {
	status  int
	Success bool   `json:"success"`
	Message string `json:"error" example:"upstream URL is not configured"`
}

func (e *errorBody) GetStatus() int { return e.status }
func (e *errorBody) Error() string  { return e.Message }

func newErrorBody(status int, msg string) *errorBody {
	return &errorBody{status: status, Message: msg}
}

type healthOutput struct {
	Body map[string]any `json:"body"`
}

// surveyInput keeps the body raw: it is validated as JSON and forwarded
// byte for byte.
type surveyInput struct {
	ContentType string `header:"Content-Type"`
	RawBody     []byte `contentType:"application/json"`
}

type surveyOutput struct {
	Status      int
	ContentType string `header:"Content-Type"`
	Body        []byte
}

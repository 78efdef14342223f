package api

// statusResponse is the payload for GET /.
type statusResponse struct {
	Status string `json:"status"`
}

// errorResponse is the payload of every error reply.
type errorResponse struct {
	Error string `json:"error"`
}

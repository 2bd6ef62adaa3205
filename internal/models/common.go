package models

// ErrorResponse is the error envelope returned by the API.
type ErrorResponse struct {
	Success bool   `json:"success" example:"false"`
	Message string `json:"message"`
}

// APIResponse is the success envelope returned by the API.
type APIResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

package model

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the stable machine-readable code and the human-readable
// message returned by the API. Code strings are part of the public contract
// and never change between releases.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// KeyCreatedResponse is returned exactly once, at key creation time. The
// plaintext key cannot be retrieved again afterwards.
type KeyCreatedResponse struct {
	Key       APIKey `json:"key"`
	Plaintext string `json:"plaintext"`
}

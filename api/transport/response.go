package transport

import "time"

// Envelope is the standard API response wrapper used for both success and error payloads.
type Envelope struct {
	Status string      `json:"status"`
	Code   string      `json:"code,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  interface{} `json:"error,omitempty"`
	Meta   *Meta       `json:"meta,omitempty"`
}

// Meta carries request bookkeeping alongside the payload.
type Meta struct {
	RequestID   string    `json:"request_id,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NewMeta stamps the response with the current time.
func NewMeta(requestID string) *Meta {
	return &Meta{RequestID: requestID, GeneratedAt: time.Now().UTC()}
}

// NewSuccess returns a success envelope.
func NewSuccess(data interface{}, meta *Meta) Envelope {
	return Envelope{
		Status: "success",
		Data:   data,
		Meta:   meta,
	}
}

// NewError returns an error envelope with optional metadata.
func NewError(code string, err interface{}, meta *Meta) Envelope {
	return Envelope{
		Status: "error",
		Code:   code,
		Error:  err,
		Meta:   meta,
	}
}

package factcheck

import "time"

// Envelope wraps every API reply. Exactly one of Data or Error is set.
type Envelope struct {
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
	RequestID int64  `json:"request_id"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	// RawResponse carries the unparseable collaborator reply on parse failures.
	RawResponse string `json:"raw_response,omitempty"`
}

func successEnvelope(now time.Time, requestID int64, data any) Envelope {
	return Envelope{
		Success:   true,
		Timestamp: now.Format(time.RFC3339Nano),
		RequestID: requestID,
		Data:      data,
	}
}

func errorEnvelope(now time.Time, requestID int64, message string) Envelope {
	if message == "" {
		message = "unknown error"
	}
	return Envelope{
		Success:   false,
		Timestamp: now.Format(time.RFC3339Nano),
		RequestID: requestID,
		Error:     message,
	}
}

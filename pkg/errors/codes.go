package errors

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Retryable       bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	ErrFormat: {
		Code:            ErrFormat,
		Retryable:       false,
		Description:     "Transcript could not be read or contains no recordings",
		SuggestedAction: "Check the file is a transcript export (JSON/YAML records or text with '==== name.mp3 ====' boundaries)",
	},
	ErrServiceUnreachable: {
		Code:            ErrServiceUnreachable,
		Retryable:       true,
		Description:     "Inference service did not respond",
		SuggestedAction: "Start the service with 'ollama serve' and verify with: transcriber health",
	},
	ErrModelUnavailable: {
		Code:            ErrModelUnavailable,
		Retryable:       false,
		Description:     "Requested model is not installed and could not be pulled",
		SuggestedAction: "Pull the model manually: transcriber models pull <model>",
	},
	ErrInferenceTimeout: {
		Code:            ErrInferenceTimeout,
		Retryable:       true,
		Description:     "Generation exceeded the time limit",
		SuggestedAction: "Raise generate_timeout or use a smaller model: transcriber config set generate_timeout 5m",
	},
	ErrInference: {
		Code:            ErrInference,
		Retryable:       false,
		Description:     "Inference service returned an empty or malformed response",
		SuggestedAction: "Inspect the run log and retry the segment; check service logs for model errors",
	},
	ErrContextCancelled: {
		Code:            ErrContextCancelled,
		Retryable:       false,
		Description:     "Operation cancelled by user or system",
		SuggestedAction: "Check if cancellation was intentional",
	},
}

// IsRetryable returns true if the given error code represents a transient, retryable error.
func IsRetryable(code ErrorCode) bool {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Retryable
	}
	return false
}

// GetSuggestedAction returns the suggested action for the given error code.
func GetSuggestedAction(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.SuggestedAction
	}
	return "Check the run log for more details"
}

// GetDescription returns the human-readable description for the given error code.
func GetDescription(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Description
	}
	return "Unknown error"
}

package domain

// Fixed spoken feedback. These are spoken with the PROMPT_INFO utterance id.
const (
	MessageNoConnectivity      = "Please check your Internet connection"
	MessageRecognitionNotStart = "Speech recognition could not be started"
	MessageNetworkUnreachable  = "Network unreachable"
	MessageAppNotFound         = "Could not find the app "
	MessageBatteryLevel        = "Your battery level is %d per cent"
)

// ErrorCategory is the human readable family of a recognition engine error
type ErrorCategory string

const (
	CategoryAudio          ErrorCategory = "audio"
	CategoryClient         ErrorCategory = "client"
	CategoryPermissions    ErrorCategory = "permissions"
	CategoryNetwork        ErrorCategory = "network"
	CategoryNetworkTimeout ErrorCategory = "network_timeout"
	CategoryNoMatch        ErrorCategory = "no_match"
	CategoryBusy           ErrorCategory = "busy"
	CategoryServer         ErrorCategory = "server"
	CategorySpeechTimeout  ErrorCategory = "speech_timeout"
	CategoryOther          ErrorCategory = "other"
)

var categoryMessages = map[ErrorCategory]string{
	CategoryAudio:          "Audio recording error",
	CategoryClient:         "Client side error",
	CategoryPermissions:    "Insufficient permissions",
	CategoryNetwork:        "Network related error",
	CategoryNetworkTimeout: "Network operation timeout",
	CategoryNoMatch:        "No recognition result matched",
	CategoryBusy:           "RecognitionServiceBusy",
	CategoryServer:         "Server sends error status",
	CategorySpeechTimeout:  "No speech input",
	CategoryOther:          "ASR error",
}

// Message returns the text spoken to the user for the category
func (c ErrorCategory) Message() string {
	if msg, ok := categoryMessages[c]; ok {
		return msg
	}
	return categoryMessages[CategoryOther]
}

// RecognitionErrorCode is the numeric error reported by a recognition engine.
// Adapters translate their own failures into these codes.
type RecognitionErrorCode int

const (
	RecognitionErrorNetworkTimeout RecognitionErrorCode = iota + 1
	RecognitionErrorNetwork
	RecognitionErrorAudio
	RecognitionErrorServer
	RecognitionErrorClient
	RecognitionErrorSpeechTimeout
	RecognitionErrorNoMatch
	RecognitionErrorBusy
	RecognitionErrorPermissions
)

// CategoryForCode maps an engine code to its category, unknown codes are CategoryOther
func CategoryForCode(code RecognitionErrorCode) ErrorCategory {
	switch code {
	case RecognitionErrorAudio:
		return CategoryAudio
	case RecognitionErrorClient:
		return CategoryClient
	case RecognitionErrorPermissions:
		return CategoryPermissions
	case RecognitionErrorNetwork:
		return CategoryNetwork
	case RecognitionErrorNetworkTimeout:
		return CategoryNetworkTimeout
	case RecognitionErrorNoMatch:
		return CategoryNoMatch
	case RecognitionErrorBusy:
		return CategoryBusy
	case RecognitionErrorServer:
		return CategoryServer
	case RecognitionErrorSpeechTimeout:
		return CategorySpeechTimeout
	default:
		return CategoryOther
	}
}

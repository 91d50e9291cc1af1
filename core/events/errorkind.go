package events

type ErrorKind string

const (
	ErrorKindPermissionDenied ErrorKind = "permission_denied"
	ErrorKindDeviceNotFound   ErrorKind = "device_not_found"
	ErrorKindNetwork          ErrorKind = "network_error"
	ErrorKindASR              ErrorKind = "asr_error"
	ErrorKindLLM              ErrorKind = "llm_error"
	ErrorKindTTS              ErrorKind = "tts_error"
	ErrorKindAudioPlayback    ErrorKind = "audio_playback_error"
	ErrorKindSession          ErrorKind = "session_error"
	ErrorKindUnknown          ErrorKind = "unknown_error"
)

var userMessages = map[ErrorKind]string{
	ErrorKindPermissionDenied: "Microphone access was denied. Allow microphone access in your browser settings and try again.",
	ErrorKindDeviceNotFound:   "No microphone was found. Connect a microphone and try again.",
	ErrorKindNetwork:          "The network connection failed. Check your connection and try again.",
	ErrorKindASR:              "Speech recognition failed. Please try speaking again.",
	ErrorKindLLM:              "The assistant could not generate a reply. Please try again.",
	ErrorKindTTS:              "Speech synthesis failed. Please try again.",
	ErrorKindAudioPlayback:    "Audio playback failed. Check your speakers and try again.",
	ErrorKindSession:          "The conversation session is invalid or has expired. Please start a new conversation.",
	ErrorKindUnknown:          "An unexpected error occurred. Please try again.",
}

func (k ErrorKind) UserMessage() string {
	if msg, ok := userMessages[k]; ok {
		return msg
	}
	return userMessages[ErrorKindUnknown]
}

// RetryAllowed is false for failures the user has to fix outside the
// application.
func (k ErrorKind) RetryAllowed() bool {
	switch k {
	case ErrorKindPermissionDenied, ErrorKindDeviceNotFound:
		return false
	}
	return true
}

func ErrorKinds() []ErrorKind {
	return []ErrorKind{
		ErrorKindPermissionDenied,
		ErrorKindDeviceNotFound,
		ErrorKindNetwork,
		ErrorKindASR,
		ErrorKindLLM,
		ErrorKindTTS,
		ErrorKindAudioPlayback,
		ErrorKindSession,
		ErrorKindUnknown,
	}
}

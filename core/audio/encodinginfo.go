package audio

const (
	DefaultSampleRate = 16000
	DefaultFormat     = EncodingLinear16

	// DefaultSpeechSampleRate is what synthesis adapters report when the
	// upstream does not announce a rate.
	DefaultSpeechSampleRate = 24000
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: DefaultFormat}
}

type EncodingInfo struct {
	SampleRate int
	Format     EncodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// BytesPerSecond of a mono stream, or 0 for container formats.
func (e EncodingInfo) BytesPerSecond() int {
	if size := e.Format.ByteSize(); size > 0 {
		return e.SampleRate * size
	}
	return 0
}

type EncodingFormat string

func (e EncodingFormat) Name() string {
	return string(e)
}

func (e EncodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

// IsContainer reports whether the format carries its own framing and needs
// decoding before it can be treated as raw samples.
func (e EncodingFormat) IsContainer() bool {
	switch e {
	case EncodingWebM, EncodingMP3, EncodingWAV, EncodingOgg:
		return true
	}
	return false
}

const (
	EncodingMulaw    EncodingFormat = "mulaw"
	EncodingALaw     EncodingFormat = "alaw"
	EncodingLinear16 EncodingFormat = "linear16"

	EncodingWebM EncodingFormat = "webm"
	EncodingMP3  EncodingFormat = "mp3"
	EncodingWAV  EncodingFormat = "wav"
	EncodingOgg  EncodingFormat = "ogg"
)

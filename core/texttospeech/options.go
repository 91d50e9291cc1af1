package texttospeech

import "github.com/koscakluka/ema-voice/core/audio"

type SynthesisOptions struct {
	Voice  string
	Speed  *float64
	Volume *float64

	EncodingInfo audio.EncodingInfo
}

type SynthesisOption func(*SynthesisOptions)

func WithVoice(voice string) SynthesisOption {
	return func(o *SynthesisOptions) {
		o.Voice = voice
	}
}

func WithSpeed(speed float64) SynthesisOption {
	return func(o *SynthesisOptions) {
		o.Speed = &speed
	}
}

func WithVolume(volume float64) SynthesisOption {
	return func(o *SynthesisOptions) {
		o.Volume = &volume
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesisOption {
	return func(o *SynthesisOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}

func ApplySynthesisOptions(opts ...SynthesisOption) SynthesisOptions {
	options := SynthesisOptions{
		EncodingInfo: audio.EncodingInfo{
			SampleRate: audio.DefaultSpeechSampleRate,
			Format:     audio.EncodingLinear16,
		},
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

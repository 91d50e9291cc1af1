package deepgram

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/koscakluka/ema-voice/core/audio"
)

// encodingParams returns the query parameters describing the payload. Raw
// formats need explicit encoding and sample rate, containers are detected by
// the upstream.
func encodingParams(encoding audio.EncodingInfo) (url.Values, error) {
	params := url.Values{}
	if encoding.Format.IsContainer() {
		return params, nil
	}

	switch encoding.SampleRate {
	case 8000, 16000, 24000, 32000, 48000:
	default:
		return nil, fmt.Errorf("unsupported sample rate %d", encoding.SampleRate)
	}

	switch encoding.Format {
	case audio.EncodingLinear16:
	case audio.EncodingALaw, audio.EncodingMulaw:
		if encoding.SampleRate != 8000 {
			return nil, fmt.Errorf("unsupported sample rate for %s encoding", encoding.Format)
		}
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding.Format)
	}

	params.Set("encoding", encoding.Format.Name())
	params.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	params.Set("channels", "1")
	return params, nil
}

package zhipu

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"

	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/stream"
	"github.com/koscakluka/ema-voice/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type requestBody struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	EncodeFormat   string  `json:"encode_format"`
	Stream         bool    `json:"stream"`
	Speed          float64 `json:"speed"`
	Volume         float64 `json:"volume"`
}

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReturnSampleRate int    `json:"return_sample_rate"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`

	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) Synthesize(ctx context.Context, text iter.Seq[string], opts ...texttospeech.SynthesisOption) stream.Sequence {
	options := texttospeech.ApplySynthesisOptions(opts...)
	body := requestBody{
		Model:          c.model,
		Voice:          c.voice,
		ResponseFormat: responseFormatPCM,
		EncodeFormat:   encodeFormatBase64,
		Stream:         true,
		Speed:          c.speed,
		Volume:         c.volume,
	}
	if options.Voice != "" {
		body.Voice = options.Voice
	}
	if options.Speed != nil {
		body.Speed = *options.Speed
	}
	if options.Volume != nil {
		body.Volume = *options.Volume
	}

	return func(yield func(stream.Fragment) bool) {
		ctx, span := tracer.Start(ctx, "synthesize speech")
		defer span.End()
		span.SetAttributes(
			attribute.String("request.model", c.model),
			attribute.String("request.voice", body.Voice),
		)

		segments := 0
		for sentence := range texttospeech.Sentences(text) {
			segments++
			body.Input = sentence
			ok, err := c.synthesizeSegment(ctx, body, yield)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				yield(stream.Error(fmt.Errorf("segment %d: %w", segments, err)))
				return
			}
			if !ok {
				return
			}
		}
		span.SetAttributes(attribute.Int("request.segments", segments))

		if err := ctx.Err(); err != nil {
			yield(stream.Error(err))
			return
		}
		yield(stream.End())
	}
}

// synthesizeSegment streams audio for one input. ok is false when the
// consumer stopped iterating.
func (c *Client) synthesizeSegment(ctx context.Context, body requestBody, yield func(stream.Fragment) bool) (ok bool, err error) {
	requestBodyBytes, err := json.Marshal(body)
	if err != nil {
		return false, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/speech", bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return false, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.WarnContext(ctx, "speech request rejected", "status", resp.Status, "body", string(errorBody))
		return false, fmt.Errorf("non-OK HTTP status: %s", resp.Status)
	}

	for msg, err := range stream.ScanSSE(resp.Body) {
		if err != nil {
			return false, err
		}
		if msg.Data == "" {
			continue
		}
		if msg.Data == stream.DoneMarker {
			return true, nil
		}

		var responseBody streamingResponseBody
		if err := json.Unmarshal([]byte(msg.Data), &responseBody); err != nil {
			return false, fmt.Errorf("error unmarshalling JSON: %w", err)
		}
		if responseBody.Error != nil {
			return false, fmt.Errorf("upstream error: %s", responseBody.Error.Message)
		}
		if len(responseBody.Choices) == 0 {
			continue
		}

		choice := responseBody.Choices[0]
		if choice.Delta.Content != "" {
			pcm, err := base64.StdEncoding.DecodeString(choice.Delta.Content)
			if err != nil {
				return false, fmt.Errorf("error decoding audio chunk: %w", err)
			}
			sampleRate := choice.Delta.ReturnSampleRate
			if sampleRate == 0 {
				sampleRate = audio.DefaultSpeechSampleRate
			}
			if !yield(stream.AudioChunk(pcm, sampleRate)) {
				return false, nil
			}
		}
		if choice.FinishReason == "stop" {
			return true, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}
	return true, nil
}

package zhipu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/stream"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type transcriptionChunk struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
	Text  string `json:"text"`

	Segments []struct {
		Text string `json:"text"`
	} `json:"segments"`

	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c transcriptionChunk) texts() []string {
	switch {
	case c.Delta != "":
		return []string{c.Delta}
	case c.Text != "":
		return []string{c.Text}
	}

	var texts []string
	for _, segment := range c.Segments {
		if segment.Text != "" {
			texts = append(texts, segment.Text)
		}
	}
	return texts
}

func (c *Client) Transcribe(ctx context.Context, payload []byte, opts ...speechtotext.TranscriptionOption) stream.Sequence {
	options := speechtotext.ApplyTranscriptionOptions(opts...)

	return func(yield func(stream.Fragment) bool) {
		ctx, span := tracer.Start(ctx, "transcribe utterance")
		defer span.End()
		span.SetAttributes(
			attribute.String("request.model", c.model),
			attribute.Int("request.audio_bytes", len(payload)),
			attribute.String("request.encoding", options.EncodingInfo.Format.Name()),
		)

		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(stream.Error(err))
		}

		payload, format, err := c.prepareAudio(ctx, payload, options.EncodingInfo.Format)
		if err != nil {
			fail(err)
			return
		}

		body, contentType, err := buildMultipart(c.model, payload, format, options.Language)
		if err != nil {
			fail(fmt.Errorf("error building multipart body: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
		if err != nil {
			fail(fmt.Errorf("error creating HTTP request: %w", err))
			return
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			fail(fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			if errorBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
				span.SetAttributes(attribute.String("response.error", string(errorBody)))
			}
			fail(fmt.Errorf("non-OK HTTP status: %s", resp.Status))
			return
		}

		for msg, err := range stream.ScanSSE(resp.Body) {
			if err != nil {
				fail(err)
				return
			}
			if msg.Data == "" {
				continue
			}
			if msg.Data == stream.DoneMarker {
				break
			}

			var chunk transcriptionChunk
			if err := json.Unmarshal([]byte(msg.Data), &chunk); err != nil {
				// Non-JSON keep-alive payloads are ignored.
				logger.DebugContext(ctx, "skipping unparsable transcription chunk", "error", err)
				continue
			}
			if chunk.Error != nil {
				fail(fmt.Errorf("upstream error: %s", chunk.Error.Message))
				return
			}
			for _, text := range chunk.texts() {
				if !yield(stream.TextDelta(text)) {
					return
				}
			}
		}

		if err := ctx.Err(); err != nil {
			fail(err)
			return
		}
		yield(stream.End())
	}
}

func (c *Client) prepareAudio(ctx context.Context, payload []byte, format audio.EncodingFormat) ([]byte, audio.EncodingFormat, error) {
	switch format {
	case audio.EncodingMP3, audio.EncodingWAV:
		return payload, format, nil
	}

	if c.transcoder == nil {
		if format.IsContainer() {
			return nil, "", fmt.Errorf("unsupported audio format %q and no transcoder configured", format)
		}
		return nil, "", fmt.Errorf("raw %q audio requires a transcoder", format)
	}

	converted, err := c.transcoder.Transcode(ctx, payload, audio.EncodingMP3)
	if err != nil {
		return nil, "", fmt.Errorf("error transcoding audio: %w", err)
	}
	return converted, audio.EncodingMP3, nil
}

func buildMultipart(model string, payload []byte, format audio.EncodingFormat, language string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := map[string]string{"model": model, "stream": "true"}
	if language != "" {
		fields["language"] = language
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}

	part, err := writer.CreateFormFile("file", "audio."+format.Name())
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(payload); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return &buf, writer.FormDataContentType(), nil
}

package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/stream"
	"github.com/koscakluka/ema-voice/internal/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (c *Client) Generate(ctx context.Context, history []llms.Message, opts ...llms.GenerateOption) stream.Sequence {
	options := llms.ApplyGenerateOptions(opts...)

	return func(yield func(stream.Fragment) bool) {
		ctx, span := tracer.Start(ctx, "generate llm stream")
		defer span.End()
		span.SetAttributes(
			attribute.String("request.model", c.model),
			attribute.Int("request.history_length", len(history)),
		)

		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(stream.Error(err))
		}

		messages, err := toChatMessages(options.Instructions, history)
		if err != nil {
			fail(fmt.Errorf("error converting messages: %w", err))
			return
		}

		reqBody := requestBody{
			Model:       c.model,
			Messages:    messages,
			Stream:      true,
			Temperature: utils.Ptr(c.temperature),
			MaxTokens:   c.maxTokens,
		}
		if options.Temperature != nil {
			reqBody.Temperature = options.Temperature
		}
		if options.MaxTokens != nil {
			reqBody.MaxTokens = options.MaxTokens
		}

		requestBodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			fail(fmt.Errorf("error marshalling JSON: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			fail(fmt.Errorf("error creating HTTP request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		span.SetAttributes(attribute.String("request.url", req.URL.String()))

		requestStart := time.Now()
		span.AddEvent("request started")
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

		firstToken := true
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

			var responseBody streamingResponseBody
			if err := json.Unmarshal([]byte(msg.Data), &responseBody); err != nil {
				fail(fmt.Errorf("error unmarshalling JSON: %w", err))
				return
			}
			if responseBody.Error != nil {
				fail(fmt.Errorf("upstream error: %s", responseBody.Error.Message))
				return
			}
			if len(responseBody.Choices) == 0 {
				continue
			}

			content := responseBody.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			if firstToken {
				firstToken = false
				recordFirstToken(span, requestStart)
			}
			if !yield(stream.TextDelta(content)) {
				logger.DebugContext(ctx, "llm stream abandoned by consumer")
				return
			}
		}

		if err := ctx.Err(); err != nil {
			fail(err)
			return
		}
		yield(stream.End())
	}
}

func recordFirstToken(span trace.Span, requestStart time.Time) {
	span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestStart).Seconds()))
	span.AddEvent("received first chunk")
}

package openai

import (
	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-voice/core/llms"
)

type chatMessage struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

func toChatMessages(instructions string, history []llms.Message) ([]chatMessage, error) {
	messages := []chatMessage{}
	if instructions != "" {
		messages = append(messages, chatMessage{Role: messageRoleSystem, Content: instructions})
	}

	var converted []chatMessage
	if err := copier.Copy(&converted, &history); err != nil {
		return nil, err
	}

	for _, msg := range converted {
		if msg.Content == "" {
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

type requestBody struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`

	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

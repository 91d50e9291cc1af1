package llms

type GenerateOptions struct {
	// Instructions are prepended to the conversation as a system message.
	Instructions string

	Temperature *float64
	MaxTokens   *int
}

type GenerateOption func(*GenerateOptions)

func WithInstructions(instructions string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Instructions = instructions
	}
}

func WithTemperature(temperature float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = &temperature
	}
}

func WithMaxTokens(maxTokens int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = &maxTokens
	}
}

func ApplyGenerateOptions(opts ...GenerateOption) GenerateOptions {
	options := GenerateOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

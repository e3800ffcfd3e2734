package provider

// AnthropicFactory constructs AnthropicProvider instances for a configured endpoint/key.
type AnthropicFactory struct {
	name     string
	endpoint string
	apiKey   string
}

func NewAnthropicFactory(name, endpoint, apiKey string) *AnthropicFactory {
	return &AnthropicFactory{name: name, endpoint: endpoint, apiKey: apiKey}
}

func (f *AnthropicFactory) Name() string { return f.name }

func (f *AnthropicFactory) Create(model string, opts Options) Provider {
	endpoint := f.endpoint
	if opts.Endpoint != "" {
		endpoint = opts.Endpoint
	}
	key := f.apiKey
	if opts.APIKey != "" {
		key = opts.APIKey
	}
	return NewAnthropic(model, endpoint, key)
}

// OpenAIFactory constructs OpenAIProvider instances (also serves
// OpenAI-compatible endpoints: vLLM, Ollama's OpenAI shim).
type OpenAIFactory struct {
	name     string
	endpoint string
	apiKey   string
}

func NewOpenAIFactory(name, endpoint, apiKey string) *OpenAIFactory {
	return &OpenAIFactory{name: name, endpoint: endpoint, apiKey: apiKey}
}

func (f *OpenAIFactory) Name() string { return f.name }

func (f *OpenAIFactory) Create(model string, opts Options) Provider {
	endpoint := f.endpoint
	if opts.Endpoint != "" {
		endpoint = opts.Endpoint
	}
	key := f.apiKey
	if opts.APIKey != "" {
		key = opts.APIKey
	}
	return NewOpenAI(model, endpoint, key)
}

// GoogleFactory constructs GoogleProvider instances.
type GoogleFactory struct {
	name     string
	endpoint string
	apiKey   string
}

func NewGoogleFactory(name, endpoint, apiKey string) *GoogleFactory {
	return &GoogleFactory{name: name, endpoint: endpoint, apiKey: apiKey}
}

func (f *GoogleFactory) Name() string { return f.name }

func (f *GoogleFactory) Create(model string, opts Options) Provider {
	endpoint := f.endpoint
	if opts.Endpoint != "" {
		endpoint = opts.Endpoint
	}
	key := f.apiKey
	if opts.APIKey != "" {
		key = opts.APIKey
	}
	return NewGoogle(model, endpoint, key)
}

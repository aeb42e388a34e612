package llm

// DefaultMaxTokens caps replies when the caller sets no max_tokens.
const DefaultMaxTokens = 1024

// requestOptions are the generic options every provider understands.
type requestOptions struct {
	model       string
	maxTokens   int
	temperature *float64
	system      string
}

// parseOptions reads model, max_tokens, temperature and system from opts.
// Values of the wrong type or out of range are ignored.
func parseOptions(opts map[string]any, model string) requestOptions {
	o := requestOptions{model: model, maxTokens: DefaultMaxTokens}
	if m, ok := opts["model"].(string); ok && m != "" {
		o.model = m
	}
	switch v := opts["max_tokens"].(type) {
	case int:
		if v > 0 {
			o.maxTokens = v
		}
	case int64:
		if v > 0 {
			o.maxTokens = int(v)
		}
	}
	var temp float64
	switch v := opts["temperature"].(type) {
	case float64:
		temp = v
	case float32:
		temp = float64(v)
	case int:
		temp = float64(v)
	default:
		temp = -1
	}
	if temp >= 0 && temp <= 2 {
		o.temperature = &temp
	}
	if s, ok := opts["system"].(string); ok {
		o.system = s
	}
	return o
}

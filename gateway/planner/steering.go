package planner

// OpenAIToolChoice renders Steering as the OpenAI-family tool_choice value:
// "auto", "none", or {"type":"function","function":{"name":...}}. Used by
// OpenAI, Azure, xAI, DeepSeek, Groq, and Cerebras (the latter two only ever
// see ModeAuto/ModeNone since force is downgraded before planning reaches
// here).
func OpenAIToolChoice(s Steering) interface{} {
	switch s.Mode {
	case ModeNone:
		return "none"
	case ModeForceOne:
		return map[string]interface{}{
			"type":     "function",
			"function": map[string]interface{}{"name": s.Name},
		}
	default:
		return "auto"
	}
}

// AnthropicToolChoice renders Steering as Anthropic's tool_choice value. It
// returns (value, omit) — when omit is true, the caller must leave the
// tool_choice parameter off the request entirely rather than sending
// "none", which Anthropic rejects.
func AnthropicToolChoice(s Steering) (interface{}, bool) {
	switch s.Mode {
	case ModeNone:
		return nil, true
	case ModeForceOne:
		return map[string]interface{}{"type": "tool", "name": s.Name}, false
	default:
		return map[string]interface{}{"type": "auto"}, false
	}
}

// GeminiToolConfig renders Steering as Gemini's
// toolConfig.functionCallingConfig shape: mode AUTO/ANY/NONE plus an
// optional allowedFunctionNames list.
func GeminiToolConfig(s Steering) map[string]interface{} {
	cfg := map[string]interface{}{}
	switch s.Mode {
	case ModeNone:
		cfg["mode"] = "NONE"
	case ModeForceOne:
		cfg["mode"] = "ANY"
		cfg["allowedFunctionNames"] = []string{s.Name}
	default:
		cfg["mode"] = "AUTO"
	}
	return map[string]interface{}{"functionCallingConfig": cfg}
}

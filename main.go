package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/taipm/llmgateway/gateway"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	ctx := context.Background()
	if os.Getenv("OPENAI_API_KEY") == "" {
		log.Fatal("OPENAI_API_KEY environment variable is required")
	}

	gw := gateway.New(gateway.WithExecuteTool(builtinTools))

	// Example 1: Simple Chat
	fmt.Println("=== Example 1: Simple Chat ===")
	resp, err := ask(ctx, gw, "openai", gateway.Request{
		Model:    "gpt-4o-mini",
		Messages: []gateway.Message{{Role: gateway.TurnUser, Content: "What is the capital of Vietnam?"}},
	})
	if err != nil {
		log.Printf("Error: %v", err)
	} else {
		fmt.Printf("Response: %s\n\n", resp.Content)
	}

	// Example 2: System Prompt & Temperature
	fmt.Println("=== Example 2: System Prompt & Temperature ===")
	temp := 0.7
	resp, err = ask(ctx, gw, "openai", gateway.Request{
		Model:        "gpt-4o-mini",
		SystemPrompt: "You are a helpful assistant that explains concepts in simple terms.",
		Temperature:  &temp,
		Messages:     []gateway.Message{{Role: gateway.TurnUser, Content: "Explain quantum computing"}},
	})
	if err != nil {
		log.Printf("Error: %v", err)
	} else {
		fmt.Printf("Response: %s\n\n", resp.Content)
	}

	// Example 3: Streaming
	fmt.Println("=== Example 3: Streaming ===")
	fmt.Print("Streaming: ")
	execution, err := streamAsk(ctx, gw, "openai", gateway.Request{
		Model:    "gpt-4o-mini",
		Stream:   true,
		Messages: []gateway.Message{{Role: gateway.TurnUser, Content: "Write a haiku about AI"}},
	})
	if err != nil {
		log.Printf("Error: %v", err)
	} else {
		io.Copy(os.Stdout, execution.Stream)
		fmt.Printf("\nComplete response: %s\n\n", execution.Execution.Content)
	}

	// Example 4: Multi-turn conversation
	fmt.Println("=== Example 4: Conversation History ===")
	history := []gateway.Message{
		{Role: gateway.TurnUser, Content: "My name is John and I'm from Vietnam"},
	}
	resp, err = ask(ctx, gw, "openai", gateway.Request{Model: "gpt-4o-mini", Messages: history})
	if err != nil {
		log.Printf("Error: %v", err)
	} else {
		fmt.Printf("Response: %s\n", resp.Content)
		history = append(history, gateway.Message{Role: gateway.TurnAssistant, Content: resp.Content})
	}
	history = append(history, gateway.Message{Role: gateway.TurnUser, Content: "What's my name and where am I from?"})
	resp, err = ask(ctx, gw, "openai", gateway.Request{Model: "gpt-4o-mini", Messages: history})
	if err != nil {
		log.Printf("Error: %v", err)
	} else {
		fmt.Printf("Follow-up Response: %s\n\n", resp.Content)
	}

	// Example 5: Forced Tool Calling
	fmt.Println("=== Example 5: Tool Calling ===")
	weatherTool := gateway.Tool{
		ID:          "get_weather",
		Description: "Get the current weather for a location",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"location": map[string]interface{}{"type": "string", "description": "The city name"},
				"units":    map[string]interface{}{"type": "string", "description": "celsius or fahrenheit"},
			},
			"required": []string{"location"},
		},
		UsageControl: gateway.UsageForce,
	}
	resp, err = ask(ctx, gw, "openai", gateway.Request{
		Model:    "gpt-4o-mini",
		Tools:    []gateway.Tool{weatherTool},
		Messages: []gateway.Message{{Role: gateway.TurnUser, Content: "What's the weather like in Hanoi?"}},
	})
	if err != nil {
		log.Printf("Error: %v", err)
	} else {
		fmt.Printf("Response: %s\n\n", resp.Content)
	}

	// Example 6: Structured Outputs via native JSON Schema
	fmt.Println("=== Example 6: Structured Outputs ===")
	personSchema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string", "description": "The person's name"},
			"age":  map[string]interface{}{"type": "integer", "description": "The person's age"},
		},
		"required":             []string{"name", "age"},
		"additionalProperties": false,
	}
	resp, err = ask(ctx, gw, "openai", gateway.Request{
		Model:          "gpt-4o-mini",
		ResponseFormat: &gateway.ResponseFormat{Schema: personSchema},
		Messages:       []gateway.Message{{Role: gateway.TurnUser, Content: "Extract info: John is 25 years old"}},
	})
	if err != nil {
		log.Printf("Error: %v", err)
	} else {
		fmt.Printf("Structured Response: %s\n\n", resp.Content)
	}

	// Example 7: Anthropic, tools + structured output deferred to the final call
	fmt.Println("=== Example 7: Anthropic Tools + Structured Output ===")
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		resp, err = ask(ctx, gw, "anthropic", gateway.Request{
			Model:          "claude-sonnet-4-5",
			Tools:          []gateway.Tool{weatherTool},
			ResponseFormat: &gateway.ResponseFormat{Schema: personSchema},
			Messages:       []gateway.Message{{Role: gateway.TurnUser, Content: "Look up Hanoi weather, then summarize as JSON"}},
		})
		if err != nil {
			log.Printf("Error: %v", err)
		} else {
			fmt.Printf("Response: %s\n\n", resp.Content)
		}
	} else {
		fmt.Println("skipped: ANTHROPIC_API_KEY not set")
	}

	// Example 8: Production-Ready Configuration
	fmt.Println("=== Example 8: Production Configuration ===")
	resp, err = ask(ctx, gw, "openai", gateway.Request{
		Model:        "gpt-4o-mini",
		SystemPrompt: "You are a helpful assistant",
		Temperature:  &temp,
		MaxTokens:    500,
		Messages:     []gateway.Message{{Role: gateway.TurnUser, Content: "Explain the benefits of Go programming language"}},
	})
	if err != nil {
		if gateway.IsMissingCredential(err) {
			log.Printf("Missing credential: %v", err)
		} else if gateway.IsIterationCap(err) {
			log.Printf("Tool loop did not converge: %v", err)
		} else {
			log.Printf("Error: %v", err)
		}
	} else {
		fmt.Printf("Response: %s\n\n", resp.Content)
	}

	fmt.Println("=== All Examples Complete ===")
}

// ask drives a non-streaming request and asserts the concrete *gateway.Response
// shape; ExecuteProviderRequest returns interface{} because a streaming
// request returns *gateway.StreamingExecution instead.
func ask(ctx context.Context, gw *gateway.Gateway, provider string, req gateway.Request) (*gateway.Response, error) {
	result, err := gw.ExecuteProviderRequest(ctx, provider, req)
	if err != nil {
		return nil, err
	}
	return result.(*gateway.Response), nil
}

func streamAsk(ctx context.Context, gw *gateway.Gateway, provider string, req gateway.Request) (*gateway.StreamingExecution, error) {
	result, err := gw.ExecuteProviderRequest(ctx, provider, req)
	if err != nil {
		return nil, err
	}
	return result.(*gateway.StreamingExecution), nil
}

// builtinTools is a tiny local ExecuteTool for the examples above; a real
// deployment wires this to its own tool registry (spec §6 keeps tool
// execution external to the gateway).
func builtinTools(ctx context.Context, name string, params map[string]interface{}, moderated bool) (gateway.ToolResult, error) {
	switch name {
	case "get_weather":
		location, _ := params["location"].(string)
		time.Sleep(10 * time.Millisecond)
		return gateway.ToolResult{Success: true, Output: fmt.Sprintf("The weather in %s is sunny, 25°C", location)}, nil
	default:
		return gateway.ToolResult{Success: false, Error: "unknown tool: " + name}, nil
	}
}

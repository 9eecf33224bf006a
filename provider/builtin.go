package provider

import (
	"os"

	"github.com/nachoal/kitgpt-go/llm"
	"github.com/nachoal/kitgpt-go/llm/anthropic"
	"github.com/nachoal/kitgpt-go/llm/google"
	"github.com/nachoal/kitgpt-go/llm/openai"
)

// Provider keys
const (
	OpenAI    = "openai.chat"
	Anthropic = "anthropic.messages"
	Google    = "google.generative-ai"
	Mistral   = "mistral.chat"
	Groq      = "groq.chat"
	DeepSeek  = "deepseek.chat"
	Ollama    = "ollama.chat"
)

// Builtin returns the descriptors of the providers shipped with kitgpt
func Builtin() []Descriptor {
	return []Descriptor{
		{
			Key:  OpenAI,
			Name: "OpenAI",
			KnownModels: []string{
				"gpt-4o",
				"gpt-4o-2024-05-13",
				"gpt-4-turbo",
				"gpt-4-turbo-2024-04-09",
				"gpt-4-turbo-preview",
				"gpt-4-0125-preview",
				"gpt-4-1106-preview",
				"gpt-4-vision-preview",
				"gpt-4",
				"gpt-4-0613",
				"gpt-4-32k",
				"gpt-4-32k-0613",
				"gpt-3.5-turbo-0125",
				"gpt-3.5-turbo",
				"gpt-3.5-turbo-1106",
				"gpt-3.5-turbo-16k",
				"gpt-3.5-turbo-0613",
				"gpt-3.5-turbo-16k-0613",
			},
			EnvVar:   "OPENAI_API_KEY",
			KeyHint:  "Grab a key from https://platform.openai.com/account/api-keys",
			UsageURL: "https://platform.openai.com/usage",
			Factory:  openAICompatible("OpenAI", ""),
		},
		{
			Key:         Anthropic,
			Name:        "Anthropic",
			KnownModels: []string{"claude-3-opus-20240229", "claude-3-sonnet-20240229", "claude-3-haiku-20240307"},
			EnvVar:      "ANTHROPIC_API_KEY",
			KeyHint:     "Grab a key from https://console.anthropic.com/settings/keys",
			Factory: func(modelID, apiKey string) (llm.Client, error) {
				return anthropic.NewClient(llm.WithAPIKey(apiKey), llm.WithModel(modelID))
			},
		},
		{
			Key:  Google,
			Name: "Google",
			KnownModels: []string{
				"models/gemini-1.5-flash-latest",
				"models/gemini-1.5-pro-latest",
				"models/gemini-pro",
				"models/gemini-pro-vision",
			},
			EnvVar:   "GOOGLE_GENERATIVE_AI_API_KEY",
			KeyHint:  "Grab a key from https://aistudio.google.com/app/apikey",
			UsageURL: "https://aistudio.google.com/app/plan_information",
			Factory: func(modelID, apiKey string) (llm.Client, error) {
				return google.NewClient(
					llm.WithAPIKey(apiKey),
					llm.WithModel(modelID),
					llm.WithProviderName("Google"),
				)
			},
		},
		{
			Key:  Mistral,
			Name: "Mistral",
			KnownModels: []string{
				"open-mistral-7b",
				"open-mixtral-8x7b",
				"open-mixtral-8x22b",
				"mistral-small-latest",
				"mistral-medium-latest",
				"mistral-large-latest",
			},
			EnvVar:  "MISTRAL_API_KEY",
			KeyHint: "Grab a key from https://console.mistral.ai/api-keys/",
			Factory: openAICompatible("Mistral", "https://api.mistral.ai/v1"),
		},
		{
			Key:         Groq,
			Name:        "Groq",
			KnownModels: []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant", "mixtral-8x7b-32768"},
			EnvVar:      "GROQ_API_KEY",
			KeyHint:     "Grab a key from https://console.groq.com/keys",
			UsageURL:    "https://console.groq.com/settings/usage",
			Factory:     openAICompatible("Groq", "https://api.groq.com/openai/v1"),
		},
		{
			Key:         DeepSeek,
			Name:        "DeepSeek",
			KnownModels: []string{"deepseek-chat", "deepseek-reasoner"},
			EnvVar:      "DEEPSEEK_API_KEY",
			KeyHint:     "Grab a key from https://platform.deepseek.com/api_keys",
			UsageURL:    "https://platform.deepseek.com/usage",
			Factory:     openAICompatible("DeepSeek", "https://api.deepseek.com/v1"),
		},
		{
			Key:         Ollama,
			Name:        "Ollama",
			KnownModels: []string{"llama3.2", "qwen2.5", "mistral"},
			Factory: func(modelID, _ string) (llm.Client, error) {
				base := os.Getenv("OLLAMA_BASE_URL")
				if base == "" {
					base = "http://localhost:11434/v1"
				}
				return openai.NewClient(
					llm.WithBaseURL(base),
					llm.WithModel(modelID),
					llm.WithProviderName("Ollama"),
				)
			},
		},
	}
}

func openAICompatible(name, baseURL string) Factory {
	return func(modelID, apiKey string) (llm.Client, error) {
		opts := []llm.ClientOption{
			llm.WithAPIKey(apiKey),
			llm.WithModel(modelID),
			llm.WithProviderName(name),
		}
		if baseURL != "" {
			opts = append(opts, llm.WithBaseURL(baseURL))
		}
		return openai.NewClient(opts...)
	}
}

// Package ai defines the embedding provider contract used by the sync
// engine, along with provider configuration. Concrete implementations
// live in subpackages: openai (OpenAI-compatible APIs via langchaingo)
// and mock (deterministic vectors for tests and offline use).
package ai

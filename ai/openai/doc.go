// Package openai provides an ai.EmbeddingProvider backed by any
// OpenAI-compatible embeddings endpoint, via langchaingo.
package openai

// Package llm wraps the OpenAI-compatible chat completion API used to convert
// legacy character text into card JSON. It supports a blocking JSON completion
// and a streaming variant that surfaces delta fragments as they arrive, with
// retry/backoff on transient transport failures.
package llm

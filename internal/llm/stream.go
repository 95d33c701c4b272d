package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const streamDoneMarker = "[DONE]"

type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// StreamJSON issues a streaming JSON completion and invokes onFragment for
// every non-empty delta as it arrives. The returned Result carries the
// concatenated content and the usage from the final event. Connection and
// retryable status failures are retried until the first fragment has been
// delivered; after that any error is terminal so subscribers never observe a
// replayed prefix.
func (c *Client) StreamJSON(ctx context.Context, systemPrompt, userPrompt string, onFragment func(string)) (Result, error) {
	var empty Result
	payload, err := c.buildRequest(systemPrompt, userPrompt, true)
	if err != nil {
		return empty, err
	}

	attempts := c.retryAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, delivered, err := c.streamOnce(ctx, payload, onFragment)
		if err == nil {
			return result, nil
		}
		if delivered {
			return empty, err
		}
		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return empty, err
		}
		if err := c.sleep(ctx, delay); err != nil {
			return empty, err
		}
		lastErr = err
	}
	return empty, fmt.Errorf("model stream: failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) streamOnce(ctx context.Context, payload chatRequest, onFragment func(string)) (Result, bool, error) {
	var empty Result
	resp, err := c.do(ctx, c.streamClient, payload)
	if err != nil {
		return empty, false, err
	}
	defer resp.Body.Close()

	var content strings.Builder
	var usage Usage
	delivered := false
	done := false

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == streamDoneMarker {
			done = true
			break
		}
		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return empty, delivered, fmt.Errorf("model stream: decode event: %w", err)
		}
		if event.Error != nil {
			return empty, delivered, fmt.Errorf("model stream: api error: %s", strings.TrimSpace(event.Error.Message))
		}
		if event.Usage != nil {
			usage = *event.Usage
		}
		for _, choice := range event.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			delivered = true
			content.WriteString(choice.Delta.Content)
			if onFragment != nil {
				onFragment(choice.Delta.Content)
			}
		}
		if ctx.Err() != nil {
			return empty, delivered, ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return empty, delivered, ctx.Err()
		}
		return empty, delivered, fmt.Errorf("model stream: read events: %w", err)
	}
	if !done && ctx.Err() != nil {
		return empty, delivered, ctx.Err()
	}
	if content.Len() == 0 {
		return empty, delivered, fmt.Errorf("model stream: no content before stream end")
	}
	return Result{Content: content.String(), Usage: usage}, true, nil
}

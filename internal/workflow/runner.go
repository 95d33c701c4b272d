package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cardforge/internal/cards"
	"cardforge/internal/jobs"
	"cardforge/internal/llm"
	"cardforge/internal/logging"
	"cardforge/internal/png"
	"cardforge/internal/stream"
)

// runJob drives one job from pending to a terminal state. The deferred
// cleanup guarantees the record reaches completed or failed and the hub is
// sealed and unregistered, even on panic.
func (m *Manager) runJob(id string, hub *stream.Broadcaster) {
	defer m.wg.Done()

	var runErr error
	var failKind string
	done := false

	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("worker panic: %v", r)
			failKind = jobs.FailKindModelInvocation
			m.logger.Error("worker panicked",
				logging.String(logging.FieldJobID, id),
				logging.Any("panic", r))
		}
		m.finishJob(id, hub, done, failKind, runErr)
	}()

	if err := m.slots.Acquire(m.baseCtx, 1); err != nil {
		runErr = errors.New("daemon stopping before job started")
		failKind = jobs.FailKindInterrupted
		return
	}
	defer m.slots.Release(1)

	ctx, cancel := context.WithTimeout(m.baseCtx, m.jobTimeout())
	defer cancel()

	if _, err := m.store.MarkRunning(ctx, id); err != nil {
		runErr = fmt.Errorf("mark running: %w", err)
		failKind = jobs.FailKindInterrupted
		return
	}

	result, err := m.invokeModel(ctx, id, hub)
	if err != nil {
		runErr = err
		failKind = failKindForError(err)
		return
	}

	document, err := m.assembleCard(result.Content)
	if err != nil {
		runErr = err
		failKind = jobs.FailKindCardAssembly
		return
	}

	image, err := m.renderImage(id, document)
	if err != nil {
		runErr = err
		failKind = failKindForError(err)
		if !errors.Is(err, png.ErrMalformedImage) {
			failKind = jobs.FailKindCardAssembly
		}
		return
	}

	usage := jobs.TokenUsage{
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		TotalTokens:      result.Usage.TotalTokens,
	}
	if _, err := m.store.Complete(ctx, id, result.Content, document, image, usage); err != nil {
		runErr = fmt.Errorf("persist result: %w", err)
		failKind = jobs.FailKindCardAssembly
		return
	}
	done = true
}

// invokeModel runs the conversion call, mirroring every fragment to the
// stream log and the hub as it arrives.
func (m *Manager) invokeModel(ctx context.Context, id string, hub *stream.Broadcaster) (llm.Result, error) {
	input, err := m.store.ReadInput(id)
	if err != nil {
		return llm.Result{}, fmt.Errorf("read input: %w", err)
	}
	system := cards.SystemPrompt
	user := cards.UserPrompt(input)

	if !m.cfg.LLM.Stream {
		result, err := m.model.CompleteJSON(ctx, system, user)
		if err != nil {
			return llm.Result{}, err
		}
		// Blocking mode still feeds subscribers, as one fragment.
		if appendErr := m.store.AppendStream(id, result.Content); appendErr != nil {
			m.logger.Warn("stream log append failed",
				logging.String(logging.FieldJobID, id),
				logging.Error(appendErr))
		}
		hub.Append(result.Content)
		return result, nil
	}

	return m.model.StreamJSON(ctx, system, user, func(fragment string) {
		if err := m.store.AppendStream(id, fragment); err != nil {
			m.logger.Warn("stream log append failed",
				logging.String(logging.FieldJobID, id),
				logging.Error(err))
		}
		hub.Append(fragment)
	})
}

// assembleCard decodes, validates, and exports the model output.
func (m *Manager) assembleCard(raw string) ([]byte, error) {
	var card cards.Card
	if err := llm.DecodeModelJSON(raw, &card); err != nil {
		return nil, fmt.Errorf("%w: decode model output: %v", cards.ErrInvalidCard, err)
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}
	payload := card.ExportPayload(time.Now())
	document, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: encode export: %v", cards.ErrInvalidCard, err)
	}
	return document, nil
}

// renderImage embeds the document into the job's base image, or the bundled
// default when none was uploaded.
func (m *Manager) renderImage(id string, document []byte) ([]byte, error) {
	base, ok, err := m.store.ReadBaseImage(id)
	if err != nil {
		return nil, fmt.Errorf("read base image: %w", err)
	}
	if !ok {
		base = m.defaultImage
	}
	return png.EmbedCard(base, document)
}

// finishJob persists the terminal state, then seals and unregisters the hub.
// Meta lands on disk before the hub closes so a subscriber released by the
// terminal marker always reads the final record.
func (m *Manager) finishJob(id string, hub *stream.Broadcaster, done bool, failKind string, runErr error) {
	status := jobs.StatusCompleted
	errMsg := ""
	if !done {
		status = jobs.StatusFailed
		if failKind == "" {
			failKind = jobs.FailKindModelInvocation
		}
		errMsg = failMessage(runErr)
		if _, err := m.store.Fail(context.Background(), id, failKind, errMsg); err != nil && !errors.Is(err, jobs.ErrInvalidTransition) {
			m.logger.Error("failed to persist job failure",
				logging.String(logging.FieldJobID, id),
				logging.Error(err))
		}
		m.logger.Warn("job failed",
			logging.String(logging.FieldJobID, id),
			logging.String("kind", failKind),
			logging.String("reason", errMsg))
	} else {
		m.logger.Info("job completed", logging.String(logging.FieldJobID, id))
	}

	hub.CloseWith(string(status), errMsg)
	m.mu.Lock()
	delete(m.hubs, id)
	m.mu.Unlock()

	if _, err := m.collector.Sweep(context.Background()); err != nil {
		m.logger.Warn("retention sweep failed", logging.Error(err))
	}
}

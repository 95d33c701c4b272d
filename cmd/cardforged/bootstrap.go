package main

import (
	"cardforge/internal/config"
	"cardforge/internal/llm"
	"cardforge/internal/workflow"
)

func buildModel(cfg *config.Config) workflow.CardModel {
	if cfg == nil {
		return llm.NewClient(llm.Config{})
	}
	return llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		Retries:        cfg.LLM.Retries,
	})
}

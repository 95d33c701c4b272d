package main

import (
	"testing"

	"cardforge/internal/config"
)

func TestBuildModel(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = "test-key"
	cfg.LLM.Model = "gpt-4o-mini"

	if model := buildModel(cfg); model == nil {
		t.Fatal("expected a model client")
	}
	if model := buildModel(nil); model == nil {
		t.Fatal("expected a model client for nil config")
	}
}

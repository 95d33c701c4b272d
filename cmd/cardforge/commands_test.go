package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestJobsListRendersTable(t *testing.T) {
	server := newStubServer(t)
	out, _, err := runCLI(t, []string{"jobs"}, server.URL)
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	requireContains(t, out, "aabbccddeeff")
	requireContains(t, out, "Completed")
	requireContains(t, out, "Pending")
	requireContains(t, out, "30")
}

func TestJobsListJSON(t *testing.T) {
	server := newStubServer(t)
	out, _, err := runCLI(t, []string{"jobs", "--json"}, server.URL)
	if err != nil {
		t.Fatalf("jobs --json: %v", err)
	}
	requireContains(t, out, `"jobs"`)
	requireContains(t, out, `"aabbccddeeff00112233445566778899"`)
}

func TestShowCommand(t *testing.T) {
	server := newStubServer(t)
	out, _, err := runCLI(t, []string{"show", "aabbccddeeff00112233445566778899", "--with-stream"}, server.URL)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "Status:    Completed")
	requireContains(t, out, "30 total")
	requireContains(t, out, `{"name":"Eve"}`)
}

func TestShowUnknownJobFails(t *testing.T) {
	server := newStubServer(t)
	_, _, err := runCLI(t, []string{"show", "missing"}, server.URL)
	if err == nil || !strings.Contains(err.Error(), "job not found") {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestCreateFromFile(t *testing.T) {
	server := newStubServer(t)
	inputPath := filepath.Join(t.TempDir(), "eve.txt")
	if err := os.WriteFile(inputPath, []byte("Name: Eve"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	out, _, err := runCLI(t, []string{"create", inputPath}, server.URL)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	requireContains(t, out, "accepted")
}

func TestStreamCommand(t *testing.T) {
	server := newStubServer(t)
	out, _, err := runCLI(t, []string{"stream", "aabbccddeeff00112233445566778899"}, server.URL)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	requireContains(t, out, `{"name":"Eve"}`)
	requireContains(t, out, "completed")
}

func TestDownloadWritesArtifacts(t *testing.T) {
	server := newStubServer(t)
	dir := t.TempDir()
	id := "aabbccddeeff00112233445566778899"
	out, _, err := runCLI(t, []string{"download", id, "--output", dir}, server.URL)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	requireContains(t, out, id+".json")
	requireContains(t, out, id+".png")

	doc, err := os.ReadFile(filepath.Join(dir, id+".json"))
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	requireContains(t, string(doc), "chara_card_v3")
	if _, err := os.Stat(filepath.Join(dir, id+".png")); err != nil {
		t.Fatalf("expected card image: %v", err)
	}
}

func TestDownloadFlagConflict(t *testing.T) {
	server := newStubServer(t)
	_, _, err := runCLI(t, []string{"download", "any", "--image-only", "--result-only"}, server.URL)
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("expected flag conflict error, got %v", err)
	}
}

func TestStatusCommand(t *testing.T) {
	server := newStubServer(t)
	out, _, err := runCLI(t, []string{"status"}, server.URL)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "[OK] pid 4242")
	requireContains(t, out, "Completed")
	requireContains(t, out, "Total")
}

func TestConfigInitAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	out, _, err = runCLI(t, []string{"config", "validate", "--file", target}, "")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err != nil {
		t.Fatalf("config init: %v", err)
	}
	_, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected overwrite refusal, got %v", err)
	}
}

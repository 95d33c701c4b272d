package main

import (
	"fmt"
	"strings"
	"time"

	"cardforge/internal/api"
)

func buildJobRows(items []api.Job) [][]string {
	if len(items) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			shortID(item.ID),
			formatStatusLabel(item.Status),
			item.Model,
			formatDisplayTime(item.CreatedAt),
			formatTokens(item.TokenUsage),
		})
	}
	return rows
}

func shortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	return value
}

func formatTokens(usage *api.TokenUsage) string {
	if usage == nil {
		return "-"
	}
	return fmt.Sprintf("%d", usage.TotalTokens)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

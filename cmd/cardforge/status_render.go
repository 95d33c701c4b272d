package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	statusIndent     = "  "
	statusLabelWidth = 16

	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

var statusKindNames = map[statusKind]string{
	statusOK:    "OK",
	statusWarn:  "WARN",
	statusError: "ERROR",
	statusInfo:  "INFO",
}

var statusKindColors = map[statusKind]string{
	statusOK:    ansiGreen,
	statusWarn:  ansiYellow,
	statusError: ansiRed,
	statusInfo:  ansiBlue,
}

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	tag := "[" + statusKindNames[kind] + "]"
	if message != "" {
		tag += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", tag)
	if !colorize {
		return line
	}
	color, ok := statusKindColors[kind]
	if !ok {
		return line
	}
	return color + line + ansiReset
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if !colorize {
		return []string{line, rule}
	}
	return []string{ansiBlue + line + ansiReset, ansiBlue + rule + ansiReset}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

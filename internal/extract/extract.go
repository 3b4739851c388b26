// Package extract turns a raw switch configuration dump into the command
// block the switch accepts over its console.
package extract

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// StartMarker opens the block that gets uploaded.
	StartMarker = "/c/sys/access"
	// EndMarker closes it. The line is part of the block.
	EndMarker = "/"
	// CommentPrefix marks lines that are never captured.
	CommentPrefix = "/*"
)

// Lines returns the inclusive slice of raw between the first start marker
// and the first end marker that follows it. Matching is done on the trimmed
// line, the untrimmed line is what gets returned. Comment lines are dropped
// wherever they appear. A dump without a start marker yields nil.
func Lines(raw []string) []string {
	var out []string
	capturing := false

	for _, line := range raw {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, CommentPrefix) {
			continue
		}

		if !capturing {
			if trimmed != StartMarker {
				continue
			}
			capturing = true
		}

		out = append(out, line)

		// The start marker itself can never be the end marker, so this
		// only fires on a later line.
		if trimmed == EndMarker {
			break
		}
	}

	return out
}

// ReadLines reads path as line-oriented text. Line terminators (LF or CRLF)
// are stripped.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return lines, nil
}

// File reads path and extracts its command block.
func File(path string) ([]string, error) {
	raw, err := ReadLines(path)
	if err != nil {
		return nil, err
	}
	return Lines(raw), nil
}

// WriteFile writes lines to path, one per line, LF terminated.
func WriteFile(path string, lines []string) error {
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// CleanedName maps a raw dump path to the path of its cleaned .cfg file.
func CleanedName(path string) string {
	ext := filepath.Ext(path)
	if ext == ".cfg" {
		return strings.TrimSuffix(path, ext) + ".clean.cfg"
	}
	return strings.TrimSuffix(path, ext) + ".cfg"
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bridge

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
)

// GenerateDiff builds a ProposedChange from the before/after content of one
// FileChange, for rendering to the editor and for the checkpoint store's
// file-snapshot diffing. It unifies the two texts with go-diff's unified
// format and parses the result straight back into Hunks, so generation and
// parsing share one wire representation.
func GenerateDiff(filePath, oldContent, newContent, rationale string) (*ProposedChange, error) {
	change := &ProposedChange{
		FilePath:  filePath,
		Language:  detectLanguage(filePath),
		IsNew:     oldContent == "",
		IsDelete:  newContent == "",
		Rationale: rationale,
	}

	unified := unifiedDiffText(filePath, oldContent, newContent)
	hunks, err := parseUnifiedDiff(unified)
	if err != nil {
		return nil, fmt.Errorf("parsing generated diff: %w", err)
	}
	change.Hunks = hunks
	change.Risk = assessRisk(change)
	return change, nil
}

// unifiedDiffText renders old/new content as a minimal unified diff: a
// single hunk spanning the whole file. This is the representation the
// editor bridge needs (it shows the proposed replacement, not a
// line-minimal patch), so no line-level diff algorithm is reached for here.
func unifiedDiffText(filePath, oldContent, newContent string) string {
	if oldContent == newContent {
		return ""
	}

	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	var body strings.Builder
	for _, l := range oldLines {
		body.WriteString("-" + l + "\n")
	}
	for _, l := range newLines {
		body.WriteString("+" + l + "\n")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("--- a/%s\n", filePath))
	sb.WriteString(fmt.Sprintf("+++ b/%s\n", filePath))
	sb.WriteString(fmt.Sprintf("@@ -1,%d +1,%d @@\n", len(oldLines), len(newLines)))
	sb.WriteString(body.String())
	return sb.String()
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" && !strings.HasSuffix(content, "\n") {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// parseUnifiedDiff parses one unified diff (as produced by unifiedDiffText,
// or supplied by a tool that emits real patches) into Hunks via go-diff.
func parseUnifiedDiff(unifiedDiff string) ([]*Hunk, error) {
	if strings.TrimSpace(unifiedDiff) == "" {
		return nil, nil
	}

	fileDiffs, err := godiff.ParseMultiFileDiff([]byte(unifiedDiff))
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	var hunks []*Hunk
	for _, fd := range fileDiffs {
		for _, h := range fd.Hunks {
			hunk := &Hunk{
				OldStart: int(h.OrigStartLine),
				OldCount: int(h.OrigLines),
				NewStart: int(h.NewStartLine),
				NewCount: int(h.NewLines),
				Status:   HunkPending,
				Lines:    parseHunkBody(h.Body, int(h.OrigStartLine), int(h.NewStartLine)),
			}
			hunks = append(hunks, hunk)
		}
	}
	return hunks, nil
}

func parseHunkBody(body []byte, oldStart, newStart int) []DiffLine {
	var lines []DiffLine
	oldNum, newNum := oldStart, newStart

	for _, line := range bytes.Split(body, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		prefix := line[0]
		content := ""
		if len(line) > 1 {
			content = string(line[1:])
		}

		var dl DiffLine
		switch prefix {
		case '+':
			dl = DiffLine{Type: LineAdded, Content: content, NewNum: newNum}
			newNum++
		case '-':
			dl = DiffLine{Type: LineRemoved, Content: content, OldNum: oldNum}
			oldNum++
		case ' ':
			dl = DiffLine{Type: LineContext, Content: content, OldNum: oldNum, NewNum: newNum}
			oldNum++
			newNum++
		case '\\':
			continue
		default:
			dl = DiffLine{Type: LineContext, Content: string(line), OldNum: oldNum, NewNum: newNum}
			oldNum++
			newNum++
		}
		lines = append(lines, dl)
	}
	return lines
}

// assessRisk categorizes a proposed change for the editor's review UI.
func assessRisk(change *ProposedChange) ChangeRisk {
	if change.IsDelete {
		return RiskHigh
	}
	if isSecuritySensitive(change.FilePath) {
		return RiskCritical
	}

	added, removed := change.LineStats()
	if removed > 20 {
		return RiskHigh
	}
	if removed > 5 || (added > 0 && removed > 0) {
		return RiskMedium
	}
	return RiskLow
}

func isSecuritySensitive(filePath string) bool {
	sensitivePatterns := []string{
		"auth", "security", "credential", "password", "secret",
		"token", "key", "cert", "crypto", "encrypt", "permission",
		"access", "login", "session",
	}
	lower := strings.ToLower(filePath)
	for _, pattern := range sensitivePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

var languageMap = map[string]string{
	".go": "go", ".py": "python", ".js": "javascript", ".ts": "typescript",
	".tsx": "typescriptreact", ".jsx": "javascriptreact", ".java": "java",
	".rs": "rust", ".rb": "ruby", ".c": "c", ".h": "c", ".cpp": "cpp",
	".hpp": "cpp", ".cc": "cpp", ".cxx": "cpp", ".cs": "csharp", ".php": "php",
	".swift": "swift", ".kt": "kotlin", ".kts": "kotlin", ".scala": "scala",
	".sh": "bash", ".bash": "bash", ".yaml": "yaml", ".yml": "yaml",
	".json": "json", ".xml": "xml", ".html": "html", ".htm": "html",
	".css": "css", ".scss": "scss", ".sass": "scss", ".md": "markdown",
	".markdown": "markdown", ".sql": "sql",
}

func detectLanguage(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	if lang, ok := languageMap[ext]; ok {
		return lang
	}
	return "text"
}

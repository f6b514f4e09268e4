// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nanoforge/conversant/tools"
)

// registerDemoTools registers the small, dependency-free file tool set this
// command exposes to the model. The tools package itself is pure
// infrastructure (ToolDefinition, Registry, Executor); the wiring site is
// responsible for supplying the actual tools, the same way the teacher's
// cli/tools/file package supplies Read/Write/Edit against its own
// tools.ToolDefinition shape.
func registerDemoTools(reg *tools.Registry, root string) error {
	if err := reg.Register(readFileTool(root)); err != nil {
		return err
	}
	if err := reg.Register(writeFileTool(root)); err != nil {
		return err
	}
	return nil
}

// resolveInRoot joins path against root and rejects any result that escapes
// root, mirroring the path-safety check the teacher's file tools perform
// before touching disk.
func resolveInRoot(root, path string) (string, error) {
	joined := filepath.Join(root, path)
	rel, err := filepath.Rel(root, joined)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q escapes project root", path)
	}
	return joined, nil
}

func readFileTool(root string) tools.ToolDefinition {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "file path relative to the project root"}
		},
		"required": ["path"]
	}`)

	return tools.ToolDefinition{
		Name:        "read_file",
		Description: "Read the full contents of a text file relative to the project root.",
		Schema:      schema,
		Approval:    tools.NeverRequireApproval(),
		Validator: func(args map[string]any) error {
			if _, ok := args["path"].(string); !ok {
				return fmt.Errorf("read_file: path must be a string")
			}
			return nil
		},
		Formatter: func(args map[string]any) string {
			return fmt.Sprintf("read %v", args["path"])
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			full, err := resolveInRoot(root, path)
			if err != nil {
				return "", err
			}
			content, err := os.ReadFile(full)
			if err != nil {
				return "", fmt.Errorf("read_file: %w", err)
			}
			return string(content), nil
		},
	}
}

func writeFileTool(root string) tools.ToolDefinition {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "file path relative to the project root"},
			"content": {"type": "string", "description": "full replacement content"}
		},
		"required": ["path", "content"]
	}`)

	return tools.ToolDefinition{
		Name:        "write_file",
		Description: "Overwrite a text file relative to the project root with the given content, creating parent directories as needed.",
		Schema:      schema,
		Approval:    tools.AlwaysRequireApproval(),
		Validator: func(args map[string]any) error {
			if _, ok := args["path"].(string); !ok {
				return fmt.Errorf("write_file: path must be a string")
			}
			if _, ok := args["content"].(string); !ok {
				return fmt.Errorf("write_file: content must be a string")
			}
			return nil
		},
		Formatter: func(args map[string]any) string {
			return fmt.Sprintf("write %v", args["path"])
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			content, _ := args["content"].(string)
			full, err := resolveInRoot(root, path)
			if err != nil {
				return "", err
			}
			if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				return "", fmt.Errorf("write_file: %w", err)
			}
			if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
				return "", fmt.Errorf("write_file: %w", err)
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
		},
	}
}

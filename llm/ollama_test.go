// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"testing"

	"github.com/nanoforge/conversant/tools"
	"github.com/stretchr/testify/assert"
)

func TestConvertToOllamaMessagesIncludesSystemPrompt(t *testing.T) {
	req := &Request{
		SystemPrompt: "be helpful",
		Messages:     []Message{{Role: "user", Content: "hi"}},
	}
	out := convertToOllamaMessages(req)
	assert.Len(t, out, 2)
	assert.Equal(t, "system", out[0].Role)
	assert.Equal(t, "be helpful", out[0].Content)
}

func TestConvertToOllamaMessagesUsesToolResultContent(t *testing.T) {
	req := &Request{
		Messages: []Message{{
			Role:        "tool",
			ToolResults: []ToolCallResult{{Content: "file contents"}},
		}},
	}
	out := convertToOllamaMessages(req)
	assert.Equal(t, "file contents", out[0].Content)
}

func TestConvertToOllamaToolsCarriesSchema(t *testing.T) {
	defs := []tools.ToolDefinition{{Name: "read_file", Description: "reads a file"}}
	out := convertToOllamaTools(defs)
	assert.Len(t, out, 1)
	assert.Equal(t, "read_file", out[0].Function.Name)
	assert.Equal(t, "function", out[0].Type)
}

func TestConvertToOllamaToolsEmpty(t *testing.T) {
	assert.Nil(t, convertToOllamaTools(nil))
}

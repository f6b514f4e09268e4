// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tokenizer provides BPE-backed token counting and per-model
// context-window accounting for the conversation engine's context-pressure
// checks, plus a cost estimator for tracking LLM spend across a session.
//
// This package never imports the engine package: Counter satisfies
// engine.Tokenizer only through an adapter built at the wiring site, the
// same pattern used for the editor bridge.
package tokenizer

// Message is the subset of engine.Message this package needs to count
// tokens for. The wiring-site adapter builds one of these per
// engine.Message, folding tool-call argument JSON into Content so its
// token cost isn't silently dropped.
type Message struct {
	Role    string
	Content string
}

// tokensPerMessage is the per-message framing overhead tiktoken-go doesn't
// itself account for (the <|start|>role|message<|end|> wrapper OpenAI's
// own cookbook describes). Applied uniformly across providers since this
// package only ever produces an estimate, not an exact count, for
// non-OpenAI models.
const tokensPerMessage = 3

// tokensPerReply is the fixed overhead of priming a reply
// (<|start|>assistant<|message|>), added once per counted batch rather
// than per message.
const tokensPerReply = 3

// modelContextWindows maps known model name prefixes to their context
// window size in tokens. Longest-prefix match wins; an unrecognized model
// falls back to defaultContextWindow.
var modelContextWindows = map[string]int{
	"gpt-4o":               128_000,
	"gpt-4o-mini":          128_000,
	"gpt-4-turbo":          128_000,
	"gpt-4-32k":            32_768,
	"gpt-4":                8_192,
	"gpt-3.5-turbo-16k":    16_384,
	"gpt-3.5-turbo":        16_385,
	"claude-3-5-sonnet":    200_000,
	"claude-3-5-haiku":     200_000,
	"claude-3-opus":        200_000,
	"claude-3-sonnet":      200_000,
	"claude-3-haiku":       200_000,
	"claude-opus-4":        200_000,
	"claude-sonnet-4":      200_000,
	"gemini-1.5-pro":       2_000_000,
	"gemini-1.5-flash":     1_000_000,
	"gemini-2.0-flash":     1_000_000,
	"o1":                   200_000,
	"o1-mini":              128_000,
	"o3-mini":              200_000,
	"deepseek-chat":        64_000,
	"deepseek-reasoner":    64_000,
}

// defaultContextWindow is returned for a model with no known entry, a
// deliberately conservative guess so context-pressure checks err toward
// compacting too early rather than overrunning a provider's real limit.
const defaultContextWindow = 8_192

// encodingForModel maps a model name prefix to the tiktoken-go encoding
// name that approximates its tokenization. Non-OpenAI models have no BPE
// vocabulary published, so cl100k_base (GPT-4's encoding) is used as the
// nearest available approximation, same as the teacher's own token
// counting utility did for Claude and Gemini.
var encodingForModel = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"o1":            "o200k_base",
	"o1-mini":       "o200k_base",
	"o3-mini":       "o200k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

const defaultEncoding = "cl100k_base"

// lookupByPrefix finds the longest key in m that model starts with,
// returning ok=false if none match.
func lookupByPrefix[V any](m map[string]V, model string) (V, bool) {
	var best V
	bestLen := -1
	for prefix, v := range m {
		if len(prefix) <= bestLen {
			continue
		}
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			best = v
			bestLen = len(prefix)
		}
	}
	return best, bestLen >= 0
}

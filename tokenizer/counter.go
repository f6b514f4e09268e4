// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tokenizer

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// encodingCache avoids re-building a tiktoken.Tiktoken (which parses its
// BPE merge table on construction) for every Counter created against the
// same encoding.
var (
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
	encodingCacheMu sync.RWMutex
)

func getEncoding(name string) (*tiktoken.Tiktoken, error) {
	encodingCacheMu.RLock()
	enc, ok := encodingCache[name]
	encodingCacheMu.RUnlock()
	if ok {
		return enc, nil
	}

	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load encoding %q: %w", name, err)
	}

	encodingCacheMu.Lock()
	encodingCache[name] = enc
	encodingCacheMu.Unlock()
	return enc, nil
}

// Counter counts tokens for a specific model using tiktoken-go's BPE
// encoder, with a best-effort cl100k_base approximation for models that
// don't publish their own vocabulary.
//
// Thread Safety: safe for concurrent use.
type Counter struct {
	model    string
	encoding *tiktoken.Tiktoken
}

// NewCounter builds a Counter for model, selecting the closest known
// encoding and falling back to cl100k_base for an unrecognized model.
func NewCounter(model string) (*Counter, error) {
	name, ok := lookupByPrefix(encodingForModel, model)
	if !ok {
		name = defaultEncoding
	}

	enc, err := getEncoding(name)
	if err != nil {
		return nil, err
	}

	return &Counter{model: model, encoding: enc}, nil
}

// CountText returns the BPE token count of s alone, with no message
// framing overhead.
func (c *Counter) CountText(s string) int {
	if s == "" {
		return 0
	}
	return len(c.encoding.Encode(s, nil, nil))
}

// Count returns the token cost of one message, including the per-message
// framing overhead (see tokensPerMessage).
func (c *Counter) Count(m Message) int {
	return tokensPerMessage + c.CountText(m.Role) + c.CountText(m.Content)
}

// CountAll returns the total token cost of messages as they would be sent
// in one request, including the fixed reply-priming overhead.
func (c *Counter) CountAll(messages []Message) int {
	total := tokensPerReply
	for _, m := range messages {
		total += c.Count(m)
	}
	recordCount(context.Background(), c.model, total)
	return total
}

// Model returns the model name this Counter was built for.
func (c *Counter) Model() string { return c.model }

// Release is a no-op: tiktoken-go's encoder is pure Go with no file
// handles or cgo allocations to free, and the package-level encoding
// cache is shared and outlives any one Counter. Exists so the wiring-site
// adapter has something to call from Engine.Close without a type switch.
func (c *Counter) Release() error { return nil }

// ModelLimit returns the best-effort context window size for model. It
// does not require a Counter instance since the limit table is static;
// exposed as a package-level function so the wiring-site adapter can call
// it without threading a Counter through unrelated code paths.
func ModelLimit(model string) (int, bool) {
	if limit, ok := lookupByPrefix(modelContextWindows, model); ok {
		return limit, true
	}
	return defaultContextWindow, false
}

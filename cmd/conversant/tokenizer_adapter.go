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
	"github.com/nanoforge/conversant/engine"
	"github.com/nanoforge/conversant/tokenizer"
)

// tokenizerAdapter satisfies engine.Tokenizer by delegating to a concrete
// *tokenizer.Counter, converting engine.Message into tokenizer.Message.
type tokenizerAdapter struct {
	c *tokenizer.Counter
}

func newTokenizerAdapter(model string) (engine.Tokenizer, error) {
	c, err := tokenizer.NewCounter(model)
	if err != nil {
		return nil, err
	}
	return &tokenizerAdapter{c: c}, nil
}

func (a *tokenizerAdapter) Count(m engine.Message) int {
	return a.c.Count(tokenizer.Message{Role: string(m.Role), Content: m.Content})
}

func (a *tokenizerAdapter) ModelLimit(model string) (int, bool) {
	return tokenizer.ModelLimit(model)
}

func (a *tokenizerAdapter) Release() error {
	return a.c.Release()
}

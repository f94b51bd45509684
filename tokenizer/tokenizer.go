// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tokenizer

// Tokenizer is the interface that wraps the basic tokenizers methods.
type Tokenizer interface {
	// Tokenize returns the sequence of token IDs for the given text.
	Tokenize(text string) ([]int, error)
	// ReconstructText returns the text corresponding to the given sequence of token IDs.
	ReconstructText(ids []int) (string, error)
	// Size returns the number of distinct token IDs, control tokens included.
	Size() int
}

// ControlTokensIDs holds the IDs of the reserved tokens.
type ControlTokensIDs struct {
	PadTokenID   int
	StartTokenID int
	EndTokenID   int
}

// DefaultControlTokensIDs are the IDs reserved at the beginning of every
// character vocabulary.
var DefaultControlTokensIDs = ControlTokensIDs{
	PadTokenID:   0,
	StartTokenID: 1,
	EndTokenID:   2,
}

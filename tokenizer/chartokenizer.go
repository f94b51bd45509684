// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tokenizer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownChar is returned when a text contains a character outside the vocabulary.
	ErrUnknownChar = errors.New("character not in vocabulary")
	// ErrUnknownID is returned when an ID is outside the vocabulary.
	ErrUnknownID = errors.New("token ID not in vocabulary")
)

const (
	PadToken   = "<pad>"
	StartToken = "<sos>"
	EndToken   = "<eos>"
)

var _ Tokenizer = &CharTokenizer{}

// CharTokenizer maps single characters to token IDs and back.
// The first IDs are reserved to the control tokens, the characters follow in
// the order they were given.
type CharTokenizer struct {
	ControlTokenIDs ControlTokensIDs
	chars           []rune
	ids             map[rune]int
}

// NewCharTokenizer returns a new CharTokenizer. Characters must be unique.
func NewCharTokenizer(chars []rune) (*CharTokenizer, error) {
	if len(chars) == 0 {
		return nil, fmt.Errorf("empty vocabulary")
	}
	t := &CharTokenizer{
		ControlTokenIDs: DefaultControlTokensIDs,
		chars:           make([]rune, len(chars)),
		ids:             make(map[rune]int, len(chars)),
	}
	copy(t.chars, chars)
	offset := t.numControlTokens()
	for i, c := range chars {
		if _, exists := t.ids[c]; exists {
			return nil, fmt.Errorf("duplicate character %q in vocabulary", c)
		}
		t.ids[c] = i + offset
	}
	return t, nil
}

func (t *CharTokenizer) numControlTokens() int {
	return 3
}

// Size returns the number of token IDs, control tokens included.
func (t *CharTokenizer) Size() int {
	return len(t.chars) + t.numControlTokens()
}

// Chars returns the characters of the vocabulary, control tokens excluded.
func (t *CharTokenizer) Chars() string {
	return string(t.chars)
}

// Tokenize returns the ID of each character of the text.
// Control tokens are not added.
func (t *CharTokenizer) Tokenize(text string) ([]int, error) {
	ids := make([]int, 0, len(text))
	for _, c := range text {
		id, ok := t.ids[c]
		if !ok {
			return nil, fmt.Errorf("%w: %q in %q", ErrUnknownChar, c, text)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ReconstructText returns the text of the given IDs.
// Padding and start tokens are skipped, the end token stops the reconstruction.
func (t *CharTokenizer) ReconstructText(ids []int) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		switch id {
		case t.ControlTokenIDs.PadTokenID, t.ControlTokenIDs.StartTokenID:
			continue
		case t.ControlTokenIDs.EndTokenID:
			return sb.String(), nil
		}
		c, err := t.Char(id)
		if err != nil {
			return "", err
		}
		sb.WriteRune(c)
	}
	return sb.String(), nil
}

// Char returns the character of a non-control ID.
func (t *CharTokenizer) Char(id int) (rune, error) {
	i := id - t.numControlTokens()
	if i < 0 || i >= len(t.chars) {
		return 0, fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	return t.chars[i], nil
}

// TokenByID returns the printable form of any ID, control tokens included.
func (t *CharTokenizer) TokenByID(id int) (string, error) {
	switch id {
	case t.ControlTokenIDs.PadTokenID:
		return PadToken, nil
	case t.ControlTokenIDs.StartTokenID:
		return StartToken, nil
	case t.ControlTokenIDs.EndTokenID:
		return EndToken, nil
	}
	c, err := t.Char(id)
	if err != nil {
		return "", err
	}
	return string(c), nil
}

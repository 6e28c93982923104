package dispatch

import (
	"fmt"

	"github.com/weaviate/tiktoken-go"
)

// DefaultEncoding is the BPE used to estimate conversation size.
const DefaultEncoding = "cl100k_base"

// TiktokenCounter counts tokens with a tiktoken encoding. The count approximates the
// backend tokenizer; it only drives the context window warning.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("dispatch: load encoding %s: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

package types

// Chunk is one ordered segment of source conversation text
type Chunk = string

// ExtractiveBullet is a short evidence-tagged statement drawn from one chunk
type ExtractiveBullet struct {
	Text     string `json:"text"`
	Quote    string `json:"quote"`
	SourceID string `json:"id"`
	// Verified is true when Quote is a literal substring of its source chunk
	Verified bool `json:"verified"`
}

// MaxQuoteChars bounds ExtractiveBullet.Quote
const MaxQuoteChars = 60

package domain

// DocumentPage is one page of extracted text from a fetched document.
type DocumentPage struct {
	Number int    `json:"number"` // 1-based page number
	Text   string `json:"text"`
}

// Chunk is one overlapping slice of a page, ready for embedding.
type Chunk struct {
	Text       string `json:"text"`
	Page       int    `json:"page"`
	StartIndex int    `json:"start_index"` // byte offset within the page text
}

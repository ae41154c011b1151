package types

// DocumentChunk is a contiguous slice of the combined document text.
// Start and End are rune offsets into that text.
type DocumentChunk struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

// SearchResult is a chunk returned by an index together with its similarity score.
type SearchResult struct {
	Chunk DocumentChunk `json:"chunk"`
	Score float32       `json:"score"`
}

// DocumentServiceConfig contains configuration options for text splitting
type DocumentServiceConfig struct {
	MaxChunkSize int    `mapstructure:"max_chunk_size"` // Maximum size for text chunks, in runes
	OverlapSize  int    `mapstructure:"overlap_size"`   // Size of overlap between chunks, in runes
	Separator    string `mapstructure:"separator"`      // Preferred split point
}

// UploadedFile is one document received by the Process action.
// Data is dropped once the text has been extracted.
type UploadedFile struct {
	Name string
	Data []byte
}

type ProcessResult struct {
	ID         string   `json:"id"`
	Files      []string `json:"files"`
	Characters int      `json:"characters"`
	Chunks     int      `json:"chunks"`
}

package types

import "errors"

// Error kinds surfaced to the interaction boundary. Wrap with
// fmt.Errorf("%w: ...", Kind, err) and test with errors.Is.
var (
	ErrExtraction    = errors.New("document extraction failed")
	ErrEmbedding     = errors.New("embedding failed")
	ErrIndexing      = errors.New("index build failed")
	ErrRetrieval     = errors.New("retrieval failed")
	ErrGeneration    = errors.New("generation failed")
	ErrConfiguration = errors.New("invalid configuration")
	ErrEmptyQuestion = errors.New("question is empty")
	ErrNoDocuments   = errors.New("no documents processed")
	ErrInvalidInput  = errors.New("invalid input")
)

package types

type DataResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

const (
	ProcessingStatusExtracting = "extracting"
	ProcessingStatusSplitting  = "splitting"
	ProcessingStatusIndexing   = "indexing"
	ProcessingStatusCompleted  = "completed"
)

type ProcessingDocumentStatus struct {
	Status         string  `json:"status"`
	Message        string  `json:"message"`
	Progress       float64 `json:"progress"`
	TotalFiles     int     `json:"total_files"`
	ProcessedFiles int     `json:"processed_files"`
}

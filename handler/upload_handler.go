package handler

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/matthewtan01/pdf-rag/types"
	"github.com/matthewtan01/pdf-rag/utils"
)

// DocumentProcessor is implemented by service.FileService.
type DocumentProcessor interface {
	Process(ctx context.Context, files []types.UploadedFile, status chan<- types.ProcessingDocumentStatus) (*types.ProcessResult, error)
}

type UploadHandler struct {
	fileService   DocumentProcessor
	maxUploadSize int64
	logger        *zap.Logger
}

func NewUploadHandler(fileService DocumentProcessor, maxUploadSize int64, logger *zap.Logger) *UploadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadHandler{
		fileService:   fileService,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

type processOutcome struct {
	result *types.ProcessResult
	err    error
}

// ProcessDocumentsHandler reads the multipart "files" field and streams
// progress as server-sent "status" events, ending with one "result" or
// "error" event.
func (h *UploadHandler) ProcessDocumentsHandler(c *gin.Context) {
	files, err := h.readFiles(c)
	if err != nil {
		sendError(c, err)
		return
	}

	ctx := c.Request.Context()
	statusChan := make(chan types.ProcessingDocumentStatus)
	done := make(chan processOutcome, 1)
	go func() {
		result, err := h.fileService.Process(ctx, files, statusChan)
		done <- processOutcome{result: result, err: err}
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	for {
		select {
		case <-ctx.Done():
			return // Client disconnected
		case status := <-statusChan:
			c.SSEvent("status", status)
			c.Writer.Flush()
		case out := <-done:
			if out.err != nil {
				h.logger.Error("processing failed", zap.Error(out.err))
				c.SSEvent("error", types.DataResponse{
					Status:  false,
					Message: out.err.Error(),
				})
			} else {
				c.SSEvent("result", types.DataResponse{
					Status: true,
					Data:   out.result,
				})
			}
			c.Writer.Flush()
			return
		}
	}
}

func (h *UploadHandler) readFiles(c *gin.Context) ([]types.UploadedFile, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid multipart form", types.ErrInvalidInput)
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: no files uploaded", types.ErrInvalidInput)
	}

	files := make([]types.UploadedFile, 0, len(headers))
	for _, header := range headers {
		if !utils.IsPDF(header.Filename) {
			return nil, fmt.Errorf("%w: unsupported file type: %s", types.ErrInvalidInput, header.Filename)
		}
		file, err := utils.ReadMultipartFile(header, h.maxUploadSize)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

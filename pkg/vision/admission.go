package vision

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/bodybroker/core/pkg/bus"
)

// AnalyzeRequest is the payload accepted on bus.VisionAnalyzeRequest.
type AnalyzeRequest struct {
	SegmentID string `json:"segment_id"`
	Priority  int    `json:"priority"`
}

// AdmissionHandler translates analyze-request messages into queue
// admissions; workers never consume the request subject directly
// (§4.6).
type AdmissionHandler struct {
	repo   Repository
	logger *zap.Logger
}

func NewAdmissionHandler(repo Repository, logger *zap.Logger) *AdmissionHandler {
	return &AdmissionHandler{repo: repo, logger: logger}
}

func (h *AdmissionHandler) Handle(ctx context.Context, subject string, data []byte) {
	var req AnalyzeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.logger.Warn("vision admission: malformed request", zap.String("subject", subject), zap.Error(err))
		return
	}
	if req.SegmentID == "" {
		h.logger.Warn("vision admission: request missing segment_id", zap.String("subject", subject))
		return
	}
	if err := h.repo.AdmitSegment(ctx, req.SegmentID, req.Priority); err != nil {
		h.logger.Error("vision admission: admit segment failed", zap.String("segment_id", req.SegmentID), zap.Error(err))
	}
}

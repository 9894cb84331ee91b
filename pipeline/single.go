package pipeline

import (
	"context"
	"fmt"

	"github.com/wudi/docketkit/audit"
	"github.com/wudi/docketkit/intake"
	"github.com/wudi/docketkit/observability"
)

// SingleRequest is one docket uploaded on its own.
type SingleRequest struct {
	ClientID string
	UserID   string
	File     intake.File
}

// SingleResult is returned to the uploader of a single docket.
type SingleResult struct {
	Success          bool    `json:"success"`
	Message          string  `json:"message"`
	DeliveryRecordID string  `json:"deliveryRecordId"`
	FilePath         string  `json:"filePath"`
	ProcessingStatus string  `json:"processingStatus,omitempty"`
	ConfidenceScore  float64 `json:"confidenceScore"`
	ProcessingError  string  `json:"processingError,omitempty"`
	ComplianceAlerts int     `json:"complianceAlerts"`
}

// ProcessOne validates, stores and recognizes a single docket. Validation and
// upload failures are returned as errors. An OCR failure is not an error: the
// docket is kept with a failed record and the result says so.
func (p *Processor) ProcessOne(ctx context.Context, req SingleRequest) (SingleResult, error) {
	if req.ClientID == "" || req.UserID == "" || (req.File.Name == "" && len(req.File.Data) == 0) {
		return SingleResult{}, fmt.Errorf("%w: file, clientId, or userId", ErrMissingFields)
	}
	if err := p.uploader.Validate(req.File); err != nil {
		return SingleResult{}, err
	}
	now := p.now()
	d := docket{
		clientID: req.ClientID,
		userID:   req.UserID,
		file:     req.File,
		path:     intake.SinglePath(req.ClientID, req.File.Name, now),
		priority: PriorityMedium,
		now:      now,
	}
	log := p.log.With(observability.String("client", req.ClientID), observability.String("path", d.path))
	ctx, span := p.tracer.StartSpan(ctx, "pipeline.single")
	defer span.Finish()

	obj, err := p.uploader.Upload(ctx, d.path, req.File)
	if err != nil {
		span.SetError(err)
		return SingleResult{}, fmt.Errorf("upload failed: %w", err)
	}

	res, err := p.recognize(ctx, d)
	if err != nil {
		log.Warn("docket processing failed", observability.Err(err))
		rec, dbErr := p.failed(ctx, d, "Document AI processing failed: "+err.Error(),
			"AI processing failed - file uploaded but not processed")
		if dbErr != nil {
			span.SetError(dbErr)
			return SingleResult{}, fmt.Errorf("database error: %w", dbErr)
		}
		return SingleResult{
			Success:          false,
			Message:          "File uploaded but AI processing failed",
			DeliveryRecordID: rec.ID,
			FilePath:         obj.Path,
			ProcessingStatus: rec.ProcessingStatus,
			ProcessingError:  err.Error(),
		}, nil
	}

	rec, alerts, err := p.completed(ctx, d, res)
	if err != nil {
		span.SetError(err)
		return SingleResult{}, fmt.Errorf("database error: %w", err)
	}
	p.writeAudit(ctx, log, audit.Entry{
		ClientID:     req.ClientID,
		UserID:       req.UserID,
		Action:       audit.ActionDocumentUploaded,
		ResourceType: audit.ResourceDeliveryRecord,
		ResourceID:   rec.ID,
		Details: map[string]any{
			"fileName": req.File.Name,
			"fileSize": req.File.Size,
			"filePath": obj.Path,
		},
	})
	log.Info("docket processed", observability.String("record", rec.ID), observability.Int("alerts", alerts))
	return SingleResult{
		Success:          true,
		Message:          "Document uploaded and processed successfully",
		DeliveryRecordID: rec.ID,
		FilePath:         obj.Path,
		ProcessingStatus: rec.ProcessingStatus,
		ConfidenceScore:  rec.ConfidenceScore,
		ComplianceAlerts: alerts,
	}, nil
}

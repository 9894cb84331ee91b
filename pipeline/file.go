package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/wudi/docketkit/audit"
	"github.com/wudi/docketkit/compliance"
	"github.com/wudi/docketkit/intake"
	"github.com/wudi/docketkit/observability"
	"github.com/wudi/docketkit/ocr"
	"github.com/wudi/docketkit/store"
)

// Stages reported in FileOutcome.Stage and recovery locations.
const (
	StageValidate = "validate"
	StageUpload   = "upload"
	StageOCR      = "ocr"
	StageRecord   = "record"
)

// docket carries one file through the shared steps of single and bulk
// processing.
type docket struct {
	clientID string
	userID   string
	file     intake.File
	path     string
	bulk     bool
	priority Priority
	index    int
	now      time.Time
}

func (d docket) metadata() map[string]string {
	meta := map[string]string{
		ocr.MetaBulkUpload: strconv.FormatBool(d.bulk),
		ocr.MetaPriority:   string(d.priority),
	}
	if d.bulk {
		meta[ocr.MetaBatchIndex] = strconv.Itoa(d.index)
	}
	return meta
}

// recognize runs OCR on a stored docket.
func (p *Processor) recognize(ctx context.Context, d docket) (ocr.Result, error) {
	in, err := ocr.NewInput(d.path, d.file.Name, d.file.Data,
		ocr.WithOwner(d.clientID, d.userID),
		ocr.WithPath(d.path),
		ocr.WithMetadata(d.metadata()))
	if err != nil {
		return ocr.Result{}, err
	}
	return p.engine.Recognize(ctx, in)
}

// completed stores the record of a recognized docket and raises compliance
// alerts for its readings. Alert failures are logged, the record stands.
func (p *Processor) completed(ctx context.Context, d docket, res ocr.Result) (store.DeliveryRecord, int, error) {
	fields := p.extractor.Extract(res.PlainText, d.now)
	rec, err := p.store.InsertDeliveryRecord(ctx, store.DeliveryRecord{
		ClientID:         d.clientID,
		UserID:           d.userID,
		SupplierName:     fields.Supplier,
		DeliveryDate:     fields.DeliveryDate,
		DocketNumber:     fields.DocketNumber,
		ImagePath:        d.path,
		ItemCount:        fields.ItemCount,
		Temperatures:     fields.Temperatures,
		ProductType:      fields.ProductType,
		ProcessingStatus: store.StatusCompleted,
		ConfidenceScore:  res.Confidence,
		RawExtractedText: res.PlainText,
		BulkUpload:       d.bulk,
		Priority:         string(d.priority),
	})
	if err != nil {
		return store.DeliveryRecord{}, 0, err
	}
	return rec, p.raiseAlerts(ctx, rec), nil
}

func (p *Processor) raiseAlerts(ctx context.Context, rec store.DeliveryRecord) int {
	rep, err := p.rules.Validate(ctx, compliance.Delivery{ProductType: rec.ProductType, Temperatures: rec.Temperatures})
	if err != nil {
		p.log.Warn("compliance check failed", observability.String("record", rec.ID), observability.Err(err))
		return 0
	}
	if rep.Compliant {
		return 0
	}
	alerts := make([]store.ComplianceAlert, 0, len(rep.Violations))
	for _, v := range rep.Violations {
		alerts = append(alerts, store.ComplianceAlert{
			ClientID:         rec.ClientID,
			DeliveryRecordID: rec.ID,
			Severity:         string(v.Severity),
			Temperature:      v.Reading,
			Threshold:        v.Threshold,
			Message:          v.Description,
		})
	}
	if _, err := p.store.InsertComplianceAlerts(ctx, alerts); err != nil {
		p.log.Warn("compliance alerts not stored", observability.String("record", rec.ID), observability.Err(err))
		return 0
	}
	return len(alerts)
}

// failed stores a record for a docket whose OCR failed.
func (p *Processor) failed(ctx context.Context, d docket, message, rawText string) (store.DeliveryRecord, error) {
	return p.store.InsertDeliveryRecord(ctx, store.DeliveryRecord{
		ClientID:         d.clientID,
		UserID:           d.userID,
		ImagePath:        d.path,
		ProcessingStatus: store.StatusFailed,
		ErrorMessage:     message,
		RawExtractedText: rawText,
		BulkUpload:       d.bulk,
		Priority:         string(d.priority),
	})
}

// bulkFile runs one file of a bulk request. It never returns an error: the
// outcome carries it.
func (p *Processor) bulkFile(ctx context.Context, req Request, index int, f intake.File, now time.Time) FileOutcome {
	o := FileOutcome{Index: index, Name: f.Name}
	fail := func(stage string, err error) FileOutcome {
		o.Status, o.Stage, o.err = OutcomeFailed, stage, err
		o.Error = fmt.Sprintf("%s: %v", f.Name, err)
		return o
	}

	if err := p.uploader.Validate(f); err != nil {
		return fail(StageValidate, err)
	}
	d := docket{
		clientID: req.ClientID,
		userID:   req.UserID,
		file:     f,
		path:     intake.BulkPath(req.ClientID, f.Name, now, index),
		bulk:     true,
		priority: req.Priority,
		index:    index,
		now:      now,
	}
	obj, err := p.uploader.Upload(ctx, d.path, f)
	if err != nil {
		return fail(StageUpload, err)
	}
	o.uploaded, o.Path = true, obj.Path

	res, err := p.recognize(ctx, d)
	if err != nil {
		rec, dbErr := p.failed(ctx, d, "AI processing failed: "+err.Error(), "Bulk upload - AI processing failed")
		if dbErr != nil {
			return fail(StageRecord, errors.Join(err, dbErr))
		}
		o.Status, o.Stage, o.RecordID, o.err = OutcomeOCRFailed, StageOCR, rec.ID, err
		o.Error = fmt.Sprintf("%s: AI processing failed - %v", f.Name, err)
		return o
	}

	rec, alerts, err := p.completed(ctx, d, res)
	if err != nil {
		return fail(StageRecord, err)
	}
	o.Status, o.RecordID, o.Confidence, o.Alerts = OutcomeCompleted, rec.ID, rec.ConfidenceScore, alerts
	p.writeAudit(ctx, p.log, audit.Entry{
		ClientID:     req.ClientID,
		UserID:       req.UserID,
		Action:       audit.ActionBulkDocumentProcessed,
		ResourceType: audit.ResourceDeliveryRecord,
		ResourceID:   rec.ID,
		Details: map[string]any{
			"fileName":            obj.Path,
			"originalFileName":    f.Name,
			"bulkUpload":          true,
			"processingPriority":  req.Priority,
			"batchIndex":          index,
			"aiProcessingSuccess": true,
			"confidence":          rec.ConfidenceScore,
			"complianceAlerts":    alerts,
		},
	})
	return o
}

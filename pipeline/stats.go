package pipeline

import (
	"context"
	"time"

	"github.com/wudi/docketkit/store"
)

// TrainingConfidence is the confidence below which a completed bulk record
// is worth reviewing for model training.
const TrainingConfidence = 0.85

// RecentLimit bounds the recent uploads returned with Stats.
const RecentLimit = 20

// Stats summarizes the bulk uploads of a client.
type Stats struct {
	TotalBulkRecords    int        `json:"totalBulkRecords"`
	CompletedProcessing int        `json:"completedProcessing"`
	FailedProcessing    int        `json:"failedProcessing"`
	AverageConfidence   float64    `json:"averageConfidence"`
	LastBulkUpload      *time.Time `json:"lastBulkUpload"`
	ReadyForTraining    int        `json:"readyForTraining"`
}

// ComputeStats folds bulk records, newest first, into Stats. The average
// confidence ignores records without a score.
func ComputeStats(records []store.DeliveryRecord) Stats {
	var st Stats
	var sum float64
	var scored int
	for i, r := range records {
		if !r.BulkUpload {
			continue
		}
		st.TotalBulkRecords++
		if st.LastBulkUpload == nil {
			t := records[i].CreatedAt
			st.LastBulkUpload = &t
		}
		switch r.ProcessingStatus {
		case store.StatusCompleted:
			st.CompletedProcessing++
			if r.ConfidenceScore < TrainingConfidence {
				st.ReadyForTraining++
			}
		case store.StatusFailed:
			st.FailedProcessing++
		}
		if r.ConfidenceScore != 0 {
			sum += r.ConfidenceScore
			scored++
		}
	}
	if scored > 0 {
		st.AverageConfidence = sum / float64(scored)
	}
	return st
}

// Stats returns the bulk statistics of clientID and its most recent bulk
// records.
func (p *Processor) Stats(ctx context.Context, clientID string) (Stats, []store.DeliveryRecord, error) {
	records, err := p.store.ListDeliveryRecords(ctx, store.RecordFilter{ClientID: clientID, BulkOnly: true})
	if err != nil {
		return Stats{}, nil, err
	}
	recent := records
	if len(recent) > RecentLimit {
		recent = recent[:RecentLimit]
	}
	return ComputeStats(records), recent, nil
}

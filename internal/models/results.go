// internal/models/results.go
package models

import "time"

// Bucket names one side of the accepted/rejected partition.
type Bucket string

const (
	BucketAccepted Bucket = "accepted"
	BucketRejected Bucket = "rejected"
)

func (b Bucket) Valid() bool {
	return b == BucketAccepted || b == BucketRejected
}

type TargetImages struct {
	Accepted []string `json:"accepted"`
	Rejected []string `json:"rejected"`
}

// Clone copies both lists, normalizing nil to empty.
func (t TargetImages) Clone() TargetImages {
	return TargetImages{
		Accepted: append([]string{}, t.Accepted...),
		Rejected: append([]string{}, t.Rejected...),
	}
}

// PerTargetImages maps an audience segment label to its images.
type PerTargetImages map[string]TargetImages

type Email struct {
	Subject string `json:"mail_subject"`
	Body    string `json:"mail_content"`
}

// EmailRequest is the input of one email generation call.
type EmailRequest struct {
	Prompt   string    `json:"user_prompt"`
	Features []Feature `json:"features"`
	Target   string    `json:"target_audience"`
}

// CampaignRecord is what gets archived once a session completes.
type CampaignRecord struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"sessionId"`
	Request     CampaignRequest `json:"request"`
	Results     PerTargetImages `json:"results"`
	CompletedAt time.Time       `json:"completedAt"`
}

package models

import "time"

// CorrectionStatus tracks the lifecycle of a correction request.
type CorrectionStatus string

const (
	CorrectionPending  CorrectionStatus = "PENDING"
	CorrectionApproved CorrectionStatus = "APPROVED"
	CorrectionRejected CorrectionStatus = "REJECTED"
	// CorrectionUnderReview is declared in the schema but no flow
	// transitions into or out of it. Kept until the reviewer-claims
	// workflow is confirmed.
	CorrectionUnderReview CorrectionStatus = "UNDER_REVIEW"
)

// Terminal reports whether the status ends the workflow.
func (s CorrectionStatus) Terminal() bool {
	return s == CorrectionApproved || s == CorrectionRejected
}

// CorrectionRequest is a student dispute against one mark in one session.
// It is terminal-transitioned exactly once by a reviewer.
type CorrectionRequest struct {
	ID              string           `db:"id" json:"id"`
	SessionID       string           `db:"session_id" json:"session_id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	CurrentStatus   MarkStatus       `db:"current_status" json:"current_status"`
	RequestedStatus MarkStatus       `db:"requested_status" json:"requested_status"`
	Justification   string           `db:"justification" json:"justification"`
	ProofURL        *string          `db:"proof_url" json:"proof_url,omitempty"`
	Status          CorrectionStatus `db:"status" json:"status"`
	ReviewedBy      *string          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time       `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewComments  *string          `db:"review_comments" json:"review_comments,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
}

// CorrectionFilter scopes request listings.
type CorrectionFilter struct {
	StudentID string
	SessionID string
	Status    CorrectionStatus
}

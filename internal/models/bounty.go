package models

import "time"

// BountyStatus is the lifecycle of a takedown bounty.
type BountyStatus string

const (
	BountyOpen   BountyStatus = "open"
	BountyClosed BountyStatus = "closed"
)

// BountyModel is a reward posted by a contributor for evidence of
// unauthorized use of their likeness.
type BountyModel struct {
	Base
	UserID      string       `json:"user_id" gorm:"index;not null"`
	Title       string       `json:"title"   gorm:"not null"`
	Description string       `json:"description" gorm:"type:longtext"`
	RewardCents int          `json:"reward_cents"`
	Status      BountyStatus `json:"status"  gorm:"default:open"`
}

func (BountyModel) TableName() string { return "bounties" }

// SubmissionStatus is the review state of a bounty submission.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionRejected SubmissionStatus = "rejected"
)

// BountySubmissionModel is one hunter's evidence against a bounty.
type BountySubmissionModel struct {
	Base
	BountyID    string           `json:"bounty_id" gorm:"index;not null"`
	UserID      string           `json:"user_id"   gorm:"index;not null"`
	EvidenceURL string           `json:"evidence_url" gorm:"not null"`
	Notes       string           `json:"notes"`
	Status      SubmissionStatus `json:"status" gorm:"default:pending"`
	ReviewedAt  *time.Time       `json:"reviewed_at"`
}

func (BountySubmissionModel) TableName() string { return "bounty_submissions" }

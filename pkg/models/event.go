package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType 程序事件类型
type EventType string

const (
	EventProfileCreated     EventType = "profile_created"
	EventPaperCreated       EventType = "paper_created"
	EventPaperPublished     EventType = "paper_published"
	EventReviewAdded        EventType = "review_added"
	EventAccessGranted      EventType = "access_granted"
	EventReputationAssigned EventType = "reputation_assigned"
)

// Event 指令成功执行后对外发布的事件
// 携带本次指令修改过的记录快照，供下游索引器消费
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	ProgramID Pubkey    `json:"program_id"`
	Signer    Pubkey    `json:"signer"`
	Timestamp time.Time `json:"timestamp"`

	Profile        *ResearcherProfile      `json:"profile,omitempty"`
	Paper          *ResearchPaper          `json:"paper,omitempty"`
	Review         *PeerReview             `json:"review,omitempty"`
	MintCollection *ResearchMintCollection `json:"mint_collection,omitempty"`
}

// NewEvent 创建事件，自动生成ID和时间戳
func NewEvent(eventType EventType, programID, signer Pubkey) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		ProgramID: programID,
		Signer:    signer,
		Timestamp: time.Now().UTC(),
	}
}

package models

import (
	"encoding/json"
	"fmt"
)

// PaperState 论文生命周期状态
// 状态只能前进，不允许回退；编码值与链上程序的枚举顺序一致
type PaperState uint8

const (
	PaperStateAwaitingPeerReview PaperState = iota
	PaperStateInPeerReview
	PaperStateApprovedToPublish
	PaperStateRequiresRevision // 已声明但当前没有任何迁移会进入该状态
	PaperStatePublished
	PaperStateMinted // 预留状态，当前没有任何迁移会进入该状态
)

// paperStateNames 论文状态字符串映射
var paperStateNames = map[PaperState]string{
	PaperStateAwaitingPeerReview: "awaiting_peer_review",
	PaperStateInPeerReview:       "in_peer_review",
	PaperStateApprovedToPublish:  "approved_to_publish",
	PaperStateRequiresRevision:   "requires_revision",
	PaperStatePublished:          "published",
	PaperStateMinted:             "minted",
}

// String 返回状态的字符串表示
func (s PaperState) String() string {
	if name, exists := paperStateNames[s]; exists {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// IsValid 判断状态值是否合法
func (s PaperState) IsValid() bool {
	_, exists := paperStateNames[s]
	return exists
}

// MarshalJSON 实现json.Marshaler
func (s PaperState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ResearcherProfileState 研究者档案审核状态
type ResearcherProfileState uint8

const (
	ProfileStateAwaitingApproval ResearcherProfileState = iota
	ProfileStateApproved
	ProfileStateRejected
)

// profileStateNames 档案状态字符串映射
var profileStateNames = map[ResearcherProfileState]string{
	ProfileStateAwaitingApproval: "awaiting_approval",
	ProfileStateApproved:         "approved",
	ProfileStateRejected:         "rejected",
}

// String 返回状态的字符串表示
func (s ResearcherProfileState) String() string {
	if name, exists := profileStateNames[s]; exists {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// IsValid 判断状态值是否合法
func (s ResearcherProfileState) IsValid() bool {
	_, exists := profileStateNames[s]
	return exists
}

// MarshalJSON 实现json.Marshaler
func (s ResearcherProfileState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

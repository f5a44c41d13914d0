package program

import (
	"github.com/TheMenageri3/deresearcher-program/internal/errors"
	"github.com/TheMenageri3/deresearcher-program/internal/ledger"
	"github.com/TheMenageri3/deresearcher-program/internal/pda"
	"github.com/TheMenageri3/deresearcher-program/pkg/models"
)

// addPeerReview 添加同行评审
// 账户: 0 reviewer(签名,可写) 1 reviewerProfilePDA(可写) 2 paperPDA(可写) 3 reviewPDA(可写)
//
// 评审记录创建后不可修改，同一(论文, 评审人)组合只能评审一次；
// 平均分超过门槛时论文通过数加一，达到发布门槛时论文进入可发布状态
func (p *Processor) addPeerReview(host ledger.Host, inv *Invocation, args *models.AddPeerReviewArgs) error {
	reviewerAcc, err := inv.account(0)
	if err != nil {
		return err
	}
	profileAcc, err := inv.account(1)
	if err != nil {
		return err
	}
	paperAcc, err := inv.account(2)
	if err != nil {
		return err
	}
	reviewAcc, err := inv.account(3)
	if err != nil {
		return err
	}

	if err := requireSigner(reviewerAcc); err != nil {
		return err
	}
	if err := requireWritable(profileAcc); err != nil {
		return err
	}
	if err := requireWritable(paperAcc); err != nil {
		return err
	}
	if err := requireWritable(reviewAcc); err != nil {
		return err
	}

	profile, err := p.loadProfile(host, profileAcc.Address)
	if err != nil {
		return err
	}
	if !profile.ResearcherPubkey.Equal(reviewerAcc.Address) {
		return errors.ErrPubkeyMismatch.WithAccount(profileAcc.Address.String())
	}
	if profile.State != models.ProfileStateApproved {
		return errors.ErrNotAllowedForPeerReview.WithAccount(profileAcc.Address.String())
	}

	paper, err := p.loadPaper(host, paperAcc.Address)
	if err != nil {
		return err
	}

	// 作者不能评审自己的论文
	if paper.CreatorPubkey.Equal(reviewerAcc.Address) {
		return errors.ErrPublisherCannotAddPeerReview.WithAccount(reviewerAcc.Address.String())
	}

	existing, err := host.Account(reviewAcc.Address)
	if err != nil {
		return err
	}
	if existing.Exists() {
		return errors.ErrPeerReviewAlreadyExists.WithAccount(reviewAcc.Address.String())
	}

	seeds := pda.PeerReviewSeeds(paperAcc.Address, reviewerAcc.Address)
	if err := pda.Validate(seeds, args.PdaBump, p.programID, reviewAcc.Address); err != nil {
		return err
	}

	scores := []uint8{
		args.QualityOfResearch,
		args.PotentialForRealWorldUseCase,
		args.DomainKnowledge,
		args.PracticalityOfResultObtained,
	}
	for _, score := range scores {
		if score > models.MaxReviewScore {
			return errors.ErrSizeOverflow.WithContext("score", score)
		}
	}

	review := &models.PeerReview{
		Address:                      reviewAcc.Address,
		ReviewerPubkey:               reviewerAcc.Address,
		PaperPubkey:                  paperAcc.Address,
		QualityOfResearch:            args.QualityOfResearch,
		PotentialForRealWorldUseCase: args.PotentialForRealWorldUseCase,
		DomainKnowledge:              args.DomainKnowledge,
		PracticalityOfResultObtained: args.PracticalityOfResultObtained,
		MetaDataMerkleRoot:           args.MetaDataMerkleRoot,
		Bump:                         args.PdaBump,
	}

	if paper.State == models.PaperStateAwaitingPeerReview {
		paper.State = models.PaperStateInPeerReview
	}

	if review.AverageScore() > models.ApprovalScoreCutoff {
		if paper.TotalApprovals == models.MaxApprovals {
			return errors.ErrSizeOverflow.WithContext("total_approvals", paper.TotalApprovals)
		}
		paper.TotalApprovals++
		if paper.TotalApprovals >= p.params.MinApprovals {
			paper.State = models.PaperStateApprovedToPublish
		}
	}
	paper.TotalCitations++
	profile.TotalReviews++

	if err := host.CreateAccount(reviewerAcc.Address, reviewAcc.Address, models.PeerReviewSize); err != nil {
		return err
	}

	data, err := review.Encode()
	if err != nil {
		return err
	}
	if err := host.SetData(reviewAcc.Address, data); err != nil {
		return err
	}

	if err := p.writePaper(host, paper); err != nil {
		return err
	}
	return p.writeProfile(host, profile)
}

package program

import (
	"github.com/TheMenageri3/deresearcher-program/internal/errors"
	"github.com/TheMenageri3/deresearcher-program/internal/ledger"
	"github.com/TheMenageri3/deresearcher-program/internal/pda"
	"github.com/TheMenageri3/deresearcher-program/pkg/models"
)

// createResearchPaper 创建论文记录
// 账户: 0 publisher(签名,可写) 1 profilePDA(可写) 2 paperPDA(可写)
func (p *Processor) createResearchPaper(host ledger.Host, inv *Invocation, args *models.CreateResearchPaperArgs) error {
	publisherAcc, err := inv.account(0)
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

	if err := requireSigner(publisherAcc); err != nil {
		return err
	}
	if err := requireWritable(profileAcc); err != nil {
		return err
	}
	if err := requireWritable(paperAcc); err != nil {
		return err
	}

	profile, err := p.loadProfile(host, profileAcc.Address)
	if err != nil {
		return err
	}
	if !profile.ResearcherPubkey.Equal(publisherAcc.Address) {
		return errors.ErrPubkeyMismatch.WithAccount(profileAcc.Address.String())
	}

	existing, err := host.Account(paperAcc.Address)
	if err != nil {
		return err
	}
	if existing.Exists() {
		return errors.ErrPaperAlreadyExists.WithAccount(paperAcc.Address.String())
	}

	seeds := pda.ResearchPaperSeeds(args.PaperContentHash, publisherAcc.Address)
	if err := pda.Validate(seeds, args.PdaBump, p.programID, paperAcc.Address); err != nil {
		return err
	}

	if err := host.CreateAccount(publisherAcc.Address, paperAcc.Address, models.ResearchPaperSize); err != nil {
		return err
	}

	paper := &models.ResearchPaper{
		Address:            paperAcc.Address,
		CreatorPubkey:      publisherAcc.Address,
		State:              models.PaperStateAwaitingPeerReview,
		AccessFee:          args.AccessFee,
		Version:            0,
		PaperContentHash:   args.PaperContentHash,
		MetaDataMerkleRoot: args.MetaDataMerkleRoot,
		Bump:               args.PdaBump,
	}
	if err := p.writePaper(host, paper); err != nil {
		return err
	}

	profile.TotalPapersPublished++
	return p.writeProfile(host, profile)
}

// publishPaper 发布论文
// 账户: 0 publisher(签名) 1 paperPDA(可写)
func (p *Processor) publishPaper(host ledger.Host, inv *Invocation) error {
	publisherAcc, err := inv.account(0)
	if err != nil {
		return err
	}
	paperAcc, err := inv.account(1)
	if err != nil {
		return err
	}

	if err := requireSigner(publisherAcc); err != nil {
		return err
	}
	if err := requireWritable(paperAcc); err != nil {
		return err
	}

	paper, err := p.loadPaper(host, paperAcc.Address)
	if err != nil {
		return err
	}

	// 只有论文创建者能发布
	if !paper.CreatorPubkey.Equal(publisherAcc.Address) {
		return errors.ErrPubkeyMismatch.WithAccount(publisherAcc.Address.String())
	}

	if paper.TotalApprovals < p.params.MinApprovals {
		return errors.ErrNotEnoughApprovals.
			WithContext("approvals", paper.TotalApprovals).
			WithContext("required", p.params.MinApprovals)
	}
	if paper.State != models.PaperStateApprovedToPublish {
		return errors.ErrInvalidState.WithContext("paper_state", paper.State.String())
	}

	paper.State = models.PaperStatePublished
	return p.writePaper(host, paper)
}

// loadPaper 读取并解码论文记录，顺带校验其派生地址
func (p *Processor) loadPaper(host ledger.Host, address models.Pubkey) (*models.ResearchPaper, error) {
	acc, err := host.Account(address)
	if err != nil {
		return nil, err
	}
	if !acc.Exists() {
		return nil, errors.ErrPaperNotFound.WithAccount(address.String())
	}

	paper, err := models.DecodeResearchPaper(acc.Data)
	if err != nil {
		return nil, err
	}

	seeds := pda.ResearchPaperSeeds(paper.PaperContentHash, paper.CreatorPubkey)
	if err := pda.Validate(seeds, paper.Bump, p.programID, address); err != nil {
		return nil, err
	}

	return paper, nil
}

// writePaper 编码并写回论文记录
func (p *Processor) writePaper(host ledger.Host, paper *models.ResearchPaper) error {
	data, err := paper.Encode()
	if err != nil {
		return err
	}
	return host.SetData(paper.Address, data)
}

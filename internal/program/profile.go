package program

import (
	"github.com/TheMenageri3/deresearcher-program/internal/errors"
	"github.com/TheMenageri3/deresearcher-program/internal/ledger"
	"github.com/TheMenageri3/deresearcher-program/internal/pda"
	"github.com/TheMenageri3/deresearcher-program/pkg/codec"
	"github.com/TheMenageri3/deresearcher-program/pkg/models"
)

// createResearcherProfile 创建研究者档案
// 账户: 0 researcher(签名,可写) 1 profilePDA(可写)
func (p *Processor) createResearcherProfile(host ledger.Host, inv *Invocation, args *models.CreateResearcherProfileArgs) error {
	researcherAcc, err := inv.account(0)
	if err != nil {
		return err
	}
	profileAcc, err := inv.account(1)
	if err != nil {
		return err
	}

	if err := requireSigner(researcherAcc); err != nil {
		return err
	}
	if err := requireWritable(profileAcc); err != nil {
		return err
	}

	existing, err := host.Account(profileAcc.Address)
	if err != nil {
		return err
	}
	if existing.Exists() {
		return errors.ErrResearcherProfileAlreadyExists.WithAccount(profileAcc.Address.String())
	}

	seeds := pda.ResearcherProfileSeeds(researcherAcc.Address)
	if err := pda.Validate(seeds, args.PdaBump, p.programID, profileAcc.Address); err != nil {
		return err
	}

	// 容量检查先于任何写入
	if _, err := codec.PackString64(args.Name); err != nil {
		return err
	}

	if err := host.CreateAccount(researcherAcc.Address, profileAcc.Address, models.ResearcherProfileSize); err != nil {
		return err
	}

	profile := &models.ResearcherProfile{
		Address:          profileAcc.Address,
		ResearcherPubkey: researcherAcc.Address,
		Name:             args.Name,
		State:            models.ProfileStateAwaitingApproval,
		Bump:             args.PdaBump,
	}

	return p.writeProfile(host, profile)
}

// checkAndAssignReputation 评定研究者声誉（仅声誉预言机可调用）
// 账户: 0 authority(签名) 1 profilePDA(可写)
func (p *Processor) checkAndAssignReputation(host ledger.Host, inv *Invocation, args *models.CheckAndAssignReputationArgs) error {
	authorityAcc, err := inv.account(0)
	if err != nil {
		return err
	}
	profileAcc, err := inv.account(1)
	if err != nil {
		return err
	}

	if !authorityAcc.Address.Equal(p.params.ReputationAuthority) {
		return errors.ErrInvalidReputationChecker.WithAccount(authorityAcc.Address.String())
	}
	if err := requireSigner(authorityAcc); err != nil {
		return err
	}
	if err := requireWritable(profileAcc); err != nil {
		return err
	}

	profile, err := p.loadProfile(host, profileAcc.Address)
	if err != nil {
		return err
	}

	if args.Reputation > models.MaxReputation {
		return errors.ErrSizeOverflow.WithContext("reputation", args.Reputation)
	}

	// 预言机可以随时重新评定，没有状态防护
	profile.Reputation = args.Reputation
	if args.Reputation > models.MinReputationForPeerReview {
		profile.State = models.ProfileStateApproved
	} else {
		profile.State = models.ProfileStateRejected
	}

	return p.writeProfile(host, profile)
}

// loadProfile 读取并解码研究者档案，顺带校验其派生地址
func (p *Processor) loadProfile(host ledger.Host, address models.Pubkey) (*models.ResearcherProfile, error) {
	acc, err := host.Account(address)
	if err != nil {
		return nil, err
	}
	if !acc.Exists() {
		return nil, errors.ErrResearcherProfileNotFound.WithAccount(address.String())
	}

	profile, err := models.DecodeResearcherProfile(acc.Data)
	if err != nil {
		return nil, err
	}

	seeds := pda.ResearcherProfileSeeds(profile.ResearcherPubkey)
	if err := pda.Validate(seeds, profile.Bump, p.programID, address); err != nil {
		return nil, err
	}

	return profile, nil
}

// writeProfile 编码并写回研究者档案
func (p *Processor) writeProfile(host ledger.Host, profile *models.ResearcherProfile) error {
	data, err := profile.Encode()
	if err != nil {
		return err
	}
	return host.SetData(profile.Address, data)
}

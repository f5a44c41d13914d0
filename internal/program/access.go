package program

import (
	"github.com/TheMenageri3/deresearcher-program/internal/errors"
	"github.com/TheMenageri3/deresearcher-program/internal/ledger"
	"github.com/TheMenageri3/deresearcher-program/internal/pda"
	"github.com/TheMenageri3/deresearcher-program/pkg/models"
)

// getAccessToPaper 读者获取论文访问权
// 账户: 0 reader(签名,可写) 1 readerProfilePDA(可写) 2 mintCollectionPDA(可写)
//       3 paperPDA(可写) 4 feeReceiver(可写)
//
// 读者的铸造记录首次访问时懒创建，之后仅刷新数据摘要；
// 访问费直接转给论文创建者，费用为零时不发生转账
func (p *Processor) getAccessToPaper(host ledger.Host, inv *Invocation, args *models.GetAccessToPaperArgs) error {
	readerAcc, err := inv.account(0)
	if err != nil {
		return err
	}
	profileAcc, err := inv.account(1)
	if err != nil {
		return err
	}
	mintAcc, err := inv.account(2)
	if err != nil {
		return err
	}
	paperAcc, err := inv.account(3)
	if err != nil {
		return err
	}
	feeReceiverAcc, err := inv.account(4)
	if err != nil {
		return err
	}

	if err := requireSigner(readerAcc); err != nil {
		return err
	}
	if err := requireWritable(profileAcc); err != nil {
		return err
	}
	if err := requireWritable(mintAcc); err != nil {
		return err
	}
	if err := requireWritable(paperAcc); err != nil {
		return err
	}
	if err := requireWritable(feeReceiverAcc); err != nil {
		return err
	}

	profile, err := p.loadProfile(host, profileAcc.Address)
	if err != nil {
		return err
	}
	if !profile.ResearcherPubkey.Equal(readerAcc.Address) {
		return errors.ErrPubkeyMismatch.WithAccount(profileAcc.Address.String())
	}

	paper, err := p.loadPaper(host, paperAcc.Address)
	if err != nil {
		return err
	}

	seeds := pda.MintCollectionSeeds(readerAcc.Address)
	if err := pda.Validate(seeds, args.PdaBump, p.programID, mintAcc.Address); err != nil {
		return err
	}

	// 费用必须流向论文创建者
	if !feeReceiverAcc.Address.Equal(paper.CreatorPubkey) {
		return errors.ErrInvalidFeeReceiver.WithAccount(feeReceiverAcc.Address.String())
	}

	if p.params.RequirePublishedForAccess && paper.State != models.PaperStatePublished {
		return errors.ErrInvalidState.WithContext("paper_state", paper.State.String())
	}

	mintRecord, err := host.Account(mintAcc.Address)
	if err != nil {
		return err
	}

	mint := &models.ResearchMintCollection{
		ReaderPubkey:   readerAcc.Address,
		DataMerkleRoot: args.MetaDataMerkleRoot,
		Bump:           args.PdaBump,
	}
	if !mintRecord.Exists() {
		if err := host.CreateAccount(readerAcc.Address, mintAcc.Address, models.ResearchMintCollectionSize); err != nil {
			return err
		}
	} else {
		existing, err := models.DecodeResearchMintCollection(mintRecord.Data)
		if err != nil {
			return err
		}
		mint.Bump = existing.Bump
	}

	data, err := mint.Encode()
	if err != nil {
		return err
	}
	if err := host.SetData(mintAcc.Address, data); err != nil {
		return err
	}

	if paper.AccessFee > 0 {
		if err := host.Transfer(readerAcc.Address, feeReceiverAcc.Address, uint64(paper.AccessFee)); err != nil {
			return err
		}
	}

	paper.TotalCitations++
	paper.TotalMints++
	if err := p.writePaper(host, paper); err != nil {
		return err
	}

	profile.TotalCitations++
	return p.writeProfile(host, profile)
}

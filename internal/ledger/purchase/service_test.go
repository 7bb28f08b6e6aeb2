package purchase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"copyright/internal/ledger/ledgertest"
	"copyright/internal/ledger/models"
	"copyright/internal/ledger/ports"
	"copyright/internal/ledger/store"
	id "copyright/pkg/domain"
	dErrors "copyright/pkg/domain-errors"
	"copyright/pkg/requestcontext"
)

var licenseID = id.LicensedSongIDFor(ledgertest.Buyer, ledgertest.Agreement)

type PurchaseServiceSuite struct {
	suite.Suite
	ctx      context.Context
	registry *store.InMemory
	service  *Service
}

func TestPurchaseServiceSuite(t *testing.T) {
	suite.Run(t, new(PurchaseServiceSuite))
}

func (s *PurchaseServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.registry = store.NewInMemory()
	s.service = New(s.registry)
}

func (s *PurchaseServiceSuite) seed(mutate func(*ledgertest.Network)) {
	n := ledgertest.DefaultNetwork()
	if mutate != nil {
		mutate(&n)
	}
	ledgertest.Seed(s.T(), s.registry, n)
}

func (s *PurchaseServiceSuite) purchase(price string) models.BuySong {
	return models.BuySong{
		TransactionID: "tx-buy-1",
		Timestamp:     time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
		Price:         ledgertest.Dec(price),
		SoldTo:        ledgertest.Buyer,
		AgreementID:   ledgertest.Agreement,
	}
}

func (s *PurchaseServiceSuite) assertDec(expected string, actual interface{ String() string }, msg string) {
	s.Equal(ledgertest.Dec(expected).String(), actual.String(), msg)
}

func (s *PurchaseServiceSuite) TestInsufficientFunds() {
	s.seed(func(n *ledgertest.Network) { n.BuyerBalance = "9.0" })

	_, err := s.service.OnBuySong(s.ctx, s.purchase("10.0"))
	s.Require().ErrorIs(err, models.ErrInsufficientFunds)
	s.Equal("Buyer does not have enough money to buy the song", dErrors.MessageOf(err))

	s.assertDec("9.0", ledgertest.Balance(s.T(), s.registry, ledgertest.Buyer), "buyer untouched")
	s.assertDec("0", ledgertest.Balance(s.T(), s.registry, ledgertest.SongOwner), "owner untouched")
	s.assertDec("0", ledgertest.OrgBalance(s.T(), s.registry, ledgertest.PeaceTones), "seller untouched")
	s.False(ledgertest.LicensedSongExists(s.T(), s.registry, licenseID))
}

func (s *PurchaseServiceSuite) TestSplitsRoyaltiesAndMintsLicense() {
	s.seed(nil)

	receipt, err := s.service.OnBuySong(s.ctx, s.purchase("10.0"))
	s.Require().NoError(err)

	s.assertDec("9.0", ledgertest.Balance(s.T(), s.registry, ledgertest.SongOwner), "owner share")
	s.assertDec("1.0", ledgertest.OrgBalance(s.T(), s.registry, ledgertest.PeaceTones), "seller share")
	s.assertDec("80.0", ledgertest.Balance(s.T(), s.registry, ledgertest.Buyer), "buyer debited")
	s.True(ledgertest.LicensedSongExists(s.T(), s.registry, licenseID))

	s.Equal(id.TransactionID("tx-buy-1"), receipt.TransactionID)
	s.Equal(licenseID, receipt.LicensedSong.ID)
	s.Equal(ledgertest.Buyer, receipt.LicensedSong.OwnerID)
	s.Equal(ledgertest.Agreement, receipt.LicensedSong.AgreementID)
	s.True(receipt.BuyerDebited)
	s.assertDec("9.0", receipt.Split.OwnerShare, "receipt owner share")
	s.assertDec("1.0", receipt.Split.SellerShare, "receipt seller share")
}

func (s *PurchaseServiceSuite) TestLegacyPaymentsLeaveBuyerBalance() {
	s.seed(nil)
	service := New(s.registry, WithPolicy(Policy{DebitBuyer: false}))

	receipt, err := service.OnBuySong(s.ctx, s.purchase("10.0"))
	s.Require().NoError(err)

	s.False(receipt.BuyerDebited)
	s.assertDec("90.0", ledgertest.Balance(s.T(), s.registry, ledgertest.Buyer), "buyer not debited")
	s.assertDec("9.0", ledgertest.Balance(s.T(), s.registry, ledgertest.SongOwner), "owner share")
	s.Len(receipt.Writes, 3)
}

func (s *PurchaseServiceSuite) TestZeroPercentPaysOwnerInFull() {
	s.seed(func(n *ledgertest.Network) {
		n.SellersPercent = "0"
		n.SellerBalance = "5"
	})

	receipt, err := s.service.OnBuySong(s.ctx, s.purchase("10.0"))
	s.Require().NoError(err)

	s.assertDec("10.0", ledgertest.Balance(s.T(), s.registry, ledgertest.SongOwner), "owner receives full price")
	s.assertDec("5", ledgertest.OrgBalance(s.T(), s.registry, ledgertest.PeaceTones), "seller unchanged")
	for _, w := range receipt.Writes {
		s.NotEqual(ports.CollectionOrganizations, w.Collection, "seller skipped")
	}
}

func (s *PurchaseServiceSuite) TestSplitProperties() {
	cases := []struct {
		percent     string
		price       string
		ownerGain   string
		sellerGain  string
		buyerRemain string
	}{
		{"100", "10", "0", "10", "80"},
		{"12.5", "0.3", "0.2625", "0.0375", "89.7"},
		{"33", "90", "60.3", "29.7", "0"},
	}
	for _, tc := range cases {
		s.Run(tc.percent+"% of "+tc.price, func() {
			s.SetupTest()
			s.seed(func(n *ledgertest.Network) { n.SellersPercent = tc.percent })

			_, err := s.service.OnBuySong(s.ctx, s.purchase(tc.price))
			s.Require().NoError(err)

			s.assertDec(tc.ownerGain, ledgertest.Balance(s.T(), s.registry, ledgertest.SongOwner), "owner")
			s.assertDec(tc.sellerGain, ledgertest.OrgBalance(s.T(), s.registry, ledgertest.PeaceTones), "seller")
			s.assertDec(tc.buyerRemain, ledgertest.Balance(s.T(), s.registry, ledgertest.Buyer), "buyer")
		})
	}
}

func (s *PurchaseServiceSuite) TestPriceGuards() {
	s.Run("negative price is rejected before any read", func() {
		s.SetupTest()
		s.seed(nil)
		faulty := ledgertest.NewFaultyRegistry(s.registry)

		_, err := New(faulty).OnBuySong(s.ctx, s.purchase("-1"))
		s.Require().ErrorIs(err, models.ErrInvalidPrice)
		s.Empty(faulty.Calls())
	})

	s.Run("zero price mints a free license", func() {
		s.SetupTest()
		s.seed(nil)

		receipt, err := s.service.OnBuySong(s.ctx, s.purchase("0"))
		s.Require().NoError(err)
		s.True(receipt.Split.OwnerShare.IsZero())
		s.True(ledgertest.LicensedSongExists(s.T(), s.registry, licenseID))
	})
}

func (s *PurchaseServiceSuite) TestRepurchaseConflicts() {
	s.seed(nil)

	_, err := s.service.OnBuySong(s.ctx, s.purchase("10.0"))
	s.Require().NoError(err)

	_, err = s.service.OnBuySong(s.ctx, s.purchase("10.0"))
	s.Require().ErrorIs(err, models.ErrAlreadyLicensed)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.assertDec("9.0", ledgertest.Balance(s.T(), s.registry, ledgertest.SongOwner), "second purchase not applied")
}

func (s *PurchaseServiceSuite) TestMissingReferences() {
	s.Run("unknown buyer", func() {
		s.SetupTest()
		s.seed(nil)
		tx := s.purchase("10")
		tx.SoldTo = "Ghost-Buyer"
		_, err := s.service.OnBuySong(s.ctx, tx)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unknown agreement", func() {
		s.SetupTest()
		s.seed(nil)
		tx := s.purchase("10")
		tx.AgreementID = "SongSellingAgreement-404"
		_, err := s.service.OnBuySong(s.ctx, tx)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("blank references are validation errors", func() {
		s.SetupTest()
		tx := s.purchase("10")
		tx.SoldTo = ""
		_, err := s.service.OnBuySong(s.ctx, tx)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		tx = s.purchase("10")
		tx.AgreementID = ""
		_, err = s.service.OnBuySong(s.ctx, tx)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *PurchaseServiceSuite) TestWriteOrder() {
	s.seed(nil)
	faulty := ledgertest.NewFaultyRegistry(s.registry)

	receipt, err := New(faulty).OnBuySong(s.ctx, s.purchase("10.0"))
	s.Require().NoError(err)

	expected := []ledgertest.Call{
		{Collection: ports.CollectionLicensedSongs, Op: ledgertest.OpAdd, ID: string(licenseID)},
		{Collection: ports.CollectionOrganizations, Op: ledgertest.OpUpdate, ID: string(ledgertest.PeaceTones)},
		{Collection: ports.CollectionPersons, Op: ledgertest.OpUpdate, ID: string(ledgertest.SongOwner)},
		{Collection: ports.CollectionPersons, Op: ledgertest.OpUpdate, ID: string(ledgertest.Buyer)},
	}
	s.Equal(expected, faulty.Writes())

	s.Require().Len(receipt.Writes, len(expected))
	for i, w := range receipt.Writes {
		s.Equal(expected[i].Collection, w.Collection)
		s.Equal(expected[i].ID, w.ID)
	}
}

func (s *PurchaseServiceSuite) TestLaterWriteFailureLeavesNoPartialState() {
	for _, failing := range []ledgertest.Call{
		{Collection: ports.CollectionOrganizations, Op: ledgertest.OpUpdate},
		{Collection: ports.CollectionPersons, Op: ledgertest.OpUpdate, ID: string(ledgertest.SongOwner)},
		{Collection: ports.CollectionPersons, Op: ledgertest.OpUpdate, ID: string(ledgertest.Buyer)},
	} {
		s.Run(failing.String(), func() {
			s.SetupTest()
			s.seed(nil)
			faulty := ledgertest.NewFaultyRegistry(s.registry)
			faulty.FailOn(failing.Collection, failing.Op, failing.ID, errors.New("write timed out"))

			_, err := New(faulty).OnBuySong(s.ctx, s.purchase("10.0"))
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

			s.False(ledgertest.LicensedSongExists(s.T(), s.registry, licenseID), "license rolled back")
			s.assertDec("0", ledgertest.OrgBalance(s.T(), s.registry, ledgertest.PeaceTones), "seller rolled back")
			s.assertDec("0", ledgertest.Balance(s.T(), s.registry, ledgertest.SongOwner), "owner rolled back")
			s.assertDec("90.0", ledgertest.Balance(s.T(), s.registry, ledgertest.Buyer), "buyer rolled back")
		})
	}
}

func (s *PurchaseServiceSuite) TestBuyerOwnsSong() {
	s.seed(nil)
	s.Require().NoError(s.registry.RunInTx(s.ctx, func(ctx context.Context, reg ports.Registry) error {
		song, err := reg.Songs().Get(ctx, ledgertest.Song)
		if err != nil {
			return err
		}
		song.OwnerID = ledgertest.Buyer
		return reg.Songs().Update(ctx, song)
	}))
	faulty := ledgertest.NewFaultyRegistry(s.registry)

	_, err := New(faulty).OnBuySong(s.ctx, s.purchase("10.0"))
	s.Require().NoError(err)

	// 90 - 10 paid + 9 owner share.
	s.assertDec("89.0", ledgertest.Balance(s.T(), s.registry, ledgertest.Buyer), "buyer nets the seller share")
	s.Len(faulty.Writes(), 3, "owner and buyer updates merge")
}

func (s *PurchaseServiceSuite) TestTimestampDefaultsToRequestTime() {
	s.seed(nil)
	at := time.Date(2026, 7, 8, 9, 10, 11, 0, time.UTC)
	tx := s.purchase("10.0")
	tx.Timestamp = time.Time{}

	receipt, err := s.service.OnBuySong(requestcontext.WithTime(s.ctx, at), tx)
	s.Require().NoError(err)
	s.Equal(at, receipt.LicensedSong.LicensedAt)
}

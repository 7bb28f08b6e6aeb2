// Package ledgertest holds registry fixtures and failure injection shared by
// the ledger test suites.
package ledgertest

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"copyright/internal/ledger/models"
	"copyright/internal/ledger/ports"
	id "copyright/pkg/domain"
)

// Well-known fixture IDs, named after the network's sample participants.
const (
	Trustee      id.TrusteeID      = "Trustee-1"
	TrusteeDan   id.PersonID       = "Dan-Selman"
	PeaceTones   id.OrganizationID = "PeaceTones"
	SongOwner    id.PersonID       = "Emmanuel-Smith"
	Song         id.SongID         = "Emmanuels-Song"
	License      id.LicenseID      = "Commercial-License"
	Agreement    id.AgreementID    = "SongSellingAgreement-1"
	Buyer        id.PersonID       = "Song-Buyer"
	UnrealPerson id.PersonID       = "Not-Real"
)

func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Network describes the starting registry state of a test.
type Network struct {
	TrusteeReal    bool
	OrgTrusted     bool
	BuyerBalance   string
	OwnerBalance   string
	SellerBalance  string
	SellersPercent string
}

// DefaultNetwork is the sample network: a real trustee from a trusted
// organization, a buyer with 90.0 and a 10% selling agreement.
func DefaultNetwork() Network {
	return Network{
		TrusteeReal:    true,
		OrgTrusted:     true,
		BuyerBalance:   "90.0",
		OwnerBalance:   "0",
		SellerBalance:  "0",
		SellersPercent: "10.0",
	}
}

// Seed adds the network to reg in one unit of work.
func Seed(t *testing.T, reg ports.RegistryTx, n Network) {
	t.Helper()
	err := reg.RunInTx(context.Background(), func(ctx context.Context, r ports.Registry) error {
		if err := r.Persons().AddAll(ctx, []*models.Person{
			{ID: TrusteeDan, FirstName: "Dan", LastName: "Selman", Real: n.TrusteeReal, Balance: decimal.Zero},
			{ID: SongOwner, FirstName: "Emmanuel", LastName: "Smith", Real: true, Balance: Dec(n.OwnerBalance)},
			{ID: Buyer, FirstName: "Song", LastName: "Buyer", Real: true, Balance: Dec(n.BuyerBalance)},
		}); err != nil {
			return err
		}
		if err := r.Organizations().Add(ctx, &models.Organization{
			ID: PeaceTones, Name: "PeaceTones", Trusted: n.OrgTrusted, Balance: Dec(n.SellerBalance),
		}); err != nil {
			return err
		}
		if err := r.Trustees().Add(ctx, &models.Trustee{ID: Trustee, PersonID: TrusteeDan, OrganizationID: PeaceTones}); err != nil {
			return err
		}
		if err := r.Songs().Add(ctx, &models.Song{
			ID: Song, Name: "Emmanuel's Song", Hash: "9f86d081884c7d65", Copyrighted: true, OwnerID: SongOwner,
		}); err != nil {
			return err
		}
		if err := r.Licenses().Add(ctx, &models.License{ID: License, Type: models.LicenseTypeCommercialUse}); err != nil {
			return err
		}
		return r.Agreements().Add(ctx, &models.SongSellingAgreement{
			ID:             Agreement,
			SongID:         Song,
			SellerID:       PeaceTones,
			LicenseID:      License,
			SellersPercent: Dec(n.SellersPercent),
		})
	})
	require.NoError(t, err)
}

// Balance reads a person's committed balance.
func Balance(t *testing.T, reg ports.RegistryTx, personID id.PersonID) decimal.Decimal {
	t.Helper()
	var balance decimal.Decimal
	err := reg.RunInTx(context.Background(), func(ctx context.Context, r ports.Registry) error {
		p, err := r.Persons().Get(ctx, personID)
		if err != nil {
			return err
		}
		balance = p.Balance
		return nil
	})
	require.NoError(t, err)
	return balance
}

// OrgBalance reads an organization's committed balance.
func OrgBalance(t *testing.T, reg ports.RegistryTx, orgID id.OrganizationID) decimal.Decimal {
	t.Helper()
	var balance decimal.Decimal
	err := reg.RunInTx(context.Background(), func(ctx context.Context, r ports.Registry) error {
		o, err := r.Organizations().Get(ctx, orgID)
		if err != nil {
			return err
		}
		balance = o.Balance
		return nil
	})
	require.NoError(t, err)
	return balance
}

// LicensedSongExists reports whether the license was committed.
func LicensedSongExists(t *testing.T, reg ports.RegistryTx, licenseID id.LicensedSongID) bool {
	t.Helper()
	var exists bool
	err := reg.RunInTx(context.Background(), func(ctx context.Context, r ports.Registry) error {
		var err error
		exists, err = r.LicensedSongs().Exists(ctx, licenseID)
		return err
	})
	require.NoError(t, err)
	return exists
}

package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "copyright/pkg/domain"
	dErrors "copyright/pkg/domain-errors"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNewPerson_Invariants(t *testing.T) {
	t.Run("rejects empty names", func(t *testing.T) {
		_, err := NewPerson("Dan-", "Dan", " ", true, decimal.Zero)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects negative balance", func(t *testing.T) {
		_, err := NewPerson("Song-Buyer", "Song", "Buyer", true, dec("-1"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("trusted person is keyed by name and real", func(t *testing.T) {
		p, err := NewTrustedPerson(" Dan ", "Selman")
		require.NoError(t, err)
		assert.Equal(t, id.PersonID("Dan-Selman"), p.ID)
		assert.Equal(t, "Dan", p.FirstName)
		assert.True(t, p.Real)
		assert.True(t, p.Balance.IsZero())
	})
}

func TestPerson_Funds(t *testing.T) {
	buyer, err := NewPerson("Song-Buyer", "Song", "Buyer", true, dec("9.0"))
	require.NoError(t, err)

	assert.ErrorIs(t, buyer.CanAfford(dec("10.0")), ErrInsufficientFunds)
	assert.NoError(t, buyer.CanAfford(dec("9.0")))

	buyer.ApplyDebit(dec("9.0"))
	assert.True(t, buyer.Balance.IsZero())

	buyer.ApplyCredit(dec("0.5"))
	assert.True(t, dec("0.5").Equal(buyer.Balance))
}

func TestNewSongSellingAgreement_Percent(t *testing.T) {
	for _, pct := range []string{"-0.01", "100.01"} {
		_, err := NewSongSellingAgreement("SongSellingAgreement-1", "Emmanuels-Song", "PeaceTones", "Commercial-License", dec(pct))
		require.Error(t, err, pct)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	}
	for _, pct := range []string{"0", "10", "100"} {
		_, err := NewSongSellingAgreement("SongSellingAgreement-1", "Emmanuels-Song", "PeaceTones", "Commercial-License", dec(pct))
		require.NoError(t, err, pct)
	}
}

func TestSongSellingAgreement_Split(t *testing.T) {
	tests := []struct {
		name        string
		percent     string
		price       string
		ownerShare  string
		sellerShare string
	}{
		{"ten percent of ten", "10", "10", "9", "1"},
		{"zero percent pays owner in full", "0", "10", "10", "0"},
		{"full percent pays seller in full", "100", "10", "0", "10"},
		{"fractional shares stay exact", "12.5", "0.3", "0.2625", "0.0375"},
		{"zero price", "10", "0", "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agreement, err := NewSongSellingAgreement("A-1", "S-1", "O-1", "L-1", dec(tt.percent))
			require.NoError(t, err)

			split := agreement.Split(dec(tt.price))
			assert.True(t, dec(tt.ownerShare).Equal(split.OwnerShare), "owner share %s", split.OwnerShare)
			assert.True(t, dec(tt.sellerShare).Equal(split.SellerShare), "seller share %s", split.SellerShare)
			assert.True(t, dec(tt.price).Equal(split.OwnerShare.Add(split.SellerShare)))
		})
	}
}

func TestNewLicense(t *testing.T) {
	_, err := NewLicense("Commercial-License", "FREE_FOR_ALL")
	require.Error(t, err)

	l, err := NewLicense("Commercial-License", LicenseTypeCommercialUse)
	require.NoError(t, err)
	assert.Equal(t, LicenseTypeCommercialUse, l.Type)
}

func TestNewLicensedSong(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ls, err := NewLicensedSong("Song-Buyer", "SongSellingAgreement-1", dec("10"), now)
	require.NoError(t, err)
	assert.Equal(t, id.LicensedSongID("Song-Buyer-SongSellingAgreement-1"), ls.ID)
	assert.Equal(t, now, ls.LicensedAt)

	_, err = NewLicensedSong("", "SongSellingAgreement-1", dec("10"), now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

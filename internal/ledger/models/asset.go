package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "copyright/pkg/domain"
	dErrors "copyright/pkg/domain-errors"
)

var hundred = decimal.NewFromInt(100)

// Trustee records that an organization vouches for a person being real.
// Trustees are pre-registered and never mutated by transactions.
type Trustee struct {
	ID             id.TrusteeID      `json:"id"`
	PersonID       id.PersonID       `json:"person"`
	OrganizationID id.OrganizationID `json:"organization"`
}

func NewTrustee(trusteeID id.TrusteeID, personID id.PersonID, orgID id.OrganizationID) (*Trustee, error) {
	if trusteeID == "" || personID == "" || orgID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "trustee requires id, person and organization")
	}
	return &Trustee{ID: trusteeID, PersonID: personID, OrganizationID: orgID}, nil
}

// Song is a copyrighted work owned by a person. Purchases pay the owner but do
// not transfer the song record itself.
type Song struct {
	ID          id.SongID   `json:"id"`
	Name        string      `json:"name"`
	Hash        string      `json:"hash"`
	Copyrighted bool        `json:"copyrighted"`
	OwnerID     id.PersonID `json:"owner"`
}

func NewSong(songID id.SongID, name, hash string, copyrighted bool, owner id.PersonID) (*Song, error) {
	name = strings.TrimSpace(name)
	if songID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "song id cannot be empty")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "song name cannot be empty")
	}
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "song owner is required")
	}
	return &Song{ID: songID, Name: name, Hash: hash, Copyrighted: copyrighted, OwnerID: owner}, nil
}

// LicenseType names the rights granted by a license.
type LicenseType string

const (
	LicenseTypeCommercialUse LicenseType = "COMMERCIAL_USE"
	LicenseTypePersonalUse   LicenseType = "PERSONAL_USE"
)

func (t LicenseType) IsValid() bool {
	return t == LicenseTypeCommercialUse || t == LicenseTypePersonalUse
}

// License describes the rights a buyer obtains under an agreement.
type License struct {
	ID   id.LicenseID `json:"id"`
	Type LicenseType  `json:"license_type"`
}

func NewLicense(licenseID id.LicenseID, licenseType LicenseType) (*License, error) {
	if licenseID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "license id cannot be empty")
	}
	if !licenseType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unsupported license type: "+string(licenseType))
	}
	return &License{ID: licenseID, Type: licenseType}, nil
}

// SongSellingAgreement authorizes an organization to sell licenses for a song
// and fixes the seller's share of every sale.
//
// Invariants:
//   - SellersPercent is within [0, 100]
//   - SongID, SellerID and LicenseID reference existing records
type SongSellingAgreement struct {
	ID             id.AgreementID    `json:"id"`
	SongID         id.SongID         `json:"song"`
	SellerID       id.OrganizationID `json:"song_seller"`
	LicenseID      id.LicenseID      `json:"license"`
	SellersPercent decimal.Decimal   `json:"sellers_percent"`
}

func NewSongSellingAgreement(
	agreementID id.AgreementID,
	songID id.SongID,
	seller id.OrganizationID,
	licenseID id.LicenseID,
	sellersPercent decimal.Decimal,
) (*SongSellingAgreement, error) {
	if agreementID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "agreement id cannot be empty")
	}
	if songID == "" || seller == "" || licenseID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "agreement requires song, seller and license")
	}
	if sellersPercent.IsNegative() || sellersPercent.GreaterThan(hundred) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "sellers percent must be between 0 and 100")
	}
	return &SongSellingAgreement{
		ID:             agreementID,
		SongID:         songID,
		SellerID:       seller,
		LicenseID:      licenseID,
		SellersPercent: sellersPercent,
	}, nil
}

// Split divides price between the song owner and the seller. A zero percent
// agreement pays the owner in full.
func (a *SongSellingAgreement) Split(price decimal.Decimal) Split {
	if !a.SellersPercent.IsPositive() {
		return Split{OwnerShare: price, SellerShare: decimal.Zero}
	}
	sellerShare := price.Mul(a.SellersPercent).Div(hundred)
	return Split{
		OwnerShare:  price.Sub(sellerShare),
		SellerShare: sellerShare,
	}
}

// Split is the royalty division of one sale.
type Split struct {
	OwnerShare  decimal.Decimal `json:"owner_share"`
	SellerShare decimal.Decimal `json:"seller_share"`
}

// PaysSeller reports whether the seller organization receives anything.
func (s Split) PaysSeller() bool {
	return s.SellerShare.IsPositive()
}

// LicensedSong is the durable proof that a buyer licensed a song under an
// agreement. Its ID is derived from the pair, so each buyer holds at most one
// license per agreement.
type LicensedSong struct {
	ID          id.LicensedSongID `json:"id"`
	OwnerID     id.PersonID       `json:"owner"`
	AgreementID id.AgreementID    `json:"song_selling_agreement"`
	Price       decimal.Decimal   `json:"price"`
	LicensedAt  time.Time         `json:"licensed_at"`
}

func NewLicensedSong(buyer id.PersonID, agreement id.AgreementID, price decimal.Decimal, now time.Time) (*LicensedSong, error) {
	if buyer.IsZero() || agreement == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "licensed song requires buyer and agreement")
	}
	if price.IsNegative() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "licensed song price cannot be negative")
	}
	return &LicensedSong{
		ID:          id.LicensedSongIDFor(buyer, agreement),
		OwnerID:     buyer,
		AgreementID: agreement,
		Price:       price,
		LicensedAt:  now,
	}, nil
}

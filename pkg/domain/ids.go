package domain

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	dErrors "copyright/pkg/domain-errors"
)

// maxIDLength bounds identifiers accepted at trust boundaries.
const maxIDLength = 256

// Registry identifiers are natural keys chosen by the network (e.g.
// "Emmanuel-Smith", "SongSellingAgreement-1"), so they are strings rather than
// UUIDs. Each entity gets its own type so a person ID can never be passed where
// an organization ID is expected.
type (
	PersonID       string
	OrganizationID string
	TrusteeID      string
	SongID         string
	LicenseID      string
	AgreementID    string
	LicensedSongID string
	TransactionID  string
)

func (id PersonID) String() string       { return string(id) }
func (id OrganizationID) String() string { return string(id) }
func (id TrusteeID) String() string      { return string(id) }
func (id SongID) String() string         { return string(id) }
func (id LicenseID) String() string      { return string(id) }
func (id AgreementID) String() string    { return string(id) }
func (id LicensedSongID) String() string { return string(id) }
func (id TransactionID) String() string  { return string(id) }

func (id PersonID) IsZero() bool      { return id == "" }
func (id TransactionID) IsZero() bool { return id == "" }

// PersonIDFor derives the registry key of a person registered by name.
func PersonIDFor(firstName, lastName string) PersonID {
	return PersonID(firstName + "-" + lastName)
}

// LicensedSongIDFor derives the key of the license minted when buyer purchases
// under agreement. One key per (buyer, agreement) pair.
func LicensedSongIDFor(buyer PersonID, agreement AgreementID) LicensedSongID {
	return LicensedSongID(string(buyer) + "-" + string(agreement))
}

// NewTransactionID returns a fresh random transaction identifier.
func NewTransactionID() TransactionID {
	return TransactionID(uuid.NewString())
}

func ParsePersonID(s string) (PersonID, error) {
	v, err := parseID("person", s)
	return PersonID(v), err
}

func ParseOrganizationID(s string) (OrganizationID, error) {
	v, err := parseID("organization", s)
	return OrganizationID(v), err
}

func ParseTrusteeID(s string) (TrusteeID, error) {
	v, err := parseID("trustee", s)
	return TrusteeID(v), err
}

func ParseSongID(s string) (SongID, error) {
	v, err := parseID("song", s)
	return SongID(v), err
}

func ParseLicenseID(s string) (LicenseID, error) {
	v, err := parseID("license", s)
	return LicenseID(v), err
}

func ParseAgreementID(s string) (AgreementID, error) {
	v, err := parseID("song selling agreement", s)
	return AgreementID(v), err
}

func ParseLicensedSongID(s string) (LicensedSongID, error) {
	v, err := parseID("licensed song", s)
	return LicensedSongID(v), err
}

// ParseTransactionID accepts any well-formed identifier; transaction IDs
// generated here are UUIDs but hosts may supply their own.
func ParseTransactionID(s string) (TransactionID, error) {
	v, err := parseID("transaction", s)
	return TransactionID(v), err
}

// parseID enforces the shared identifier rules: non-blank, bounded length,
// printable characters only.
func parseID(kind, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be empty")
	}
	if len(s) > maxIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" id is too long")
	}
	for _, r := range s {
		if !unicode.IsPrint(r) || r == '/' {
			return "", dErrors.New(dErrors.CodeInvalidInput, kind+" id contains invalid characters")
		}
	}
	return s, nil
}

package models

import (
	"strings"

	"github.com/shopspring/decimal"

	id "copyright/pkg/domain"
	dErrors "copyright/pkg/domain-errors"
)

// Person is a network participant able to hold funds and own songs.
//
// Invariants:
//   - FirstName and LastName are non-empty
//   - Balance is never negative
//   - Real is only set by a successful trust registration or a bootstrap fixture
type Person struct {
	ID        id.PersonID     `json:"id"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Real      bool            `json:"real"`
	Balance   decimal.Decimal `json:"balance"`
}

// NewPerson builds a person keyed by the caller-chosen ID.
func NewPerson(personID id.PersonID, firstName, lastName string, real bool, balance decimal.Decimal) (*Person, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if personID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "person id cannot be empty")
	}
	if firstName == "" || lastName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "person first and last name are required")
	}
	if balance.IsNegative() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "person balance cannot be negative")
	}
	return &Person{
		ID:        personID,
		FirstName: firstName,
		LastName:  lastName,
		Real:      real,
		Balance:   balance,
	}, nil
}

// NewTrustedPerson builds the record created by a trust registration:
// keyed by "firstName-lastName", real, zero balance.
func NewTrustedPerson(firstName, lastName string) (*Person, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	return NewPerson(id.PersonIDFor(firstName, lastName), firstName, lastName, true, decimal.Zero)
}

// CanAfford checks the buyer precondition of a purchase.
func (p *Person) CanAfford(price decimal.Decimal) error {
	if p.Balance.LessThan(price) {
		return ErrInsufficientFunds
	}
	return nil
}

// ApplyDebit removes amount from the balance. Call CanAfford first.
func (p *Person) ApplyDebit(amount decimal.Decimal) {
	p.Balance = p.Balance.Sub(amount)
}

// ApplyCredit adds amount to the balance.
func (p *Person) ApplyCredit(amount decimal.Decimal) {
	p.Balance = p.Balance.Add(amount)
}

// Organization is a participant that vouches for people and sells songs.
type Organization struct {
	ID      id.OrganizationID `json:"id"`
	Name    string            `json:"name"`
	Trusted bool              `json:"trusted"`
	Balance decimal.Decimal   `json:"balance"`
}

func NewOrganization(orgID id.OrganizationID, name string, trusted bool, balance decimal.Decimal) (*Organization, error) {
	name = strings.TrimSpace(name)
	if orgID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "organization id cannot be empty")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "organization name cannot be empty")
	}
	if balance.IsNegative() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "organization balance cannot be negative")
	}
	return &Organization{ID: orgID, Name: name, Trusted: trusted, Balance: balance}, nil
}

// ApplyCredit adds a seller's share to the balance.
func (o *Organization) ApplyCredit(amount decimal.Decimal) {
	o.Balance = o.Balance.Add(amount)
}

package handler

import (
	"github.com/shopspring/decimal"

	"copyright/internal/ledger/models"
	id "copyright/pkg/domain"
	dErrors "copyright/pkg/domain-errors"
)

// TrustPersonRequest is the body of POST /transactions/trust-person.
type TrustPersonRequest struct {
	TransactionID string `json:"transaction_id,omitempty"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Trustee       string `json:"trustee"`
}

// Transaction validates the request shape and builds the transaction.
func (r TrustPersonRequest) Transaction() (models.TrustPerson, error) {
	txID, err := optionalTransactionID(r.TransactionID)
	if err != nil {
		return models.TrustPerson{}, err
	}
	trustee, err := id.ParseTrusteeID(r.Trustee)
	if err != nil {
		return models.TrustPerson{}, err
	}
	return models.TrustPerson{
		TransactionID: txID,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		TrusteeID:     trustee,
	}, nil
}

// BuySongRequest is the body of POST /transactions/buy-song. Price accepts a
// JSON number or a decimal string.
type BuySongRequest struct {
	TransactionID string           `json:"transaction_id,omitempty"`
	Price         *decimal.Decimal `json:"price"`
	SoldTo        string           `json:"sold_to"`
	Agreement     string           `json:"song_selling_agreement"`
}

// Transaction validates the request shape and builds the transaction.
func (r BuySongRequest) Transaction() (models.BuySong, error) {
	txID, err := optionalTransactionID(r.TransactionID)
	if err != nil {
		return models.BuySong{}, err
	}
	if r.Price == nil {
		return models.BuySong{}, dErrors.New(dErrors.CodeInvalidInput, "price is required")
	}
	buyer, err := id.ParsePersonID(r.SoldTo)
	if err != nil {
		return models.BuySong{}, err
	}
	agreement, err := id.ParseAgreementID(r.Agreement)
	if err != nil {
		return models.BuySong{}, err
	}
	return models.BuySong{
		TransactionID: txID,
		Price:         *r.Price,
		SoldTo:        buyer,
		AgreementID:   agreement,
	}, nil
}

func optionalTransactionID(s string) (id.TransactionID, error) {
	if s == "" {
		return "", nil
	}
	return id.ParseTransactionID(s)
}

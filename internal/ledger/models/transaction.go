package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "copyright/pkg/domain"
)

// TransactionType names the transactions understood by the network.
type TransactionType string

const (
	TransactionTrustPerson TransactionType = "TrustPerson"
	TransactionBuySong     TransactionType = "BuySong"
)

// TrustPerson asks the network to register a new real person on the
// authority of an existing trustee.
type TrustPerson struct {
	TransactionID id.TransactionID `json:"transaction_id"`
	Timestamp     time.Time        `json:"timestamp"`
	FirstName     string           `json:"first_name"`
	LastName      string           `json:"last_name"`
	TrusteeID     id.TrusteeID     `json:"trustee"`
}

// BuySong pays price to license a song under a selling agreement.
type BuySong struct {
	TransactionID id.TransactionID `json:"transaction_id"`
	Timestamp     time.Time        `json:"timestamp"`
	Price         decimal.Decimal  `json:"price"`
	SoldTo        id.PersonID      `json:"sold_to"`
	AgreementID   id.AgreementID   `json:"song_selling_agreement"`
}

// WriteOp is the kind of registry mutation issued by a handler.
type WriteOp string

const (
	WriteAdd    WriteOp = "add"
	WriteUpdate WriteOp = "update"
)

// Write records one registry mutation in issue order.
type Write struct {
	Collection string  `json:"collection"`
	ID         string  `json:"id"`
	Op         WriteOp `json:"op"`
}

// Receipt is the outcome of an applied purchase.
type Receipt struct {
	TransactionID id.TransactionID `json:"transaction_id"`
	LicensedSong  *LicensedSong    `json:"licensed_song"`
	Split         Split            `json:"split"`
	BuyerDebited  bool             `json:"buyer_debited"`
	Writes        []Write          `json:"writes"`
}

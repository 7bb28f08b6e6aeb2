// Package ports declares the registry collaborator the transaction handlers
// depend on. Implementations live in internal/ledger/store; handlers only ever
// see these interfaces.
package ports

import (
	"context"

	"copyright/internal/ledger/models"
	id "copyright/pkg/domain"
)

// Collection is keyed CRUD over one record type.
//
// Errors: Get and Update return sentinel.ErrNotFound for an unknown ID; Add
// returns sentinel.ErrConflict when the ID is taken. AddAll applies every
// record or none. Infrastructure failures are returned wrapped.
type Collection[K ~string, T any] interface {
	Get(ctx context.Context, key K) (*T, error)
	Add(ctx context.Context, record *T) error
	AddAll(ctx context.Context, records []*T) error
	Update(ctx context.Context, record *T) error
	Exists(ctx context.Context, key K) (bool, error)
}

// Registry groups the participant and asset collections of the network.
// Relationships between records are stored as IDs and resolved by reading
// the referenced collection.
type Registry interface {
	Persons() Collection[id.PersonID, models.Person]
	Organizations() Collection[id.OrganizationID, models.Organization]
	Trustees() Collection[id.TrusteeID, models.Trustee]
	Songs() Collection[id.SongID, models.Song]
	Licenses() Collection[id.LicenseID, models.License]
	Agreements() Collection[id.AgreementID, models.SongSellingAgreement]
	LicensedSongs() Collection[id.LicensedSongID, models.LicensedSong]
}

// RegistryTx is the unit of work around one transaction. Writes issued through
// the registry handed to fn are committed together when fn returns nil and
// discarded otherwise.
type RegistryTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, reg Registry) error) error
}

// Collection names, used in receipts, logs and storage keys.
const (
	CollectionPersons       = "persons"
	CollectionOrganizations = "organizations"
	CollectionTrustees      = "trustees"
	CollectionSongs         = "songs"
	CollectionLicenses      = "licenses"
	CollectionAgreements    = "song_selling_agreements"
	CollectionLicensedSongs = "licensed_songs"
)

package store

import (
	"context"

	"copyright/internal/ledger/models"
	"copyright/internal/ledger/ports"
	id "copyright/pkg/domain"
)

// autoCommitRegistry runs every collection call in its own unit of work.
type autoCommitRegistry struct {
	tx ports.RegistryTx
}

func (r autoCommitRegistry) Persons() ports.Collection[id.PersonID, models.Person] {
	return autoCommit[id.PersonID, models.Person]{tx: r.tx, pick: ports.Registry.Persons}
}

func (r autoCommitRegistry) Organizations() ports.Collection[id.OrganizationID, models.Organization] {
	return autoCommit[id.OrganizationID, models.Organization]{tx: r.tx, pick: ports.Registry.Organizations}
}

func (r autoCommitRegistry) Trustees() ports.Collection[id.TrusteeID, models.Trustee] {
	return autoCommit[id.TrusteeID, models.Trustee]{tx: r.tx, pick: ports.Registry.Trustees}
}

func (r autoCommitRegistry) Songs() ports.Collection[id.SongID, models.Song] {
	return autoCommit[id.SongID, models.Song]{tx: r.tx, pick: ports.Registry.Songs}
}

func (r autoCommitRegistry) Licenses() ports.Collection[id.LicenseID, models.License] {
	return autoCommit[id.LicenseID, models.License]{tx: r.tx, pick: ports.Registry.Licenses}
}

func (r autoCommitRegistry) Agreements() ports.Collection[id.AgreementID, models.SongSellingAgreement] {
	return autoCommit[id.AgreementID, models.SongSellingAgreement]{tx: r.tx, pick: ports.Registry.Agreements}
}

func (r autoCommitRegistry) LicensedSongs() ports.Collection[id.LicensedSongID, models.LicensedSong] {
	return autoCommit[id.LicensedSongID, models.LicensedSong]{tx: r.tx, pick: ports.Registry.LicensedSongs}
}

type autoCommit[K ~string, T any] struct {
	tx   ports.RegistryTx
	pick func(ports.Registry) ports.Collection[K, T]
}

func (c autoCommit[K, T]) run(ctx context.Context, fn func(ctx context.Context, col ports.Collection[K, T]) error) error {
	return c.tx.RunInTx(ctx, func(ctx context.Context, reg ports.Registry) error {
		return fn(ctx, c.pick(reg))
	})
}

func (c autoCommit[K, T]) Get(ctx context.Context, key K) (*T, error) {
	var record *T
	err := c.run(ctx, func(ctx context.Context, col ports.Collection[K, T]) error {
		var err error
		record, err = col.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (c autoCommit[K, T]) Add(ctx context.Context, record *T) error {
	return c.run(ctx, func(ctx context.Context, col ports.Collection[K, T]) error {
		return col.Add(ctx, record)
	})
}

func (c autoCommit[K, T]) AddAll(ctx context.Context, records []*T) error {
	return c.run(ctx, func(ctx context.Context, col ports.Collection[K, T]) error {
		return col.AddAll(ctx, records)
	})
}

func (c autoCommit[K, T]) Update(ctx context.Context, record *T) error {
	return c.run(ctx, func(ctx context.Context, col ports.Collection[K, T]) error {
		return col.Update(ctx, record)
	})
}

func (c autoCommit[K, T]) Exists(ctx context.Context, key K) (bool, error) {
	var exists bool
	err := c.run(ctx, func(ctx context.Context, col ports.Collection[K, T]) error {
		var err error
		exists, err = col.Exists(ctx, key)
		return err
	})
	return exists, err
}

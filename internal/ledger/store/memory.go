package store

import (
	"context"
	"fmt"
	"time"

	"copyright/internal/ledger/models"
	"copyright/internal/ledger/ports"
	id "copyright/pkg/domain"
	dErrors "copyright/pkg/domain-errors"
	"copyright/pkg/platform/sentinel"
)

// defaultTxTimeout is the maximum duration of a unit of work when the caller
// did not set a deadline.
const defaultTxTimeout = 5 * time.Second

// InMemory is a registry held in process memory.
//
// Units of work are serialized: a transaction touches several participants at
// once (buyer, owner, seller), so a single registry-wide slot is held for the
// whole callback. Writes are staged and applied only when the callback
// succeeds.
type InMemory struct {
	slot    chan struct{}
	timeout time.Duration

	persons       *table[id.PersonID, models.Person]
	organizations *table[id.OrganizationID, models.Organization]
	trustees      *table[id.TrusteeID, models.Trustee]
	songs         *table[id.SongID, models.Song]
	licenses      *table[id.LicenseID, models.License]
	agreements    *table[id.AgreementID, models.SongSellingAgreement]
	licensedSongs *table[id.LicensedSongID, models.LicensedSong]
}

// InMemoryOption configures an InMemory registry.
type InMemoryOption func(*InMemory)

// WithTxTimeout overrides the default unit-of-work timeout.
func WithTxTimeout(timeout time.Duration) InMemoryOption {
	return func(s *InMemory) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

func NewInMemory(opts ...InMemoryOption) *InMemory {
	s := &InMemory{
		slot:    make(chan struct{}, 1),
		timeout: defaultTxTimeout,

		persons: newTable(ports.CollectionPersons, func(p *models.Person) id.PersonID { return p.ID }),
		organizations: newTable(ports.CollectionOrganizations,
			func(o *models.Organization) id.OrganizationID { return o.ID }),
		trustees: newTable(ports.CollectionTrustees, func(t *models.Trustee) id.TrusteeID { return t.ID }),
		songs:    newTable(ports.CollectionSongs, func(s *models.Song) id.SongID { return s.ID }),
		licenses: newTable(ports.CollectionLicenses, func(l *models.License) id.LicenseID { return l.ID }),
		agreements: newTable(ports.CollectionAgreements,
			func(a *models.SongSellingAgreement) id.AgreementID { return a.ID }),
		licensedSongs: newTable(ports.CollectionLicensedSongs,
			func(l *models.LicensedSong) id.LicensedSongID { return l.ID }),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunInTx runs fn against a staged view of the registry and applies the staged
// writes when fn returns nil.
func (s *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context, reg ports.Registry) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "transaction aborted: registry busy")
	}
	defer func() { <-s.slot }()

	staged := &stagedRegistry{
		persons:       newStaged(s.persons),
		organizations: newStaged(s.organizations),
		trustees:      newStaged(s.trustees),
		songs:         newStaged(s.songs),
		licenses:      newStaged(s.licenses),
		agreements:    newStaged(s.agreements),
		licensedSongs: newStaged(s.licensedSongs),
	}
	if err := fn(ctx, staged); err != nil {
		return err
	}
	// A deadline that passed while fn ran discards its writes.
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before commit")
	}
	staged.commit()
	return nil
}

// Registry returns a view whose every call is its own unit of work. Use it for
// reads and one-off writes outside a transaction handler.
func (s *InMemory) Registry() ports.Registry {
	return autoCommitRegistry{tx: s}
}

// table is the committed state of one collection. Rows are stored by value so
// callers never alias committed records.
type table[K ~string, T any] struct {
	name  string
	keyOf func(*T) K
	rows  map[K]T
}

func newTable[K ~string, T any](name string, keyOf func(*T) K) *table[K, T] {
	return &table[K, T]{name: name, keyOf: keyOf, rows: make(map[K]T)}
}

// staged buffers the writes of one unit of work on top of a table. The
// registry slot is held for its whole lifetime, so the table is read without
// further locking.
type staged[K ~string, T any] struct {
	base    *table[K, T]
	pending map[K]T
	order   []K
}

func newStaged[K ~string, T any](base *table[K, T]) *staged[K, T] {
	return &staged[K, T]{base: base, pending: make(map[K]T)}
}

func (c *staged[K, T]) lookup(key K) (T, bool) {
	if row, ok := c.pending[key]; ok {
		return row, true
	}
	row, ok := c.base.rows[key]
	return row, ok
}

func (c *staged[K, T]) put(key K, row T) {
	if _, ok := c.pending[key]; !ok {
		c.order = append(c.order, key)
	}
	c.pending[key] = row
}

func (c *staged[K, T]) Get(_ context.Context, key K) (*T, error) {
	row, ok := c.lookup(key)
	if !ok {
		return nil, fmt.Errorf("%s %q: %w", c.base.name, key, sentinel.ErrNotFound)
	}
	return &row, nil
}

func (c *staged[K, T]) Add(_ context.Context, record *T) error {
	if record == nil {
		return fmt.Errorf("%s: record is required", c.base.name)
	}
	key := c.base.keyOf(record)
	if _, ok := c.lookup(key); ok {
		return fmt.Errorf("%s %q: %w", c.base.name, key, sentinel.ErrConflict)
	}
	c.put(key, *record)
	return nil
}

func (c *staged[K, T]) AddAll(_ context.Context, records []*T) error {
	seen := make(map[K]struct{}, len(records))
	for _, record := range records {
		if record == nil {
			return fmt.Errorf("%s: record is required", c.base.name)
		}
		key := c.base.keyOf(record)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%s %q: %w", c.base.name, key, sentinel.ErrConflict)
		}
		if _, ok := c.lookup(key); ok {
			return fmt.Errorf("%s %q: %w", c.base.name, key, sentinel.ErrConflict)
		}
		seen[key] = struct{}{}
	}
	for _, record := range records {
		c.put(c.base.keyOf(record), *record)
	}
	return nil
}

func (c *staged[K, T]) Update(_ context.Context, record *T) error {
	if record == nil {
		return fmt.Errorf("%s: record is required", c.base.name)
	}
	key := c.base.keyOf(record)
	if _, ok := c.lookup(key); !ok {
		return fmt.Errorf("%s %q: %w", c.base.name, key, sentinel.ErrNotFound)
	}
	c.put(key, *record)
	return nil
}

func (c *staged[K, T]) Exists(_ context.Context, key K) (bool, error) {
	_, ok := c.lookup(key)
	return ok, nil
}

func (c *staged[K, T]) commit() {
	for _, key := range c.order {
		c.base.rows[key] = c.pending[key]
	}
}

type stagedRegistry struct {
	persons       *staged[id.PersonID, models.Person]
	organizations *staged[id.OrganizationID, models.Organization]
	trustees      *staged[id.TrusteeID, models.Trustee]
	songs         *staged[id.SongID, models.Song]
	licenses      *staged[id.LicenseID, models.License]
	agreements    *staged[id.AgreementID, models.SongSellingAgreement]
	licensedSongs *staged[id.LicensedSongID, models.LicensedSong]
}

func (r *stagedRegistry) Persons() ports.Collection[id.PersonID, models.Person] {
	return r.persons
}

func (r *stagedRegistry) Organizations() ports.Collection[id.OrganizationID, models.Organization] {
	return r.organizations
}

func (r *stagedRegistry) Trustees() ports.Collection[id.TrusteeID, models.Trustee] {
	return r.trustees
}

func (r *stagedRegistry) Songs() ports.Collection[id.SongID, models.Song] {
	return r.songs
}

func (r *stagedRegistry) Licenses() ports.Collection[id.LicenseID, models.License] {
	return r.licenses
}

func (r *stagedRegistry) Agreements() ports.Collection[id.AgreementID, models.SongSellingAgreement] {
	return r.agreements
}

func (r *stagedRegistry) LicensedSongs() ports.Collection[id.LicensedSongID, models.LicensedSong] {
	return r.licensedSongs
}

// commit applies every staged collection. It cannot fail: all conflicts were
// detected while staging.
func (r *stagedRegistry) commit() {
	r.persons.commit()
	r.organizations.commit()
	r.trustees.commit()
	r.songs.commit()
	r.licenses.commit()
	r.agreements.commit()
	r.licensedSongs.commit()
}

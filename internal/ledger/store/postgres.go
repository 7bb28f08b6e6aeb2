package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"copyright/internal/ledger/models"
	"copyright/internal/ledger/ports"
	id "copyright/pkg/domain"
	dErrors "copyright/pkg/domain-errors"
	"copyright/pkg/platform/sentinel"
	"copyright/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
)

// PostgresRegistry persists the registry in PostgreSQL. Collections pick up
// the unit-of-work transaction from context (pkg/platform/tx) and fall back to
// the pool for standalone calls.
type PostgresRegistry struct {
	db      *sql.DB
	timeout time.Duration

	persons       pgCollection[id.PersonID, models.Person]
	organizations pgCollection[id.OrganizationID, models.Organization]
	trustees      pgCollection[id.TrusteeID, models.Trustee]
	songs         pgCollection[id.SongID, models.Song]
	licenses      pgCollection[id.LicenseID, models.License]
	agreements    pgCollection[id.AgreementID, models.SongSellingAgreement]
	licensedSongs pgCollection[id.LicensedSongID, models.LicensedSong]
}

// NewPostgres constructs a PostgreSQL-backed registry.
func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresRegistry {
	r := &PostgresRegistry{
		db:      db,
		timeout: defaultTxTimeout,

		persons:       pgCollection[id.PersonID, models.Person]{db: db, table: personsTable},
		organizations: pgCollection[id.OrganizationID, models.Organization]{db: db, table: organizationsTable},
		trustees:      pgCollection[id.TrusteeID, models.Trustee]{db: db, table: trusteesTable},
		songs:         pgCollection[id.SongID, models.Song]{db: db, table: songsTable},
		licenses:      pgCollection[id.LicenseID, models.License]{db: db, table: licensesTable},
		agreements:    pgCollection[id.AgreementID, models.SongSellingAgreement]{db: db, table: agreementsTable},
		licensedSongs: pgCollection[id.LicensedSongID, models.LicensedSong]{db: db, table: licensedSongsTable},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PostgresOption configures a PostgresRegistry.
type PostgresOption func(*PostgresRegistry)

// WithPostgresTxTimeout overrides the default unit-of-work timeout.
func WithPostgresTxTimeout(timeout time.Duration) PostgresOption {
	return func(r *PostgresRegistry) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// Migrate creates the registry tables when they do not exist.
func (r *PostgresRegistry) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate registry schema: %w", err)
	}
	return nil
}

// RunInTx runs fn inside a serializable SQL transaction. Any error from fn
// rolls back every write fn issued.
func (r *PostgresRegistry) RunInTx(ctx context.Context, fn func(ctx context.Context, reg ports.Registry) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	sqlTx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to open registry transaction")
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(tx.WithTx(ctx, sqlTx), r); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return commitFailure(err)
	}
	return nil
}

// Registry returns the registry for standalone calls.
func (r *PostgresRegistry) Registry() ports.Registry {
	return r
}

func (r *PostgresRegistry) Persons() ports.Collection[id.PersonID, models.Person] {
	return r.persons
}

func (r *PostgresRegistry) Organizations() ports.Collection[id.OrganizationID, models.Organization] {
	return r.organizations
}

func (r *PostgresRegistry) Trustees() ports.Collection[id.TrusteeID, models.Trustee] {
	return r.trustees
}

func (r *PostgresRegistry) Songs() ports.Collection[id.SongID, models.Song] {
	return r.songs
}

func (r *PostgresRegistry) Licenses() ports.Collection[id.LicenseID, models.License] {
	return r.licenses
}

func (r *PostgresRegistry) Agreements() ports.Collection[id.AgreementID, models.SongSellingAgreement] {
	return r.agreements
}

func (r *PostgresRegistry) LicensedSongs() ports.Collection[id.LicensedSongID, models.LicensedSong] {
	return r.licensedSongs
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// pgTable maps one record type onto a table. columns[0] is the primary key
// and values must return arguments in column order.
type pgTable[K ~string, T any] struct {
	name    string
	columns []string
	keyOf   func(*T) K
	values  func(*T) []any
	scan    func(rowScanner) (*T, error)
}

type pgCollection[K ~string, T any] struct {
	db    *sql.DB
	table pgTable[K, T]
}

func (c pgCollection[K, T]) conn(ctx context.Context) queryer {
	if sqlTx, ok := tx.From(ctx); ok {
		return sqlTx
	}
	return c.db
}

func (c pgCollection[K, T]) Get(ctx context.Context, key K) (*T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1",
		strings.Join(c.table.columns, ", "), c.table.name)
	record, err := c.table.scan(c.conn(ctx).QueryRowContext(ctx, query, string(key)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s %q: %w", c.table.name, key, sentinel.ErrNotFound)
		}
		return nil, c.failed("get", string(key), err)
	}
	return record, nil
}

func (c pgCollection[K, T]) Add(ctx context.Context, record *T) error {
	if record == nil {
		return fmt.Errorf("%s: record is required", c.table.name)
	}
	return c.insert(ctx, c.conn(ctx), record)
}

func (c pgCollection[K, T]) AddAll(ctx context.Context, records []*T) error {
	if _, inTx := tx.From(ctx); inTx {
		return c.insertAll(ctx, c.conn(ctx), records)
	}
	sqlTx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add all %s: %w", c.table.name, err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()
	if err := c.insertAll(ctx, sqlTx, records); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("add all %s: %w", c.table.name, err)
	}
	return nil
}

func (c pgCollection[K, T]) insertAll(ctx context.Context, q queryer, records []*T) error {
	for _, record := range records {
		if record == nil {
			return fmt.Errorf("%s: record is required", c.table.name)
		}
		if err := c.insert(ctx, q, record); err != nil {
			return err
		}
	}
	return nil
}

func (c pgCollection[K, T]) insert(ctx context.Context, q queryer, record *T) error {
	placeholders := make([]string, len(c.table.columns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		c.table.name, strings.Join(c.table.columns, ", "), strings.Join(placeholders, ", "))
	if _, err := q.ExecContext(ctx, query, c.table.values(record)...); err != nil {
		if isPQCode(err, pqUniqueViolation) {
			return fmt.Errorf("%s %q: %w", c.table.name, c.table.keyOf(record), sentinel.ErrConflict)
		}
		return c.failed("add", string(c.table.keyOf(record)), err)
	}
	return nil
}

func (c pgCollection[K, T]) Update(ctx context.Context, record *T) error {
	if record == nil {
		return fmt.Errorf("%s: record is required", c.table.name)
	}
	assignments := make([]string, 0, len(c.table.columns)-1)
	for i, column := range c.table.columns[1:] {
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, i+2))
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $1", c.table.name, strings.Join(assignments, ", "))
	result, err := c.conn(ctx).ExecContext(ctx, query, c.table.values(record)...)
	if err != nil {
		return c.failed("update", string(c.table.keyOf(record)), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s %q: %w", c.table.name, c.table.keyOf(record), err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %q: %w", c.table.name, c.table.keyOf(record), sentinel.ErrNotFound)
	}
	return nil
}

func (c pgCollection[K, T]) Exists(ctx context.Context, key K) (bool, error) {
	var exists bool
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", c.table.name)
	if err := c.conn(ctx).QueryRowContext(ctx, query, string(key)).Scan(&exists); err != nil {
		return false, c.failed("exists", string(key), err)
	}
	return exists, nil
}

// failed wraps a statement error. Serialization failures surface as conflicts
// so callers can retry the whole transaction.
func (c pgCollection[K, T]) failed(op, key string, err error) error {
	err = fmt.Errorf("%s %s %q: %w", op, c.table.name, key, err)
	if isPQCode(err, pqSerializationFailure) {
		return errSerialization(err)
	}
	return err
}

func errSerialization(err error) error {
	return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent transaction touched the same records, retry")
}

// commitFailure classifies a failed COMMIT. A serialization failure means the
// server rolled back. Anything else (a dropped connection, a timeout) leaves
// the outcome unknown.
func commitFailure(err error) error {
	if isPQCode(err, pqSerializationFailure) {
		return errSerialization(err)
	}
	return dErrors.Wrap(fmt.Errorf("%w: %w", sentinel.ErrCommitUnknown, err),
		dErrors.CodeUnavailable, "failed to commit registry transaction")
}

func isPQCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

var personsTable = pgTable[id.PersonID, models.Person]{
	name:    ports.CollectionPersons,
	columns: []string{"id", "first_name", "last_name", "is_real", "balance"},
	keyOf:   func(p *models.Person) id.PersonID { return p.ID },
	values: func(p *models.Person) []any {
		return []any{string(p.ID), p.FirstName, p.LastName, p.Real, p.Balance}
	},
	scan: func(row rowScanner) (*models.Person, error) {
		var p models.Person
		if err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Real, &p.Balance); err != nil {
			return nil, err
		}
		return &p, nil
	},
}

var organizationsTable = pgTable[id.OrganizationID, models.Organization]{
	name:    ports.CollectionOrganizations,
	columns: []string{"id", "name", "is_trusted", "balance"},
	keyOf:   func(o *models.Organization) id.OrganizationID { return o.ID },
	values: func(o *models.Organization) []any {
		return []any{string(o.ID), o.Name, o.Trusted, o.Balance}
	},
	scan: func(row rowScanner) (*models.Organization, error) {
		var o models.Organization
		if err := row.Scan(&o.ID, &o.Name, &o.Trusted, &o.Balance); err != nil {
			return nil, err
		}
		return &o, nil
	},
}

var trusteesTable = pgTable[id.TrusteeID, models.Trustee]{
	name:    ports.CollectionTrustees,
	columns: []string{"id", "person_id", "organization_id"},
	keyOf:   func(t *models.Trustee) id.TrusteeID { return t.ID },
	values: func(t *models.Trustee) []any {
		return []any{string(t.ID), string(t.PersonID), string(t.OrganizationID)}
	},
	scan: func(row rowScanner) (*models.Trustee, error) {
		var t models.Trustee
		if err := row.Scan(&t.ID, &t.PersonID, &t.OrganizationID); err != nil {
			return nil, err
		}
		return &t, nil
	},
}

var songsTable = pgTable[id.SongID, models.Song]{
	name:    ports.CollectionSongs,
	columns: []string{"id", "name", "hash", "copyrighted", "owner_id"},
	keyOf:   func(s *models.Song) id.SongID { return s.ID },
	values: func(s *models.Song) []any {
		return []any{string(s.ID), s.Name, s.Hash, s.Copyrighted, string(s.OwnerID)}
	},
	scan: func(row rowScanner) (*models.Song, error) {
		var s models.Song
		if err := row.Scan(&s.ID, &s.Name, &s.Hash, &s.Copyrighted, &s.OwnerID); err != nil {
			return nil, err
		}
		return &s, nil
	},
}

var licensesTable = pgTable[id.LicenseID, models.License]{
	name:    ports.CollectionLicenses,
	columns: []string{"id", "license_type"},
	keyOf:   func(l *models.License) id.LicenseID { return l.ID },
	values: func(l *models.License) []any {
		return []any{string(l.ID), string(l.Type)}
	},
	scan: func(row rowScanner) (*models.License, error) {
		var l models.License
		if err := row.Scan(&l.ID, &l.Type); err != nil {
			return nil, err
		}
		return &l, nil
	},
}

var agreementsTable = pgTable[id.AgreementID, models.SongSellingAgreement]{
	name:    ports.CollectionAgreements,
	columns: []string{"id", "song_id", "seller_id", "license_id", "sellers_percent"},
	keyOf:   func(a *models.SongSellingAgreement) id.AgreementID { return a.ID },
	values: func(a *models.SongSellingAgreement) []any {
		return []any{string(a.ID), string(a.SongID), string(a.SellerID), string(a.LicenseID), a.SellersPercent}
	},
	scan: func(row rowScanner) (*models.SongSellingAgreement, error) {
		var a models.SongSellingAgreement
		if err := row.Scan(&a.ID, &a.SongID, &a.SellerID, &a.LicenseID, &a.SellersPercent); err != nil {
			return nil, err
		}
		return &a, nil
	},
}

var licensedSongsTable = pgTable[id.LicensedSongID, models.LicensedSong]{
	name:    ports.CollectionLicensedSongs,
	columns: []string{"id", "owner_id", "agreement_id", "price", "licensed_at"},
	keyOf:   func(l *models.LicensedSong) id.LicensedSongID { return l.ID },
	values: func(l *models.LicensedSong) []any {
		return []any{string(l.ID), string(l.OwnerID), string(l.AgreementID), l.Price, l.LicensedAt}
	},
	scan: func(row rowScanner) (*models.LicensedSong, error) {
		var l models.LicensedSong
		if err := row.Scan(&l.ID, &l.OwnerID, &l.AgreementID, &l.Price, &l.LicensedAt); err != nil {
			return nil, err
		}
		return &l, nil
	},
}

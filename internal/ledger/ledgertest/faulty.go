package ledgertest

import (
	"context"
	"fmt"
	"sync"

	"copyright/internal/ledger/models"
	"copyright/internal/ledger/ports"
	id "copyright/pkg/domain"
)

// Op names a collection method for failure injection.
type Op string

const (
	OpGet    Op = "get"
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpExists Op = "exists"
)

// Call is one observed collection call.
type Call struct {
	Collection string
	Op         Op
	ID         string
}

// FaultyRegistry wraps a unit of work, records every collection call made
// inside it and fails the calls selected with FailOn.
type FaultyRegistry struct {
	inner ports.RegistryTx

	mu    sync.Mutex
	fail  map[Call]error
	calls []Call
}

func NewFaultyRegistry(inner ports.RegistryTx) *FaultyRegistry {
	return &FaultyRegistry{inner: inner, fail: make(map[Call]error)}
}

// FailOn makes op on collection fail with err. An empty id matches every key.
func (f *FaultyRegistry) FailOn(collection string, op Op, recordID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[Call{Collection: collection, Op: op, ID: recordID}] = err
}

// Calls returns the calls observed so far in issue order.
func (f *FaultyRegistry) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Writes returns only the add and update calls.
func (f *FaultyRegistry) Writes() []Call {
	var writes []Call
	for _, c := range f.Calls() {
		if c.Op == OpAdd || c.Op == OpUpdate {
			writes = append(writes, c)
		}
	}
	return writes
}

func (f *FaultyRegistry) RunInTx(ctx context.Context, fn func(ctx context.Context, reg ports.Registry) error) error {
	return f.inner.RunInTx(ctx, func(ctx context.Context, reg ports.Registry) error {
		return fn(ctx, faultyView{reg: reg, f: f})
	})
}

func (f *FaultyRegistry) observe(collection string, op Op, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Collection: collection, Op: op, ID: key})
	if err, ok := f.fail[Call{Collection: collection, Op: op, ID: key}]; ok {
		return err
	}
	if err, ok := f.fail[Call{Collection: collection, Op: op}]; ok {
		return err
	}
	return nil
}

type faultyView struct {
	reg ports.Registry
	f   *FaultyRegistry
}

func wrap[K ~string, T any](f *FaultyRegistry, name string, inner ports.Collection[K, T], keyOf func(*T) K) ports.Collection[K, T] {
	return faultyCollection[K, T]{inner: inner, f: f, name: name, keyOf: keyOf}
}

func (v faultyView) Persons() ports.Collection[id.PersonID, models.Person] {
	return wrap(v.f, ports.CollectionPersons, v.reg.Persons(), func(p *models.Person) id.PersonID { return p.ID })
}

func (v faultyView) Organizations() ports.Collection[id.OrganizationID, models.Organization] {
	return wrap(v.f, ports.CollectionOrganizations, v.reg.Organizations(),
		func(o *models.Organization) id.OrganizationID { return o.ID })
}

func (v faultyView) Trustees() ports.Collection[id.TrusteeID, models.Trustee] {
	return wrap(v.f, ports.CollectionTrustees, v.reg.Trustees(), func(t *models.Trustee) id.TrusteeID { return t.ID })
}

func (v faultyView) Songs() ports.Collection[id.SongID, models.Song] {
	return wrap(v.f, ports.CollectionSongs, v.reg.Songs(), func(s *models.Song) id.SongID { return s.ID })
}

func (v faultyView) Licenses() ports.Collection[id.LicenseID, models.License] {
	return wrap(v.f, ports.CollectionLicenses, v.reg.Licenses(), func(l *models.License) id.LicenseID { return l.ID })
}

func (v faultyView) Agreements() ports.Collection[id.AgreementID, models.SongSellingAgreement] {
	return wrap(v.f, ports.CollectionAgreements, v.reg.Agreements(),
		func(a *models.SongSellingAgreement) id.AgreementID { return a.ID })
}

func (v faultyView) LicensedSongs() ports.Collection[id.LicensedSongID, models.LicensedSong] {
	return wrap(v.f, ports.CollectionLicensedSongs, v.reg.LicensedSongs(),
		func(l *models.LicensedSong) id.LicensedSongID { return l.ID })
}

type faultyCollection[K ~string, T any] struct {
	inner ports.Collection[K, T]
	f     *FaultyRegistry
	name  string
	keyOf func(*T) K
}

func (c faultyCollection[K, T]) Get(ctx context.Context, key K) (*T, error) {
	if err := c.f.observe(c.name, OpGet, string(key)); err != nil {
		return nil, err
	}
	return c.inner.Get(ctx, key)
}

func (c faultyCollection[K, T]) Add(ctx context.Context, record *T) error {
	if err := c.f.observe(c.name, OpAdd, string(c.keyOf(record))); err != nil {
		return err
	}
	return c.inner.Add(ctx, record)
}

func (c faultyCollection[K, T]) AddAll(ctx context.Context, records []*T) error {
	for _, record := range records {
		if err := c.f.observe(c.name, OpAdd, string(c.keyOf(record))); err != nil {
			return err
		}
	}
	return c.inner.AddAll(ctx, records)
}

func (c faultyCollection[K, T]) Update(ctx context.Context, record *T) error {
	if err := c.f.observe(c.name, OpUpdate, string(c.keyOf(record))); err != nil {
		return err
	}
	return c.inner.Update(ctx, record)
}

func (c faultyCollection[K, T]) Exists(ctx context.Context, key K) (bool, error) {
	if err := c.f.observe(c.name, OpExists, string(key)); err != nil {
		return false, err
	}
	return c.inner.Exists(ctx, key)
}

func (c Call) String() string {
	return fmt.Sprintf("%s %s %s", c.Op, c.Collection, c.ID)
}

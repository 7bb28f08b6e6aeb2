// Package seed bootstraps a registry from a YAML fixture document.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"copyright/internal/ledger/models"
	"copyright/internal/ledger/ports"
	id "copyright/pkg/domain"
	dErrors "copyright/pkg/domain-errors"
	"copyright/pkg/platform/sentinel"
)

// Fixture is the YAML document shape. Amounts are decimal strings so no
// precision is lost on the way in.
type Fixture struct {
	Persons       []Person       `yaml:"persons"`
	Organizations []Organization `yaml:"organizations"`
	Trustees      []Trustee      `yaml:"trustees"`
	Songs         []Song         `yaml:"songs"`
	Licenses      []License      `yaml:"licenses"`
	Agreements    []Agreement    `yaml:"agreements"`
}

type Person struct {
	ID        string `yaml:"id"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Real      bool   `yaml:"real"`
	Balance   string `yaml:"balance"`
}

type Organization struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Trusted bool   `yaml:"trusted"`
	Balance string `yaml:"balance"`
}

type Trustee struct {
	ID           string `yaml:"id"`
	Person       string `yaml:"person"`
	Organization string `yaml:"organization"`
}

type Song struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Hash        string `yaml:"hash"`
	Copyrighted bool   `yaml:"copyrighted"`
	Owner       string `yaml:"owner"`
}

type License struct {
	ID   string `yaml:"id"`
	Type string `yaml:"license_type"`
}

type Agreement struct {
	ID             string `yaml:"id"`
	Song           string `yaml:"song"`
	Seller         string `yaml:"song_seller"`
	License        string `yaml:"license"`
	SellersPercent string `yaml:"sellers_percent"`
}

// Summary counts the records added per collection.
type Summary struct {
	Persons       int `json:"persons"`
	Organizations int `json:"organizations"`
	Trustees      int `json:"trustees"`
	Songs         int `json:"songs"`
	Licenses      int `json:"licenses"`
	Agreements    int `json:"agreements"`
}

// Total is the number of records added.
func (s Summary) Total() int {
	return s.Persons + s.Organizations + s.Trustees + s.Songs + s.Licenses + s.Agreements
}

// Decode parses a fixture document. Unknown keys are rejected.
func Decode(r io.Reader) (*Fixture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f Fixture
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed fixture document")
	}
	return &f, nil
}

// Load decodes a fixture from r and adds it to the registry in one unit of
// work. Nothing is added if any record is invalid, references a missing
// record, or collides with an existing ID.
func Load(ctx context.Context, registry ports.RegistryTx, r io.Reader) (Summary, error) {
	f, err := Decode(r)
	if err != nil {
		return Summary{}, err
	}
	return Apply(ctx, registry, f)
}

// Apply adds a decoded fixture to the registry. Collections are written in
// reference order.
func Apply(ctx context.Context, registry ports.RegistryTx, f *Fixture) (Summary, error) {
	recs, err := build(f)
	if err != nil {
		return Summary{}, err
	}

	err = registry.RunInTx(ctx, func(ctx context.Context, reg ports.Registry) error {
		if err := addAll(ctx, reg.Persons(), ports.CollectionPersons, recs.persons); err != nil {
			return err
		}
		if err := addAll(ctx, reg.Organizations(), ports.CollectionOrganizations, recs.organizations); err != nil {
			return err
		}
		for _, t := range recs.trustees {
			if err := requireRef(ctx, reg.Persons(), t.PersonID, "trustee "+string(t.ID), "person"); err != nil {
				return err
			}
			if err := requireRef(ctx, reg.Organizations(), t.OrganizationID, "trustee "+string(t.ID), "organization"); err != nil {
				return err
			}
		}
		if err := addAll(ctx, reg.Trustees(), ports.CollectionTrustees, recs.trustees); err != nil {
			return err
		}
		for _, s := range recs.songs {
			if err := requireRef(ctx, reg.Persons(), s.OwnerID, "song "+string(s.ID), "owner"); err != nil {
				return err
			}
		}
		if err := addAll(ctx, reg.Songs(), ports.CollectionSongs, recs.songs); err != nil {
			return err
		}
		if err := addAll(ctx, reg.Licenses(), ports.CollectionLicenses, recs.licenses); err != nil {
			return err
		}
		for _, a := range recs.agreements {
			what := "agreement " + string(a.ID)
			if err := requireRef(ctx, reg.Songs(), a.SongID, what, "song"); err != nil {
				return err
			}
			if err := requireRef(ctx, reg.Organizations(), a.SellerID, what, "seller"); err != nil {
				return err
			}
			if err := requireRef(ctx, reg.Licenses(), a.LicenseID, what, "license"); err != nil {
				return err
			}
		}
		return addAll(ctx, reg.Agreements(), ports.CollectionAgreements, recs.agreements)
	})
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		Persons:       len(recs.persons),
		Organizations: len(recs.organizations),
		Trustees:      len(recs.trustees),
		Songs:         len(recs.songs),
		Licenses:      len(recs.licenses),
		Agreements:    len(recs.agreements),
	}, nil
}

type records struct {
	persons       []*models.Person
	organizations []*models.Organization
	trustees      []*models.Trustee
	songs         []*models.Song
	licenses      []*models.License
	agreements    []*models.SongSellingAgreement
}

func build(f *Fixture) (*records, error) {
	recs := &records{}
	for _, p := range f.Persons {
		balance, err := amount(p.Balance, "person "+p.ID+" balance")
		if err != nil {
			return nil, err
		}
		person, err := models.NewPerson(id.PersonID(p.ID), p.FirstName, p.LastName, p.Real, balance)
		if err != nil {
			return nil, invalid("person "+p.ID, err)
		}
		recs.persons = append(recs.persons, person)
	}
	for _, o := range f.Organizations {
		balance, err := amount(o.Balance, "organization "+o.ID+" balance")
		if err != nil {
			return nil, err
		}
		org, err := models.NewOrganization(id.OrganizationID(o.ID), o.Name, o.Trusted, balance)
		if err != nil {
			return nil, invalid("organization "+o.ID, err)
		}
		recs.organizations = append(recs.organizations, org)
	}
	for _, t := range f.Trustees {
		trustee, err := models.NewTrustee(id.TrusteeID(t.ID), id.PersonID(t.Person), id.OrganizationID(t.Organization))
		if err != nil {
			return nil, invalid("trustee "+t.ID, err)
		}
		recs.trustees = append(recs.trustees, trustee)
	}
	for _, s := range f.Songs {
		song, err := models.NewSong(id.SongID(s.ID), s.Name, s.Hash, s.Copyrighted, id.PersonID(s.Owner))
		if err != nil {
			return nil, invalid("song "+s.ID, err)
		}
		recs.songs = append(recs.songs, song)
	}
	for _, l := range f.Licenses {
		license, err := models.NewLicense(id.LicenseID(l.ID), models.LicenseType(l.Type))
		if err != nil {
			return nil, invalid("license "+l.ID, err)
		}
		recs.licenses = append(recs.licenses, license)
	}
	for _, a := range f.Agreements {
		percent, err := amount(a.SellersPercent, "agreement "+a.ID+" sellers_percent")
		if err != nil {
			return nil, err
		}
		agreement, err := models.NewSongSellingAgreement(
			id.AgreementID(a.ID), id.SongID(a.Song), id.OrganizationID(a.Seller), id.LicenseID(a.License), percent,
		)
		if err != nil {
			return nil, invalid("agreement "+a.ID, err)
		}
		recs.agreements = append(recs.agreements, agreement)
	}
	return recs, nil
}

// amount parses a decimal string; empty means zero.
func amount(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, dErrors.Wrap(err, dErrors.CodeInvalidInput, field+" is not a decimal: "+s)
	}
	return d, nil
}

func invalid(what string, err error) error {
	return dErrors.Wrap(err, dErrors.CodeInvalidInput, what+": "+dErrors.MessageOf(err))
}

func addAll[K ~string, T any](ctx context.Context, col ports.Collection[K, T], name string, recs []*T) error {
	if len(recs) == 0 {
		return nil
	}
	if err := col.AddAll(ctx, recs); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeConflict, name+": record already exists")
		}
		return ports.StoreFailure(err, "add "+name)
	}
	return nil
}

func requireRef[K ~string, T any](ctx context.Context, col ports.Collection[K, T], key K, owner, field string) error {
	ok, err := col.Exists(ctx, key)
	if err != nil {
		return ports.StoreFailure(err, "check "+field)
	}
	if !ok {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("%s references unknown %s %q", owner, field, key))
	}
	return nil
}

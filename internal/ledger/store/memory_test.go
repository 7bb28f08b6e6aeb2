package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"copyright/internal/ledger/models"
	"copyright/internal/ledger/ports"
	id "copyright/pkg/domain"
	dErrors "copyright/pkg/domain-errors"
	"copyright/pkg/platform/sentinel"
)

type InMemoryRegistrySuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestInMemoryRegistrySuite(t *testing.T) {
	suite.Run(t, new(InMemoryRegistrySuite))
}

func (s *InMemoryRegistrySuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *InMemoryRegistrySuite) person(personID id.PersonID, balance string) *models.Person {
	return &models.Person{
		ID:        personID,
		FirstName: "Song",
		LastName:  "Buyer",
		Real:      true,
		Balance:   decimal.RequireFromString(balance),
	}
}

func (s *InMemoryRegistrySuite) TestCollectionSemantics() {
	persons := s.store.Registry().Persons()

	s.Run("get unknown id returns ErrNotFound", func() {
		_, err := persons.Get(s.ctx, "Nobody-Here")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("add then get returns a copy", func() {
		s.Require().NoError(persons.Add(s.ctx, s.person("Song-Buyer", "9.0")))

		got, err := persons.Get(s.ctx, "Song-Buyer")
		s.Require().NoError(err)
		got.Balance = decimal.NewFromInt(1000)

		again, err := persons.Get(s.ctx, "Song-Buyer")
		s.Require().NoError(err)
		s.True(decimal.RequireFromString("9.0").Equal(again.Balance))
	})

	s.Run("duplicate add returns ErrConflict", func() {
		err := persons.Add(s.ctx, s.person("Song-Buyer", "1"))
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("update unknown id returns ErrNotFound", func() {
		err := persons.Update(s.ctx, s.person("Ghost-Buyer", "1"))
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("exists reflects committed state", func() {
		ok, err := persons.Exists(s.ctx, "Song-Buyer")
		s.Require().NoError(err)
		s.True(ok)

		ok, err = persons.Exists(s.ctx, "Ghost-Buyer")
		s.Require().NoError(err)
		s.False(ok)
	})
}

func (s *InMemoryRegistrySuite) TestAddAllIsAllOrNothing() {
	persons := s.store.Registry().Persons()
	s.Require().NoError(persons.Add(s.ctx, s.person("Taken-Name", "0")))

	err := persons.AddAll(s.ctx, []*models.Person{
		s.person("Fresh-One", "0"),
		s.person("Taken-Name", "0"),
	})
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	ok, err := persons.Exists(s.ctx, "Fresh-One")
	s.Require().NoError(err)
	s.False(ok, "no record of a failed AddAll may be applied")

	err = persons.AddAll(s.ctx, []*models.Person{
		s.person("Twin-One", "0"),
		s.person("Twin-One", "0"),
	})
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *InMemoryRegistrySuite) TestRunInTxDiscardsWritesOnError() {
	boom := errors.New("boom")
	err := s.store.RunInTx(s.ctx, func(ctx context.Context, reg ports.Registry) error {
		if err := reg.Persons().Add(ctx, s.person("Staged-Only", "1")); err != nil {
			return err
		}
		staged, err := reg.Persons().Exists(ctx, "Staged-Only")
		s.Require().NoError(err)
		s.True(staged, "staged writes are visible inside the unit of work")
		return boom
	})
	s.Require().ErrorIs(err, boom)

	ok, err := s.store.Registry().Persons().Exists(s.ctx, "Staged-Only")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *InMemoryRegistrySuite) TestRunInTxCommitsAcrossCollections() {
	err := s.store.RunInTx(s.ctx, func(ctx context.Context, reg ports.Registry) error {
		if err := reg.Persons().Add(ctx, s.person("Emmanuel-Smith", "0")); err != nil {
			return err
		}
		return reg.Organizations().Add(ctx, &models.Organization{ID: "PeaceTones", Name: "PeaceTones", Trusted: true})
	})
	s.Require().NoError(err)

	_, err = s.store.Registry().Persons().Get(s.ctx, "Emmanuel-Smith")
	s.Require().NoError(err)
	_, err = s.store.Registry().Organizations().Get(s.ctx, "PeaceTones")
	s.Require().NoError(err)
}

func (s *InMemoryRegistrySuite) TestRunInTxCancellation() {
	s.Run("cancelled context aborts before running", func() {
		ctx, cancel := context.WithCancel(s.ctx)
		cancel()

		called := false
		err := s.store.RunInTx(ctx, func(context.Context, ports.Registry) error {
			called = true
			return nil
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
		s.False(called)
	})

	s.Run("deadline passing while waiting for the registry", func() {
		store := NewInMemory()
		hold := make(chan struct{})
		entered := make(chan struct{})
		go func() {
			_ = store.RunInTx(s.ctx, func(context.Context, ports.Registry) error {
				close(entered)
				<-hold
				return nil
			})
		}()
		<-entered
		defer close(hold)

		ctx, cancel := context.WithTimeout(s.ctx, 20*time.Millisecond)
		defer cancel()
		err := store.RunInTx(ctx, func(context.Context, ports.Registry) error { return nil })
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})

	s.Run("deadline passing inside the callback discards writes", func() {
		store := NewInMemory(WithTxTimeout(10 * time.Millisecond))
		err := store.RunInTx(s.ctx, func(ctx context.Context, reg ports.Registry) error {
			if err := reg.Persons().Add(ctx, s.person("Too-Late", "0")); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))

		ok, err := store.Registry().Persons().Exists(s.ctx, "Too-Late")
		s.Require().NoError(err)
		s.False(ok)
	})
}

func (s *InMemoryRegistrySuite) TestConcurrentUnitsOfWorkAreSerialized() {
	persons := s.store.Registry().Persons()
	s.Require().NoError(persons.Add(s.ctx, s.person("Song-Buyer", "0")))

	const workers = 50
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.store.RunInTx(s.ctx, func(ctx context.Context, reg ports.Registry) error {
				p, err := reg.Persons().Get(ctx, "Song-Buyer")
				if err != nil {
					return err
				}
				p.ApplyCredit(decimal.NewFromInt(1))
				return reg.Persons().Update(ctx, p)
			})
		}()
	}
	wg.Wait()

	got, err := persons.Get(s.ctx, "Song-Buyer")
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(workers).Equal(got.Balance), "balance %s", got.Balance)
}

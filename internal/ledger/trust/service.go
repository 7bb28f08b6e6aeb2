// Package trust registers new real participants on the authority of a trustee.
package trust

import (
	"context"
	"errors"
	"log/slog"

	"copyright/internal/ledger/models"
	"copyright/internal/ledger/ports"
	dErrors "copyright/pkg/domain-errors"
	"copyright/pkg/platform/sentinel"
)

// Service applies TrustPerson transactions.
type Service struct {
	registry ports.RegistryTx
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(registry ports.RegistryTx, opts ...Option) *Service {
	s := &Service{registry: registry}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnTrustPerson registers the named person as real when the trustee's person
// is real and the trustee's organization is trusted. Every check runs before
// the single insert; a failed check leaves the registry untouched.
func (s *Service) OnTrustPerson(ctx context.Context, tx models.TrustPerson) (*models.Person, error) {
	if tx.TrusteeID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "trustee is required")
	}

	var registered *models.Person
	err := s.registry.RunInTx(ctx, func(ctx context.Context, reg ports.Registry) error {
		trustee, err := ports.Lookup(ctx, reg.Trustees(), tx.TrusteeID, "trustee")
		if err != nil {
			return err
		}
		requester, err := ports.Lookup(ctx, reg.Persons(), trustee.PersonID, "trustee person")
		if err != nil {
			return err
		}
		if !requester.Real {
			return models.ErrUntrustedRequester
		}
		org, err := ports.Lookup(ctx, reg.Organizations(), trustee.OrganizationID, "trustee organization")
		if err != nil {
			return err
		}
		if !org.Trusted {
			return models.ErrUntrustedOrganization
		}

		person, err := models.NewTrustedPerson(tx.FirstName, tx.LastName)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
			}
			return err
		}
		if err := reg.Persons().Add(ctx, person); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return models.ErrPersonExists
			}
			return ports.StoreFailure(err, "add "+ports.CollectionPersons)
		}
		registered = person
		return nil
	})
	if err != nil {
		s.logRejected(ctx, tx, err)
		return nil, err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "person registered",
			"transaction_id", tx.TransactionID,
			"person_id", registered.ID,
			"trustee", tx.TrusteeID,
		)
	}
	return registered, nil
}

func (s *Service) logRejected(ctx context.Context, tx models.TrustPerson, err error) {
	if s.logger == nil {
		return
	}
	level := slog.LevelWarn
	if dErrors.HasCode(err, dErrors.CodeUnavailable) || dErrors.HasCode(err, dErrors.CodeInternal) {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "trust person rejected",
		"transaction_id", tx.TransactionID,
		"trustee", tx.TrusteeID,
		"code", dErrors.CodeOf(err),
		"error", err,
	)
}

// Package purchase applies BuySong transactions: it checks the buyer's funds,
// splits the price between the song owner and the selling organization and
// mints a LicensedSong for the buyer.
package purchase

import (
	"context"
	"errors"
	"log/slog"

	"copyright/internal/ledger/models"
	"copyright/internal/ledger/ports"
	id "copyright/pkg/domain"
	dErrors "copyright/pkg/domain-errors"
	"copyright/pkg/platform/sentinel"
	"copyright/pkg/requestcontext"
)

// Policy holds the purchase rules that differ between deployments.
type Policy struct {
	// DebitBuyer subtracts the price from the buyer's balance. When false the
	// buyer's balance is checked but never written, which reproduces the
	// network's original credit-only payments.
	DebitBuyer bool
}

// DefaultPolicy debits the buyer.
func DefaultPolicy() Policy {
	return Policy{DebitBuyer: true}
}

// Service applies BuySong transactions.
type Service struct {
	registry ports.RegistryTx
	policy   Policy
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithPolicy(p Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

func New(registry ports.RegistryTx, opts ...Option) *Service {
	s := &Service{registry: registry, policy: DefaultPolicy()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnBuySong applies a purchase inside one unit of work. Reads and checks run
// first; the writes are then issued in a fixed order (license, seller, owner,
// buyer) and commit together or not at all.
func (s *Service) OnBuySong(ctx context.Context, tx models.BuySong) (*models.Receipt, error) {
	if tx.Price.IsNegative() {
		return nil, models.ErrInvalidPrice
	}
	if tx.SoldTo.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "buyer is required")
	}
	if tx.AgreementID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "song selling agreement is required")
	}
	licensedAt := tx.Timestamp
	if licensedAt.IsZero() {
		licensedAt = requestcontext.Now(ctx)
	}

	var receipt *models.Receipt
	err := s.registry.RunInTx(ctx, func(ctx context.Context, reg ports.Registry) error {
		buyer, err := ports.Lookup(ctx, reg.Persons(), tx.SoldTo, "buyer")
		if err != nil {
			return err
		}
		if err := buyer.CanAfford(tx.Price); err != nil {
			return err
		}

		agreement, err := ports.Lookup(ctx, reg.Agreements(), tx.AgreementID, "song selling agreement")
		if err != nil {
			return err
		}
		song, err := ports.Lookup(ctx, reg.Songs(), agreement.SongID, "song")
		if err != nil {
			return err
		}

		licenseID := id.LicensedSongIDFor(buyer.ID, agreement.ID)
		licensed, err := reg.LicensedSongs().Exists(ctx, licenseID)
		if err != nil {
			return ports.StoreFailure(err, "check "+ports.CollectionLicensedSongs)
		}
		if licensed {
			return models.ErrAlreadyLicensed
		}

		split := agreement.Split(tx.Price)

		var seller *models.Organization
		if split.PaysSeller() {
			seller, err = ports.Lookup(ctx, reg.Organizations(), agreement.SellerID, "song seller")
			if err != nil {
				return err
			}
		}
		owner := buyer
		if song.OwnerID != buyer.ID {
			owner, err = ports.Lookup(ctx, reg.Persons(), song.OwnerID, "song owner")
			if err != nil {
				return err
			}
		}

		license, err := models.NewLicensedSong(buyer.ID, agreement.ID, tx.Price, licensedAt)
		if err != nil {
			return err
		}

		owner.ApplyCredit(split.OwnerShare)
		if s.policy.DebitBuyer {
			buyer.ApplyDebit(tx.Price)
		}
		if seller != nil {
			seller.ApplyCredit(split.SellerShare)
		}

		w := &writer{}
		if err := w.add(ports.CollectionLicensedSongs, string(license.ID), func() error {
			return reg.LicensedSongs().Add(ctx, license)
		}); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return models.ErrAlreadyLicensed
			}
			return ports.StoreFailure(err, "add "+ports.CollectionLicensedSongs)
		}
		if seller != nil {
			if err := w.update(ports.CollectionOrganizations, string(seller.ID), func() error {
				return reg.Organizations().Update(ctx, seller)
			}); err != nil {
				return ports.StoreFailure(err, "update "+ports.CollectionOrganizations)
			}
		}
		if err := w.update(ports.CollectionPersons, string(owner.ID), func() error {
			return reg.Persons().Update(ctx, owner)
		}); err != nil {
			return ports.StoreFailure(err, "update "+ports.CollectionPersons)
		}
		if s.policy.DebitBuyer && buyer != owner {
			if err := w.update(ports.CollectionPersons, string(buyer.ID), func() error {
				return reg.Persons().Update(ctx, buyer)
			}); err != nil {
				return ports.StoreFailure(err, "update "+ports.CollectionPersons)
			}
		}

		receipt = &models.Receipt{
			TransactionID: tx.TransactionID,
			LicensedSong:  license,
			Split:         split,
			BuyerDebited:  s.policy.DebitBuyer,
			Writes:        w.writes,
		}
		return nil
	})
	if err != nil {
		s.logRejected(ctx, tx, err)
		return nil, err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "song purchased",
			"transaction_id", tx.TransactionID,
			"buyer", tx.SoldTo,
			"agreement", tx.AgreementID,
			"price", tx.Price.String(),
			"owner_share", receipt.Split.OwnerShare.String(),
			"seller_share", receipt.Split.SellerShare.String(),
		)
	}
	return receipt, nil
}

func (s *Service) logRejected(ctx context.Context, tx models.BuySong, err error) {
	if s.logger == nil {
		return
	}
	level := slog.LevelWarn
	if dErrors.HasCode(err, dErrors.CodeUnavailable) || dErrors.HasCode(err, dErrors.CodeInternal) {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "buy song rejected",
		"transaction_id", tx.TransactionID,
		"buyer", tx.SoldTo,
		"agreement", tx.AgreementID,
		"code", dErrors.CodeOf(err),
		"error", err,
	)
}

// writer issues registry writes and records each one that succeeded.
type writer struct {
	writes []models.Write
}

func (w *writer) add(collection, recordID string, fn func() error) error {
	return w.do(models.Write{Collection: collection, ID: recordID, Op: models.WriteAdd}, fn)
}

func (w *writer) update(collection, recordID string, fn func() error) error {
	return w.do(models.Write{Collection: collection, ID: recordID, Op: models.WriteUpdate}, fn)
}

func (w *writer) do(write models.Write, fn func() error) error {
	if err := fn(); err != nil {
		return err
	}
	w.writes = append(w.writes, write)
	return nil
}

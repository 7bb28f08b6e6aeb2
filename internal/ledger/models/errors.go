package models

import (
	dErrors "copyright/pkg/domain-errors"
)

// Transaction rejections. They are package-level values so callers match them
// with errors.Is; their messages are surfaced to the submitter verbatim.
var (
	ErrUntrustedRequester = dErrors.New(dErrors.CodeValidation,
		"Only trusted persons whom are real can register others on the network.")
	ErrUntrustedOrganization = dErrors.New(dErrors.CodeValidation,
		"Only trusted organizations assign people to register others onto the network as real.")
	ErrInsufficientFunds = dErrors.New(dErrors.CodeValidation,
		"Buyer does not have enough money to buy the song")
	ErrInvalidPrice = dErrors.New(dErrors.CodeValidation,
		"Song price cannot be negative")

	ErrPersonExists = dErrors.New(dErrors.CodeConflict,
		"A person with this name is already registered on the network")
	ErrAlreadyLicensed = dErrors.New(dErrors.CodeConflict,
		"Buyer already holds a license under this song selling agreement")
)

package main

import "errors"

var (
	// errInvalidInput marks user-facing input problems: unreadable tracks,
	// bad coordinates, impossible options.
	errInvalidInput = errors.New("invalid input")

	// errContractViolation marks broken assumptions between pipeline stages,
	// e.g. a collaborator returning the wrong number of results.
	errContractViolation = errors.New("contract violation")
)

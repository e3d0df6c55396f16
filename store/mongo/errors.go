package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mongod "go.mongodb.org/mongo-driver/v2/mongo"

	qu "github.com/gabteles/qu-mongoid"
)

// Server error codes that old servers return from findAndModify.
const (
	codeCommandNotFound     = 59
	codeCommandNotSupported = 115
)

// legacyNoMatch is the findAndModify error text of pre-2.x servers when
// the query matched nothing.
const legacyNoMatch = "No matching object found"

// wrap classifies a driver error. "no documents" passes through, a legacy
// empty match becomes qu.ErrUnsupported, context errors pass through and
// everything else is storage unavailability.
func wrap(op string, err error) error {
	switch {
	case errors.Is(err, mongod.ErrNoDocuments),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	case isLegacyEmpty(err):
		return fmt.Errorf("qu/mongo: %s: %w: %w", op, qu.ErrUnsupported, err)
	default:
		return fmt.Errorf("qu/mongo: %s: %w: %w", op, qu.ErrStorageUnavailable, err)
	}
}

func isLegacyEmpty(err error) bool {
	var cmdErr mongod.CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	return cmdErr.Code == codeCommandNotFound ||
		cmdErr.Code == codeCommandNotSupported ||
		strings.Contains(cmdErr.Message, legacyNoMatch)
}

// isConnectionFailure reports whether err is worth retrying.
func isConnectionFailure(err error) bool {
	return mongod.IsNetworkError(err) || errors.Is(err, mongod.ErrClientDisconnected)
}

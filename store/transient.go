package store

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// transientPgCodes are Postgres error codes that indicate the server or
// connection is temporarily unavailable rather than that the query itself
// is invalid -- connection failures, admin shutdown, and resource
// exhaustion classes from the Postgres error code table.
var transientPgCodes = map[string]struct{}{
	"08000": {}, // connection_exception
	"08003": {}, // connection_does_not_exist
	"08006": {}, // connection_failure
	"08001": {}, // sqlclient_unable_to_establish_sqlconnection
	"08004": {}, // sqlserver_rejected_establishment_of_sqlconnection
	"53000": {}, // insufficient_resources
	"53300": {}, // too_many_connections
	"57P01": {}, // admin_shutdown
	"57P02": {}, // crash_shutdown
	"57P03": {}, // cannot_connect_now
}

// IsTransient reports whether err indicates a temporary connectivity
// problem with the storage backend, as opposed to a query or data error.
// This resolves the spec's Open Question on storage error classification
// as a typed predicate over concrete error values -- never a string match
// on an exception/error type name (SPEC_FULL §7, §9).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, transient := transientPgCodes[pgErr.Code]
		return transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

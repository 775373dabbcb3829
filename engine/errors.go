package engine

import (
	"errors"

	"modernc.org/sqlite"

	"github.com/jmhu/sqlited/common"
	"github.com/jmhu/sqlited/wire"
)

// mapErr translates a database/sql-surfaced error into the wire error
// model. A *sqlite.Error carries a numeric SQLite result code and
// message, which is passed through verbatim per the failure model's
// "SQLite native codes passed through unchanged" rule; anything else
// (driver plumbing, context cancellation) becomes a generic ERROR.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return wire.NewSQLiteError(int32(sqliteErr.Code()), sqliteErr.Error())
	}
	return wire.NewError(common.CodeError, err.Error())
}

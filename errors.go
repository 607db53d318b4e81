package ygggo_invdb

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"syscall"

	mysql "github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrorClass is the classifier's verdict for a low-level database error.
type ErrorClass int

const (
	ErrClassUnknown ErrorClass = iota
	ErrClassConnectivity
	ErrClassDuplicate
	ErrClassInvalidReference
	ErrClassStillReferenced
	ErrClassTooLong
)

func (c ErrorClass) String() string {
	switch c {
	case ErrClassConnectivity:
		return "connectivity"
	case ErrClassDuplicate:
		return "duplicate"
	case ErrClassInvalidReference:
		return "invalid_reference"
	case ErrClassStillReferenced:
		return "still_referenced"
	case ErrClassTooLong:
		return "too_long"
	default:
		return "unknown"
	}
}

// Category is the application-level outcome family a failure belongs to.
type Category string

const (
	CategoryPoolUnavailable Category = "pool_unavailable"
	CategoryConnectivity    Category = "connectivity"
	CategoryConstraint      Category = "constraint"
	CategoryAccessDenied    Category = "access_denied"
	CategoryUnclassified    Category = "unclassified"
)

// Category maps an error class onto the failure taxonomy.
func (c ErrorClass) Category() Category {
	switch c {
	case ErrClassConnectivity:
		return CategoryConnectivity
	case ErrClassDuplicate, ErrClassInvalidReference, ErrClassStillReferenced, ErrClassTooLong:
		return CategoryConstraint
	default:
		return CategoryUnclassified
	}
}

// Stable messages handed to callers instead of driver text.
const (
	MsgDuplicate             = "Item already exists."
	MsgInvalidReference      = "Invalid reference — related item not found."
	MsgStillReferenced       = "Cannot delete item — it is still in use."
	MsgTooLong               = "Input value is too long."
	MsgConnectionUnavailable = "connection unavailable"
	MsgAccessDenied          = "access denied"
	MsgUnexpected            = "An unexpected database error occurred."
)

// MySQL server error numbers used by the classifier.
const (
	mysqlErDupEntry           = 1062
	mysqlErRowIsReferenced    = 1451
	mysqlErNoReferencedRow    = 1452
	mysqlErDataTooLong        = 1406
	mysqlCrConnectionError    = 2003
	mysqlCrServerGone         = 2006
	mysqlCrServerLost         = 2013
	mysqlCrServerLostExtended = 2055
)

var (
	// ErrPoolUnavailable is returned when no pool could be created within the retry budget.
	ErrPoolUnavailable = errors.New("ygggo_invdb: connection pool unavailable")
	// ErrPoolClosed is returned once the manager has been closed.
	ErrPoolClosed = errors.New("ygggo_invdb: manager closed")
)

// IsConnectivityError reports whether err means the connection itself is unusable,
// as opposed to a healthy connection rejecting a statement.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlCrConnectionError, mysqlCrServerGone, mysqlCrServerLost, mysqlCrServerLostExtended:
			return true
		}
		return false
	}
	switch {
	case errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}

// Classify classifies err. Numeric driver codes win over message matching.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrClassUnknown
	}
	if IsConnectivityError(err) {
		return ErrClassConnectivity
	}

	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlErDupEntry:
			return ErrClassDuplicate
		case mysqlErNoReferencedRow:
			return ErrClassInvalidReference
		case mysqlErRowIsReferenced:
			return ErrClassStillReferenced
		case mysqlErDataTooLong:
			return ErrClassTooLong
		}
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return ErrClassDuplicate
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return ErrClassInvalidReference
		case sqlite3.SQLITE_TOOBIG:
			return ErrClassTooLong
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate entry"), strings.Contains(msg, "unique constraint failed"):
		return ErrClassDuplicate
	case strings.Contains(msg, "foreign key constraint"):
		return ErrClassInvalidReference
	case strings.Contains(msg, "data too long"):
		return ErrClassTooLong
	}
	return ErrClassUnknown
}

// StableMessage returns the caller-facing message for err.
func StableMessage(err error) string {
	if err == nil {
		return MsgUnexpected
	}
	switch Classify(err) {
	case ErrClassDuplicate:
		return MsgDuplicate
	case ErrClassInvalidReference:
		return MsgInvalidReference
	case ErrClassStillReferenced:
		return MsgStillReferenced
	case ErrClassTooLong:
		return MsgTooLong
	}
	return "Database error: " + strings.ToLower(driverText(err))
}

// Diagnose extracts the raw error number, SQLSTATE and a one-line diagnostic
// ("errno | sqlstate | text") for operational logs.
func Diagnose(err error) (errno *int, sqlstate string, diagnostic string) {
	if err == nil {
		return nil, "", ""
	}
	var me *mysql.MySQLError
	var se *sqlite.Error
	switch {
	case errors.As(err, &me):
		n := int(me.Number)
		errno = &n
		sqlstate = strings.TrimRight(string(me.SQLState[:]), "\x00")
	case errors.As(err, &se):
		n := se.Code()
		errno = &n
	}

	num, state := "n/a", "n/a"
	if errno != nil {
		num = strconv.Itoa(*errno)
	}
	if sqlstate != "" {
		state = sqlstate
	}
	return errno, sqlstate, fmt.Sprintf("%s | %s | %s", num, state, err.Error())
}

func driverText(err error) string {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Message != "" {
		return me.Message
	}
	return err.Error()
}

package vaulterr

import (
	"errors"
	"fmt"
)

// Class groups errors by how a caller is expected to react to them.
type Class uint8

const (
	// Structural errors mean the input itself is broken. Never retry.
	Structural Class = iota + 1
	// Authorization errors mean the caller lacks the right to do what it asked.
	Authorization
	// State errors are expected under concurrent voting. Re-fetch and retry the intent.
	State
	// Resource errors mean the caller must supply something that is missing or out of range.
	Resource
)

func (c Class) String() string {
	switch c {
	case Structural:
		return "structural"
	case Authorization:
		return "authorization"
	case State:
		return "state"
	case Resource:
		return "resource"
	default:
		return "unknown"
	}
}

// Error is a program error with a stable numeric code, in the style of Anchor's
// custom error codes (offset 6000).
type Error struct {
	Code  uint32
	Name  string
	Msg   string
	Class Class
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Msg)
}

const codeOffset = 6000

var registry = map[uint32]*Error{}

func newError(offset uint32, name, msg string, class Class) *Error {
	e := &Error{Code: codeOffset + offset, Name: name, Msg: msg, Class: class}
	if _, dup := registry[e.Code]; dup {
		panic(fmt.Sprintf("duplicate error code %d", e.Code))
	}
	registry[e.Code] = e
	return e
}

var (
	ErrInvalidRoleCount             = newError(0, "InvalidRoleCount", "role list is empty or exceeds the maximum", Resource)
	ErrInvalidFounderThreshold      = newError(1, "InvalidFounderThreshold", "founder threshold must be between 1 and the number of founders", Resource)
	ErrUnauthorized                 = newError(2, "Unauthorized", "signer is not allowed to perform this action", Authorization)
	ErrMissingAccount               = newError(3, "MissingAccount", "a required account was not provided", Resource)
	ErrFounderAlreadyExists         = newError(4, "FounderAlreadyExists", "founder already exists", State)
	ErrMemberAlreadyExists          = newError(5, "MemberAlreadyExists", "member already exists", State)
	ErrFounderNotFound              = newError(6, "FounderNotFound", "signer is not a founder of the vault", Authorization)
	ErrMemberNotFound               = newError(7, "MemberNotFound", "signer is not a member of the vault", Authorization)
	ErrInvalidStaleTransactionIndex = newError(8, "InvalidStaleTransactionIndex", "stale transaction index exceeds transaction index", State)
	ErrInvalidProgram               = newError(9, "InvalidProgram", "account is not owned by the expected program", Authorization)
	ErrAlreadyApproved              = newError(10, "AlreadyApproved", "founder has already approved", State)
	ErrAlreadyRejected              = newError(11, "AlreadyRejected", "founder has already rejected", State)
	ErrAlreadyCancelled             = newError(12, "AlreadyCancelled", "founder has already cancelled", State)
	ErrMalformedMessage             = newError(13, "InvalidVaultTransactionMessage", "transaction message is malformed", Structural)
	ErrProtectedAccount             = newError(14, "ProtectedAccount", "writable access to a protected account", Authorization)
	ErrInvalidAccount               = newError(15, "InvalidAccount", "account does not match the expected address", Authorization)
	ErrInvalidAllowlist             = newError(16, "InvalidAllowlist", "allowlist tree does not belong to the vault", Authorization)
	ErrAccountMismatch              = newError(17, "AccountMismatch", "presented accounts do not match the transaction message", Authorization)
	ErrInvalidTransactionStatus     = newError(18, "InvalidTransactionStatus", "transaction status does not allow this action", State)
	ErrInvalidInstructionAccount    = newError(19, "InvalidInstructionAccount", "transaction does not belong to the vault", Authorization)
	ErrAdminCannotBeFounder         = newError(20, "AdminCannotBeFounder", "administrator cannot be a founder", Authorization)
	ErrAdminCannotBeMember          = newError(21, "AdminCannotBeMember", "administrator cannot be a member", Authorization)
	ErrStaleTransaction             = newError(22, "StaleTransaction", "transaction was invalidated by a roster or threshold change", State)
	ErrMessageDecode                = newError(23, "TransactionMessageDecode", "transaction message bytes could not be decoded", Structural)
	ErrInvalidInstructionIndex      = newError(24, "InvalidInstructionIndex", "instruction references an account index out of range", Structural)
	ErrDerivationFailed             = newError(25, "DerivationFailed", "unable to derive a program address", Structural)
	ErrInvalidProof                 = newError(26, "InvalidProof", "allowlist membership proof was rejected", Authorization)
	ErrInsufficientFunds            = newError(27, "InsufficientFunds", "payer cannot cover the required lamports", Resource)
	ErrAccountAlreadyInitialized    = newError(28, "AccountAlreadyInitialized", "account is already in use", State)
	ErrIndexOverflow                = newError(29, "IndexOverflow", "transaction index overflow", Resource)
	ErrInvalidInstructionData       = newError(30, "InvalidInstructionData", "instruction data could not be decoded", Structural)
)

// FromCode returns the registered error for a numeric code.
func FromCode(code uint32) (*Error, bool) {
	e, ok := registry[code]
	return e, ok
}

// As unwraps err to the underlying program error, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ClassOf reports the class of a program error wrapped anywhere in err.
func ClassOf(err error) (Class, bool) {
	e, ok := As(err)
	if !ok {
		return 0, false
	}
	return e.Class, true
}

package pledge

import "fmt"

// ValidationError is the tagged result of a failed pledge validation or
// claim assembly. Every recognized failure mode carries its own Kind tag
// so callers can switch on it with errors.As; none of them is ever raised
// as a panic.
type ValidationError struct {
	Kind string
	// Actual/Expected are populated for TxWrongNumberOfOutputs.
	Actual, Expected int
	// ShortBy is populated for PledgeTooSmall.
	ShortBy int64
	// ByAmount is populated for ValueMismatch (positive = overpledged).
	ByAmount int64
	// Err is the underlying library error, for ScriptExecutionFailure and
	// similar causes worth preserving.
	Err error
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindTxWrongNumberOfOutputs:
		return fmt.Sprintf("pledge tx has %d outputs, project has %d", e.Actual, e.Expected)
	case KindPledgeTooSmall:
		return fmt.Sprintf("pledge too small by %d satoshis", e.ShortBy)
	case KindValueMismatch:
		return fmt.Sprintf("claim value mismatch by %d satoshis", e.ByAmount)
	case KindScriptExecutionFailure:
		return fmt.Sprintf("script execution failure: %v", e.Err)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return e.Kind
	}
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Error kind tags, one per recognized pledge/claim failure mode.
const (
	KindNoTransactionData      = "NoTransactionData"
	KindTxWrongNumberOfOutputs = "TxWrongNumberOfOutputs"
	KindOutputMismatch         = "OutputMismatch"
	KindDuplicatedOutPoint     = "DuplicatedOutPoint"
	KindUnknownUTXO            = "UnknownUTXO"
	KindNonStandardInput       = "NonStandardInput"
	KindScriptExecutionFailure = "ScriptExecutionFailure"
	KindCachedValueMismatch    = "CachedValueMismatch"
	KindPledgeTooSmall         = "PledgeTooSmall"
	KindValueMismatch          = "ValueMismatch"
	KindInsufficientFunds      = "InsufficientFunds"
	KindTransport              = "Transport"
)

func newErr(kind string) *ValidationError { return &ValidationError{Kind: kind} }

func wrapErr(kind string, err error) *ValidationError {
	return &ValidationError{Kind: kind, Err: err}
}

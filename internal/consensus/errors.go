package consensus

import "fmt"

// ProgrammerError means a consensus invariant was violated mid-update:
// a recomputed score drifted past WEIGHT_TOL, a descendant's voided_by
// failed to contain its ancestor's, more than one best tip came back
// non-voided, or similar. The DAG is corrupt; there is no safe way to
// keep serving requests against it.
type ProgrammerError struct {
	msg string
}

func (e *ProgrammerError) Error() string { return "programmer error: " + e.msg }

// PreconditionFailure means the input record itself is unusable: no
// Storage attached, non-positive weight, or a record that is neither a
// block nor a transaction.
type PreconditionFailure struct {
	msg string
}

func (e *PreconditionFailure) Error() string { return "precondition failure: " + e.msg }

// fatalf panics with a ProgrammerError. The driver's top-level recover
// turns this into a log.Fatal, matching spec.md §7: these abort the
// process so an external supervisor can restart against consistent
// on-disk storage.
func fatalf(format string, args ...any) {
	panic(&ProgrammerError{msg: fmt.Sprintf(format, args...)})
}

// precondition panics with a PreconditionFailure.
func precondition(format string, args ...any) {
	panic(&PreconditionFailure{msg: fmt.Sprintf(format, args...)})
}

// BenignSkip is not a Go error type: it is the "idempotent op" class of
// spec.md §7 and is represented purely as a bool return value from the
// functions that can hit it (addVoidedByBlock, removeVoidedByBlock,
// addVoidedByTx, removeVoidedByTx). It never
// propagates as an error.

package errors

// TransactionHandler runs a unit of work and rolls it back if the work fails.
type TransactionHandler struct {
	commitFunc   func() error
	rollbackFunc func() error
	committed    bool
}

// NewTransactionHandler creates a handler around a commit and rollback pair
func NewTransactionHandler(commitFunc, rollbackFunc func() error) *TransactionHandler {
	return &TransactionHandler{
		commitFunc:   commitFunc,
		rollbackFunc: rollbackFunc,
	}
}

// Execute runs fn then commits. On any failure the transaction is rolled back
// and the original error returned; a rollback failure is attached as context.
func (th *TransactionHandler) Execute(fn func() error) error {
	err := fn()
	if err == nil && th.commitFunc != nil {
		if cerr := th.commitFunc(); cerr != nil {
			err = Wrap(cerr, ErrCodeSQLTransaction, "Failed to commit transaction")
		} else {
			th.committed = true
			return nil
		}
	}
	if err == nil {
		th.committed = true
		return nil
	}

	if th.rollbackFunc != nil && !th.committed {
		if rbErr := th.rollbackFunc(); rbErr != nil {
			appErr := Wrap(err, GetErrorCode(err), "Transaction failed and rollback did not complete")
			return appErr.WithContext("rollback_error", rbErr.Error())
		}
	}

	return err
}

// Committed reports whether the transaction was committed
func (th *TransactionHandler) Committed() bool {
	return th.committed
}

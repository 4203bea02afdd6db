package classify

import "fmt"

// InvalidAddressError is returned for input that is not a 20-byte hex address.
type InvalidAddressError struct {
	Input string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address %q", e.Input)
}

// StoreError is a classification store failure other than a missing record.
type StoreError struct {
	Op      string
	Address string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("classification store %s %s: %v", e.Op, e.Address, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

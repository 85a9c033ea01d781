// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package autocirculate

import (
	"github.com/pkg/errors"

	"github.com/TheCacophonyProject/autocirculate/driver"
)

// Error kinds. Returned errors wrap one of these so callers can test
// them with errors.Is.
var (
	ErrNotOpen    = errors.New("device not open")
	ErrRange      = errors.New("out of range")
	ErrConfig     = errors.New("invalid configuration")
	ErrAllocation = errors.New("frame allocation failed")
	ErrDriverCall = errors.New("driver call failed")
	ErrTimeout    = driver.ErrTimeout
)

// DriverError is returned when the driver rejects a call.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the driver's own error.
func (e *DriverError) Unwrap() error { return e.Err }

// Cause implements the pkg/errors causer interface.
func (e *DriverError) Cause() error { return e.Err }

// Is makes every DriverError match ErrDriverCall. A call on a driver
// closed underneath the card also matches ErrNotOpen.
func (e *DriverError) Is(target error) bool {
	switch target {
	case ErrDriverCall:
		return true
	case ErrNotOpen:
		return errors.Is(e.Err, driver.ErrClosed)
	}
	return false
}

func driverErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DriverError{Op: op, Err: err}
}

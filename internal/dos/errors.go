package dos

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrOverlap                   = errors.New("overlaps another partition")
	ErrOutOfRange                = errors.New("value out of range")
	ErrTooManyPartitions         = errors.New("too many partitions")
	ErrSecondExtended            = errors.New("an extended partition already exists")
	ErrWouldCreateSecondExtended = errors.New("extended partition cannot grow over a primary partition")
	ErrIllegalTypeTransition     = errors.New("illegal partition type change")
	ErrCycleDetected             = errors.New("extended partition chain loops")
	ErrNoSuchPartition           = errors.New("no such partition")
	ErrNoTable                   = errors.New("no DOS partition table signature")
	ErrGPT                       = errors.New("device contains a GPT partition table")
	ErrCheckFailed               = errors.New("partition table check failed")
	ErrDeviceBusy                = errors.New("device is in use")
	ErrVerify                    = errors.New("read back differs from written data")
)

// Error is returned when the table model rejects a request. It matches its
// sentinel with errors.Is.
type Error struct {
	Op  string
	Err error

	// Slot is the partition the request conflicts with, NoSlot if none.
	Slot SlotID

	// Start and End are the requested range, Lo and Hi the range that
	// would have been acceptable. Zero when not meaningful.
	Start, End uint64
	Lo, Hi     uint64
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if e.Slot != NoSlot {
		fmt.Fprintf(&b, " (partition %d)", e.Slot.Number())
	}
	if e.End != 0 {
		fmt.Fprintf(&b, ": requested %d-%d", e.Start, e.End)
	}
	if e.Hi != 0 {
		fmt.Fprintf(&b, ", available %d-%d", e.Lo, e.Hi)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(op string, err error) *Error {
	return &Error{Op: op, Err: err, Slot: NoSlot}
}

// IOError reports a failed sector transfer.
type IOError struct {
	Op  string
	LBA uint64
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s sector %d: %v", e.Op, e.LBA, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

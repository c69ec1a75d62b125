package machine

import "fmt"

// ExceptionType is the reason user code traps into the kernel.
type ExceptionType int

// Exceptions raised by the simulated CPU.
const (
	NoException ExceptionType = iota
	SyscallException
	PageFaultException
	ReadOnlyException
	BusErrorException
	AddressErrorException
	OverflowException
	IllegalInstrException
)

var exceptionNames = [...]string{
	"NoException",
	"SyscallException",
	"PageFaultException",
	"ReadOnlyException",
	"BusErrorException",
	"AddressErrorException",
	"OverflowException",
	"IllegalInstrException",
}

func (e ExceptionType) String() string {
	if e < 0 || int(e) >= len(exceptionNames) {
		return fmt.Sprintf("ExceptionType(%d)", int(e))
	}

	return exceptionNames[e]
}

// An ExceptionHandler is the kernel entry point for traps.
type ExceptionHandler interface {
	HandleException(which ExceptionType)
}

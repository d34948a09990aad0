package xmlrpc

import "fmt"

// Standard fault codes from the interoperability spec for XML-RPC servers.
const (
	FaultParse          = -32700
	FaultInvalidRequest = -32600
	FaultNoSuchMethod   = -32601
	FaultInvalidParams  = -32602
	FaultInternal       = -32500
	FaultApplication    = -32500
)

// Fault is an XML-RPC fault response. Handlers return *Fault to choose the
// code; other errors become FaultInternal.
type Fault struct {
	Code   int
	String string
}

// Error implements error.
func (f *Fault) Error() string {
	return fmt.Sprintf("xmlrpc fault %d: %s", f.Code, f.String)
}

// NewFault builds a *Fault with a formatted message.
func NewFault(code int, format string, args ...any) *Fault {
	return &Fault{Code: code, String: fmt.Sprintf(format, args...)}
}

func (f *Fault) value() map[string]any {
	return map[string]any{"faultCode": f.Code, "faultString": f.String}
}

package api

import (
	"errors"
	"reflect"

	"github.com/filecoin-project/go-jsonrpc"
)

const (
	EProcessNotFound = iota + jsonrpc.FirstUserCode
	EManagerStopped
)

var (
	RPCErrors = jsonrpc.NewErrors()

	_ error = (*ErrProcessNotFound)(nil)
	_ error = (*ErrManagerStopped)(nil)
)

func init() {
	RPCErrors.Register(EProcessNotFound, new(*ErrProcessNotFound))
	RPCErrors.Register(EManagerStopped, new(*ErrManagerStopped))
}

func ErrorIsIn(err error, errorTypes []error) bool {
	for _, etype := range errorTypes {
		tmp := reflect.New(reflect.PointerTo(reflect.ValueOf(etype).Elem().Type())).Interface()
		if errors.As(err, tmp) {
			return true
		}
	}
	return false
}

// ErrProcessNotFound signals that no transfer process exists under the
// requested id.
type ErrProcessNotFound struct{}

func (ErrProcessNotFound) Error() string { return "transfer process not found" }

// ErrManagerStopped signals that the node is shutting down and not accepting
// new requests.
type ErrManagerStopped struct{}

func (ErrManagerStopped) Error() string { return "transfer manager stopped" }

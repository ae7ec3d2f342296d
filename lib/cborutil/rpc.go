package cborutil

import (
	"bytes"
	"encoding/hex"
	"io"

	cbor "github.com/ipfs/go-ipld-cbor"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("cborrpc")

const Debug = false

func init() {
	if Debug {
		log.Warn("CBOR-RPC Debugging enabled")
	}
}

// WriteCborRPC writes a single cbor-encoded object to w. The object must be
// registered with the ipld-cbor atlas.
func WriteCborRPC(w io.Writer, obj interface{}) error {
	data, err := cbor.DumpObject(obj)
	if err != nil {
		return err
	}

	if Debug {
		log.Infof("> %s", hex.EncodeToString(data))
	}

	_, err = w.Write(data)
	return err
}

// ReadCborRPC reads a single cbor-encoded object from r into out.
func ReadCborRPC(r io.Reader, out interface{}) error {
	return cbor.DecodeReader(r, out)
}

func Dump(obj interface{}) ([]byte, error) {
	var out bytes.Buffer
	if err := WriteCborRPC(&out, obj); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func Equals(a interface{}, b interface{}) (bool, error) {
	ab, err := Dump(a)
	if err != nil {
		return false, err
	}
	bb, err := Dump(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}

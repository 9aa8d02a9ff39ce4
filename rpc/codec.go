package rpc

import (
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content subtype under which grid messages travel.
const CodecName = "bson"

func init() {
	encoding.RegisterCodec(bsonCodec{})
}

// bsonCodec encodes the apimodels request and response structs as BSON
// documents.
type bsonCodec struct{}

func (bsonCodec) Name() string { return CodecName }

func (bsonCodec) Marshal(v interface{}) ([]byte, error) {
	out, err := bson.Marshal(v)
	return out, errors.Wrapf(err, "marshalling %T", v)
}

func (bsonCodec) Unmarshal(data []byte, v interface{}) error {
	return errors.Wrapf(bson.Unmarshal(data, v), "unmarshalling %T", v)
}

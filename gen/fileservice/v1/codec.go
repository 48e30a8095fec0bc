// Package fileservicev1 declares the clouddrive.v1.FileService wire
// contract: request and response messages, the gRPC service descriptor and
// a typed client. Messages travel as JSON through a registered gRPC codec,
// so no protoc step is needed to build or call the service.
package fileservicev1

import (
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype the service speaks
// (application/grpc+json).
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// WithJSONCodec makes every call on a connection use the JSON codec.
func WithJSONCodec() grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName))
}

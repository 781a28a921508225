package solver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Full gRPC method names. Messages are google.protobuf.Struct carrying the
// same JSON documents as the HTTP transport.
const (
	MethodSimulate = "/circuit.v1.Solver/Simulate"
	MethodMeasure  = "/circuit.v1.Solver/Measure"
)

// GRPC is a unary gRPC solver transport.
type GRPC struct {
	conn grpc.ClientConnInterface
}

// NewGRPC wraps a client connection.
func NewGRPC(conn grpc.ClientConnInterface) *GRPC { return &GRPC{conn: conn} }

// Simulate implements Client.
func (c *GRPC) Simulate(ctx context.Context, req Request) (*Result, error) {
	var res Result
	if err := c.invoke(ctx, MethodSimulate, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Measure implements Client.
func (c *GRPC) Measure(ctx context.Context, req MeasureRequest) (Measurement, error) {
	var m Measurement
	if err := c.invoke(ctx, MethodMeasure, req, &m); err != nil {
		return Measurement{}, err
	}
	if m.Error != "" {
		return Measurement{}, &ServiceError{Message: m.Error}
	}
	return m, nil
}

func (c *GRPC) invoke(ctx context.Context, method string, in, out any) error {
	msg, err := ToStruct(in)
	if err != nil {
		return fmt.Errorf("solver %s: %w", method, err)
	}
	reply := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, msg, reply); err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.InvalidArgument {
			return &ServiceError{Status: http.StatusBadRequest, Message: st.Message()}
		}
		return fmt.Errorf("solver %s: %w", method, err)
	}
	if err := FromStruct(reply, out); err != nil {
		return fmt.Errorf("solver %s: %w", method, err)
	}
	return nil
}

// ToStruct converts any JSON-encodable value to a protobuf Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

// FromStruct decodes a protobuf Struct into out through its JSON form.
func FromStruct(s *structpb.Struct, out any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

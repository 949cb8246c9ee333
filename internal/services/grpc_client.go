package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/keepalive"

	"github.com/JAYASURYA-KK/sandguard-ai/internal/models"
)

// The Python inference sidecar speaks gRPC with JSON payloads, so the
// contract stays schema-light on both sides.
const jsonCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type predictRequest struct {
	BeforeImage []byte `json:"before_image"`
	AfterImage  []byte `json:"after_image"`
}

type healthRequest struct{}

type healthResponse struct {
	Status string `json:"status"`
}

// GRPCPredictor calls the Python change-prediction service. Its failures
// are never fatal for the pipeline; callers fall back to baseline severity.
type GRPCPredictor struct {
	conn *grpc.ClientConn
	url  string
}

func NewGRPCPredictor(url string) (*GRPCPredictor, error) {
	log.Printf("Connecting to inference gRPC at %s", url)

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(jsonCodecName),
			grpc.MaxCallRecvMsgSize(50*1024*1024),
			grpc.MaxCallSendMsgSize(50*1024*1024),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	conn, err := grpc.Dial(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not connect to inference gRPC server at %s: %w", url, err)
	}

	return &GRPCPredictor{conn: conn, url: url}, nil
}

// Predict submits a normalized image pair and returns the auxiliary change
// signal.
func (p *GRPCPredictor) Predict(ctx context.Context, before, after []byte) (*models.ChangeSignal, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req := predictRequest{BeforeImage: before, AfterImage: after}
	var sig models.ChangeSignal
	if err := p.conn.Invoke(ctx, "/sandguard.Inference/Predict", &req, &sig); err != nil {
		return nil, fmt.Errorf("predict call failed: %w", err)
	}
	return &sig, nil
}

func (p *GRPCPredictor) HealthCheck() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var resp healthResponse
	err := p.conn.Invoke(ctx, "/sandguard.Inference/Health", &healthRequest{}, &resp)
	return err == nil
}

func (p *GRPCPredictor) Close() error {
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

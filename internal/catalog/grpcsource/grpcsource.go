// Package grpcsource adapts the remote endpoint-catalog service (an
// external collaborator per the specification, consumed only through its
// streaming RPC) to catalog.StreamSource. The wire schema of that service
// is owned by the catalog team, not by this repository, so the frame
// decoder is injected rather than generated from a local .proto — this
// mirrors the way runtime/registry.GRPCClientAdapter wraps a generated
// client, except the generated stub itself lives outside this module.
package grpcsource

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/bennekrouf/semantic-api0/internal/catalog"
)

// FrameDecoder drains one streaming call against conn and returns the
// flattened groups for email. Supplied by the binary that knows the
// catalog service's actual protobuf contract.
type FrameDecoder func(ctx context.Context, conn *grpc.ClientConn, email string) ([]catalog.Group, error)

// Source dials the catalog service lazily, one connection per call, the
// way a short-lived RPC client is expected to behave per the
// specification's concurrency model (§5: "the catalog connection is
// short-lived per call").
type Source struct {
	decode FrameDecoder
}

// New builds a Source that decodes catalog frames with decode.
func New(decode FrameDecoder) *Source {
	return &Source{decode: decode}
}

// Stream dials address and drains the user's endpoint groups.
func (s *Source) Stream(ctx context.Context, address, email string) ([]catalog.Group, error) {
	conn, err := dial(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("dial catalog %s: %w", address, err)
	}
	defer conn.Close()
	return s.decode(ctx, conn, email)
}

// Health dials address and waits for the connection to report ready,
// without issuing any RPC.
func (s *Source) Health(ctx context.Context, address string) error {
	conn, err := dial(ctx, address)
	if err != nil {
		return fmt.Errorf("dial catalog %s: %w", address, err)
	}
	defer conn.Close()

	conn.Connect()
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("catalog %s unreachable: %w", address, ctx.Err())
		}
	}
}

func dial(_ context.Context, address string) (*grpc.ClientConn, error) {
	return grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// Package simulator implements the Simulator Client collaborator of spec
// §4.E: a single dry-run call per solution, with no internal retries — a
// dry run result is request-specific, not replayable against stale state,
// so retrying it here would be silently wrong instead of merely slow.
package simulator

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/prerankio/preranking-engine/internal/domain"
	"github.com/prerankio/preranking-engine/internal/errkind"
	"github.com/prerankio/preranking-engine/internal/wireformat"
)

// Simulator dry-runs a solution's transaction bytes against current chain
// state without submitting it.
type Simulator interface {
	DryRun(ctx context.Context, transactionBytes []byte) (domain.DryRun, error)
}

// RPCSimulator calls a JSON-RPC dry-run endpoint over go-ethereum's
// rpc.Client, mirroring the transport ethclient.Client wraps it in.
type RPCSimulator struct {
	client  *rpc.Client
	method  string
	timeout time.Duration // per-call deadline (spec §5's "simulate" suspension point); 0 means none
}

// NewRPCSimulator dials addr once and reuses the connection for every call.
// method names the dry-run RPC method exposed by the simulator (spec §6).
// timeout bounds every DryRun call (spec §6's simulator_timeout_ms, default
// 10s); pass 0 to leave calls bounded only by the caller's context.
func NewRPCSimulator(ctx context.Context, addr string, method string, timeout time.Duration) (*RPCSimulator, error) {
	client, err := rpc.DialContext(ctx, addr)
	if err != nil {
		return nil, errkind.Wrap(errkind.Fatal, "dial simulator rpc %s: %v", addr, err)
	}
	return &RPCSimulator{client: client, method: method, timeout: timeout}, nil
}

// DryRun executes one dry run. A transport or RPC error is TransientUpstream
// (caller decides whether to fail the solution or let the pipeline's own
// retry policy — if any — take over); a malformed response is Internal.
func (s *RPCSimulator) DryRun(ctx context.Context, transactionBytes []byte) (domain.DryRun, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	var raw []byte
	if err := s.client.CallContext(ctx, &raw, s.method, transactionBytes); err != nil {
		return domain.DryRun{}, errkind.Wrap(errkind.TransientUpstream, "simulate: %v", err)
	}
	var result domain.DryRun
	if err := wireformat.DecodeTolerant(raw, &result); err != nil {
		return domain.DryRun{}, errkind.Wrap(errkind.Internal, "decode dry run response: %v", err)
	}
	if result.Status != domain.RunOK && result.Status != domain.RunFail {
		return domain.DryRun{}, errkind.Wrap(errkind.Internal, "unrecognised dry run status %q", result.Status)
	}
	return result, nil
}

// Close releases the underlying RPC connection.
func (s *RPCSimulator) Close() {
	s.client.Close()
}

var _ Simulator = (*RPCSimulator)(nil)

package chainevents

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/prerankio/preranking-engine/internal/domain"
)

// wireEvent is the JSON-RPC shape returned per event: a cursor pair plus
// the tolerant-decoded body, deferred to wireformat.DecodeTolerant by the
// caller (rawEvent.Body carries the raw bytes forward).
type wireEvent struct {
	EventSeq uint64         `json:"event_seq"`
	TxDigest string         `json:"tx_digest"`
	Body     jsonRawMessage `json:"body"`
}

// jsonRawMessage keeps the body's JSON bytes verbatim; a plain []byte field
// would only decode from a base64 string.
type jsonRawMessage = json.RawMessage

// RPCSource polls a node's JSON-RPC surface for the two filtered event
// streams (spec §4.C), mirroring the rpc.Client call pattern used
// elsewhere in the stack (simulator.RPCSimulator).
type RPCSource struct {
	client         *rpc.Client
	intentMethod   string
	solutionMethod string
	packageID      string
}

// NewRPCSource dials addr once. intentMethod/solutionMethod name the two
// filtered-query RPC methods exposed by the chain node; packageID scopes
// both queries to a single package identifier (spec §4.C).
func NewRPCSource(ctx context.Context, addr, packageID, intentMethod, solutionMethod string) (*RPCSource, error) {
	client, err := rpc.DialContext(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &RPCSource{client: client, packageID: packageID, intentMethod: intentMethod, solutionMethod: solutionMethod}, nil
}

func (s *RPCSource) poll(ctx context.Context, method string, after domain.Cursor, limit int) ([]rawEvent, error) {
	var wire []wireEvent
	if err := s.client.CallContext(ctx, &wire, method, s.packageID, after.EventSeq, after.TxDigest, limit); err != nil {
		return nil, err
	}
	out := make([]rawEvent, 0, len(wire))
	for _, w := range wire {
		out = append(out, rawEvent{
			Cursor: domain.Cursor{EventSeq: w.EventSeq, TxDigest: w.TxDigest},
			Body:   w.Body,
		})
	}
	return out, nil
}

// PollIntentSubmitted implements Source.
func (s *RPCSource) PollIntentSubmitted(ctx context.Context, after domain.Cursor, limit int) ([]rawEvent, error) {
	return s.poll(ctx, s.intentMethod, after, limit)
}

// PollSolutionSubmitted implements Source.
func (s *RPCSource) PollSolutionSubmitted(ctx context.Context, after domain.Cursor, limit int) ([]rawEvent, error) {
	return s.poll(ctx, s.solutionMethod, after, limit)
}

// Close releases the underlying RPC connection.
func (s *RPCSource) Close() {
	s.client.Close()
}

var _ Source = (*RPCSource)(nil)

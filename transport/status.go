package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/adamgarcia4/rendezvous/barrier"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

/*
BarrierStatus service

	rpc GetStatus(google.protobuf.Empty) returns (google.protobuf.Struct)

The response uses well-known types so no generated code is needed:

	{
	  "hostname":   "node-a",
	  "run_id":     "<uuid>",
	  "state":      "RUNNING" | "COMPLETE" | "TIMED_OUT",
	  "elapsed_ms": 1234,
	  "peers": [
	    {"hostname", "addr", "self", "heartbeat_received", "ack_received", "last_sent"}
	  ]
	}
*/

const (
	StatusServiceName = "rendezvous.v1.BarrierStatus"
	getStatusMethod   = "/" + StatusServiceName + "/GetStatus"
)

type barrierStatusServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var barrierStatusServiceDesc = grpc.ServiceDesc{
	ServiceName: StatusServiceName,
	HandlerType: (*barrierStatusServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetStatus",
			Handler:    getStatusHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rendezvous/v1/status.proto",
}

func getStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(barrierStatusServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: getStatusMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(barrierStatusServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

type statusServer struct {
	hostname string
	runID    string
	provider StatusProvider
}

func (s *statusServer) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return StatusToStruct(s.hostname, s.runID, s.provider.BarrierStatus())
}

// StatusToStruct encodes a barrier status in the GetStatus response shape.
func StatusToStruct(hostname, runID string, st barrier.Status) (*structpb.Struct, error) {
	peers := make([]interface{}, 0, len(st.Peers))
	for _, p := range st.Peers {
		lastSent := ""
		if !p.LastSent.IsZero() {
			lastSent = p.LastSent.Format(time.RFC3339Nano)
		}
		peers = append(peers, map[string]interface{}{
			"hostname":           p.Hostname,
			"addr":               p.Addr,
			"self":               p.Self,
			"heartbeat_received": p.HeartbeatReceived,
			"ack_received":       p.AckReceived,
			"last_sent":          lastSent,
		})
	}

	return structpb.NewStruct(map[string]interface{}{
		"hostname":   hostname,
		"run_id":     runID,
		"state":      st.State.String(),
		"elapsed_ms": st.Elapsed.Milliseconds(),
		"peers":      peers,
	})
}

// StatusReport is the decoded GetStatus response plus the health result.
type StatusReport struct {
	Hostname string
	RunID    string
	State    string
	Elapsed  time.Duration
	Serving  bool
	Peers    []barrier.PeerStatus
}

// StatusFromStruct decodes a GetStatus response. Unknown fields are ignored.
func StatusFromStruct(s *structpb.Struct) StatusReport {
	fields := s.GetFields()
	report := StatusReport{
		Hostname: fields["hostname"].GetStringValue(),
		RunID:    fields["run_id"].GetStringValue(),
		State:    fields["state"].GetStringValue(),
		Elapsed:  time.Duration(fields["elapsed_ms"].GetNumberValue()) * time.Millisecond,
	}

	for _, v := range fields["peers"].GetListValue().GetValues() {
		pf := v.GetStructValue().GetFields()
		ps := barrier.PeerStatus{
			Hostname:          pf["hostname"].GetStringValue(),
			Addr:              pf["addr"].GetStringValue(),
			Self:              pf["self"].GetBoolValue(),
			HeartbeatReceived: pf["heartbeat_received"].GetBoolValue(),
			AckReceived:       pf["ack_received"].GetBoolValue(),
		}
		if ts := pf["last_sent"].GetStringValue(); ts != "" {
			if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				ps.LastSent = t
			}
		}
		report.Peers = append(report.Peers, ps)
	}
	return report
}

// FetchStatus queries a node's status server.
func FetchStatus(ctx context.Context, addr string) (StatusReport, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return StatusReport{}, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, getStatusMethod, &emptypb.Empty{}, out); err != nil {
		return StatusReport{}, fmt.Errorf("GetStatus: %w", err)
	}
	report := StatusFromStruct(out)

	health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: StatusServiceName})
	if err != nil {
		return StatusReport{}, fmt.Errorf("health check: %w", err)
	}
	report.Serving = health.GetStatus() == healthpb.HealthCheckResponse_SERVING

	return report, nil
}

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/heroiclabs/nakama-common/rtapi"
	"github.com/heroiclabs/nakama-go/v2"
)

const (
	ServerKey = "defaultkey"
	HttpKey   = "defaulthttpkey"
	Host      = "127.0.0.1"
	Port      = 7350
	RPCPort   = 7350
)

type TestClient struct {
	Client  *nakama.Client
	Session *nakama.Session
	Socket  *nakama.Socket
	UserID  string
}

func NewTestClient(t *testing.T) *TestClient {
	client := nakama.NewClient(ServerKey, Host, Port, false)

	// Create unique ID
	deviceID := fmt.Sprintf("test_device_%d", time.Now().UnixNano())

	// Authenticate
	session, err := client.AuthenticateDevice(context.Background(), deviceID, true, "")
	if err != nil {
		t.Fatalf("Failed to authenticate: %v", err)
	}

	// Create Socket
	socket := client.NewSocket()
	if err := socket.Connect(context.Background(), session, true); err != nil {
		t.Fatalf("Failed to connect socket: %v", err)
	}

	return &TestClient{
		Client:  client,
		Session: session,
		Socket:  socket,
		UserID:  session.UserId,
	}
}

func (tc *TestClient) Close() {
	if tc.Socket != nil {
		tc.Socket.Close()
	}
}

type rpcReply struct {
	OK        bool            `json:"ok"`
	Message   string          `json:"message"`
	MessageID string          `json:"message_id"`
	MatchID   string          `json:"match_id"`
	Data      json.RawMessage `json:"data"`
}

// Call invokes an arena RPC with a JSON payload and decodes the reply.
func (tc *TestClient) Call(t *testing.T, id string, payload any) rpcReply {
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to encode %s payload: %v", id, err)
	}
	rpc, err := tc.Client.RpcFunc(context.Background(), tc.Session, id, string(body))
	if err != nil {
		t.Fatalf("RPC %s failed: %v", id, err)
	}
	var reply rpcReply
	if err := json.Unmarshal([]byte(rpc.Payload), &reply); err != nil {
		t.Fatalf("RPC %s returned %q: %v", id, rpc.Payload, err)
	}
	return reply
}

// JoinArena calls arena_join and connects to the competition match it returns.
func (tc *TestClient) JoinArena(t *testing.T, arena string) string {
	reply := tc.Call(t, "arena_join", map[string]string{"arena": arena})
	if !reply.OK || reply.MatchID == "" {
		t.Fatalf("arena_join failed: %s (%s)", reply.Message, reply.MessageID)
	}
	if _, err := tc.Socket.JoinMatch(context.Background(), nil, reply.MatchID, nil); err != nil {
		t.Fatalf("Failed to join match %s: %v", reply.MatchID, err)
	}
	return reply.MatchID
}

// WaitForMatchState waits for a specific opcode from the socket.
func (tc *TestClient) WaitForMatchState(t *testing.T, opCode int64, timeout time.Duration) *rtapi.MatchData {
	ch := make(chan *rtapi.MatchData)

	// Hook into socket (This is simplistic; robust tests might need a better event bus)
	// nakama-go socket callbacks are set on the socket object.
	// We need to overwrite OnMatchData.

	originalHandler := tc.Socket.OnMatchData
	tc.Socket.OnMatchData = func(data *rtapi.MatchData) {
		if data.OpCode == opCode {
			ch <- data
		}
		if originalHandler != nil {
			originalHandler(data)
		}
	}

	select {
	case data := <-ch:
		return data
	case <-time.After(timeout):
		t.Fatalf("Timeout waiting for OpCode %d", opCode)
		return nil
	}
}

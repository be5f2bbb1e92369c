package peer

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Signaling message types.
const (
	MsgJoin         = "join"
	MsgOffer        = "offer"
	MsgAnswer       = "answer"
	MsgCandidate    = "candidate"
	MsgLeave        = "leave"
	MsgPing         = "ping"
	MsgPong         = "pong"
	MsgRoomState    = "room_state"
	MsgMemberJoined = "member_joined"
	MsgMemberLeft   = "member_left"
	MsgLeft         = "left"
	MsgError        = "error"
)

// Reasons carried by member_left messages.
const (
	ReasonQuit     = "quit"
	ReasonDropped  = "dropped"
	ReasonAudience = "audience"
)

const writeWait = 5 * time.Second

// Message is the JSON envelope exchanged with the signaling server. Only the
// fields relevant to Type are set.
type Message struct {
	Type          string   `json:"type"`
	RequestID     string   `json:"request_id,omitempty"`
	Room          string   `json:"room,omitempty"`
	UID           uint32   `json:"uid,omitempty"`
	Token         string   `json:"token,omitempty"`
	Role          string   `json:"role,omitempty"`
	Members       []uint32 `json:"members,omitempty"`
	SDP           string   `json:"sdp,omitempty"`
	Candidate     string   `json:"candidate,omitempty"`
	SDPMid        *string  `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16  `json:"sdpMLineIndex,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	Code          int      `json:"code,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// signalClient is a websocket connection to the signaling server. Reads
// happen on a single goroutine; writes are serialized.
type signalClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func dialSignal(ctx context.Context, url string, header http.Header) (*signalClient, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial signaling server: %w", err)
	}
	return &signalClient{conn: conn}, nil
}

func (s *signalClient) send(msg Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

func (s *signalClient) read() (Message, error) {
	var msg Message
	err := s.conn.ReadJSON(&msg)
	return msg, err
}

// close sends a close frame and closes the socket, unblocking read.
func (s *signalClient) close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return s.conn.Close()
}

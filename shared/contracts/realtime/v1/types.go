// Package v1 defines the Huddle realtime protocol v1 contract.
//
// It is shared between server and clients and has no dependencies beyond the
// standard library.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is negotiated on the WebSocket handshake.
const Subprotocol = "huddle.realtime.v1"

// Type constants (wire-stable).
const (
	// TypeHelloAck confirms the connection and its identity (server -> client).
	TypeHelloAck = "hello.ack"

	// TypePing / TypePong are application-level liveness probes.
	TypePing = "ping"
	TypePong = "pong"

	// TypeTyping carries typing state. Client -> server it names the receiver;
	// server -> client it names the sender.
	TypeTyping = "typing"

	// TypeNewMessage delivers a persisted message to its receiver (server -> client).
	TypeNewMessage = "newMessage"

	// TypeFriendRequest notifies the target of a new contact request (server -> client).
	TypeFriendRequest = "friend_request"
	// TypeFriendRequestAccepted notifies the requester that the request was accepted.
	TypeFriendRequestAccepted = "friend_request_accepted"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs structural validation of a client -> server envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	switch strings.TrimSpace(e.Type) {
	case "":
		return errors.New("missing field: type")
	case TypePing, TypeTyping:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// HelloAckPayload is sent once after the connection is registered.
type HelloAckPayload struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// TypingSendPayload is sent by a client while composing.
type TypingSendPayload struct {
	ReceiverID string `json:"receiver_id"`
	IsTyping   bool   `json:"is_typing"`
}

// TypingPayload is relayed to the receiver.
type TypingPayload struct {
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// PongPayload answers a ping.
type PongPayload struct {
	ServerTS time.Time `json:"server_ts"`
}

// MessagePayload is a stored message as delivered by TypeNewMessage.
type MessagePayload struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserSummary is the public face of a user inside notifications.
type UserSummary struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	FullName       string `json:"full_name"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// FriendRequestPayload tells the target who asked.
type FriendRequestPayload struct {
	From      UserSummary `json:"from"`
	ContactID string      `json:"contact_id"`
}

// FriendRequestAcceptedPayload tells the requester who accepted.
type FriendRequestAcceptedPayload struct {
	By        UserSummary `json:"by"`
	ContactID string      `json:"contact_id"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package tab

import (
	"encoding/json"
	"os"
)

// Frame headers.
const (
	HeaderHello                = "hello"
	HeaderAuth                 = "auth"
	HeaderAuthOK               = "auth_ok"
	HeaderAuthError            = "auth_error"
	HeaderMonitorAdded         = "monitor_added"
	HeaderMonitorRemoved       = "monitor_removed"
	HeaderMonitorUpdated       = "monitor_updated"
	HeaderFramebufferLink      = "framebuffer_link"
	HeaderFramebufferLinkOK    = "framebuffer_link_ok"
	HeaderFramebufferLinkError = "framebuffer_link_error"
	HeaderBufferAcquire        = "buffer_acquire"
	HeaderBufferAcquired       = "buffer_acquired"
	HeaderNoBuffers            = "no_buffers"
	HeaderSwapBuffers          = "swap_buffers"
	HeaderSwapBuffersAck       = "swap_buffers_ack"
	HeaderFrameDone            = "frame_done"
	HeaderSessionReady         = "session_ready"
	HeaderSessionStateChanged  = "session_state_changed"
	HeaderSessionCreate        = "session_create"
	HeaderSessionCreated       = "session_created"
	HeaderSessionSwitch        = "session_switch"
	HeaderSessionActive        = "session_active"
	HeaderError                = "error"
	HeaderPing                 = "ping"
	HeaderPong                 = "pong"
)

// Message is one of the concrete tab message types in this file.
type Message interface {
	Header() string
}

// ClientMessage is a message a session sends to the server.
type ClientMessage interface {
	Message
	clientMessage()
}

// ServerMessage is a message the server sends to a session.
type ServerMessage interface {
	Message
	serverMessage()
}

// SessionInfo describes a session in auth_ok, session_state_changed and
// session_created.
type SessionInfo struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name,omitempty"`
	State       string `json:"state"`
}

// MonitorInfo describes one monitor and its place in the layout.
type MonitorInfo struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	RefreshRate int     `json:"refresh_rate"`
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Scale       float64 `json:"scale,omitempty"`
}

// BufferDescriptor describes one exported buffer of a framebuffer_link.
// The descriptor's file travels as ancillary data at the same position
// in FramebufferLink.Files.
type BufferDescriptor struct {
	Index  int    `json:"index"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Stride int    `json:"stride"`
	Offset int    `json:"offset"`
	Fourcc uint32 `json:"fourcc"`
}

// Hello is the first frame on every connection.
type Hello struct {
	Server   string `json:"server"`
	Protocol string `json:"protocol"`
}

// Auth presents a session token.
type Auth struct {
	Token string `json:"token"`
}

// AuthOK accepts a connection and advertises the current topology.
type AuthOK struct {
	Session         SessionInfo   `json:"session"`
	ProtocolVersion string        `json:"protocol_version"`
	Monitors        []MonitorInfo `json:"monitors"`
}

// AuthError rejects a connection. The server closes it afterwards.
type AuthError struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

type MonitorAdded struct {
	Monitor MonitorInfo `json:"monitor"`
}

type MonitorUpdated struct {
	Monitor MonitorInfo `json:"monitor"`
}

// MonitorRemoved is sent after every buffer bound to the monitor has
// been released.
type MonitorRemoved struct {
	MonitorID string `json:"monitor_id"`
	Name      string `json:"name"`
}

// FramebufferLink binds a double buffer to a monitor. Files holds one
// descriptor per entry of Buffers, in the same order.
type FramebufferLink struct {
	MonitorID string             `json:"monitor_id"`
	Buffers   []BufferDescriptor `json:"buffers"`
	Files     []*os.File         `json:"-"`
}

type FramebufferLinkOK struct {
	MonitorID string `json:"monitor_id"`
}

type FramebufferLinkError struct {
	MonitorID string `json:"monitor_id"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
}

// BufferAcquire asks for a Free buffer to render into.
type BufferAcquire struct {
	MonitorID string `json:"monitor_id"`
}

type BufferAcquired struct {
	MonitorID string `json:"monitor_id"`
	Index     int    `json:"index"`
}

// NoBuffers reports backpressure: both buffers are in flight.
type NoBuffers struct {
	MonitorID string `json:"monitor_id"`
}

// SwapBuffers submits a rendered buffer. Fence, when present, is a
// sync_file the server waits on before scanning the buffer out.
type SwapBuffers struct {
	MonitorID string   `json:"monitor_id"`
	Index     int      `json:"index"`
	Fence     *os.File `json:"-"`
}

type SwapBuffersAck struct {
	MonitorID string `json:"monitor_id"`
	Index     int    `json:"index"`
}

// FrameDone returns a buffer to the client after scan-out.
type FrameDone struct {
	MonitorID string `json:"monitor_id"`
	Index     int    `json:"index"`
}

type SessionReady struct {
	SessionID string `json:"session_id"`
}

type SessionStateChanged struct {
	Session SessionInfo `json:"session"`
}

// SessionCreate asks the server to mint a new pending session. Admin
// connections only.
type SessionCreate struct {
	Role        string `json:"role"`
	DisplayName string `json:"display_name,omitempty"`
}

type SessionCreated struct {
	Session SessionInfo `json:"session"`
	Token   string      `json:"token"`
}

// SessionSwitch moves focus to another session. Admin connections only.
type SessionSwitch struct {
	SessionID  string `json:"session_id"`
	Animation  string `json:"animation,omitempty"`
	DurationMS int    `json:"duration_ms,omitempty"`
}

type SessionActive struct {
	SessionID string `json:"session_id"`
}

// Error reports a failure not tied to a specific request type. Fatal
// kinds are followed by the server closing the connection.
type Error struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type Ping struct{}

type Pong struct{}

func (Hello) Header() string                { return HeaderHello }
func (Auth) Header() string                 { return HeaderAuth }
func (AuthOK) Header() string               { return HeaderAuthOK }
func (AuthError) Header() string            { return HeaderAuthError }
func (MonitorAdded) Header() string         { return HeaderMonitorAdded }
func (MonitorRemoved) Header() string       { return HeaderMonitorRemoved }
func (MonitorUpdated) Header() string       { return HeaderMonitorUpdated }
func (FramebufferLink) Header() string      { return HeaderFramebufferLink }
func (FramebufferLinkOK) Header() string    { return HeaderFramebufferLinkOK }
func (FramebufferLinkError) Header() string { return HeaderFramebufferLinkError }
func (BufferAcquire) Header() string        { return HeaderBufferAcquire }
func (BufferAcquired) Header() string       { return HeaderBufferAcquired }
func (NoBuffers) Header() string            { return HeaderNoBuffers }
func (SwapBuffers) Header() string          { return HeaderSwapBuffers }
func (SwapBuffersAck) Header() string       { return HeaderSwapBuffersAck }
func (FrameDone) Header() string            { return HeaderFrameDone }
func (SessionReady) Header() string         { return HeaderSessionReady }
func (SessionStateChanged) Header() string  { return HeaderSessionStateChanged }
func (SessionCreate) Header() string        { return HeaderSessionCreate }
func (SessionCreated) Header() string       { return HeaderSessionCreated }
func (SessionSwitch) Header() string        { return HeaderSessionSwitch }
func (SessionActive) Header() string        { return HeaderSessionActive }
func (Error) Header() string                { return HeaderError }
func (Ping) Header() string                 { return HeaderPing }
func (Pong) Header() string                 { return HeaderPong }

func (Auth) clientMessage()            {}
func (FramebufferLink) clientMessage() {}
func (BufferAcquire) clientMessage()   {}
func (SwapBuffers) clientMessage()     {}
func (SessionReady) clientMessage()    {}
func (SessionCreate) clientMessage()   {}
func (SessionSwitch) clientMessage()   {}
func (Ping) clientMessage()            {}
func (Pong) clientMessage()            {}

func (Hello) serverMessage()                {}
func (AuthOK) serverMessage()               {}
func (AuthError) serverMessage()            {}
func (MonitorAdded) serverMessage()         {}
func (MonitorRemoved) serverMessage()       {}
func (MonitorUpdated) serverMessage()       {}
func (FramebufferLinkOK) serverMessage()    {}
func (FramebufferLinkError) serverMessage() {}
func (BufferAcquired) serverMessage()       {}
func (NoBuffers) serverMessage()            {}
func (SwapBuffersAck) serverMessage()       {}
func (FrameDone) serverMessage()            {}
func (SessionStateChanged) serverMessage()  {}
func (SessionCreated) serverMessage()       {}
func (SessionActive) serverMessage()        {}
func (Error) serverMessage()                {}
func (Ping) serverMessage()                 {}
func (Pong) serverMessage()                 {}

// payloadless reports message types encoded with the empty marker.
func payloadless(message Message) bool {
	switch message.(type) {
	case Ping, Pong:
		return true
	}
	return false
}

// Encode renders a message as a frame, attaching any descriptors it
// carries.
func Encode(message Message) (Frame, error) {
	frame := Frame{Header: message.Header()}
	if !payloadless(message) {
		payload, err := json.Marshal(message)
		if err != nil {
			return Frame{}, err
		}
		frame.Payload = payload
	}
	switch typed := message.(type) {
	case FramebufferLink:
		frame.Files = typed.Files
	case SwapBuffers:
		if typed.Fence != nil {
			frame.Files = []*os.File{typed.Fence}
		}
	}
	return frame, nil
}

package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	ErrMalformedRecord = errors.New("malformed record")
	ErrWrongPayload    = errors.New("wrong payload for message kind")
)

// TimeLayout is the timestamp format carried on every frame.
const TimeLayout = "2006-01-02 15:04:05"

// Kind tags a wire message. Values overlap between directions; a kind is
// interpreted by direction and session state.
type Kind int

// Client-originated kinds.
const (
	KindLogin     Kind = 10
	KindNameClaim Kind = 11
	KindRegister  Kind = 20
	KindChat      Kind = 30
)

// Server-originated kinds.
const (
	KindLoginOK        Kind = 10
	KindAlreadyActive  Kind = 11
	KindBadCredentials Kind = 12
	KindNameAccepted   Kind = 20
	KindNameReserved   Kind = 21
	KindNameTaken      Kind = 22
	KindRegistered     Kind = 30
	KindAccountExists  Kind = 31
	KindBadState       Kind = 40
	KindServerError    Kind = 50
	KindHistory        Kind = 60
	KindJoin           Kind = 70
	KindBroadcast      Kind = 80
	KindDeparture      Kind = 90
)

// Envelope is one framed message. The message field is kind-specific: absent,
// a bare string (reasons, join/departure names, outbound chat text) or an
// object (credentials, chat events). It stays raw until a typed accessor
// checks its shape.
type Envelope struct {
	Kind      Kind            `json:"type"`
	Username  string          `json:"username,omitempty"`
	Body      json.RawMessage `json:"message,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

type Credentials struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

// ChatEvent is the body of broadcast (80) and history (60) messages.
type ChatEvent struct {
	Username string `json:"username"`
	Text     string `json:"message"`
}

// New builds a bodiless envelope such as a login-ok reply.
func New(kind Kind) *Envelope {
	return &Envelope{Kind: kind}
}

// NewText builds an envelope with a bare string body: rejection reasons,
// join/departure announcements and outbound chat text.
func NewText(kind Kind, text string) *Envelope {
	raw, _ := json.Marshal(text)
	return &Envelope{Kind: kind, Body: raw}
}

// NewCredentials builds a login or registration request.
func NewCredentials(kind Kind, account, password string) *Envelope {
	raw, _ := json.Marshal(Credentials{Account: account, Password: password})
	return &Envelope{Kind: kind, Body: raw}
}

// NewChatEvent builds a broadcast or history event.
func NewChatEvent(kind Kind, username, text string) *Envelope {
	raw, _ := json.Marshal(ChatEvent{Username: username, Text: text})
	return &Envelope{Kind: kind, Body: raw}
}

// Credentials decodes the body of a login or registration request.
func (e *Envelope) Credentials() (Credentials, error) {
	var c Credentials
	if err := json.Unmarshal(e.Body, &c); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrWrongPayload, err)
	}
	if c.Account == "" || c.Password == "" {
		return Credentials{}, fmt.Errorf("%w: empty account or password", ErrWrongPayload)
	}
	return c, nil
}

// Text decodes a bare string body.
func (e *Envelope) Text() (string, error) {
	var s string
	if err := json.Unmarshal(e.Body, &s); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWrongPayload, err)
	}
	return s, nil
}

// Chat decodes the body of a broadcast or history event.
func (e *Envelope) Chat() (ChatEvent, error) {
	var ev ChatEvent
	if err := json.Unmarshal(e.Body, &ev); err != nil {
		return ChatEvent{}, fmt.Errorf("%w: %v", ErrWrongPayload, err)
	}
	return ev, nil
}

// Stamp sets the timestamp to the current time if it is not set already.
// History events keep their recorded stamp.
func (e *Envelope) Stamp() {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().Format(TimeLayout)
	}
}

// Encode serializes the envelope as one newline-terminated record.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Decode parses a single record without its terminator.
func Decode(line []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(line, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return &e, nil
}

// Reader produces complete envelopes from a byte stream. A partial record is
// kept buffered across reads, so a read timeout does not discard the prefix;
// the caller may simply call Next again.
type Reader struct {
	src io.Reader
	buf []byte
	tmp [4096]byte
}

func NewReader(src io.Reader) *Reader {
	return &Reader{src: src}
}

// Next returns the next complete record. io.EOF signals orderly disconnect.
// A record that fails to decode is reported as ErrMalformedRecord; the stream
// stays usable and the caller decides whether to skip or close.
func (r *Reader) Next() (*Envelope, error) {
	for {
		if i := bytes.IndexByte(r.buf, '\n'); i >= 0 {
			line := bytes.TrimSpace(r.buf[:i])
			r.buf = r.buf[i+1:]
			if len(line) == 0 {
				continue
			}
			return Decode(line)
		}

		n, err := r.src.Read(r.tmp[:])
		if n > 0 {
			r.buf = append(r.buf, r.tmp[:n]...)
		}
		if err != nil {
			// A final record may arrive without its terminator.
			if err == io.EOF {
				if line := bytes.TrimSpace(r.buf); len(line) > 0 {
					r.buf = nil
					return Decode(line)
				}
			}
			return nil, err
		}
	}
}

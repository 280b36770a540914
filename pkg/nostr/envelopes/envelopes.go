// Package envelopes holds the JSON array frames exchanged with relays and a
// parser for them.
package envelopes

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/postr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/postr/pkg/nostr/wire/text"
	"github.com/Hubmakerlabs/postr/pkg/slog"
	"github.com/tidwall/gjson"
)

var log, chk = slog.New(os.Stderr)

// The frame labels, byte exact.
const (
	LEvent  = "EVENT"
	LReq    = "REQ"
	LClose  = "CLOSE"
	LOK     = "OK"
	LEOSE   = "EOSE"
	LClosed = "CLOSED"
	LNotice = "NOTICE"
	LAuth   = "AUTH"
)

// ErrProtocol is returned by Parse for any frame that is not a well formed
// envelope.
var ErrProtocol = errors.New("protocol error")

// I is an envelope that can be written to a connection.
type I interface {
	Label() string
	MarshalJSON() ([]byte, error)
}

// Event carries an event. From client to relay SubscriptionID is empty and is
// omitted from the frame.
type Event struct {
	SubscriptionID string
	Event          *event.T
}

func (env *Event) Label() string { return LEvent }
func (env *Event) MarshalJSON() (b []byte, err error) {
	b = append(b, `["EVENT",`...)
	if env.SubscriptionID != "" {
		b = text.EscapeString(b, env.SubscriptionID)
		b = append(b, ',')
	}
	var evb []byte
	if evb, err = env.Event.MarshalJSON(); chk.E(err) {
		return
	}
	b = append(b, evb...)
	return append(b, ']'), nil
}

// Req opens a subscription.
type Req struct {
	SubscriptionID string
	Filters        filters.T
}

func (env *Req) Label() string { return LReq }
func (env *Req) MarshalJSON() (b []byte, err error) {
	b = append(b, `["REQ",`...)
	b = text.EscapeString(b, env.SubscriptionID)
	for _, f := range env.Filters {
		b = append(b, ',')
		var fb []byte
		if fb, err = f.MarshalJSON(); chk.E(err) {
			return
		}
		b = append(b, fb...)
	}
	return append(b, ']'), nil
}

// Close ends a subscription.
type Close struct {
	SubscriptionID string
}

func (env *Close) Label() string { return LClose }
func (env *Close) MarshalJSON() (b []byte, err error) {
	b = append(b, `["CLOSE",`...)
	b = text.EscapeString(b, env.SubscriptionID)
	return append(b, ']'), nil
}

// OK is the relay's verdict on a published event.
type OK struct {
	EventID string
	OK      bool
	Reason  string
}

func (env *OK) Label() string { return LOK }
func (env *OK) MarshalJSON() (b []byte, err error) {
	b = append(b, `["OK",`...)
	b = text.EscapeString(b, env.EventID)
	b = append(b, ',')
	b = strconv.AppendBool(b, env.OK)
	b = append(b, ',')
	b = text.EscapeString(b, env.Reason)
	return append(b, ']'), nil
}

// EOSE marks the end of stored events for a subscription.
type EOSE struct {
	SubscriptionID string
}

func (env *EOSE) Label() string { return LEOSE }
func (env *EOSE) MarshalJSON() (b []byte, err error) {
	b = append(b, `["EOSE",`...)
	b = text.EscapeString(b, env.SubscriptionID)
	return append(b, ']'), nil
}

// Closed is the relay ending a subscription on its side.
type Closed struct {
	SubscriptionID string
	Reason         string
}

func (env *Closed) Label() string { return LClosed }
func (env *Closed) MarshalJSON() (b []byte, err error) {
	b = append(b, `["CLOSED",`...)
	b = text.EscapeString(b, env.SubscriptionID)
	b = append(b, ',')
	b = text.EscapeString(b, env.Reason)
	return append(b, ']'), nil
}

// Notice is a human readable message from the relay.
type Notice struct {
	Message string
}

func (env *Notice) Label() string { return LNotice }
func (env *Notice) MarshalJSON() (b []byte, err error) {
	b = append(b, `["NOTICE",`...)
	b = text.EscapeString(b, env.Message)
	return append(b, ']'), nil
}

// Auth is a NIP-42 challenge. The client does not authenticate, it is parsed
// only so it is not reported as a protocol error.
type Auth struct {
	Challenge string
}

func (env *Auth) Label() string { return LAuth }
func (env *Auth) MarshalJSON() (b []byte, err error) {
	b = append(b, `["AUTH",`...)
	b = text.EscapeString(b, env.Challenge)
	return append(b, ']'), nil
}

func protocolErr(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, a...))
}

func str(v gjson.Result, what string) (s string, err error) {
	if v.Type != gjson.String {
		return "", protocolErr("%s is not a string", what)
	}
	return v.Str, nil
}

// Parse decodes any frame of the protocol, in either direction. Anything that
// is not a JSON array with a known label and the right element types is an
// ErrProtocol.
func Parse(b []byte) (env I, err error) {
	if !gjson.ValidBytes(b) {
		return nil, protocolErr("invalid json")
	}
	arr := gjson.ParseBytes(b)
	if !arr.IsArray() {
		return nil, protocolErr("frame is not an array")
	}
	a := arr.Array()
	if len(a) < 2 {
		return nil, protocolErr("frame has %d elements", len(a))
	}
	var label string
	if label, err = str(a[0], "label"); err != nil {
		return
	}
	switch label {
	case LEvent:
		e := &Event{}
		raw := a[1]
		if len(a) >= 3 {
			if e.SubscriptionID, err = str(a[1], "subscription id"); err != nil {
				return
			}
			raw = a[2]
		}
		if !raw.IsObject() {
			return nil, protocolErr("event is not an object")
		}
		e.Event = &event.T{}
		if err = json.Unmarshal([]byte(raw.Raw), e.Event); err != nil {
			return nil, protocolErr("event: %s", err)
		}
		return e, nil
	case LReq:
		r := &Req{}
		if r.SubscriptionID, err = str(a[1], "subscription id"); err != nil {
			return
		}
		for _, fr := range a[2:] {
			f := &filter.T{}
			if err = f.UnmarshalJSON([]byte(fr.Raw)); err != nil {
				return nil, protocolErr("filter: %s", err)
			}
			r.Filters = append(r.Filters, f)
		}
		return r, nil
	case LClose:
		c := &Close{}
		if c.SubscriptionID, err = str(a[1], "subscription id"); err != nil {
			return
		}
		return c, nil
	case LOK:
		if len(a) < 3 {
			return nil, protocolErr("ok frame has %d elements", len(a))
		}
		o := &OK{}
		if o.EventID, err = str(a[1], "event id"); err != nil {
			return
		}
		if a[2].Type != gjson.True && a[2].Type != gjson.False {
			return nil, protocolErr("ok flag is not a boolean")
		}
		o.OK = a[2].Bool()
		if len(a) > 3 {
			o.Reason = a[3].String()
		}
		return o, nil
	case LEOSE:
		e := &EOSE{}
		if e.SubscriptionID, err = str(a[1], "subscription id"); err != nil {
			return
		}
		return e, nil
	case LClosed:
		c := &Closed{}
		if c.SubscriptionID, err = str(a[1], "subscription id"); err != nil {
			return
		}
		if len(a) > 2 {
			c.Reason = a[2].String()
		}
		return c, nil
	case LNotice:
		n := &Notice{}
		if n.Message, err = str(a[1], "notice"); err != nil {
			return
		}
		return n, nil
	case LAuth:
		au := &Auth{}
		if a[1].Type == gjson.String {
			au.Challenge = a[1].Str
		}
		return au, nil
	}
	return nil, protocolErr("unknown label %q", label)
}

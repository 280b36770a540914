// Package connection is the client side of a websocket to a relay, with
// permessage-deflate when the relay offers it.
package connection

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"

	"github.com/Hubmakerlabs/postr/pkg/context"
	"github.com/Hubmakerlabs/postr/pkg/slog"
	"github.com/gobwas/httphead"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsflate"
	"github.com/gobwas/ws/wsutil"
)

var log, chk = slog.New(os.Stderr)

// MaxMessageSize is the write buffer size, frames larger than this are
// fragmented.
const MaxMessageSize = 512000

// C is a websocket connection. Reads and writes may run on separate
// goroutines, but only one of each at a time.
type C struct {
	Conn           net.Conn
	compressed     bool
	controlHandler wsutil.FrameHandlerFunc
	flateReader    *wsflate.Reader
	reader         *wsutil.Reader
	flateWriter    *wsflate.Writer
	writer         *wsutil.Writer
	msgState       *wsflate.MessageState
}

// Dial opens a websocket to url. The handshake is bounded by the deadline of
// c.
func Dial(c context.T, url string, header http.Header) (conn *C, err error) {
	dialer := ws.Dialer{
		Header: ws.HandshakeHeaderHTTP(header),
		Extensions: []httphead.Option{
			wsflate.DefaultParameters.Option(),
		},
	}
	var nc net.Conn
	var hs ws.Handshake
	if nc, _, hs, err = dialer.Dial(c, url); chk.D(err) {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	conn = &C{Conn: nc, msgState: &wsflate.MessageState{}}
	state := ws.StateClientSide
	for _, extension := range hs.Extensions {
		if string(extension.Name) == wsflate.ExtensionName {
			conn.compressed = true
			state |= ws.StateExtended
			break
		}
	}
	if conn.compressed {
		conn.msgState.SetCompressed(true)
		conn.flateReader = wsflate.NewReader(nil,
			func(r io.Reader) wsflate.Decompressor {
				return flate.NewReader(r)
			})
		conn.flateWriter = wsflate.NewWriter(nil,
			func(w io.Writer) wsflate.Compressor {
				fw, ferr := flate.NewWriter(w, 4)
				if chk.E(ferr) {
					log.E.F("failed to create flate writer: %v", ferr)
				}
				return fw
			})
	}
	conn.controlHandler = wsutil.ControlFrameHandler(nc, ws.StateClientSide)
	conn.reader = &wsutil.Reader{
		Source:         nc,
		State:          state,
		OnIntermediate: conn.controlHandler,
		CheckUTF8:      false,
		Extensions:     []wsutil.RecvExtension{conn.msgState},
	}
	conn.writer = wsutil.NewWriterSize(nc, state, ws.OpText, MaxMessageSize)
	conn.writer.SetExtensions(conn.msgState)
	return
}

// WriteMessage sends one text frame.
func (c *C) WriteMessage(data []byte) (err error) {
	if c.compressed && c.msgState.IsCompressed() {
		c.flateWriter.Reset(c.writer)
		if _, err = io.Copy(c.flateWriter, bytes.NewReader(data)); chk.D(err) {
			return fmt.Errorf("failed to write message: %w", err)
		}
		if err = c.flateWriter.Close(); chk.D(err) {
			return fmt.Errorf("failed to close flate writer: %w", err)
		}
	} else {
		if _, err = io.Copy(c.writer, bytes.NewReader(data)); chk.D(err) {
			return fmt.Errorf("failed to write message: %w", err)
		}
	}
	if err = c.writer.Flush(); chk.D(err) {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return
}

// Ping sends a ping control frame.
func (c *C) Ping() (err error) {
	return wsutil.WriteClientMessage(c.Conn, ws.OpPing, nil)
}

// ReadMessage blocks until the next data frame and copies its payload to buf.
// Control frames are answered along the way. Closing the connection unblocks
// it.
func (c *C) ReadMessage(cx context.T, buf io.Writer) (err error) {
	for {
		if err = cx.Err(); err != nil {
			return
		}
		var h ws.Header
		if h, err = c.reader.NextFrame(); chk.T(err) {
			chk.T(c.Conn.Close())
			return fmt.Errorf("failed to advance frame: %w", err)
		}
		if h.OpCode.IsControl() {
			if err = c.controlHandler(h, c.reader); chk.T(err) {
				return fmt.Errorf("failed to handle control frame: %w", err)
			}
			continue
		}
		if h.OpCode == ws.OpBinary || h.OpCode == ws.OpText {
			break
		}
		if err = c.reader.Discard(); chk.E(err) {
			return fmt.Errorf("failed to discard: %w", err)
		}
	}
	if c.compressed && c.msgState.IsCompressed() {
		c.flateReader.Reset(c.reader)
		if _, err = io.Copy(buf, c.flateReader); chk.D(err) {
			return fmt.Errorf("failed to read message: %w", err)
		}
	} else {
		if _, err = io.Copy(buf, c.reader); chk.D(err) {
			return fmt.Errorf("failed to read message: %w", err)
		}
	}
	return
}

func (c *C) Close() (err error) { return c.Conn.Close() }

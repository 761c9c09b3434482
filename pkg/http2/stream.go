// Package http2 runs a single request stream over its own HTTP/2 connection. The
// connection is driven from the caller's goroutine: frames are read only while a call
// is waiting for headers, body data or send window.
package http2

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/WhileEndless/go-rawexec/pkg/constants"
	"github.com/WhileEndless/go-rawexec/pkg/errors"
	"github.com/WhileEndless/go-rawexec/pkg/header"
	"github.com/WhileEndless/go-rawexec/pkg/timing"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// The only stream opened on a connection.
const streamID uint32 = 1

const shutdownWriteTimeout = time.Second

// Stream is one client stream on a dedicated connection.
type Stream struct {
	conn   net.Conn
	bw     *bufio.Writer
	fr     *http2.Framer
	enc    *hpack.Encoder
	encBuf bytes.Buffer

	peerMaxFrame      uint32
	peerInitialWindow int32
	sendWindow        int32
	connWindow        int32

	settingsAcked bool
	peerSettings  bool

	headers     []*header.Header
	data        bytes.Buffer
	localEnded  bool
	remoteEnded bool
	err         error

	closeOnce sync.Once
	closeErr  error
}

func newStream(conn net.Conn) *Stream {
	s := &Stream{
		conn:              conn,
		bw:                bufio.NewWriter(conn),
		peerMaxFrame:      constants.DefaultMaxFrameSize,
		peerInitialWindow: constants.InitialPeerWindow,
		sendWindow:        constants.InitialPeerWindow,
		connWindow:        constants.InitialPeerWindow,
	}
	s.fr = http2.NewFramer(s.bw, bufio.NewReader(conn))
	s.fr.ReadMetaHeaders = hpack.NewDecoder(constants.DefaultHpackTableSize, nil)
	s.fr.MaxHeaderListSize = constants.DefaultMaxHeaderListLen
	s.fr.SetMaxReadFrameSize(constants.DefaultMaxFrameSize)
	s.enc = hpack.NewEncoder(&s.encBuf)
	return s
}

// Open performs the client side of the connection preface on conn and returns the
// stream once both SETTINGS frames have been acknowledged.
func Open(ctx context.Context, conn net.Conn) (*Stream, error) {
	release := timing.BindConn(ctx, conn)
	defer release()

	s := newStream(conn)
	if _, err := s.bw.WriteString(http2.ClientPreface); err != nil {
		return nil, errors.NewIOError("writing connection preface", err)
	}
	err := s.fr.WriteSettings(
		http2.Setting{ID: http2.SettingEnablePush, Val: 0},
		http2.Setting{ID: http2.SettingInitialWindowSize, Val: constants.DefaultInitialWindow},
		http2.Setting{ID: http2.SettingMaxFrameSize, Val: constants.DefaultMaxFrameSize},
		http2.Setting{ID: http2.SettingMaxHeaderListSize, Val: constants.DefaultMaxHeaderListLen},
	)
	if err != nil {
		return nil, errors.NewIOError("writing settings", err)
	}
	if err := s.fr.WriteWindowUpdate(0, constants.DefaultInitialWindow-constants.InitialPeerWindow); err != nil {
		return nil, errors.NewIOError("writing connection window update", err)
	}
	if err := s.bw.Flush(); err != nil {
		return nil, errors.NewIOError("writing connection preface", err)
	}

	for !s.settingsAcked || !s.peerSettings {
		if err := s.readFrame(); err != nil {
			return nil, errors.NewProtocolError("settings exchange", err)
		}
		if s.err != nil {
			return nil, s.err
		}
	}
	return s, nil
}

// Proto returns the wire protocol name.
func (s *Stream) Proto() string { return "HTTP/2" }

// WriteHeaders HPACK-encodes h and sends it as HEADERS plus CONTINUATION frames.
func (s *Stream) WriteHeaders(ctx context.Context, h *header.Header, endStream bool) error {
	release := timing.BindConn(ctx, s.conn)
	defer release()

	s.encBuf.Reset()
	err := h.Each(func(name, value string) error {
		if isConnectionSpecificHeader(name, value) {
			return nil
		}
		return s.enc.WriteField(hpack.HeaderField{Name: name, Value: value})
	})
	if err != nil {
		return errors.NewProtocolError("encoding headers", err)
	}

	block := s.encBuf.Bytes()
	frameSize := int(s.peerMaxFrame)
	first := block
	if len(first) > frameSize {
		first = block[:frameSize]
	}
	block = block[len(first):]
	err = s.fr.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: first,
		EndStream:     endStream,
		EndHeaders:    len(block) == 0,
	})
	for err == nil && len(block) > 0 {
		n := min(len(block), frameSize)
		err = s.fr.WriteContinuation(streamID, n == len(block), block[:n])
		block = block[n:]
	}
	if err == nil {
		err = s.bw.Flush()
	}
	if err != nil {
		return errors.NewIOError("writing headers", err)
	}
	s.localEnded = endStream
	return nil
}

// isConnectionSpecificHeader reports fields HTTP/2 forbids (RFC 9113 §8.2.2).
func isConnectionSpecificHeader(name, value string) bool {
	switch name {
	case "connection", "keep-alive", "proxy-connection", "transfer-encoding", "upgrade", "host":
		return true
	case "te":
		return value != "trailers"
	}
	return false
}

// WriteBodyFromBuffer sends p as DATA frames and ends the stream.
func (s *Stream) WriteBodyFromBuffer(ctx context.Context, p []byte) error {
	release := timing.BindConn(ctx, s.conn)
	defer release()
	return s.writeData(p, true)
}

// WriteBodyFromReader streams r as DATA frames and ends the stream.
func (s *Stream) WriteBodyFromReader(ctx context.Context, r io.Reader) error {
	release := timing.BindConn(ctx, s.conn)
	defer release()

	buf := make([]byte, constants.BodyCopyBuffer)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := s.writeData(buf[:n], false); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return s.writeData(nil, true)
		}
		if err != nil {
			return errors.NewIOError("reading body source", err)
		}
	}
}

// WriteChunk sends p; final sets END_STREAM.
func (s *Stream) WriteChunk(ctx context.Context, p []byte, final bool) error {
	release := timing.BindConn(ctx, s.conn)
	defer release()
	return s.writeData(p, final)
}

// writeData splits p by the peer's frame size and the send windows, reading frames
// while the window is exhausted.
func (s *Stream) writeData(p []byte, end bool) error {
	if s.localEnded {
		return errors.NewProtocolError("stream already half-closed", nil)
	}
	for {
		if s.err != nil {
			return s.err
		}
		if len(p) == 0 {
			if end {
				if err := s.fr.WriteData(streamID, true, nil); err != nil {
					return errors.NewIOError("writing data", err)
				}
			}
			break
		}

		n := min(len(p), int(s.peerMaxFrame), int(s.sendWindow), int(s.connWindow))
		if n <= 0 {
			if err := s.bw.Flush(); err != nil {
				return errors.NewIOError("writing data", err)
			}
			if err := s.readFrame(); err != nil {
				return errors.NewIOError("waiting for send window", err)
			}
			continue
		}

		chunk := p[:n]
		p = p[n:]
		last := end && len(p) == 0
		if err := s.fr.WriteData(streamID, last, chunk); err != nil {
			return errors.NewIOError("writing data", err)
		}
		s.sendWindow -= int32(n)
		s.connWindow -= int32(n)
		if last {
			break
		}
	}
	if err := s.bw.Flush(); err != nil {
		return errors.NewIOError("writing data", err)
	}
	s.localEnded = end
	return nil
}

// ReadHeaders returns the next header block received on the stream.
func (s *Stream) ReadHeaders(ctx context.Context) (*header.Header, error) {
	release := timing.BindConn(ctx, s.conn)
	defer release()

	for len(s.headers) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		if s.remoteEnded {
			return nil, errors.NewProtocolError("stream ended without response headers", nil)
		}
		if err := s.readFrame(); err != nil {
			return nil, errors.NewProtocolError("reading frame", err)
		}
	}
	h := s.headers[0]
	s.headers = s.headers[1:]
	return h, nil
}

// Read reads response body data.
func (s *Stream) Read(p []byte) (int, error) {
	for s.data.Len() == 0 {
		if s.err != nil {
			return 0, s.err
		}
		if s.remoteEnded {
			return 0, io.EOF
		}
		if err := s.readFrame(); err != nil {
			return 0, errors.NewIOError("reading data", err)
		}
	}
	return s.data.Read(p)
}

// Shutdown resets the stream if it is still open, sends GOAWAY and closes the
// connection.
func (s *Stream) Shutdown() error {
	s.closeOnce.Do(func() {
		s.conn.SetWriteDeadline(time.Now().Add(shutdownWriteTimeout))
		if !s.localEnded || !s.remoteEnded {
			s.fr.WriteRSTStream(streamID, http2.ErrCodeCancel)
		}
		s.fr.WriteGoAway(0, http2.ErrCodeNo, nil)
		s.bw.Flush()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// readFrame reads and handles one frame. Peer errors are recorded in s.err.
func (s *Stream) readFrame() error {
	frame, err := s.fr.ReadFrame()
	if err != nil {
		return err
	}

	switch f := frame.(type) {
	case *http2.MetaHeadersFrame:
		if f.StreamID != streamID {
			return nil
		}
		h := header.New()
		for _, hf := range f.Fields {
			h.Add(hf.Name, hf.Value)
		}
		s.headers = append(s.headers, h)
		if f.StreamEnded() {
			s.remoteEnded = true
		}

	case *http2.DataFrame:
		if f.StreamID != streamID {
			return nil
		}
		s.data.Write(f.Data())
		if f.StreamEnded() {
			s.remoteEnded = true
		}
		if f.Length > 0 {
			if err := s.fr.WriteWindowUpdate(0, f.Length); err != nil {
				return err
			}
			if !s.remoteEnded {
				if err := s.fr.WriteWindowUpdate(streamID, f.Length); err != nil {
					return err
				}
			}
			return s.bw.Flush()
		}

	case *http2.SettingsFrame:
		if f.IsAck() {
			s.settingsAcked = true
			return nil
		}
		s.peerSettings = true
		err := f.ForeachSetting(func(st http2.Setting) error {
			switch st.ID {
			case http2.SettingMaxFrameSize:
				s.peerMaxFrame = st.Val
			case http2.SettingInitialWindowSize:
				s.sendWindow += int32(st.Val) - s.peerInitialWindow
				s.peerInitialWindow = int32(st.Val)
			case http2.SettingHeaderTableSize:
				s.enc.SetMaxDynamicTableSize(st.Val)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if err := s.fr.WriteSettingsAck(); err != nil {
			return err
		}
		return s.bw.Flush()

	case *http2.PingFrame:
		if f.IsAck() {
			return nil
		}
		if err := s.fr.WritePing(true, f.Data); err != nil {
			return err
		}
		return s.bw.Flush()

	case *http2.WindowUpdateFrame:
		switch f.StreamID {
		case 0:
			s.connWindow += int32(f.Increment)
		case streamID:
			s.sendWindow += int32(f.Increment)
		}

	case *http2.RSTStreamFrame:
		if f.StreamID == streamID {
			s.err = errors.NewStreamError("stream reset by peer", f.ErrCode.String())
			s.remoteEnded = true
		}

	case *http2.GoAwayFrame:
		if f.LastStreamID < streamID || f.ErrCode != http2.ErrCodeNo {
			s.err = errors.NewStreamError("connection closed by peer (GOAWAY)", f.ErrCode.String())
		}
	}
	return nil
}

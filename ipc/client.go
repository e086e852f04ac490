// Package ipc speaks to the native engine over a websocket: request/response
// frames for the recording procedures, unsolicited frames for pushed events.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arach/scout-sub000/backend"
	"github.com/arach/scout-sub000/events"
	"github.com/arach/scout-sub000/log"
)

var _ backend.Recorder = (*Client)(nil)

const handshakeTimeout = 15 * time.Second

var ErrClosed = errors.New("ipc: connection closed")

// frame is the single wire shape. Requests carry id+cmd+args, responses
// id+result|error, events event+payload.
type frame struct {
	ID      uint64          `json:"id,omitempty"`
	Cmd     string          `json:"cmd,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client implements backend.Recorder over one websocket connection. Pushed
// event frames are decoded and emitted on the bus handed to Dial.
type Client struct {
	conn    *websocket.Conn
	bus     *events.Bus
	writeMu sync.Mutex // gorilla allows one concurrent writer

	mu       sync.Mutex
	pending  map[uint64]chan frame
	nextID   uint64
	closed   bool
	closeErr error
}

func Dial(ctx context.Context, addr string, bus *events.Bus) (*Client, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("ipc dial %s: %w", addr, err)
	}

	c := &Client{
		conn:    conn,
		bus:     bus,
		pending: make(map[uint64]chan frame),
	}
	go c.readLoop()
	log.IPCConnected(addr)
	return c, nil
}

func (c *Client) readLoop() {
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.closeWith(err)
			return
		}
		if f.Event != "" {
			c.dispatchEvent(f)
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[f.ID]
		if ok {
			delete(c.pending, f.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- f
		}
	}
}

// dispatchEvent decodes known payload shapes once, here, so subscribers see
// typed values instead of raw JSON.
func (c *Client) dispatchEvent(f frame) {
	switch f.Event {
	case events.RecordingStateChanged:
		var p events.StateChangedPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			log.Warnf("bad %s payload: %v", f.Event, err)
			return
		}
		c.bus.Emit(f.Event, p)
	case events.RecordingProgress:
		var p events.ProgressPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			log.Warnf("bad %s payload: %v", f.Event, err)
			return
		}
		c.bus.Emit(f.Event, p)
	default:
		// processing-complete and the push-to-talk events need no decoding
		c.bus.Emit(f.Event, f.Payload)
	}
}

func (c *Client) call(ctx context.Context, cmd string, args, result any) error {
	var rawArgs json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return err
		}
		rawArgs = data
	}

	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return err
	}
	c.nextID++
	id := c.nextID
	ch := make(chan frame, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(frame{ID: id, Cmd: cmd, Args: rawArgs})
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", cmd, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		if resp.Error != "" {
			// raw engine text preserved for backend.Classify
			return errors.New(resp.Error)
		}
		if result != nil && len(resp.Result) > 0 {
			return json.Unmarshal(resp.Result, result)
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	}
}

func (c *Client) closeWith(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = fmt.Errorf("%w: %v", ErrClosed, err)
	pending := c.pending
	c.pending = make(map[uint64]chan frame)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	c.conn.Close()
}

func (c *Client) Close() {
	c.closeWith(errors.New("client closed"))
}

type startArgs struct {
	DeviceName *string `json:"device_name"`
}

type readArgs struct {
	AudioPath string `json:"audio_path"`
}

func (c *Client) StartRecording(ctx context.Context, device *string) error {
	return c.call(ctx, "start_recording", startArgs{DeviceName: device}, nil)
}

func (c *Client) StopRecording(ctx context.Context) error {
	return c.call(ctx, "stop_recording", nil, nil)
}

func (c *Client) CancelRecording(ctx context.Context) error {
	return c.call(ctx, "cancel_recording", nil, nil)
}

func (c *Client) IsRecording(ctx context.Context) (bool, error) {
	var active bool
	err := c.call(ctx, "is_recording", nil, &active)
	return active, err
}

func (c *Client) ReadAudioFile(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := c.call(ctx, "read_audio_file", readArgs{AudioPath: path}, &data)
	return data, err
}

func (c *Client) PlayStartSound(ctx context.Context) error {
	return c.call(ctx, "play_start_sound", nil, nil)
}

func (c *Client) PlayStopSound(ctx context.Context) error {
	return c.call(ctx, "play_stop_sound", nil, nil)
}

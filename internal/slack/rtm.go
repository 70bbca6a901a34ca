package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
	eventBuffer  = 256
)

// ErrDisconnected is returned by RTM.Next once the websocket is gone and
// every buffered event has been delivered.
var ErrDisconnected = errors.New("slack: rtm connection closed")

// RTM is a live real time messaging connection. Events are read in the
// background and buffered until the next call to Next.
type RTM struct {
	conn   *websocket.Conn
	self   string
	events chan Message
	done   chan struct{}
	logger *zap.Logger

	writeMu sync.Mutex
	pingID  atomic.Int64

	errMu   sync.Mutex
	readErr error

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// DialRTM opens an RTM session. A nil dialer uses websocket.DefaultDialer.
func (c *Client) DialRTM(ctx context.Context, dialer *websocket.Dialer) (*RTM, error) {
	session, err := c.ConnectRTM(ctx)
	if err != nil {
		return nil, err
	}
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, session.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing rtm websocket: %w", err)
	}

	r := &RTM{
		conn:   conn,
		self:   session.Self,
		events: make(chan Message, eventBuffer),
		done:   make(chan struct{}),
		logger: c.logger.With(zap.String("rtm_self", session.Self)),
	}
	r.wg.Add(2)
	go r.readLoop()
	go r.pingLoop()
	r.logger.Info("connected to slack rtm")
	return r, nil
}

// Self returns the bot's user ID as reported by Slack.
func (r *RTM) Self() string { return r.self }

// Next returns every event received since the previous call, possibly
// none. It never blocks waiting for new events.
func (r *RTM) Next(ctx context.Context) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var batch []Message
	for {
		select {
		case m, ok := <-r.events:
			if !ok {
				if len(batch) > 0 {
					return batch, nil
				}
				return nil, r.err()
			}
			batch = append(batch, m)
		default:
			return batch, nil
		}
	}
}

// Close shuts the connection down and waits for the background readers.
func (r *RTM) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		r.writeMu.Lock()
		_ = r.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		r.writeMu.Unlock()
		err = r.conn.Close()
		r.wg.Wait()
	})
	return err
}

func (r *RTM) readLoop() {
	defer r.wg.Done()
	defer close(r.events)

	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			select {
			case <-r.done:
				r.setErr(ErrDisconnected)
			default:
				r.logger.Warn("rtm read failed", zap.Error(err))
				r.setErr(fmt.Errorf("%w: %w", ErrDisconnected, err))
			}
			return
		}

		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			r.logger.Debug("skipping undecodable rtm event", zap.Error(err))
			continue
		}
		if m.Type == "goodbye" {
			r.setErr(fmt.Errorf("%w: server said goodbye", ErrDisconnected))
			return
		}

		select {
		case r.events <- m:
		case <-r.done:
			r.setErr(ErrDisconnected)
			return
		}
	}
}

func (r *RTM) pingLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			ping := map[string]any{"id": r.pingID.Add(1), "type": "ping"}
			r.writeMu.Lock()
			_ = r.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := r.conn.WriteJSON(ping)
			r.writeMu.Unlock()
			if err != nil {
				r.logger.Warn("rtm ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (r *RTM) setErr(err error) {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if r.readErr == nil {
		r.readErr = err
	}
}

func (r *RTM) err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if r.readErr == nil {
		return ErrDisconnected
	}
	return r.readErr
}

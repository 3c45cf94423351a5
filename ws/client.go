package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"
	"github.com/tcriess/clubchat/globals"
	"github.com/tcriess/clubchat/session"
	"github.com/tcriess/clubchat/types"
)

const (
	maxMessageSize  = 16384
	pongWait        = 2 * time.Minute
	pingPeriod      = time.Minute
	writeWait       = 10 * time.Second
	sendChannelSize = 64
)

// Client is a middleman between the websocket connection and a chat session.
type Client struct {
	session *session.Session

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound replies (errors).
	send chan []byte

	// views holds at most the latest view, older ones are dropped.
	views  chan session.View
	viewMu sync.Mutex

	done     chan struct{}
	doneOnce sync.Once

	// WaitGroup which keeps track of running read/write loops.
	sync.WaitGroup
}

func NewClient(s *session.Session, conn *websocket.Conn) *Client {
	return &Client{
		session: s,
		conn:    conn,
		send:    make(chan []byte, sendChannelSize),
		views:   make(chan session.View, 1),
		done:    make(chan struct{}),
	}
}

// Run starts the read and write loops and blocks until the connection is closed.
func (c *Client) Run() {
	c.session.OnChange(c.pushView)
	c.Add(2)
	go c.ReadLoop()
	go c.WriteLoop()
	c.Wait()
}

func (c *Client) close() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

// pushView replaces a pending view with v. It never blocks, so the session is never held up by a
// slow connection.
func (c *Client) pushView(v session.View) {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	select {
	case <-c.views:
	default:
	}
	c.views <- v
}

func (c *Client) reply(raw []byte) {
	select {
	case c.send <- raw:
	case <-c.done:
	default:
		globals.AppLogger.Warn("send channel full, dropping reply", "participant", c.session.Participant().Id)
	}
}

func (c *Client) replyError(action string, err error) {
	data, err2 := json.Marshal(types.ErrorMessage{
		Action:  action,
		Kind:    types.KindOf(err),
		Message: err.Error(),
	})
	if err2 != nil {
		globals.AppLogger.Error("could not marshal error message", "error", err2)
		return
	}
	raw, err2 := json.Marshal(types.WebsocketMessage{Event: types.WireEventError, Data: data})
	if err2 != nil {
		globals.AppLogger.Error("could not marshal websocket message", "error", err2)
		return
	}
	c.reply(raw)
}

// ReadLoop pumps actions from the websocket connection to the session.
//
// The application runs ReadLoop in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadLoop() {
	defer func() {
		c.conn.Close()
		c.close()
		c.Done()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				globals.AppLogger.Info("ws closed unexpectedly", "error", err)
			}
			return
		}
		message := types.WebsocketMessage{}
		if err := json.Unmarshal(raw, &message); err != nil {
			c.replyError("", fmt.Errorf("%w: could not unmarshal ws message: %s", types.ErrInvalidArgument, err))
			continue
		}
		if err := c.dispatch(context.Background(), message); err != nil {
			c.replyError(message.Event, err)
		}
	}
}

// decode keeps numbers as json.Number, so that fractions are rejected instead of truncated.
func decode(data json.RawMessage, target interface{}) error {
	m := make(map[string]interface{})
	if len(data) > 0 {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&m); err != nil {
			return fmt.Errorf("%w: %s", types.ErrInvalidArgument, err)
		}
	}
	if err := mapstructure.WeakDecode(m, target); err != nil {
		return fmt.Errorf("%w: %s", types.ErrInvalidArgument, err)
	}
	return nil
}

// dispatch decodes the payload of message and runs the matching session action.
func (c *Client) dispatch(ctx context.Context, message types.WebsocketMessage) error {
	s := c.session
	switch message.Event {
	case types.WireEventSend:
		action := types.SendAction{}
		if err := decode(message.Data, &action); err != nil {
			return err
		}
		_, err := s.Send(ctx, action.Text)
		return err

	case types.WireEventPoll:
		spec := types.PollSpec{}
		if err := decode(message.Data, &spec); err != nil {
			return err
		}
		_, err := s.SendPoll(ctx, spec)
		return err

	case types.WireEventReact:
		action := types.ReactAction{}
		if err := decode(message.Data, &action); err != nil {
			return err
		}
		return s.React(ctx, action.MessageId, action.Emoji)

	case types.WireEventVote:
		action := types.VoteAction{}
		if err := decode(message.Data, &action); err != nil {
			return err
		}
		option, err := action.OptionIndex()
		if err != nil {
			return err
		}
		return s.Vote(ctx, action.MessageId, option)

	case types.WireEventImportant, types.WireEventAck:
		action := types.MessageAction{}
		if err := decode(message.Data, &action); err != nil {
			return err
		}
		if message.Event == types.WireEventImportant {
			return s.MarkImportant(ctx, action.MessageId)
		}
		return s.Acknowledge(ctx, action.MessageId)

	case types.WireEventAddMember, types.WireEventRemoveMember:
		action := types.MemberAction{}
		if err := decode(message.Data, &action); err != nil {
			return err
		}
		if message.Event == types.WireEventAddMember {
			return s.AddMember(ctx, action.ParticipantId)
		}
		return s.RemoveMember(ctx, action.ParticipantId)

	case types.WireEventClose:
		return s.CloseChat(ctx)

	case types.WireEventDelete:
		return s.DeleteChat(ctx)
	}
	return fmt.Errorf("%w: unknown event %q", types.ErrInvalidArgument, message.Event)
}

func (c *Client) write(raw []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

// WriteLoop pumps views and replies to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.close()
		c.Done()
	}()
	for {
		select {
		case v := <-c.views:
			data, err := json.Marshal(v)
			if err != nil {
				globals.AppLogger.Error("could not marshal view", "error", err)
				continue
			}
			raw, err := json.Marshal(types.WebsocketMessage{Event: types.WireEventView, Data: data})
			if err != nil {
				globals.AppLogger.Error("could not marshal websocket message", "error", err)
				continue
			}
			if err := c.write(raw); err != nil {
				globals.AppLogger.Debug("could not write to ws connection, exiting write loop", "error", err)
				return
			}

		case raw := <-c.send:
			if err := c.write(raw); err != nil {
				globals.AppLogger.Debug("could not write to ws connection, exiting write loop", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				globals.AppLogger.Debug("could not send ping message, exiting write loop", "error", err)
				return
			}

		case <-c.done:
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

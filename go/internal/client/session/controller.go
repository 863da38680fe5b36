package session

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/momento/go/internal/client/channel"
	"github.com/mcdev12/momento/go/internal/client/roomclient"
	"github.com/mcdev12/momento/go/internal/room/expiry"
	"github.com/mcdev12/momento/go/internal/room/protocol"
)

// Rooms is the registry as the client sees it.
type Rooms interface {
	Create(ctx context.Context, minutes int) (roomclient.Room, error)
	Lookup(ctx context.Context, roomID string) (roomclient.Room, error)
}

// Channel is the client's single realtime connection.
type Channel interface {
	Open(ctx context.Context, url string, sink channel.Sink) error
	Send(msg protocol.Message) error
	CloseWith(farewell protocol.Message)
}

// Observer is called from the event loop after every event with the new
// state and the notices it raised.
type Observer func(s Session, notices []Notice)

// ControllerConfig holds what a controller runs against.
type ControllerConfig struct {
	Reducer        Reducer
	Rooms          Rooms
	Channel        Channel
	WebSocketURL   string
	Clock          clockwork.Clock
	Observer       Observer
	RequestTimeout time.Duration
}

// Controller runs the session: a single event loop applies events to the
// reducer and executes the effects it returns. Registry calls run on their
// own goroutines and come back as events; nothing in the loop blocks on
// the network or on the observer's reader.
type Controller struct {
	config ControllerConfig
	ticker *expiry.Ticker

	// Inbox filled by Dispatch. wake holds at most one pending signal.
	inMu    sync.Mutex
	inbox   []Event
	stopped bool
	wake    chan struct{}

	// Owned by the loop
	ctx   context.Context
	queue []Event

	mu    sync.RWMutex
	state Session
}

// NewController creates a controller in the initial state.
func NewController(config ControllerConfig) *Controller {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}
	if config.Observer == nil {
		config.Observer = func(Session, []Notice) {}
	}
	return &Controller{
		config: config,
		ticker: expiry.NewTicker(config.Clock, expiry.TickInterval),
		wake:   make(chan struct{}, 1),
		state:  config.Reducer.Initial(),
	}
}

// Dispatch queues an event. It never blocks, is safe to call from any
// goroutine and returns without effect once the loop has stopped.
func (c *Controller) Dispatch(ev Event) {
	c.inMu.Lock()
	if c.stopped {
		c.inMu.Unlock()
		return
	}
	c.inbox = append(c.inbox, ev)
	c.inMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) next() (Event, bool) {
	c.inMu.Lock()
	defer c.inMu.Unlock()
	if len(c.inbox) == 0 {
		return nil, false
	}
	ev := c.inbox[0]
	c.inbox[0] = nil
	c.inbox = c.inbox[1:]
	if len(c.inbox) == 0 {
		c.inbox = nil
	}
	return ev, true
}

func (c *Controller) stop() {
	c.inMu.Lock()
	c.stopped = true
	c.inbox = nil
	c.inMu.Unlock()
}

// State returns the latest state.
func (c *Controller) State() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Run processes events until ctx is cancelled. On the way out it leaves
// the room if it is in one.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	defer c.stop()

	c.config.Observer(c.State(), nil)

	for {
		if len(c.queue) > 0 {
			ev := c.queue[0]
			c.queue = c.queue[1:]
			c.step(ev)
			continue
		}

		// A busy inbox must not starve cancellation or the countdown.
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-c.ticker.C():
			c.step(Tick{})
			continue
		default:
		}

		if ev, ok := c.next(); ok {
			c.step(ev)
			continue
		}

		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-c.wake:
		case <-c.ticker.C():
			c.step(Tick{})
		}
	}
}

func (c *Controller) step(ev Event) {
	prev := c.State()
	next, effects := c.config.Reducer.Apply(prev, ev)

	c.mu.Lock()
	c.state = next
	c.mu.Unlock()

	if next.Phase != prev.Phase {
		log.Info().
			Str("from", prev.Phase.String()).
			Str("to", next.Phase.String()).
			Str("room_id", next.RoomID).
			Msg("session phase changed")
	}

	var notices []Notice
	for _, effect := range effects {
		if n, ok := c.execute(effect); ok {
			notices = append(notices, n)
		}
	}

	c.config.Observer(next, notices)
}

func (c *Controller) execute(effect Effect) (Notice, bool) {
	switch e := effect.(type) {
	case CreateRoom:
		go func() {
			ctx, cancel := context.WithTimeout(c.ctx, c.config.RequestTimeout)
			defer cancel()
			room, err := c.config.Rooms.Create(ctx, e.Minutes)
			c.Dispatch(CreateCompleted{Gen: e.Gen, Room: room, Err: err})
		}()

	case LookupRoom:
		go func() {
			ctx, cancel := context.WithTimeout(c.ctx, c.config.RequestTimeout)
			defer cancel()
			room, err := c.config.Rooms.Lookup(ctx, e.RoomID)
			c.Dispatch(LookupCompleted{Gen: e.Gen, RoomID: e.RoomID, Room: room, Err: err})
		}()

	case OpenChannel:
		sink := func(ev channel.Event) {
			c.Dispatch(ChannelEvent{Gen: e.Gen, Event: ev})
		}
		if err := c.config.Channel.Open(c.ctx, c.config.WebSocketURL, sink); err != nil {
			c.queue = append(c.queue, ChannelEvent{Gen: e.Gen, Event: channel.Event{Kind: channel.OpenFailed, Err: err}})
		}

	case SendMessage:
		if err := c.config.Channel.Send(e.Message); err != nil {
			log.Warn().Err(err).Str("type", string(e.Message.Type())).Msg("failed to send message")
			c.queue = append(c.queue, SendFailed{Gen: e.Gen, Err: err})
		}

	case CloseChannel:
		c.config.Channel.CloseWith(e.Farewell)

	case StartTicker:
		c.ticker.Start()

	case StopTicker:
		c.ticker.Stop()

	case Notify:
		log.Info().Err(e.Notice.Err).Msg("session notice")
		return e.Notice, true
	}
	return Notice{}, false
}

func (c *Controller) shutdown() {
	c.ticker.Stop()

	s := c.State()
	var farewell protocol.Message
	if s.Phase == PhaseChat && s.Connected {
		farewell = protocol.NewLeave(s.RoomID, s.Username)
	}
	c.config.Channel.CloseWith(farewell)
}

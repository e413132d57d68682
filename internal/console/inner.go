package console

import (
	"github.com/ssloxford/current-affairs/internal/debug"
	"github.com/ssloxford/current-affairs/internal/display"
	"github.com/ssloxford/current-affairs/internal/link"
	"github.com/ssloxford/current-affairs/internal/tasks"
	"github.com/ssloxford/current-affairs/internal/waiter"
	"github.com/ssloxford/current-affairs/internal/wire"
)

// evHandler handles one inner session to the EV process. The same handler
// would work on a direct connection to the process.
type evHandler struct {
	c *Console

	ready       bool
	checkpoints *waiter.Set
	tree        *tasks.Tree
	board       *display.Board
}

func (h *evHandler) OnOpen(s link.Session) {
	h.checkpoints = waiter.NewStandardSet(s)
	h.checkpoints.OnActivate = h.c.checkpointActivated
	h.tree = tasks.NewTree(h.checkpoints.Get(wire.MsgWaiterDone), h.c.opts.ManualTask)
	h.board = display.NewBoard()
	h.c.inner = h
	debug.Log("console", "inner session open")
	h.c.publish()
}

func (h *evHandler) OnMessage(_ link.Session, msg *wire.Msg) {
	if msg.Type == wire.MsgInitDone {
		h.ready = true
		h.c.publish()
		return
	}

	handlers := []func(*wire.Msg) (bool, error){
		h.checkpoints.HandleMessage,
		h.tree.HandleMessage,
		h.board.HandleMessage,
	}
	for _, handle := range handlers {
		ok, err := handle(msg)
		if !ok {
			continue
		}
		if err != nil {
			h.c.violation(msg, err)
		}
		h.c.publish()
		return
	}
	h.c.unknownType(msg.Type)
}

func (h *evHandler) OnClose(link.Session) {
	if h.c.inner == h {
		h.c.inner = nil
	}
	debug.Log("console", "inner session closed")
	h.c.publish()
}

func (c *Console) checkpointActivated(v waiter.View) {
	if c.opts.Notify == nil {
		return
	}
	name := c.info.Name
	go c.opts.Notify(name, v)
}

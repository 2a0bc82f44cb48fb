package gateway

import (
	"github.com/fasthttp/websocket"
	"github.com/tunesync/api/internal/global"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// New starts the gateway server. It blocks until the listener fails or the
// global context is canceled.
func New(gCtx global.Context) error {
	c := NewCoordinator(gCtx)

	upgrader := websocket.FastHTTPUpgrader{
		CheckOrigin: func(ctx *fasthttp.RequestCtx) bool {
			return true
		},
	}

	srv := &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			defer func() {
				if err := recover(); err != nil {
					zap.S().Errorw("panic in gateway handler",
						"panic", err,
					)
				}
			}()

			if !websocket.FastHTTPIsWebSocketUpgrade(ctx) {
				ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)

				return
			}

			err := upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
				c.serve(conn)
			})
			if err != nil {
				zap.S().Warnw("gateway, failed to upgrade connection",
					"error", err,
				)
			}
		},
		CloseOnShutdown: true,
	}

	go func() {
		<-gCtx.Done()
		_ = srv.Shutdown()
	}()

	zap.S().Infow("gateway, listening",
		"bind", gCtx.Config().Gateway.Bind,
	)

	return srv.ListenAndServe(gCtx.Config().Gateway.Bind)
}

// serve runs the read loop for one upgraded connection. Frames are processed
// strictly in arrival order; the loop exits on any read error and tears the
// session down.
func (c *Coordinator) serve(conn *websocket.Conn) {
	s := c.Accept(wsConn{conn})

	defer c.OnClose(s)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		c.OnMessage(s, data)

		if s.closedSignal() {
			return
		}
	}
}

type wsConn struct {
	conn *websocket.Conn
}

func (w wsConn) WriteMessage(data []byte) error {
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w wsConn) Close() error {
	return w.conn.Close()
}

package routes

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The browser client runs on a different origin; token auth happens on
	// the socket itself.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ChatSocket upgrades the request and hands the connection to the chat hub.
// The connection starts unauthenticated; the first frame must be an
// authenticate event.
func ChatSocket(ctx iris.Context) {
	conn, err := upgrader.Upgrade(ctx.ResponseWriter().Naive(), ctx.Request(), nil)
	if err != nil {
		// Upgrader already wrote the handshake error.
		return
	}

	chatHub.ServeConn(conn)
}

package channel

import (
	"net/http"

	"github.com/gorilla/websocket"
)

func httpHandler(serve func(conn *websocket.Conn), upgrader *websocket.Upgrader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	})
}

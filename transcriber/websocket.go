package transcriber

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"nhooyr.io/websocket"
)

const readLimit = 1 << 20

// WebSocketDialer connects to url, sending header with the upgrade request.
func WebSocketDialer(url string, header http.Header) Dialer {
	return func(ctx context.Context) (Conn, error) {
		conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
		if err != nil {
			return nil, err
		}
		conn.SetReadLimit(readLimit)
		return &wsConn{conn: conn}, nil
	}
}

// AuthHeader builds the upgrade header for token. Tokens that already carry
// a scheme ("Token abc", "Bearer abc") are sent as-is.
func AuthHeader(token string) http.Header {
	h := http.Header{}
	if token == "" {
		return h
	}
	if strings.Contains(token, " ") {
		h.Set("Authorization", token)
		return h
	}
	h.Set("Authorization", "Bearer "+token)
	return h
}

type wsConn struct {
	conn *websocket.Conn

	closeOnce sync.Once
	closeErr  error
}

func (w *wsConn) Send(ctx context.Context, chunk []byte) error {
	return w.conn.Write(ctx, websocket.MessageBinary, chunk)
}

func (w *wsConn) Recv(ctx context.Context) ([]byte, error) {
	_, data, err := w.conn.Read(ctx)
	if err != nil {
		var ce websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &RemoteCloseError{Code: int(ce.Code), Reason: ce.Reason}
		}
		return nil, err
	}
	return data, nil
}

func (w *wsConn) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.conn.Close(websocket.StatusNormalClosure, "")
	})
	return w.closeErr
}

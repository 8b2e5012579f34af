////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// WebsocketDialer dials the real-time server over a websocket carrying
// binary frames.
type WebsocketDialer struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
}

// Dial connects to the server.
func (d *WebsocketDialer) Dial(ctx context.Context) (Link, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "failed to dial %s: status %s",
				d.URL, resp.Status)
		}
		return nil, errors.Wrapf(err, "failed to dial %s", d.URL)
	}

	l := &wsLink{
		conn: conn,
		done: make(chan struct{}),
	}
	go l.pingThread()
	return l, nil
}

type wsLink struct {
	conn *websocket.Conn

	// gorilla allows only one concurrent writer
	writeMux sync.Mutex
	done     chan struct{}
	once     sync.Once
}

func (l *wsLink) WriteFrame(frame []byte) error {
	l.writeMux.Lock()
	defer l.writeMux.Unlock()
	if err := l.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return l.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (l *wsLink) ReadFrame() ([]byte, error) {
	for {
		mt, data, err := l.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.BinaryMessage {
			return data, nil
		}
		jww.TRACE.Printf("Ignoring websocket message of type %d", mt)
	}
}

func (l *wsLink) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		l.writeMux.Lock()
		_ = l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		l.writeMux.Unlock()
		err = l.conn.Close()
	})
	return err
}

func (l *wsLink) pingThread() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.writeMux.Lock()
			err := l.conn.WriteControl(websocket.PingMessage, nil,
				time.Now().Add(writeWait))
			l.writeMux.Unlock()
			if err != nil {
				jww.DEBUG.Printf("Websocket ping failed: %+v", err)
				return
			}
		}
	}
}

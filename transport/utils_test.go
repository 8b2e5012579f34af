////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"gitlab.com/heartline/convsync/wire"
)

// mockLink is an in-memory Link. Frames pushed to in are read by the
// session; frames the session writes appear on out.
type mockLink struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newMockLink() *mockLink {
	return &mockLink{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (l *mockLink) WriteFrame(frame []byte) error {
	select {
	case <-l.closed:
		return errors.New("link closed")
	default:
	}
	l.out <- frame
	return nil
}

func (l *mockLink) ReadFrame() ([]byte, error) {
	select {
	case f := <-l.in:
		return f, nil
	case <-l.closed:
		return nil, errors.New("link closed")
	}
}

func (l *mockLink) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

// push sends an envelope to the session as if from the server.
func (l *mockLink) push(t *testing.T, env wire.Envelope) {
	frame, err := wire.Encode(env)
	require.NoError(t, err)
	l.in <- frame
}

// expect waits for the next frame the session writes and decodes it.
func (l *mockLink) expect(t *testing.T) wire.Envelope {
	select {
	case frame := <-l.out:
		env, err := wire.Decode(frame)
		require.NoError(t, err)
		return env
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for an outbound frame")
	}
	return wire.Envelope{}
}

// expectNone asserts that nothing is written for a short period.
func (l *mockLink) expectNone(t *testing.T) {
	select {
	case frame := <-l.out:
		env, _ := wire.Decode(frame)
		t.Fatalf("Unexpected outbound frame: %s", env)
	case <-time.After(50 * time.Millisecond):
	}
}

// mockDialer hands out the links queued on it, blocking until one is
// available.
type mockDialer struct {
	links chan *mockLink
}

func newMockDialer() *mockDialer {
	return &mockDialer{links: make(chan *mockLink, 4)}
}

func (d *mockDialer) Dial(ctx context.Context) (Link, error) {
	select {
	case l := <-d.links:
		return l, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func testParams() Params {
	p := GetDefaultParams()
	p.SendRate = 10000
	p.ReconnectInitialInterval = time.Millisecond
	p.ReconnectMaxInterval = 10 * time.Millisecond
	return p
}

// connectedSession starts a session and waits for its first link.
func connectedSession(t *testing.T) (*Session, *mockDialer, *mockLink) {
	d := newMockDialer()
	s := NewSession(d, testParams())
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Close() })

	link := newMockLink()
	d.links <- link
	require.Eventually(t, s.IsConnected, time.Second, time.Millisecond)
	return s, d, link
}

func startedSession(t *testing.T) *Session {
	s := NewSession(newMockDialer(), testParams())
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

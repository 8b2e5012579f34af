////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package call

import (
	"context"
	"sync"
	"time"
)

type mockIssuer struct {
	mux   sync.Mutex
	err   error
	calls int
	// Closed to release a blocked Issue
	release chan struct{}
}

func (m *mockIssuer) Issue(ctx context.Context, channel string, uid uint32,
	_ Role) (Credential, error) {
	m.mux.Lock()
	m.calls++
	release, err := m.release, m.err
	m.mux.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return Credential{}, ctx.Err()
		}
	}
	if err != nil {
		return Credential{}, err
	}
	return Credential{Token: channel + "-token",
		ExpiresAt: time.Unix(1700003600, 0)}, nil
}

type mockMedia struct {
	mux      sync.Mutex
	joined   []string
	left     int
	renewed  []string
	muted    bool
	video    bool
	speaker  bool
	switches int
	err      error
}

func (m *mockMedia) Join(channel string, _ uint32, token string) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.err != nil {
		return m.err
	}
	m.joined = append(m.joined, channel+"/"+token)
	return nil
}

func (m *mockMedia) Leave() error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.left++
	return nil
}

func (m *mockMedia) RenewToken(token string) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.renewed = append(m.renewed, token)
	return nil
}

func (m *mockMedia) SetMuted(muted bool) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.err != nil {
		return m.err
	}
	m.muted = muted
	return nil
}

func (m *mockMedia) SetVideoEnabled(enabled bool) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.video = enabled
	return nil
}

func (m *mockMedia) SetSpeakerOn(on bool) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.speaker = on
	return nil
}

func (m *mockMedia) SwitchCamera() error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.switches++
	return nil
}

type testCoordinator struct {
	*Coordinator
	issuer *mockIssuer
	media  *mockMedia

	mux     sync.Mutex
	reports []Snapshot
}

func newTestCoordinator() *testCoordinator {
	tc := &testCoordinator{issuer: &mockIssuer{}, media: &mockMedia{}}
	tc.Coordinator = NewCoordinator(tc.issuer, tc.media, GetDefaultParams(),
		func(s Snapshot) {
			tc.mux.Lock()
			tc.reports = append(tc.reports, s)
			tc.mux.Unlock()
		})
	return tc
}

// states returns the sequence of reported states.
func (tc *testCoordinator) states() []State {
	tc.mux.Lock()
	defer tc.mux.Unlock()
	out := make([]State, len(tc.reports))
	for i, s := range tc.reports {
		out[i] = s.State
	}
	return out
}

func (tc *testCoordinator) endedReports() int {
	n := 0
	for _, s := range tc.states() {
		if s == Ended {
			n++
		}
	}
	return n
}

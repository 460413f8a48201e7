package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/pokt-network/poktroll/pkg/polylog/polyzero"
	"github.com/stretchr/testify/require"
)

// testSession is a minimal Session implementation for registry tests.
// Identity is the id string; WriteMessage is a no-op.
type testSession struct {
	id string
}

func (s *testSession) ID() string                     { return s.id }
func (s *testSession) WriteMessage(int, []byte) error { return nil }

// testConnector is a minimal Connector implementation. Instances are used as
// pointers so the registry keys them by identity.
type testConnector struct {
	targetURL     string
	clientService string
}

func (c *testConnector) TargetURL() string     { return c.targetURL }
func (c *testConnector) ClientService() string { return c.clientService }

// fakeInitiator establishes fake client sessions, optionally failing for
// specific connectors. Safe for concurrent use.
type fakeInitiator struct {
	mu             sync.Mutex
	establishments int
	failures       map[Connector]error
}

func (f *fakeInitiator) Establish(_ context.Context, connector Connector, _ RelayContext) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failures[connector]; ok {
		return nil, err
	}
	f.establishments++
	return &testSession{id: fmt.Sprintf("client-session-%d", f.establishments)}, nil
}

func newTestRegistry(initiator Initiator) *Registry {
	return New(polyzero.NewLogger(), initiator)
}

func sessionIDs(sessions []Session) []string {
	ids := make([]string, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.ID())
	}
	return ids
}

func Test_AddToBroadcast_PurgeSession(t *testing.T) {
	c := require.New(t)
	r := newTestRegistry(nil)

	session := &testSession{id: "s1"}
	r.AddToBroadcast("ChatService", session)
	c.Contains(sessionIDs(r.BroadcastSessions("ChatService")), "s1")

	r.PurgeSession(session)
	c.NotContains(sessionIDs(r.BroadcastSessions("ChatService")), "s1")
}

func Test_PurgeSession_RemovesFromAllIndices(t *testing.T) {
	c := require.New(t)
	r := newTestRegistry(nil)

	session := &testSession{id: "s1"}
	other := &testSession{id: "s2"}

	r.AddToBroadcast("ChatService", session)
	r.AddToBroadcast("ChatService", other)
	r.AddToGroup("room-1", session)
	r.AddToGroup("room-2", session)
	r.StoreConnection("primary", session)
	r.StoreConnection("secondary", other)

	r.PurgeSession(session)

	c.ElementsMatch([]string{"s2"}, sessionIDs(r.BroadcastSessions("ChatService")))
	c.Empty(r.GroupSessions("room-1"))
	c.Empty(r.GroupSessions("room-2"))

	_, ok := r.StoredConnection("primary")
	c.False(ok)
	stored, ok := r.StoredConnection("secondary")
	c.True(ok)
	c.Equal("s2", stored.ID())
}

func Test_PurgeSession_Idempotent(t *testing.T) {
	c := require.New(t)
	r := newTestRegistry(nil)

	session := &testSession{id: "s1"}
	r.AddToBroadcast("ChatService", session)
	r.AddToGroup("room-1", session)
	r.StoreConnection("primary", session)

	r.PurgeSession(session)
	// Second purge, and purging a session never registered, are safe no-ops.
	r.PurgeSession(session)
	r.PurgeSession(&testSession{id: "never-registered"})

	c.Empty(r.BroadcastSessions("ChatService"))
	c.Empty(r.GroupSessions("room-1"))
	_, ok := r.StoredConnection("primary")
	c.False(ok)
}

func Test_RemovalReturnValues(t *testing.T) {
	session := &testSession{id: "s1"}

	tests := []struct {
		name    string
		setup   func(r *Registry)
		remove  func(r *Registry) bool
		removed bool
	}{
		{
			name:    "RemoveFromGroup returns false when the group never existed",
			setup:   func(r *Registry) {},
			remove:  func(r *Registry) bool { return r.RemoveFromGroup("room-1", session) },
			removed: false,
		},
		{
			name:    "RemoveFromGroup returns true when the group existed",
			setup:   func(r *Registry) { r.AddToGroup("room-1", session) },
			remove:  func(r *Registry) bool { return r.RemoveFromGroup("room-1", session) },
			removed: true,
		},
		{
			name:    "RemoveGroup returns false when the group never existed",
			setup:   func(r *Registry) {},
			remove:  func(r *Registry) bool { return r.RemoveGroup("room-1") },
			removed: false,
		},
		{
			name:    "RemoveGroup returns true when the group existed",
			setup:   func(r *Registry) { r.AddToGroup("room-1", session) },
			remove:  func(r *Registry) bool { return r.RemoveGroup("room-1") },
			removed: true,
		},
		{
			name:    "RemoveStoredConnection returns false when the name never existed",
			setup:   func(r *Registry) {},
			remove:  func(r *Registry) bool { return r.RemoveStoredConnection("primary") },
			removed: false,
		},
		{
			name:    "RemoveStoredConnection returns true when the name existed",
			setup:   func(r *Registry) { r.StoreConnection("primary", session) },
			remove:  func(r *Registry) bool { return r.RemoveStoredConnection("primary") },
			removed: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := require.New(t)

			r := newTestRegistry(nil)
			test.setup(r)
			c.Equal(test.removed, test.remove(r))
		})
	}
}

func Test_StoreConnection_Overwrite(t *testing.T) {
	c := require.New(t)
	r := newTestRegistry(nil)

	s1 := &testSession{id: "s1"}
	s2 := &testSession{id: "s2"}

	r.StoreConnection("x", s1)
	r.StoreConnection("x", s2)

	stored, ok := r.StoredConnection("x")
	c.True(ok)
	c.Equal("s2", stored.ID())
}

func Test_AbsentKeys(t *testing.T) {
	c := require.New(t)
	r := newTestRegistry(nil)

	c.Nil(r.BroadcastSessions("never-created"))
	c.Nil(r.GroupSessions("never-created"))

	_, ok := r.StoredConnection("never-created")
	c.False(ok)

	// Unknown connectors yield an empty slice, never nil.
	connector := &testConnector{targetURL: "ws://remote:9090/ws"}
	c.NotNil(r.SessionsForConnector(connector))
	c.Empty(r.SessionsForConnector(connector))

	_, ok = r.ClientSessionForConnector(connector, &testSession{id: "s1"})
	c.False(ok)
}

func Test_RegisterServerSession(t *testing.T) {
	c := require.New(t)

	initiator := &fakeInitiator{}
	r := newTestRegistry(initiator)

	connector1 := &testConnector{targetURL: "ws://remote-1:9090/ws", clientService: "ClientServiceOne"}
	connector2 := &testConnector{targetURL: "ws://remote-2:9090/ws", clientService: "ClientServiceTwo"}
	r.AttachConnector("ChatService", connector1, &testSession{id: "seed-1"})
	r.AttachConnector("ChatService", connector2, &testSession{id: "seed-2"})

	serverSession := &testSession{id: "server-1"}
	err := r.RegisterServerSession(context.Background(), "ChatService", serverSession, RelayContext{RemoteAddr: "192.0.2.1:51234"})
	c.NoError(err)

	// Exactly one new client session per attached connector.
	c.Equal(2, initiator.establishments)

	clientSession1, ok := r.ClientSessionForConnector(connector1, serverSession)
	c.True(ok)
	clientSession2, ok := r.ClientSessionForConnector(connector2, serverSession)
	c.True(ok)
	c.NotEqual(clientSession1.ID(), clientSession2.ID())

	// Each client session is tagged with its connector's client service.
	clientService, err := r.ClientServiceName(clientSession1)
	c.NoError(err)
	c.Equal("ClientServiceOne", clientService)
	clientService, err = r.ClientServiceName(clientSession2)
	c.NoError(err)
	c.Equal("ClientServiceTwo", clientService)

	// The server session lands in the service's broadcast set.
	c.Contains(sessionIDs(r.BroadcastSessions("ChatService")), "server-1")

	// SessionsForConnector includes both the seed and the new client session.
	c.Len(r.SessionsForConnector(connector1), 2)
}

func Test_RegisterServerSession_NoConnectors(t *testing.T) {
	c := require.New(t)
	r := newTestRegistry(nil)

	serverSession := &testSession{id: "server-1"}
	err := r.RegisterServerSession(context.Background(), "ChatService", serverSession, RelayContext{})
	c.NoError(err)
	c.Contains(sessionIDs(r.BroadcastSessions("ChatService")), "server-1")
}

func Test_RegisterServerSession_EstablishFailure(t *testing.T) {
	c := require.New(t)

	connector1 := &testConnector{targetURL: "ws://remote-1:9090/ws", clientService: "ClientServiceOne"}
	connector2 := &testConnector{targetURL: "ws://remote-2:9090/ws", clientService: "ClientServiceTwo"}

	establishErr := fmt.Errorf("connection refused: %s", connector2.TargetURL())
	initiator := &fakeInitiator{failures: map[Connector]error{connector2: establishErr}}
	r := newTestRegistry(initiator)

	r.AttachConnector("ChatService", connector1, &testSession{id: "seed-1"})
	r.AttachConnector("ChatService", connector2, &testSession{id: "seed-2"})

	serverSession := &testSession{id: "server-1"}
	err := r.RegisterServerSession(context.Background(), "ChatService", serverSession, RelayContext{})
	c.ErrorContains(err, "connection refused")

	// The relay session established for connector1 before the failure is left
	// in place; the failed registration does not roll it back.
	_, ok := r.ClientSessionForConnector(connector1, serverSession)
	c.True(ok)
	_, ok = r.ClientSessionForConnector(connector2, serverSession)
	c.False(ok)

	// The server session never reaches the broadcast set.
	c.NotContains(sessionIDs(r.BroadcastSessions("ChatService")), "server-1")
}

func Test_ClientServiceName(t *testing.T) {
	c := require.New(t)
	r := newTestRegistry(nil)

	clientSession := &testSession{id: "client-1"}

	_, err := r.ClientServiceName(clientSession)
	c.ErrorIs(err, ErrDispatchTargetUnknown)

	r.TagClientSession(clientSession, "Foo")
	clientService, err := r.ClientServiceName(clientSession)
	c.NoError(err)
	c.Equal("Foo", clientService)
}

func Test_AttachConnector_SeedsDefaultSession(t *testing.T) {
	c := require.New(t)
	r := newTestRegistry(nil)

	connector := &testConnector{targetURL: "ws://remote:9090/ws", clientService: "ClientService"}
	seed := &testSession{id: "seed-1"}
	r.AttachConnector("ChatService", connector, seed)

	c.ElementsMatch([]string{"seed-1"}, sessionIDs(r.SessionsForConnector(connector)))
	c.Len(r.ServiceConnectors("ChatService"), 1)
}

func Test_AttachConnectorStandalone(t *testing.T) {
	c := require.New(t)
	r := newTestRegistry(nil)

	connector := &testConnector{targetURL: "ws://remote:9090/ws", clientService: "ClientService"}
	seed := &testSession{id: "seed-1"}
	r.AttachConnectorStandalone(connector, seed)

	// The seed session is recorded but no parent service association exists.
	c.ElementsMatch([]string{"seed-1"}, sessionIDs(r.SessionsForConnector(connector)))
	c.Nil(r.ServiceConnectors("ChatService"))
}

func Test_AddToBroadcast_Concurrent(t *testing.T) {
	c := require.New(t)
	r := newTestRegistry(nil)

	const numSessions = 100

	var wg sync.WaitGroup
	for i := 0; i < numSessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.AddToBroadcast("ChatService", &testSession{id: fmt.Sprintf("s%d", i)})
		}(i)
	}
	wg.Wait()

	// No lost updates: every distinct session is present exactly once.
	sessions := r.BroadcastSessions("ChatService")
	c.Len(sessions, numSessions)

	seen := make(map[string]struct{}, numSessions)
	for _, session := range sessions {
		seen[session.ID()] = struct{}{}
	}
	c.Len(seen, numSessions)
}

func Test_PurgeSession_ConcurrentWithAdds(t *testing.T) {
	c := require.New(t)
	r := newTestRegistry(nil)

	const numSessions = 50

	var wg sync.WaitGroup
	for i := 0; i < numSessions; i++ {
		session := &testSession{id: fmt.Sprintf("s%d", i)}

		wg.Add(2)
		go func() {
			defer wg.Done()
			r.AddToBroadcast("ChatService", session)
			r.AddToGroup("room-1", session)
		}()
		go func() {
			defer wg.Done()
			r.PurgeSession(session)
		}()
	}
	wg.Wait()

	// Interleaving is unconstrained; purging everything afterwards must leave
	// every index empty.
	for i := 0; i < numSessions; i++ {
		r.PurgeSession(&testSession{id: fmt.Sprintf("s%d", i)})
	}
	c.Empty(r.BroadcastSessions("ChatService"))
	c.Empty(r.GroupSessions("room-1"))
}

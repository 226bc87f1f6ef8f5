package session

import (
	"time"

	"github.com/clawinfra/stakeclaw/internal/chains"
	"github.com/clawinfra/stakeclaw/internal/contracts"
	"github.com/clawinfra/stakeclaw/internal/transport"
)

// Session is the live connection bound to the active chain. Only the
// Manager creates and tears it down.
type Session struct {
	id       string
	chain    chains.ChainConfig
	endpoint chains.Endpoint
	rpc      transport.Handle
	indexer  transport.Handle
	clients  *contracts.ClientSet
	openedAt time.Time
}

func (s *Session) ID() string                    { return s.id }
func (s *Session) ChainID() uint64               { return s.chain.ChainID }
func (s *Session) Endpoint() chains.Endpoint     { return s.endpoint }
func (s *Session) RPC() transport.Handle         { return s.rpc }
func (s *Session) Clients() *contracts.ClientSet { return s.clients }
func (s *Session) OpenedAt() time.Time           { return s.openedAt }

// Chain returns a copy of the chain config the session was opened for.
func (s *Session) Chain() chains.ChainConfig { return s.chain.Clone() }

// Indexer returns the GraphQL indexer handle, if one was opened.
func (s *Session) Indexer() (transport.Handle, bool) {
	return s.indexer, !s.indexer.IsZero()
}

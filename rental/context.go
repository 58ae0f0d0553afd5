package rental

import (
	"github.com/couchbc/rent/ipfs"
	"github.com/couchbc/rent/keys"
	"github.com/couchbc/rent/ledger"
	"github.com/couchbc/rent/localstore"
	"github.com/couchbc/rent/pubsub"
)

// Context carries the collaborators the protocol state machine acts through;
// constructed once at boot and passed down explicitly so tests can inject
// in-memory fakes
type Context struct {
	Keys    *keys.Manager
	Channel *pubsub.Channel
	Ledger  ledger.Client
	Store   *ipfs.Client
	Local   localstore.KV
}

// NewContext assembles a protocol context from its collaborators
func NewContext(keyManager *keys.Manager, channel *pubsub.Channel, ledgerClient ledger.Client, store *ipfs.Client, local localstore.KV) *Context {
	return &Context{
		Keys:    keyManager,
		Channel: channel,
		Ledger:  ledgerClient,
		Store:   store,
		Local:   local,
	}
}

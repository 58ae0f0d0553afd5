package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/ybbus/jsonrpc/v2"

	"github.com/couchbc/rent/common"
)

const rpcMethodPrefix = "rent_"
const eventPollInterval = time.Second * 2

// rpcClient talks JSON-RPC to a ledger gateway node; reads pass through,
// writes go through estimate/submit, events are polled with a cursor
type rpcClient struct {
	rpc jsonrpc.RPCClient

	mutex       sync.Mutex
	cursor      uint64
	handlers    map[string][]*registeredHandler
	pollStarted bool
}

type registeredHandler struct {
	handler Handler
	once    bool
	fired   bool
}

type eventBatch struct {
	Cursor uint64   `json:"cursor"`
	Events []*Event `json:"events"`
}

// NewRPCClient initializes a ledger client against the configured gateway
func NewRPCClient() Client {
	return &rpcClient{
		rpc:      jsonrpc.NewClient(common.LedgerRPCURL),
		handlers: map[string][]*registeredHandler{},
	}
}

func (c *rpcClient) EstimateGas(tx *Transaction) (uint64, error) {
	var gas uint64
	if err := c.rpc.CallFor(&gas, rpcMethodPrefix+"estimateGas", tx); err != nil {
		common.Log.Warningf("gas estimation failed for %s; %s", tx.Method, err.Error())
		return 0, ErrSubmissionFailed
	}
	return gas, nil
}

func (c *rpcClient) Submit(tx *Transaction) (*Receipt, error) {
	receipt := &Receipt{}
	if err := c.rpc.CallFor(receipt, rpcMethodPrefix+"submit", tx); err != nil {
		common.Log.Warningf("submission failed for %s; %s", tx.Method, err.Error())
		return nil, ErrSubmissionFailed
	}
	if !receipt.Success {
		common.Log.Warningf("transaction %s reverted: %s", tx.Method, receipt.TransactionHash)
		return nil, ErrSubmissionFailed
	}
	return receipt, nil
}

func (c *rpcClient) Call(result interface{}, method string, params ...interface{}) error {
	if err := c.rpc.CallFor(result, rpcMethodPrefix+method, params...); err != nil {
		return fmt.Errorf("ledger call %s failed; %s", method, err.Error())
	}
	return nil
}

func (c *rpcClient) On(event string, handler Handler) {
	c.register(event, handler, false)
}

func (c *rpcClient) Once(event string, handler Handler) {
	c.register(event, handler, true)
}

func (c *rpcClient) register(event string, handler Handler, once bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.handlers[event] = append(c.handlers[event], &registeredHandler{
		handler: handler,
		once:    once,
	})

	if !c.pollStarted {
		c.pollStarted = true
		go c.pollEvents()
	}
}

func (c *rpcClient) pollEvents() {
	ticker := time.NewTicker(eventPollInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mutex.Lock()
		cursor := c.cursor
		c.mutex.Unlock()

		batch := &eventBatch{}
		if err := c.rpc.CallFor(batch, rpcMethodPrefix+"getEvents", cursor); err != nil {
			common.Log.Warningf("failed to poll ledger events; %s", err.Error())
			continue
		}

		c.mutex.Lock()
		c.cursor = batch.Cursor
		for _, event := range batch.Events {
			c.dispatchLocked(event)
		}
		c.mutex.Unlock()
	}
}

func (c *rpcClient) dispatchLocked(event *Event) {
	remaining := make([]*registeredHandler, 0)
	for _, registered := range c.handlers[event.Name] {
		if registered.fired && registered.once {
			continue
		}
		registered.fired = true
		go registered.handler(event)
		if !registered.once {
			remaining = append(remaining, registered)
		}
	}
	c.handlers[event.Name] = remaining
}

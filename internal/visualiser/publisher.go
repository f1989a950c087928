// Package visualiser streams live per-frame counting state to remote
// viewers over gRPC. Messages are google.protobuf.Struct values so that
// viewers need no generated code.
package visualiser

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/passenger.counter/internal/monitoring"
	"github.com/banshee-data/passenger.counter/internal/stream"
)

var logf = monitoring.Prefixed("visualiser")

// Config holds configuration for the visualiser gRPC server.
type Config struct {
	// ListenAddr is the address to listen on (e.g. "localhost:50051").
	ListenAddr string

	// MaxClients caps concurrent streaming clients. Zero means 8.
	MaxClients int

	// ClientBuffer is the per-client queue length; frames beyond it are
	// dropped for that client. Zero means 16.
	ClientBuffer int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{ListenAddr: "localhost:50051", MaxClients: 8, ClientBuffer: 16}
}

type client struct {
	stream string // empty subscribes to every stream
	ch     chan *structpb.Struct
}

// Publisher fans frames out to subscribed clients. It is a stream.Sink.
type Publisher struct {
	config Config

	mu      sync.RWMutex
	clients map[uint64]*client
	nextID  uint64
	latest  map[string]*structpb.Struct

	published atomic.Uint64
	dropped   atomic.Uint64

	server   *grpc.Server
	listener net.Listener
	running  atomic.Bool
	wg       sync.WaitGroup
}

// NewPublisher creates a publisher. Call Start to serve gRPC.
func NewPublisher(cfg Config) *Publisher {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 8
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 16
	}
	p := &Publisher{
		config:  cfg,
		clients: make(map[uint64]*client),
		latest:  make(map[string]*structpb.Struct),
	}
	p.server = grpc.NewServer()
	p.server.RegisterService(&serviceDesc, &service{p: p})
	return p
}

// OnFrame converts the frame and queues it for every matching client.
// Slow clients lose frames rather than stalling the stream.
func (p *Publisher) OnFrame(ctx context.Context, out stream.Output) error {
	msg, err := encodeFrame(out)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	p.published.Add(1)

	p.mu.Lock()
	p.latest[out.Stream] = msg
	p.mu.Unlock()

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.clients {
		if c.stream != "" && c.stream != out.Stream {
			continue
		}
		select {
		case c.ch <- msg:
		default:
			p.dropped.Add(1)
		}
	}
	return nil
}

func (p *Publisher) subscribe(streamName string) (uint64, *client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.clients) >= p.config.MaxClients {
		return 0, nil, fmt.Errorf("too many clients (max %d)", p.config.MaxClients)
	}
	p.nextID++
	c := &client{stream: streamName, ch: make(chan *structpb.Struct, p.config.ClientBuffer)}
	p.clients[p.nextID] = c
	return p.nextID, c, nil
}

func (p *Publisher) unsubscribe(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, id)
}

// Latest returns the most recent message for a stream.
func (p *Publisher) Latest(streamName string) (*structpb.Struct, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.latest[streamName]
	return m, ok
}

// ClientCount returns the number of connected streaming clients.
func (p *Publisher) ClientCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}

// Stats returns frames published and frames dropped across clients.
func (p *Publisher) Stats() (published, dropped uint64) {
	return p.published.Load(), p.dropped.Load()
}

// Start listens on the configured address and serves in the background.
func (p *Publisher) Start() error {
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	p.Serve(lis)
	return nil
}

// Serve serves gRPC on lis in the background.
func (p *Publisher) Serve(lis net.Listener) {
	p.listener = lis
	p.running.Store(true)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		logf("gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			logf("gRPC server error: %v", err)
		}
	}()
}

// Stop closes client streams and stops the server.
func (p *Publisher) Stop() {
	if !p.running.Swap(false) {
		return
	}
	p.server.Stop()
	p.wg.Wait()
	published, dropped := p.Stats()
	logf("gRPC server stopped (%d frames published, %d dropped)", published, dropped)
}

// frameMessage is the JSON shape converted to a Struct.
type frameMessage struct {
	Stream    string      `json:"stream"`
	SessionID string      `json:"session_id"`
	Snapshot  interface{} `json:"snapshot"`
	Crossings interface{} `json:"crossings"`
	Evicted   []int       `json:"evicted"`
}

func encodeFrame(out stream.Output) (*structpb.Struct, error) {
	raw, err := json.Marshal(frameMessage{
		Stream:    out.Stream,
		SessionID: out.SessionID,
		Snapshot:  out.Snapshot,
		Crossings: out.Result.Crossings,
		Evicted:   out.Result.Evicted,
	})
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

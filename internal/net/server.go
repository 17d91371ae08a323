package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"huginn/internal/book"
	"huginn/internal/engine"
	"huginn/internal/worker"
)

const (
	maxRecvSize        = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// clientSession is one connected TCP client.
type clientSession struct {
	conn net.Conn
}

// clientMessage links a parsed Message to the client address it arrived on.
type clientMessage struct {
	clientAddress string
	message       Message
}

// Server is the TCP front door over an engine.Engine: it accepts
// connections, decodes the wire protocol, and routes each command to the
// right symbol's Book, reporting fills and errors back over the same
// connection. Grounded on the teacher's internal/net/server.go Server,
// generalized from a single hard-coded Engine interface method set to the
// real *engine.Engine.
type Server struct {
	address            string
	port               int
	engine             *engine.Engine
	pool               worker.Pool
	cancel             context.CancelFunc
	clientSessions     map[string]clientSession
	clientSessionsLock sync.Mutex
	clientMessages     chan clientMessage
}

// New constructs a server bound to address:port, routing commands to eng.
func New(address string, port int, eng *engine.Engine) *Server {
	return &Server{
		address:        address,
		port:           port,
		engine:         eng,
		pool:           worker.New(defaultNWorkers),
		clientSessions: make(map[string]clientSession),
		clientMessages: make(chan clientMessage, 1),
	}
}

// Shutdown stops the server's accept loop and worker pool.
func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

// Run accepts connections until ctx is cancelled. Grounded on the
// teacher's Server.Run (tomb-supervised accept loop + worker pool).
func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Str("address", s.address).Int("port", s.port).Msg("server running")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				log.Error().Err(err).Msg("error accepting client")
				continue
			}
			log.Info().Str("address", conn.RemoteAddr().String()).Msg("new client connected")
			s.addClientSession(conn)
			s.pool.AddTask(conn)
		}
	}
}

// ReportTrade sends one execution report per side of every transaction in
// result to every connected client (see broadcastLocked). Grounded on the
// teacher's ReportTrade, generalized from a hard-coded two-party trade to
// an arbitrary number of maker fills per command.
func (s *Server) ReportTrade(result *book.TradeResult) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	for _, report := range reportsForTrade(result) {
		wire, err := report.Serialize()
		if err != nil {
			log.Error().Err(err).Msg("unable to serialize trade report")
			continue
		}
		s.broadcastLocked(wire)
	}
}

// ReportError sends an error report to clientAddress, if still connected.
func (s *Server) ReportError(clientAddress string, cause error) error {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	report := newErrorReport(cause)
	wire, err := report.Serialize()
	if err != nil {
		return err
	}

	client, ok := s.clientSessions[clientAddress]
	if !ok {
		return ErrClientDoesNotExist
	}
	if _, err := client.conn.Write(wire); err != nil {
		delete(s.clientSessions, clientAddress)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

// broadcastLocked writes wire to every currently connected client; callers
// must hold clientSessionsLock. The demo protocol has no per-user routing
// table beyond "who is connected", so every client observes every fill,
// same as the teacher's log-everything approach to reporting.
func (s *Server) broadcastLocked(wire []byte) {
	for addr, session := range s.clientSessions {
		if _, err := session.conn.Write(wire); err != nil {
			log.Error().Err(err).Str("address", addr).Msg("failed to deliver report")
			delete(s.clientSessions, addr)
		}
	}
}

func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			if err := s.handleMessage(message); err != nil {
				log.Error().Err(err).Str("clientAddress", message.clientAddress).Msg("error handling message")
				s.ReportError(message.clientAddress, err)
			}
		}
	}
}

func (s *Server) handleMessage(cm clientMessage) error {
	switch m := cm.message.(type) {
	case NewOrderMessage:
		o := m.Order()
		_, err := s.engine.PlaceOrder(m.Symbol, o)
		return err

	case CancelOrderMessage:
		_, _, err := s.engine.CancelOrder(m.Symbol, m.OrderID)
		return err

	case SnapshotRequestMessage:
		b, ok := s.engine.Book(m.Symbol)
		if !ok {
			return &engine.UnknownSymbolError{Symbol: m.Symbol}
		}
		snap := b.CreateSnapshot(int(m.Depth))
		enriched := book.Enrich(snap)
		log.Info().
			Str("symbol", m.Symbol).
			Int("bidLevels", len(snap.Bids)).
			Int("askLevels", len(snap.Asks)).
			Interface("midPrice", enriched.MidPrice).
			Msg("snapshot requested")
		return nil

	case BaseMessage:
		return nil // heartbeat

	default:
		log.Error().Str("clientAddress", cm.clientAddress).Msg("invalid message type")
		return ErrInvalidMessageType
	}
}

func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Error().Str("address", conn.RemoteAddr().String()).Err(err).Msg("error closing connection")
		}
	}()

	if err := conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("failed setting deadline")
		return nil
	}

	buffer := make([]byte, maxRecvSize)
	select {
	case <-t.Dying():
		return nil
	default:
		n, err := conn.Read(buffer)
		if err != nil {
			log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("error reading from connection")
			s.deleteClientSession(conn.RemoteAddr().String())
			return nil
		}

		message, err := parseMessage(buffer[:n])
		if err != nil {
			log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("error parsing message")
			s.deleteClientSession(conn.RemoteAddr().String())
			return nil
		}

		s.clientMessages <- clientMessage{message: message, clientAddress: conn.RemoteAddr().String()}
		s.pool.AddTask(conn)
	}
	return nil
}

func (s *Server) addClientSession(conn net.Conn) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	s.clientSessions[conn.RemoteAddr().String()] = clientSession{conn: conn}
}

func (s *Server) deleteClientSession(address string) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	delete(s.clientSessions, address)
}

package tbp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/domino14/stackbot/bot"
	"github.com/domino14/stackbot/piece"
	"github.com/domino14/stackbot/search"
	"github.com/domino14/stackbot/tree"
)

const (
	BotName    = "stackbot"
	BotVersion = "0.1.0"
	BotAuthor  = "stackbot authors"

	maxMessageSize = 1 << 20
	// fallbackIterations is used when a suggestion is requested before any
	// search has finished on the position.
	fallbackIterations = 64
)

// Server answers one frontend. The bot thinks between messages; every
// message that changes the position first pauses that thinking.
type Server struct {
	bot       *bot.Bot
	thinkTime time.Duration

	enc *json.Encoder

	// waiting holds a start message that had no pieces; it is completed by
	// the first new_piece.
	waiting       *frontendMessage
	running       bool
	positionSince time.Time

	ponderCancel context.CancelFunc
	ponderDone   chan struct{}
}

func NewServer(b *bot.Bot, thinkTime time.Duration) *Server {
	return &Server{bot: b, thinkTime: thinkTime}
}

// Run serves messages read from r until quit, end of input or ctx is
// cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.enc = json.NewEncoder(w)
	defer s.pause()

	if err := s.send(infoMessage{
		Type:     msgInfo,
		Name:     BotName,
		Version:  BotVersion,
		Author:   BotAuthor,
		Features: []string{},
	}); err != nil {
		return err
	}

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		var line []byte
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok = <-lines:
		}
		if !ok {
			return <-scanErr
		}
		if len(line) == 0 {
			continue
		}
		var msg frontendMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			log.Err(err).Msg("bad-message")
			if err := s.sendError(fmt.Errorf("could not parse message: %w", err)); err != nil {
				return err
			}
			continue
		}
		quit, err := s.handle(ctx, &msg)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
}

// handle processes one message. Only errors writing to the frontend are
// returned; bad input is reported to the frontend instead.
func (s *Server) handle(ctx context.Context, msg *frontendMessage) (bool, error) {
	log.Debug().Str("type", msg.Type).Msg("received")
	var err error
	switch msg.Type {
	case msgRules:
		return false, s.send(typeOnly{Type: msgReady})
	case msgStart:
		err = s.start(ctx, msg)
	case msgPlay:
		err = s.play(ctx, msg)
	case msgNewPiece:
		err = s.newPiece(ctx, msg)
	case msgSuggest:
		return false, s.suggest(ctx)
	case msgStop:
		s.pause()
		s.waiting = nil
		s.running = false
	case msgQuit:
		return true, nil
	default:
		log.Debug().Str("type", msg.Type).Msg("ignoring-unknown-message")
	}
	if err != nil {
		log.Err(err).Str("type", msg.Type).Msg("message-rejected")
		return false, s.sendError(err)
	}
	return false, nil
}

func (s *Server) start(ctx context.Context, msg *frontendMessage) error {
	s.pause()
	s.running = false
	if msg.Randomizer != nil {
		log.Debug().Str("randomizer", msg.Randomizer.Type).Msg("randomizer-ignored")
	}
	if msg.Hold == nil && len(msg.Queue) == 0 {
		s.waiting = msg
		return nil
	}
	s.waiting = nil
	if err := s.reset(msg); err != nil {
		return err
	}
	s.resume(ctx)
	return nil
}

func (s *Server) reset(msg *frontendMessage) error {
	rules := s.bot.Rules()
	bd, err := parseBoard(msg.Board, rules.Width, rules.Height)
	if err != nil {
		return err
	}
	queue, err := parsePieces(msg.Queue)
	if err != nil {
		return err
	}
	hold := piece.None
	if msg.Hold != nil {
		if hold, err = piece.ParseKind(*msg.Hold); err != nil {
			return err
		}
	}
	combo := uint8(min(max(msg.Combo, 0), 255))
	if err := s.bot.Reset(bd, hold, queue, msg.BackToBack, combo); err != nil {
		return err
	}
	s.running = true
	s.positionSince = time.Now()
	return nil
}

func (s *Server) play(ctx context.Context, msg *frontendMessage) error {
	if msg.Move == nil {
		return errors.New("play message has no move")
	}
	if !s.running {
		return bot.ErrNotStarted
	}
	s.pause()
	defer s.resume(ctx)
	st, err := s.bot.State()
	if err != nil {
		return err
	}
	// A move with a different piece than the one in play must have used
	// hold.
	k, err := piece.ParseKind(msg.Move.Location.Type)
	if err != nil {
		return err
	}
	p, err := msg.Move.Placement(k != st.Active())
	if err != nil {
		return err
	}
	if err := s.bot.Advance(p); err != nil {
		return err
	}
	s.positionSince = time.Now()
	return nil
}

func (s *Server) newPiece(ctx context.Context, msg *frontendMessage) error {
	k, err := piece.ParseKind(msg.Piece)
	if err != nil {
		return err
	}
	if s.waiting != nil {
		start := s.waiting
		s.waiting = nil
		start.Queue = append(start.Queue, k.String())
		if err := s.reset(start); err != nil {
			return err
		}
		s.resume(ctx)
		return nil
	}
	if !s.running {
		return bot.ErrNotStarted
	}
	s.pause()
	defer s.resume(ctx)
	return s.bot.AddPiece(k)
}

func (s *Server) suggest(ctx context.Context) error {
	if !s.running {
		return s.send(suggestion(nil))
	}
	if wait := time.Until(s.positionSince.Add(s.thinkTime)); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.pause()
	defer s.resume(ctx)
	res := s.bot.Suggest()
	if res == nil {
		var err error
		res, err = s.bot.Search(log.Logger.WithContext(ctx), search.Budget{MaxIterations: fallbackIterations})
		if err != nil && !errors.Is(err, tree.ErrTableFull) {
			return s.sendError(err)
		}
	}
	return s.send(suggestion(res))
}

// resume starts thinking about the current position in the background.
func (s *Server) resume(ctx context.Context) {
	if !s.running || s.ponderCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.ponderCancel = cancel
	s.ponderDone = done
	go s.ponder(ctx, done)
}

// pause stops the background search and waits for it to let go of the
// bot.
func (s *Server) pause() {
	if s.ponderCancel == nil {
		return
	}
	s.ponderCancel()
	<-s.ponderDone
	s.ponderCancel = nil
	s.ponderDone = nil
}

func (s *Server) ponder(ctx context.Context, done chan struct{}) {
	defer close(done)
	ctx = log.Logger.WithContext(ctx)
	for ctx.Err() == nil {
		res, err := s.bot.Search(ctx, search.Budget{})
		if err != nil && !errors.Is(err, tree.ErrTableFull) {
			log.Err(err).Msg("ponder-failed")
			break
		}
		if res == nil || res.NoMove || err != nil {
			break
		}
	}
	<-ctx.Done()
}

func (s *Server) send(v interface{}) error {
	return s.enc.Encode(v)
}

func (s *Server) sendError(err error) error {
	return s.send(errorMessage{Type: msgError, Reason: err.Error()})
}

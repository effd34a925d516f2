// Package capture drives one capture cycle: validate the target window,
// pull raw text from the window agent, parse it, persist the new messages
// and report what was actually new.
package capture

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"chatlogd/internal/chatlog"
	"chatlogd/internal/parse"
	"chatlogd/internal/store"
	logx "chatlogd/pkg/logx"
)

// Target identifies one monitored conversation surface.
type Target struct {
	// ID is the opaque identifier the signal source reports (a window
	// handle on the agent side). It changes when the window is reopened.
	ID string
	// Title is the chat's display title; it is the stable identity that
	// messages are persisted under.
	Title string
}

// Prober checks target liveness with the external window agent.
type Prober interface {
	Validate(ctx context.Context, t Target) bool
}

// TextReader obtains the raw conversation text for a target. A nil string
// is a hard read failure, distinct from a successfully-read empty capture.
type TextReader interface {
	ReadText(ctx context.Context, t Target) (*string, error)
}

// Result is the outcome of one capture cycle.
//
// Warnings and persistence outcomes are independent signals surfaced
// together: a cycle that obtained text is a successful capture even if the
// database write failed, because overlapping re-captures make the loss
// recoverable.
type Result struct {
	Success     bool
	RawText     string
	Warnings    []string
	NewMessages []store.SavedMessage
}

type Service struct {
	prober  Prober
	reader  TextReader
	store   *store.Store
	dialect parse.Dialect
	logbuf  *chatlog.Buffer
	log     logx.Logger

	cycles atomic.Uint64
}

func New(prober Prober, reader TextReader, st *store.Store, dialect parse.Dialect, logbuf *chatlog.Buffer, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		prober:  prober,
		reader:  reader,
		store:   st,
		dialect: dialect,
		logbuf:  logbuf,
		log:     log,
	}
}

// Cycles returns the number of captures that obtained text (operational
// counter).
func (s *Service) Cycles() uint64 { return s.cycles.Load() }

// Capture runs one cycle for the target. Failures are never retried here;
// the next external signal retries naturally.
func (s *Service) Capture(ctx context.Context, t Target) Result {
	if !s.prober.Validate(ctx, t) {
		return Result{Warnings: []string{
			fmt.Sprintf("target invalid: %q (%s)", t.Title, t.ID),
		}}
	}

	text, err := s.reader.ReadText(ctx, t)
	if err != nil || text == nil {
		w := fmt.Sprintf("capture read failed: %q", t.Title)
		if err != nil {
			w += ": " + err.Error()
		}
		return Result{Warnings: []string{w}}
	}

	res := Result{Success: true, RawText: *text}
	n := s.cycles.Add(1)

	msgs := parse.Raw(s.dialect, res.RawText)
	if len(msgs) == 0 {
		s.log.Debug("no date boundary in capture; persist skipped",
			logx.String("chat", t.Title))
	} else {
		saved, err := s.persist(ctx, t.Title, msgs)
		if err != nil {
			// Recoverable: the same text will be re-captured later.
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("db error for %q: %v", t.Title, err))
		} else {
			res.NewMessages = saved
			s.log.Info("capture persisted",
				logx.String("chat", t.Title),
				logx.Int("parsed", len(msgs)),
				logx.Int("new", len(saved)))
		}
	}

	s.transcript(t, n, res.RawText)
	return res
}

func (s *Service) persist(ctx context.Context, title string, msgs []parse.Message) ([]store.SavedMessage, error) {
	chatID, err := s.store.GetOrCreateChat(ctx, title)
	if err != nil {
		return nil, err
	}
	return s.store.SaveMessages(ctx, chatID, msgs)
}

func (s *Service) transcript(t Target, cycle uint64, raw string) {
	if s.logbuf == nil {
		return
	}
	key := chatlog.Key(t.Title, t.ID)
	now := time.Now().Format("15:04:05")
	s.logbuf.Append(key, fmt.Sprintf("[#%d %s] --- capture start --- [%s] %s\n", cycle, now, t.Title, t.ID))
	if raw == "" || raw[len(raw)-1] != '\n' {
		raw += "\n"
	}
	s.logbuf.Append(key, raw)
	s.logbuf.Append(key, fmt.Sprintf("[#%d] --- capture end ---\n", cycle))
}

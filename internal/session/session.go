// Package session ties the conversation log, escalation policy, primary
// reasoner, architect reviewer, revision controller, speech manager, and
// store into one orchestrated chat session.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"archon/internal/config"
	"archon/internal/conversation"
	"archon/internal/escalation"
	"archon/internal/logging"
	"archon/internal/reasoner"
	"archon/internal/reviewer"
	"archon/internal/revision"
)

// ErrBusy is returned when a second orchestration call arrives while one
// is already in flight. The caller should disable input instead of
// queueing.
var ErrBusy = errors.New("session busy: an operation is already in flight")

// DefaultBanner seeds a fresh conversation log.
const DefaultBanner = "New topic started. Ask me anything."

// Solver is the primary reasoner surface the session drives.
type Solver interface {
	Solve(ctx context.Context, message, credential string, prior []conversation.Message, onThought reasoner.ThoughtFunc) (*reasoner.Result, error)
}

// Reviewer is the architect surface. Review never fails; degraded
// results carry their own notes.
type Reviewer interface {
	Review(ctx context.Context, messages []conversation.Message, credential string, mode reviewer.Mode) *reviewer.Result
}

// Speech is the playback queue surface.
type Speech interface {
	Enqueue(text, credential string)
	MarkInteracted()
	Stop()
	Close() error
}

// Store is the persistence surface.
type Store interface {
	SaveHistory(sessionID string, msgs []conversation.Message) error
	LoadHistory(sessionID string) ([]conversation.Message, error)
	SaveRevisionCount(sessionID string, n int) error
	LoadRevisionCount(sessionID string) (int, error)
}

// Deps carries the session's collaborators. Store and Speech may be nil
// (no persistence, no playback); Solver and Policy are required,
// Reviewer may be nil when no architect is configured.
type Deps struct {
	SessionID string
	Solver    Solver
	Reviewer  Reviewer
	Speech    Speech
	Store     Store
	Policy    *escalation.Policy
	Validator *config.Validator

	// Log is the shared conversation log. When the solver writes
	// transient status entries, it must be handed this same log; nil
	// gets a fresh banner-seeded log.
	Log *conversation.Log
}

// TurnResult is what one orchestration call hands back to the surface.
type TurnResult struct {
	Outcome   reasoner.Outcome
	Answer    string
	Reasoning string
	Review    *reviewer.Result
	Notice    string
	Thoughts  []reasoner.ThoughtUpdate
}

// Session is the orchestrator. At most one Send/Escalate/RequestRevision
// call is active at a time; concurrent calls get ErrBusy.
type Session struct {
	id       string
	deps     Deps
	log      *conversation.Log
	revision *revision.Controller

	cfgMu sync.RWMutex
	cfg   *config.UserConfig

	inFlight atomic.Bool
}

// New builds a session and rehydrates its log and revision counter from
// the store when one is present.
func New(cfg *config.UserConfig, deps Deps) (*Session, error) {
	if deps.Solver == nil {
		return nil, errors.New("session: solver is required")
	}
	if deps.Policy == nil {
		deps.Policy = escalation.NewPolicy(escalation.DefaultConfig())
	}
	if deps.Validator == nil {
		deps.Validator = config.NewValidator(nil)
	}
	if deps.SessionID == "" {
		deps.SessionID = uuid.NewString()
	}
	if cfg == nil {
		cfg = config.DefaultUserConfig()
	}

	log := deps.Log
	if log == nil {
		log = conversation.NewLogWithBanner(DefaultBanner)
	}
	s := &Session{
		id:   deps.SessionID,
		deps: deps,
		log:  log,
		cfg:  cfg,
	}
	s.revision = revision.NewController(s.log, deps.Solver)

	if deps.Store != nil {
		var (
			history []conversation.Message
			count   int
		)
		g := new(errgroup.Group)
		g.Go(func() error {
			var err error
			history, err = deps.Store.LoadHistory(s.id)
			return err
		})
		g.Go(func() error {
			var err error
			count, err = deps.Store.LoadRevisionCount(s.id)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("session rehydrate: %w", err)
		}
		if len(history) > 0 {
			s.log.Replace(history)
		}
		s.revision.Restore(count)
		logging.Session("rehydrated %s: %d entries, revision counter %d", s.id, len(history), count)
	}

	logging.Session("session %s ready", s.id)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Messages returns a display snapshot of the conversation.
func (s *Session) Messages() []conversation.Message {
	return s.log.Snapshot()
}

// ReloadCredentials re-reads the user config from disk. Invoked by the
// config watcher; a load failure keeps the current credentials.
func (s *Session) ReloadCredentials() {
	path := config.DefaultUserConfigPath()
	cfg, err := config.LoadUserConfig(path)
	if err != nil {
		logging.SessionError("credential reload failed, keeping current: %v", err)
		return
	}
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
	logging.Session("credentials reloaded from %s", path)
}

// UpdateConfig swaps the in-memory user config (used by surfaces that
// edit keys directly).
func (s *Session) UpdateConfig(cfg *config.UserConfig) {
	if cfg == nil {
		return
	}
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
}

func (s *Session) credential(p config.Provider) string {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg.Credential(p)
}

func (s *Session) speechEnabled() bool {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg.SpeechEnabled && s.cfg.SpeechAPIKey != ""
}

// acquire claims the single in-flight slot.
func (s *Session) acquire() error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

func (s *Session) release() { s.inFlight.Store(false) }

// Send runs one full user turn: policy pre-check, solve (or escalate),
// log updates, speech, and persistence.
func (s *Session) Send(ctx context.Context, text string, onThought reasoner.ThoughtFunc) (*TurnResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty message")
	}

	credential := s.credential(config.ProviderReasoner)
	if err := s.deps.Validator.Validate(config.ProviderReasoner, credential); err != nil {
		return nil, fmt.Errorf("reasoner credential: %w", err)
	}

	if s.deps.Speech != nil {
		s.deps.Speech.MarkInteracted()
	}

	prior := s.log.Snapshot()
	s.log.Append(conversation.User(text))

	decision := s.deps.Policy.Decide(text, "", 0, prior)
	if decision.ShouldEscalate {
		logging.Session("pre-check escalation: %s", decision.Reason)
		s.log.Append(conversation.System(conversation.MarkerEscalation,
			fmt.Sprintf("Escalating to the architect: %s", decision.Reason)))
		result, err := s.runArchitect(ctx, credential, onThought)
		s.persist()
		return result, err
	}

	result, err := s.runSolve(ctx, text, credential, onThought)
	s.persist()
	return result, err
}

// Escalate hands the current conversation to the architect in solve
// mode, on explicit user request.
func (s *Session) Escalate(ctx context.Context) (*TurnResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	credential := s.credential(config.ProviderReasoner)
	if err := s.deps.Validator.Validate(config.ProviderReasoner, credential); err != nil {
		return nil, fmt.Errorf("reasoner credential: %w", err)
	}

	s.log.Append(conversation.System(conversation.MarkerEscalation, "Manual escalation requested."))
	result, err := s.runArchitect(ctx, credential, nil)
	s.persist()
	return result, err
}

// RequestRevision runs one revision round over the latest solution.
func (s *Session) RequestRevision(ctx context.Context, improvements []string, onThought reasoner.ThoughtFunc) (*TurnResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	credential := s.credential(config.ProviderReasoner)
	res, err := s.revision.RequestRevision(ctx, improvements, credential, onThought)
	if err != nil {
		return nil, err
	}

	turn := &TurnResult{Outcome: res.Outcome, Thoughts: res.Thoughts}
	switch res.Outcome {
	case reasoner.OutcomeComplete:
		turn.Answer = res.Content
		turn.Reasoning = res.Reasoning
		s.enqueueSpeech(res.Content)
	case reasoner.OutcomeTimeout:
		turn.Notice = s.appendTimeoutNotice(res.TimeoutReason)
	case reasoner.OutcomeEscalate:
		s.log.Append(conversation.System(conversation.MarkerEscalation,
			fmt.Sprintf("Escalating to the architect: %s", res.EscalationReason)))
		architect, aerr := s.runArchitect(ctx, credential, onThought)
		if architect != nil {
			architect.Thoughts = append(res.Thoughts, architect.Thoughts...)
		}
		s.persist()
		return architect, aerr
	}
	s.persist()
	return turn, nil
}

// RequestReview asks the architect to critique the latest answer
// without producing its own solution. Unlike escalation there is no
// solver fallback: a critique only makes sense from the architect.
func (s *Session) RequestReview(ctx context.Context) (*TurnResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	reviewerCredential := s.credential(config.ProviderReviewer)
	if s.deps.Reviewer == nil {
		return nil, errors.New("no architect configured")
	}
	if err := s.deps.Validator.Validate(config.ProviderReviewer, reviewerCredential); err != nil {
		return nil, fmt.Errorf("reviewer credential: %w", err)
	}
	if !s.hasAnswer() {
		return nil, errors.New("nothing to review yet")
	}

	logging.Session("architect review requested")
	review := s.deps.Reviewer.Review(ctx, s.log.Snapshot(), reviewerCredential, reviewer.ModeReview)
	s.log.ClearTransient()
	s.log.Append(conversation.ReviewAnswer(formatReview(review)))

	turn := &TurnResult{Outcome: reasoner.OutcomeComplete, Review: review}
	s.persist()
	return turn, nil
}

// hasAnswer reports whether the log holds any answer to critique.
func (s *Session) hasAnswer() bool {
	for _, m := range s.log.Snapshot() {
		if m.Kind == conversation.KindAnswer {
			return true
		}
	}
	return false
}

// NewTopic truncates the log back to the banner, resets the revision
// counter, and flushes pending speech.
func (s *Session) NewTopic() error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	s.log.Reset()
	s.revision.Reset()
	if s.deps.Speech != nil {
		s.deps.Speech.Stop()
	}
	s.persist()
	logging.Session("new topic for %s", s.id)
	return nil
}

// Close persists final state and releases the speech worker. The store
// stays open; its owner closes it.
func (s *Session) Close() error {
	s.persist()
	if s.deps.Speech != nil {
		return s.deps.Speech.Close()
	}
	return nil
}

// runSolve executes the two-phase solver and folds its outcome into the
// log.
func (s *Session) runSolve(ctx context.Context, text, credential string, onThought reasoner.ThoughtFunc) (*TurnResult, error) {
	prior := s.log.Snapshot()
	res, err := s.deps.Solver.Solve(ctx, text, credential, prior, onThought)
	if err != nil {
		s.log.ClearTransient()
		s.log.Append(conversation.System(conversation.MarkerError, fmt.Sprintf("Request failed: %v", err)))
		return nil, err
	}

	turn := &TurnResult{Outcome: res.Outcome, Thoughts: res.Thoughts}
	switch res.Outcome {
	case reasoner.OutcomeComplete:
		s.log.ClearTransient()
		if res.Reasoning != "" {
			s.log.Append(conversation.Reasoning(res.Reasoning))
		}
		s.log.Append(conversation.Answer(res.Content))
		turn.Answer = res.Content
		turn.Reasoning = res.Reasoning
		s.enqueueSpeech(res.Content)

	case reasoner.OutcomeTimeout:
		turn.Notice = s.appendTimeoutNotice(res.TimeoutReason)

	case reasoner.OutcomeEscalate:
		s.log.Append(conversation.System(conversation.MarkerEscalation,
			fmt.Sprintf("Escalating to the architect: %s", res.EscalationReason)))
		architect, aerr := s.runArchitect(ctx, credential, onThought)
		if architect != nil {
			architect.Thoughts = append(res.Thoughts, architect.Thoughts...)
		}
		return architect, aerr
	}
	return turn, nil
}

// runArchitect asks the reviewer for a solution. Without a usable
// reviewer credential it falls back to the primary reasoner with a
// visible notice.
func (s *Session) runArchitect(ctx context.Context, reasonerCredential string, onThought reasoner.ThoughtFunc) (*TurnResult, error) {
	reviewerCredential := s.credential(config.ProviderReviewer)
	if s.deps.Reviewer == nil || s.deps.Validator.Validate(config.ProviderReviewer, reviewerCredential) != nil {
		notice := "No architect credential configured; answering with the primary reasoner instead."
		s.log.Append(conversation.System(conversation.MarkerEscalation, notice))
		logging.Session("architect unavailable, falling back to solver")

		mctx := conversation.DeriveContext(s.log.Snapshot())
		question := mctx.OriginalQuestion
		if mctx.LastUserMessage != nil {
			question = mctx.LastUserMessage.Text
		}

		// The solver is the last resort here: a further escalate
		// outcome has nowhere to go, so it lands as a notice.
		res, err := s.deps.Solver.Solve(ctx, question, reasonerCredential, s.log.Snapshot(), onThought)
		if err != nil {
			s.log.ClearTransient()
			s.log.Append(conversation.System(conversation.MarkerError, fmt.Sprintf("Request failed: %v", err)))
			return nil, err
		}
		turn := &TurnResult{Outcome: res.Outcome, Thoughts: res.Thoughts, Notice: notice}
		switch res.Outcome {
		case reasoner.OutcomeComplete:
			s.log.ClearTransient()
			if res.Reasoning != "" {
				s.log.Append(conversation.Reasoning(res.Reasoning))
			}
			s.log.Append(conversation.Answer(res.Content))
			turn.Answer = res.Content
			turn.Reasoning = res.Reasoning
			s.enqueueSpeech(res.Content)
		case reasoner.OutcomeTimeout:
			turn.Notice = s.appendTimeoutNotice(res.TimeoutReason)
		case reasoner.OutcomeEscalate:
			s.log.ClearTransient()
			s.log.Append(conversation.System(conversation.MarkerError,
				fmt.Sprintf("Could not complete the request: %s", res.EscalationReason)))
			turn.Notice = res.EscalationReason
		}
		return turn, nil
	}

	review := s.deps.Reviewer.Review(ctx, s.log.Snapshot(), reviewerCredential, reviewer.ModeSolve)
	s.log.ClearTransient()
	s.log.Append(conversation.ReviewAnswer(formatReview(review)))

	turn := &TurnResult{
		Outcome: reasoner.OutcomeComplete,
		Answer:  review.Solution,
		Review:  review,
	}
	s.enqueueSpeech(review.Solution)
	return turn, nil
}

// appendTimeoutNotice records a timeout system entry offering manual
// escalation and returns its text.
func (s *Session) appendTimeoutNotice(reason string) string {
	s.log.ClearTransient()
	notice := "The reasoner timed out. Use /escalate to hand this to the architect."
	if reason != "" {
		notice = fmt.Sprintf("The reasoner timed out (%s). Use /escalate to hand this to the architect.", reason)
	}
	s.log.Append(conversation.System(conversation.MarkerTimeout, notice))
	return notice
}

func (s *Session) enqueueSpeech(text string) {
	if s.deps.Speech == nil || !s.speechEnabled() {
		return
	}
	s.deps.Speech.Enqueue(text, s.credential(config.ProviderSpeech))
}

// persist writes history and the revision counter. Persistence failures
// are logged, never surfaced mid-turn.
func (s *Session) persist() {
	if s.deps.Store == nil {
		return
	}
	if err := s.deps.Store.SaveHistory(s.id, s.log.Snapshot()); err != nil {
		logging.SessionError("history persist failed: %v", err)
	}
	if err := s.deps.Store.SaveRevisionCount(s.id, s.revision.Count()); err != nil {
		logging.SessionError("revision counter persist failed: %v", err)
	}
}

// formatReview renders the architect's structured result as one log
// entry.
func formatReview(r *reviewer.Result) string {
	var b strings.Builder
	if r.Solution != "" {
		b.WriteString(r.Solution)
		b.WriteString("\n\n")
	}
	b.WriteString("CRITICAL ISSUES\n")
	for _, item := range r.CriticalIssues {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	b.WriteString("\nPOTENTIAL PROBLEMS\n")
	for _, item := range r.PotentialProblems {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	b.WriteString("\nIMPROVEMENTS\n")
	for _, item := range r.Improvements {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nARCHITECT VERDICT: %s", r.Verdict)
	return b.String()
}

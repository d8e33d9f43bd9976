// Package session implements the lobby session: the addressable unit clients
// join. One goroutine owns all session state and processes inbox messages
// strictly in order, so no locks guard the registry, the state machine, or
// the replicated variables.
package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/matchcore/lobby-server/internal/balance"
	"github.com/matchcore/lobby-server/internal/config"
	"github.com/matchcore/lobby-server/internal/directory"
	"github.com/matchcore/lobby-server/internal/match"
	"github.com/matchcore/lobby-server/internal/protocol"
	"github.com/matchcore/lobby-server/internal/registry"
	"github.com/matchcore/lobby-server/internal/replicate"
)

var (
	// ErrNoSuccessor is returned when host migration finds an empty registry.
	// It is the one fatal session error: the session is destroyed.
	ErrNoSuccessor = errors.New("no successor available for host migration")
	// ErrBadPassword is returned when joining a private room with the wrong password.
	ErrBadPassword = errors.New("incorrect room password")
)

// electSuccessor is the internal trigger that completes a host migration.
// It is posted to the session's own inbox when the host disconnects, so
// requests already buffered behind it form the migration window.
type electSuccessor struct{}

func (electSuccessor) isSessionMsg() {}

// Params configures a new session.
type Params struct {
	SessionID    string
	Code         string
	Settings     protocol.Settings
	PasswordHash string // bcrypt hash; empty for public rooms
	Lobby        config.LobbyConfig
	Policy       balance.Policy
	Directory    *directory.Publisher // optional
	Logger       *zap.Logger
	// OnDestroyed is called once when the session is destroyed, after all
	// participants are disconnected. Optional.
	OnDestroyed func(sessionID, code string)
}

// Session is a lobby session actor.
type Session struct {
	id           string
	code         string
	passwordHash string
	cfg          config.LobbyConfig
	policy       balance.Policy
	dir          *directory.Publisher
	logger       *zap.Logger
	onDestroyed  func(string, string)

	inbox   chan Msg
	clients map[string]chan []byte
	reg     *registry.Registry

	settings  *replicate.Var[protocol.Settings]
	state     *replicate.Var[match.State]
	countdown *replicate.Var[int]
	status    match.Status
	scene     string

	handlers map[string]func(senderID string, m protocol.ClientMessage)

	migrating bool
	pending   []Msg

	tickGen    uint64
	stopTicker chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// New creates a session and starts its event loop.
func New(parent context.Context, p Params) *Session {
	ctx, cancel := context.WithCancel(parent)
	settings := clampSettings(p.Settings, p.Lobby)

	s := &Session{
		id:           p.SessionID,
		code:         p.Code,
		passwordHash: p.PasswordHash,
		cfg:          p.Lobby,
		policy:       p.Policy,
		dir:          p.Directory,
		logger:       p.Logger.With(zap.String("session_id", p.SessionID), zap.String("code", p.Code)),
		onDestroyed:  p.OnDestroyed,
		inbox:        make(chan Msg, 64),
		clients:      make(map[string]chan []byte),
		reg:          registry.New(settings.MaxPlayers),
		status:       match.NewStatus(),
		ctx:          ctx,
		cancel:       cancel,
	}

	isAuthority := func(id string) bool { return id != "" && id == s.reg.HostID() }
	s.settings = replicate.NewVar("settings", settings, isAuthority)
	s.state = replicate.NewVar("matchState", match.Waiting, isAuthority)
	s.countdown = replicate.NewVar("countdownRemaining", 0, isAuthority)

	s.settings.Subscribe(func(_, next protocol.Settings) {
		s.reg.SetCapacity(next.MaxPlayers)
		s.broadcast(protocol.Encode(protocol.SettingsSync{
			Type:     protocol.TypeSettingsSync,
			Settings: next,
			Version:  s.settings.Version(),
		}))
		s.publishSummary()
	})
	s.state.Subscribe(func(_, _ match.State) {
		s.broadcastMatchState()
		s.publishSummary()
	})
	s.countdown.Subscribe(func(_, _ int) {
		s.broadcastMatchState()
	})

	// Explicit dispatch table: wire tag -> handler, fixed at construction.
	s.handlers = map[string]func(string, protocol.ClientMessage){
		protocol.TypeRegister:          s.handleRegister,
		protocol.TypeSetReady:          s.handleSetReady,
		protocol.TypeRequestTeamChange: s.handleTeamChange,
		protocol.TypeUpdateSettings:    s.handleUpdateSettings,
		protocol.TypeAutoBalance:       s.handleAutoBalance,
		protocol.TypeKick:              s.handleKick,
		protocol.TypeLeave:             s.handleLeave,
	}

	if s.dir != nil {
		s.dir.Register(s.summary())
	}

	go s.loop()
	return s
}

// Inbox exposes the session's message channel to transports and tests.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Code returns the human-readable join code.
func (s *Session) Code() string { return s.code }

// CheckPassword verifies a join password against the room's hash. It is safe
// to call from transport goroutines: the hash is immutable after creation.
// bcrypt comparison is deliberately kept out of the event loop.
func (s *Session) CheckPassword(password string) error {
	if s.passwordHash == "" {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		return ErrBadPassword
	}
	return nil
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			if !s.closed {
				s.destroy("context cancelled")
			}
			return
		case m := <-s.inbox:
			s.dispatch(m)
			if s.closed {
				return
			}
		}
	}
}

func (s *Session) dispatch(m Msg) {
	// During host migration only the election itself, reads, and shutdown
	// proceed; mutation requests queue for replay against the new authority.
	if s.migrating {
		switch m.(type) {
		case electSuccessor, GetView, Shutdown:
		case tick:
			return // countdown pauses until the successor takes over
		default:
			s.pending = append(s.pending, m)
			return
		}
	}

	switch msg := m.(type) {
	case Join:
		s.handleJoin(msg)
	case Disconnect:
		s.removeActor(msg.ActorID)
	case FromClient:
		h, ok := s.handlers[msg.Msg.Tag()]
		if !ok {
			s.rejectTo(msg.SenderID, protocol.ErrUnknownType)
			return
		}
		h(msg.SenderID, msg.Msg)
	case MatchEnded:
		s.handleMatchEnded()
	case tick:
		s.handleTick(msg.gen)
	case electSuccessor:
		s.finishMigration()
	case GetView:
		msg.Reply <- s.view()
	case Shutdown:
		s.destroy("shutdown")
	}
}

func (s *Session) handleJoin(j Join) {
	p, err := s.reg.Register(j.ActorID, j.DisplayName)
	if err != nil {
		j.Reply <- err
		return
	}
	s.clients[j.ActorID] = j.Outbox

	// Seed the newcomer onto the least-populated team before they choose.
	seed := balance.OptimalTeam(s.reg.TeamCounts(s.cfg.TeamCount))
	_, _ = s.reg.SetTeam(j.ActorID, seed)

	j.Reply <- nil
	s.logger.Info("player joined",
		zap.String("actor_id", j.ActorID),
		zap.String("display_name", j.DisplayName),
		zap.Int("players", s.reg.Count()),
	)

	s.sendTo(j.ActorID, protocol.Encode(s.stateSyncFor(j.ActorID)))
	s.broadcastPlayer(p)
	s.publishSummary()
	s.evaluate()
}

func (s *Session) handleRegister(senderID string, _ protocol.ClientMessage) {
	// Transport-level joins carry registration; a second Register from a
	// connected participant is always a duplicate.
	s.rejectTo(senderID, registry.ErrDuplicateActor)
}

func (s *Session) handleSetReady(senderID string, m protocol.ClientMessage) {
	msg := m.(protocol.SetReady)
	if s.status.State != match.Waiting && s.status.State != match.Countdown {
		s.rejectTo(senderID, match.ErrInvalidTransition)
		return
	}
	p, err := s.reg.SetReady(senderID, msg.Ready)
	if err != nil {
		s.rejectTo(senderID, err)
		return
	}
	s.broadcastPlayer(p)
	s.evaluate()
}

func (s *Session) handleTeamChange(senderID string, m protocol.ClientMessage) {
	msg := m.(protocol.RequestTeamChange)
	if s.status.State != match.Waiting && s.status.State != match.Countdown {
		s.rejectTo(senderID, match.ErrInvalidTransition)
		return
	}
	p, ok := s.reg.Get(senderID)
	if !ok {
		s.rejectTo(senderID, registry.ErrUnknownActor)
		return
	}
	counts := s.reg.TeamCounts(s.cfg.TeamCount)
	if err := s.policy.Validate(counts, p.TeamID, msg.TeamID); err != nil {
		s.rejectTo(senderID, err)
		return
	}
	p, _ = s.reg.SetTeam(senderID, msg.TeamID)
	s.broadcastPlayer(p)
}

func (s *Session) handleUpdateSettings(senderID string, m protocol.ClientMessage) {
	msg := m.(protocol.UpdateSettings)
	next := clampSettings(msg.Settings, s.cfg)
	if err := s.settings.Write(senderID, next); err != nil {
		s.rejectTo(senderID, err)
		return
	}
	// Capacity, sync broadcast, and directory refresh happen in the
	// settings subscription.
}

func (s *Session) handleAutoBalance(senderID string, _ protocol.ClientMessage) {
	if senderID != s.reg.HostID() {
		s.rejectTo(senderID, replicate.ErrNotAuthorized)
		return
	}
	assigned := s.reg.AssignedActors()
	out := balance.AutoBalance(assigned, s.cfg.TeamCount, time.Now().UnixNano())
	for team, members := range out {
		for _, actorID := range members {
			p, err := s.reg.SetTeam(actorID, team)
			if err != nil {
				continue
			}
			s.broadcastPlayer(p)
		}
	}
}

func (s *Session) handleKick(senderID string, m protocol.ClientMessage) {
	msg := m.(protocol.Kick)
	if senderID != s.reg.HostID() {
		s.rejectTo(senderID, replicate.ErrNotAuthorized)
		return
	}
	if _, ok := s.reg.Get(msg.TargetID); !ok {
		s.rejectTo(senderID, registry.ErrUnknownActor)
		return
	}
	s.logger.Info("player kicked",
		zap.String("actor_id", msg.TargetID),
		zap.String("by", senderID),
	)
	s.removeActor(msg.TargetID)
}

func (s *Session) handleLeave(senderID string, _ protocol.ClientMessage) {
	s.removeActor(senderID)
}

func (s *Session) handleMatchEnded() {
	writer := s.reg.HostID()
	events, next, err := match.Step(s.status, match.InputMatchEnded, s.conditions())
	if err != nil {
		s.logger.Warn("match end signal ignored", zap.String("state", string(s.status.State)), zap.Error(err))
		return
	}
	s.status = next
	s.applyEvents(events)
	s.writeStatus(writer)
}

func (s *Session) handleTick(gen uint64) {
	if gen != s.tickGen {
		return // stale fire from a superseded countdown
	}
	writer := s.reg.HostID()
	events, next, err := match.Step(s.status, match.InputTick, s.conditions())
	if err != nil {
		return
	}
	s.status = next
	s.applyEvents(events)
	s.writeStatus(writer)
}

// removeActor unregisters a participant, closes its outbox, and reacts to
// the registry change: host departure starts migration, an empty registry
// destroys the session.
func (s *Session) removeActor(actorID string) {
	wasHost, err := s.reg.Unregister(actorID)
	if err != nil {
		// Not registered; just detach the connection if one is attached.
		s.detach(actorID)
		return
	}
	s.detach(actorID)
	s.broadcast(protocol.Encode(protocol.PlayerStateSync{
		Type:    protocol.TypePlayerStateSync,
		ActorID: actorID,
		Removed: true,
	}))
	s.logger.Info("player left", zap.String("actor_id", actorID), zap.Int("players", s.reg.Count()))

	if s.reg.Count() == 0 {
		if wasHost {
			s.logger.Info("host migration impossible", zap.Error(ErrNoSuccessor))
		}
		s.destroy("last participant left")
		return
	}
	s.publishSummary()

	if wasHost {
		s.beginMigration()
		return
	}
	s.evaluate()
}

func (s *Session) detach(actorID string) {
	if ch, ok := s.clients[actorID]; ok {
		close(ch)
		delete(s.clients, actorID)
	}
}

func (s *Session) beginMigration() {
	s.migrating = true
	s.logger.Info("host disconnected, electing successor")
	// Requests already buffered in the inbox land in the migration window
	// and replay against the new authority.
	select {
	case s.inbox <- electSuccessor{}:
	default:
		s.finishMigration()
	}
}

func (s *Session) finishMigration() {
	p, err := s.reg.PromoteSuccessor()
	if err != nil {
		s.logger.Info("host migration impossible", zap.Error(ErrNoSuccessor))
		s.destroy("no successor")
		return
	}
	s.migrating = false
	s.logger.Info("host migrated", zap.String("actor_id", p.ActorID))
	s.broadcastPlayer(p)

	replay := s.pending
	s.pending = nil
	for _, m := range replay {
		s.dispatch(m)
		if s.closed {
			return
		}
	}
	// The new authority re-checks the guards and resumes any countdown.
	s.evaluate()
}

// evaluate re-runs the state machine guard after a registry mutation.
func (s *Session) evaluate() {
	writer := s.reg.HostID()
	events, next, err := match.Step(s.status, match.InputEvaluate, s.conditions())
	if err != nil {
		return
	}
	s.status = next
	s.applyEvents(events)
	s.writeStatus(writer)
}

func (s *Session) conditions() match.Conditions {
	return match.Conditions{
		Players:        s.reg.Count(),
		MinPlayers:     s.cfg.MinPlayers,
		AllReady:       s.reg.AllReady(),
		CountdownTicks: s.cfg.CountdownTicks,
	}
}

func (s *Session) applyEvents(events []match.Event) {
	for _, e := range events {
		switch e.Type {
		case match.EvtCountdownStarted:
			s.logger.Info("countdown started", zap.Int("ticks", s.status.Remaining))
			s.startTicker()
		case match.EvtCountdownAborted:
			s.logger.Info("countdown aborted")
			s.stopTickerIfRunning()
		case match.EvtMatchStarted:
			s.scene = resolveScene(s.settings.Read().GameMode)
			s.logger.Info("match started", zap.String("scene", s.scene))
			s.stopTickerIfRunning()
		case match.EvtMatchCompleted:
			s.logger.Info("match completed")
		}
	}
}

// writeStatus mirrors the machine status into the replicated variables.
// Subscriptions fan the changes out to participants.
func (s *Session) writeStatus(writer string) {
	_ = s.state.Write(writer, s.status.State)
	_ = s.countdown.Write(writer, s.status.Remaining)
}

func (s *Session) startTicker() {
	s.stopTickerIfRunning()
	s.tickGen++
	gen := s.tickGen
	stop := make(chan struct{})
	s.stopTicker = stop

	go func() {
		t := time.NewTicker(s.cfg.TickInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-s.ctx.Done():
				return
			case <-t.C:
				select {
				case s.inbox <- tick{gen: gen}:
				case <-stop:
					return
				case <-s.ctx.Done():
					return
				}
			}
		}
	}()
}

func (s *Session) stopTickerIfRunning() {
	if s.stopTicker != nil {
		close(s.stopTicker)
		s.stopTicker = nil
	}
}

func (s *Session) destroy(reason string) {
	if s.closed {
		return
	}
	s.closed = true
	s.stopTickerIfRunning()
	for id, ch := range s.clients {
		close(ch)
		delete(s.clients, id)
	}
	if s.dir != nil {
		s.dir.Deregister(s.id)
	}
	if s.onDestroyed != nil {
		s.onDestroyed(s.id, s.code)
	}
	s.logger.Info("session destroyed", zap.String("reason", reason))
	s.cancel()
}

// --- outbound ---

func (s *Session) broadcastMatchState() {
	s.broadcast(protocol.Encode(protocol.MatchStateSync{
		Type:               protocol.TypeMatchStateSync,
		MatchState:         string(s.status.State),
		StateVersion:       s.state.Version(),
		CountdownRemaining: s.status.Remaining,
		Scene:              s.scene,
	}))
}

func (s *Session) broadcastPlayer(p *registry.PlayerInfo) {
	ps := playerState(p)
	s.broadcast(protocol.Encode(protocol.PlayerStateSync{
		Type:    protocol.TypePlayerStateSync,
		ActorID: p.ActorID,
		Player:  &ps,
	}))
}

func (s *Session) broadcast(data []byte) {
	for id, ch := range s.clients {
		select {
		case ch <- data:
		default:
			// Slow consumer; drop the connection. The transport notices the
			// closed outbox and reports a Disconnect.
			close(ch)
			delete(s.clients, id)
		}
	}
}

func (s *Session) sendTo(actorID string, data []byte) {
	ch, ok := s.clients[actorID]
	if !ok {
		return
	}
	select {
	case ch <- data:
	default:
		close(ch)
		delete(s.clients, actorID)
	}
}

func (s *Session) rejectTo(actorID string, err error) {
	s.sendTo(actorID, protocol.Encode(protocol.Rejection{
		Type:    protocol.TypeRejection,
		Code:    rejectionCode(err),
		Message: err.Error(),
	}))
}

func (s *Session) stateSyncFor(actorID string) protocol.SessionStateSync {
	players := s.reg.Players()
	out := make([]protocol.PlayerState, 0, len(players))
	for _, p := range players {
		out = append(out, playerState(p))
	}
	return protocol.SessionStateSync{
		Type:               protocol.TypeSessionStateSync,
		SessionID:          s.id,
		Code:               s.code,
		You:                actorID,
		Settings:           s.settings.Read(),
		SettingsVersion:    s.settings.Version(),
		MatchState:         string(s.status.State),
		StateVersion:       s.state.Version(),
		CountdownRemaining: s.status.Remaining,
		Players:            out,
	}
}

func (s *Session) summary() directory.Summary {
	settings := s.settings.Read()
	return directory.Summary{
		SessionID:  s.id,
		Code:       s.code,
		RoomName:   settings.RoomName,
		GameMode:   settings.GameMode,
		MapName:    settings.MapName,
		Players:    s.reg.Count(),
		MaxPlayers: settings.MaxPlayers,
		State:      string(s.status.State),
		IsPrivate:  settings.IsPrivate,
	}
}

func (s *Session) publishSummary() {
	if s.dir != nil {
		s.dir.Update(s.summary())
	}
}

func (s *Session) view() View {
	players := s.reg.Players()
	out := make([]protocol.PlayerState, 0, len(players))
	for _, p := range players {
		out = append(out, playerState(p))
	}
	return View{
		SessionID:       s.id,
		Code:            s.code,
		HostID:          s.reg.HostID(),
		Players:         out,
		Settings:        s.settings.Read(),
		SettingsVersion: s.settings.Version(),
		Match:           s.status,
		StateVersion:    s.state.Version(),
		NumClients:      len(s.clients),
		Migrating:       s.migrating,
		PendingReplay:   len(s.pending),
	}
}

// --- helpers ---

func playerState(p *registry.PlayerInfo) protocol.PlayerState {
	return protocol.PlayerState{
		ActorID:     p.ActorID,
		DisplayName: p.DisplayName,
		TeamID:      p.TeamID,
		IsReady:     p.IsReady,
		IsHost:      p.IsHost,
	}
}

func clampSettings(in protocol.Settings, cfg config.LobbyConfig) protocol.Settings {
	out := in
	if out.MaxPlayers == 0 {
		out.MaxPlayers = cfg.DefaultMaxPlayers
	}
	if out.MaxPlayers < cfg.MinPlayers {
		out.MaxPlayers = cfg.MinPlayers
	}
	if out.MaxPlayers > cfg.AbsoluteMaxPlayers {
		out.MaxPlayers = cfg.AbsoluteMaxPlayers
	}
	return out
}

// resolveScene maps a game mode to the scene participants load at match
// start. Unknown modes fall back to a mode-derived scene name.
func resolveScene(gameMode string) string {
	switch gameMode {
	case "ctf":
		return "scene_capture"
	case "dm":
		return "scene_arena"
	case "koth":
		return "scene_hill"
	default:
		return "scene_" + gameMode
	}
}

func rejectionCode(err error) string {
	switch {
	case errors.Is(err, replicate.ErrNotAuthorized):
		return protocol.CodeNotAuthorized
	case errors.Is(err, registry.ErrSessionFull):
		return protocol.CodeSessionFull
	case errors.Is(err, registry.ErrDuplicateActor):
		return protocol.CodeDuplicateActor
	case errors.Is(err, balance.ErrInvalidTeamChange):
		return protocol.CodeInvalidTeamChange
	case errors.Is(err, match.ErrInvalidTransition):
		return protocol.CodeInvalidStateTransition
	case errors.Is(err, ErrNoSuccessor):
		return protocol.CodeNoSuccessor
	default:
		return protocol.CodeMalformed
	}
}

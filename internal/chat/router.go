package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dukerupert/hearth/internal/apperr"
	"github.com/dukerupert/hearth/internal/auth"
	"github.com/dukerupert/hearth/internal/poll"
	"github.com/dukerupert/hearth/internal/presence"
	"github.com/dukerupert/hearth/internal/websocket"
)

// Outbound event names.
const (
	EventAuthenticated  = "authenticated"
	EventJoined         = "joined_household"
	EventLeft           = "left_household"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventUserOffline    = "user_offline"
	EventNewMessage     = "new_message"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
	EventUserTyping     = "user_typing"
	EventTypingStopped  = "user_typing_stopped"
	EventNewPoll        = "new_poll"
	EventPollUpdate     = "poll_update"
	EventPollDeleted    = "poll_deleted"
	EventError          = "error"
)

// Authenticator resolves an access token to its claims.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

// Router dispatches inbound WebSocket events. It implements
// websocket.Dispatcher.
type Router struct {
	hub      *websocket.Hub
	chat     *Service
	polls    *poll.Service
	presence presence.Tracker
	authn    Authenticator
	logger   *slog.Logger
	handlers map[string]func(context.Context, *websocket.Client, websocket.Inbound) error
}

func NewRouter(hub *websocket.Hub, chat *Service, polls *poll.Service, tracker presence.Tracker, authn Authenticator, logger *slog.Logger) *Router {
	r := &Router{
		hub:      hub,
		chat:     chat,
		polls:    polls,
		presence: tracker,
		authn:    authn,
		logger:   logger,
	}
	r.handlers = map[string]func(context.Context, *websocket.Client, websocket.Inbound) error{
		"join_household":  r.joinHousehold,
		"leave_household": r.leaveHousehold,
		"send_message":    r.sendMessage,
		"edit_message":    r.editMessage,
		"delete_message":  r.deleteMessage,
		"typing_start":    r.typing(EventUserTyping),
		"typing_stop":     r.typing(EventTypingStopped),
		"create_poll":     r.createPoll,
		"vote_poll":       r.votePoll,
	}
	return r
}

func (r *Router) HandleEvent(ctx context.Context, c *websocket.Client, in websocket.Inbound) {
	var err error
	switch h, ok := r.handlers[in.Event]; {
	case in.Event == "authenticate":
		err = r.authenticate(ctx, c, in)
	case c.UserID() == "":
		err = apperr.Unauthenticated("authenticate first")
	case !ok:
		err = apperr.Validation("unknown event %q", in.Event)
	default:
		err = h(ctx, c, in)
	}
	if err != nil {
		r.fail(c, in, err)
	}
}

func (r *Router) fail(c *websocket.Client, in websocket.Inbound, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		r.logger.Error("websocket event failed", "event", in.Event, "user_id", c.UserID(), "error", err)
	}
	c.Send(websocket.Event{
		Event: EventError,
		Data: map[string]string{
			"kind":    kind.String(),
			"message": apperr.Message(err),
			"ref":     in.Ref,
		},
		Ref: in.Ref,
	})
}

func decode[T any](in websocket.Inbound) (T, error) {
	var v T
	if len(in.Data) == 0 {
		return v, apperr.Validation("%s requires a payload", in.Event)
	}
	if err := json.Unmarshal(in.Data, &v); err != nil {
		return v, apperr.Validation("invalid %s payload", in.Event)
	}
	return v, nil
}

// publish sends ev to the room and to the originating client, which gets
// the inbound ref echoed.
func (r *Router) publish(c *websocket.Client, room string, in websocket.Inbound, ev websocket.Event) {
	r.hub.Broadcast(room, ev, c)
	ev.Ref = in.Ref
	c.Send(ev)
}

func (r *Router) authenticate(ctx context.Context, c *websocket.Client, in websocket.Inbound) error {
	if c.UserID() != "" {
		return apperr.Validation("already authenticated")
	}
	body, err := decode[struct {
		Token string `json:"token"`
	}](in)
	if err != nil {
		return err
	}
	if body.Token == "" {
		return apperr.Validation("token is required")
	}
	claims, err := r.authn.Authenticate(ctx, body.Token)
	if err != nil {
		return err
	}
	if err := r.presence.Connect(ctx, claims.UserID); err != nil {
		return apperr.Internal(err)
	}
	c.SetUserID(claims.UserID)
	c.Send(websocket.Event{Event: EventAuthenticated, Data: map[string]string{"user_id": claims.UserID}, Ref: in.Ref})
	return nil
}

type householdRef struct {
	HouseholdID string `json:"household_id"`
}

func decodeHousehold(in websocket.Inbound) (string, error) {
	body, err := decode[householdRef](in)
	if err != nil {
		return "", err
	}
	if body.HouseholdID == "" {
		return "", apperr.Validation("household_id is required")
	}
	return body.HouseholdID, nil
}

type presenceEvent struct {
	UserID      string `json:"user_id"`
	HouseholdID string `json:"household_id"`
}

func (r *Router) joinHousehold(ctx context.Context, c *websocket.Client, in websocket.Inbound) error {
	hid, err := decodeHousehold(in)
	if err != nil {
		return err
	}
	uid := c.UserID()
	if err := r.chat.Member(ctx, uid, hid); err != nil {
		return err
	}

	if r.hub.Join(c, hid) {
		if err := r.presence.Join(ctx, uid, hid); err != nil {
			r.hub.Leave(c, hid)
			return apperr.Internal(err)
		}
		r.hub.Broadcast(hid, websocket.Event{Event: EventUserJoined, Data: presenceEvent{uid, hid}}, c)
	}

	messages, err := r.chat.Recent(ctx, hid)
	if err != nil {
		return err
	}
	polls, err := r.polls.Active(ctx, uid, hid)
	if err != nil {
		return err
	}
	online, err := r.presence.Online(ctx, hid)
	if err != nil {
		return apperr.Internal(err)
	}
	if polls == nil {
		polls = []poll.View{}
	}
	c.Send(websocket.Event{
		Event: EventJoined,
		Data: map[string]any{
			"household_id": hid,
			"messages":     messages,
			"polls":        polls,
			"online":       online,
		},
		Ref: in.Ref,
	})
	return nil
}

func (r *Router) leaveHousehold(ctx context.Context, c *websocket.Client, in websocket.Inbound) error {
	hid, err := decodeHousehold(in)
	if err != nil {
		return err
	}
	if err := r.leaveRoom(ctx, c, hid, EventUserLeft); err != nil {
		return err
	}
	c.Send(websocket.Event{Event: EventLeft, Data: householdRef{hid}, Ref: in.Ref})
	return nil
}

// leaveRoom removes the client from a room and tells the others once the
// user's last connection there is gone.
func (r *Router) leaveRoom(ctx context.Context, c *websocket.Client, hid, event string) error {
	if !r.hub.Leave(c, hid) {
		return nil
	}
	uid := c.UserID()
	gone, err := r.presence.Leave(ctx, uid, hid)
	if err != nil {
		return apperr.Internal(err)
	}
	if gone {
		r.hub.Broadcast(hid, websocket.Event{Event: event, Data: presenceEvent{uid, hid}}, c)
	}
	return nil
}

// MemberRemoved drops the user's connections from a household room after
// their membership is gone.
func (r *Router) MemberRemoved(ctx context.Context, householdID, userID string) {
	evicted := r.hub.EvictUser(householdID, userID)
	for _, c := range evicted {
		if _, err := r.presence.Leave(ctx, userID, householdID); err != nil {
			r.logger.Error("presence leave on removal", "user_id", userID, "household_id", householdID, "error", err)
		}
		c.Send(websocket.Event{Event: EventLeft, Data: householdRef{householdID}})
	}
	if len(evicted) > 0 {
		r.hub.Broadcast(householdID, websocket.Event{Event: EventUserLeft, Data: presenceEvent{userID, householdID}}, nil)
	}
}

// HouseholdDeleted closes the household room.
func (r *Router) HouseholdDeleted(ctx context.Context, householdID string) {
	for _, c := range r.hub.CloseRoom(householdID) {
		if _, err := r.presence.Leave(ctx, c.UserID(), householdID); err != nil {
			r.logger.Error("presence leave on delete", "user_id", c.UserID(), "household_id", householdID, "error", err)
		}
		c.Send(websocket.Event{Event: EventLeft, Data: householdRef{householdID}})
	}
}

func (r *Router) Disconnected(ctx context.Context, c *websocket.Client) {
	uid := c.UserID()
	if uid == "" {
		return
	}
	for _, hid := range r.hub.Rooms(c) {
		if err := r.leaveRoom(ctx, c, hid, EventUserOffline); err != nil {
			r.logger.Error("presence leave on disconnect", "user_id", uid, "household_id", hid, "error", err)
		}
	}
	if _, err := r.presence.Disconnect(ctx, uid); err != nil {
		r.logger.Error("presence disconnect", "user_id", uid, "error", err)
	}
}

func (r *Router) sendMessage(ctx context.Context, c *websocket.Client, in websocket.Inbound) error {
	body, err := decode[struct {
		HouseholdID string `json:"household_id"`
		SendInput
	}](in)
	if err != nil {
		return err
	}
	msg, err := r.chat.Send(ctx, c.UserID(), body.HouseholdID, body.SendInput)
	if err != nil {
		return err
	}
	r.publish(c, msg.HouseholdID, in, websocket.Event{Event: EventNewMessage, Data: msg})
	return nil
}

func (r *Router) editMessage(ctx context.Context, c *websocket.Client, in websocket.Inbound) error {
	body, err := decode[struct {
		MessageID string `json:"message_id"`
		Content   string `json:"content"`
	}](in)
	if err != nil {
		return err
	}
	msg, err := r.chat.Edit(ctx, c.UserID(), body.MessageID, body.Content)
	if err != nil {
		return err
	}
	r.publish(c, msg.HouseholdID, in, websocket.Event{Event: EventMessageEdited, Data: msg})
	return nil
}

func (r *Router) deleteMessage(ctx context.Context, c *websocket.Client, in websocket.Inbound) error {
	body, err := decode[struct {
		MessageID string `json:"message_id"`
	}](in)
	if err != nil {
		return err
	}
	del, err := r.chat.Delete(ctx, c.UserID(), body.MessageID)
	if err != nil {
		return err
	}
	r.publish(c, del.HouseholdID, in, websocket.Event{Event: EventMessageDeleted, Data: del})
	return nil
}

func (r *Router) typing(event string) func(context.Context, *websocket.Client, websocket.Inbound) error {
	return func(ctx context.Context, c *websocket.Client, in websocket.Inbound) error {
		hid, err := decodeHousehold(in)
		if err != nil {
			return err
		}
		uid := c.UserID()
		if err := r.chat.Member(ctx, uid, hid); err != nil {
			return err
		}
		r.hub.Broadcast(hid, websocket.Event{Event: event, Data: presenceEvent{uid, hid}}, c)
		return nil
	}
}

func (r *Router) createPoll(ctx context.Context, c *websocket.Client, in websocket.Inbound) error {
	body, err := decode[struct {
		HouseholdID string     `json:"household_id"`
		Question    string     `json:"question"`
		Options     []string   `json:"options"`
		ExpiresAt   *time.Time `json:"expires_at"`
	}](in)
	if err != nil {
		return err
	}
	view, err := r.polls.Create(ctx, c.UserID(), body.HouseholdID, poll.CreateInput{
		Question:  body.Question,
		Options:   body.Options,
		ExpiresAt: body.ExpiresAt,
	})
	if err != nil {
		return err
	}
	r.publish(c, view.HouseholdID, in, websocket.Event{Event: EventNewPoll, Data: view})
	return nil
}

// PollUpdate is broadcast after a vote changes the counts.
type PollUpdate struct {
	ID          string         `json:"id"`
	HouseholdID string         `json:"household_id"`
	Options     map[string]int `json:"options"`
	TotalVotes  int            `json:"total_votes"`
	Voter       string         `json:"voter"`
}

func NewPollUpdate(v *poll.View, voter string) PollUpdate {
	return PollUpdate{ID: v.ID, HouseholdID: v.HouseholdID, Options: v.Options, TotalVotes: v.TotalVotes, Voter: voter}
}

func (r *Router) votePoll(ctx context.Context, c *websocket.Client, in websocket.Inbound) error {
	body, err := decode[struct {
		PollID string `json:"poll_id"`
		Option string `json:"option"`
	}](in)
	if err != nil {
		return err
	}
	uid := c.UserID()
	view, err := r.polls.Vote(ctx, uid, body.PollID, body.Option)
	if err != nil {
		return err
	}
	r.publish(c, view.HouseholdID, in, websocket.Event{Event: EventPollUpdate, Data: NewPollUpdate(view, uid)})
	return nil
}

var _ websocket.Dispatcher = (*Router)(nil)

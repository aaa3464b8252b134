package chat

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/hearth/internal/apperr"
	"github.com/dukerupert/hearth/internal/auth"
	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/poll"
	"github.com/dukerupert/hearth/internal/testutil"
	"github.com/dukerupert/hearth/internal/websocket"
)

type tokenMap map[string]string

func (m tokenMap) Authenticate(_ context.Context, token string) (*auth.Claims, error) {
	uid, ok := m[token]
	if !ok {
		return nil, apperr.Unauthenticated("invalid or expired token")
	}
	return &auth.Claims{UserID: uid}, nil
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Ref   string          `json:"ref"`
}

type peer struct {
	t    *testing.T
	conn *ws.Conn
	ctx  context.Context
}

func (p *peer) send(event, ref string, data any) {
	p.t.Helper()
	raw, _ := json.Marshal(data)
	msg, _ := json.Marshal(frame{Event: event, Data: raw, Ref: ref})
	if err := p.conn.Write(p.ctx, ws.MessageText, msg); err != nil {
		p.t.Fatalf("write %s: %v", event, err)
	}
}

// expect reads frames until one with the given event arrives.
func (p *peer) expect(event string) frame {
	p.t.Helper()
	for {
		_, data, err := p.conn.Read(p.ctx)
		if err != nil {
			p.t.Fatalf("waiting for %s: %v", event, err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			p.t.Fatalf("unmarshal: %v", err)
		}
		if f.Event == event {
			return f
		}
	}
}

// expectQuiet fails if any frame arrives within d.
func (p *peer) expectQuiet(d time.Duration) {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(p.ctx, d)
	defer cancel()
	if _, data, err := p.conn.Read(ctx); err == nil {
		p.t.Fatalf("unexpected frame %s", data)
	}
}

func decodeData[T any](t *testing.T, f frame) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(f.Data, &v); err != nil {
		t.Fatalf("decode %s data: %v", f.Event, err)
	}
	return v
}

type routerFixture struct {
	*fixture
	router *Router
	url    string
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := newFixture(t)
	hub := websocket.NewHub(testutil.Logger())
	polls := poll.NewService(f.st, f.notifier, testutil.Logger(), poll.WithClock(f.clock.Now), poll.WithAudience(Absent(f.tracker)))
	tokens := tokenMap{"tok-alice": f.alice.ID, "tok-bob": f.bob.ID}
	router := NewRouter(hub, f.svc, polls, f.tracker, tokens, testutil.Logger())

	srv := httptest.NewServer(websocket.Handler(hub, router, websocket.Options{}, testutil.Logger()))
	t.Cleanup(srv.Close)
	return &routerFixture{fixture: f, router: router, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (rf *routerFixture) dial(t *testing.T, query string) *peer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := ws.Dial(ctx, rf.url+query, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return &peer{t: t, conn: conn, ctx: ctx}
}

func TestEventsRequireAuthentication(t *testing.T) {
	rf := newRouterFixture(t)
	p := rf.dial(t, "")

	p.send("join_household", "r1", householdRef{rf.home.ID})
	errFrame := p.expect(EventError)
	body := decodeData[map[string]string](t, errFrame)
	if body["kind"] != "unauthenticated" || body["ref"] != "r1" || errFrame.Ref != "r1" {
		t.Errorf("error = %v ref=%q", body, errFrame.Ref)
	}

	p.send("authenticate", "r2", map[string]string{"token": "bogus"})
	if body := decodeData[map[string]string](t, p.expect(EventError)); body["kind"] != "unauthenticated" {
		t.Errorf("bad token error = %v", body)
	}

	p.send("authenticate", "r3", map[string]string{"token": "tok-bob"})
	ack := p.expect(EventAuthenticated)
	if got := decodeData[map[string]string](t, ack)["user_id"]; got != rf.bob.ID || ack.Ref != "r3" {
		t.Errorf("authenticated user = %q ref = %q", got, ack.Ref)
	}

	// The connection stays usable after errors.
	p.send("no_such_event", "r4", map[string]string{})
	if body := decodeData[map[string]string](t, p.expect(EventError)); body["kind"] != "validation" {
		t.Errorf("unknown event error = %v", body)
	}
}

func TestChatFlow(t *testing.T) {
	rf := newRouterFixture(t)

	alice := rf.dial(t, "?token=tok-alice")
	alice.expect(EventAuthenticated)
	alice.send("join_household", "", householdRef{rf.home.ID})
	alice.expect(EventJoined)

	bob := rf.dial(t, "")
	bob.send("authenticate", "", map[string]string{"token": "tok-bob"})
	bob.expect(EventAuthenticated)
	bob.send("join_household", "j", householdRef{rf.home.ID})
	joined := decodeData[struct {
		HouseholdID string          `json:"household_id"`
		Messages    []model.Message `json:"messages"`
		Polls       []poll.View     `json:"polls"`
		Online      []string        `json:"online"`
	}](t, bob.expect(EventJoined))
	if !slices.Contains(joined.Online, rf.alice.ID) || !slices.Contains(joined.Online, rf.bob.ID) {
		t.Errorf("online = %v", joined.Online)
	}
	if joined.Messages == nil || joined.Polls == nil {
		t.Errorf("snapshot lists should be empty, not null")
	}

	if got := decodeData[presenceEvent](t, alice.expect(EventUserJoined)); got.UserID != rf.bob.ID {
		t.Errorf("user_joined = %+v", got)
	}

	alice.send("send_message", "m1", map[string]any{"household_id": rf.home.ID, "content": "hi all"})
	own := alice.expect(EventNewMessage)
	if own.Ref != "m1" {
		t.Errorf("sender ack ref = %q", own.Ref)
	}
	msg := decodeData[model.Message](t, bob.expect(EventNewMessage))
	if msg.Content != "hi all" || msg.UserID != rf.alice.ID {
		t.Errorf("message = %+v", msg)
	}

	rf.notifier.Wait()
	if got := unread(t, rf.st, rf.bob.ID); len(got) != 0 {
		t.Errorf("bob in room got %d notifications", len(got))
	}
	if got := unread(t, rf.st, rf.carol.ID); len(got) != 1 {
		t.Errorf("carol got %d notifications, want 1", len(got))
	}

	bob.send("typing_start", "", householdRef{rf.home.ID})
	if got := decodeData[presenceEvent](t, alice.expect(EventUserTyping)); got.UserID != rf.bob.ID {
		t.Errorf("typing = %+v", got)
	}

	bob.send("delete_message", "d1", map[string]string{"message_id": msg.ID})
	errFrame := bob.expect(EventError)
	if body := decodeData[map[string]string](t, errFrame); body["kind"] != "forbidden" || errFrame.Ref != "d1" {
		t.Errorf("delete error = %v", body)
	}

	alice.send("edit_message", "", map[string]string{"message_id": msg.ID, "content": "hi everyone"})
	if got := decodeData[model.Message](t, bob.expect(EventMessageEdited)); got.Content != "hi everyone" {
		t.Errorf("edited = %+v", got)
	}

	alice.send("delete_message", "", map[string]string{"message_id": msg.ID})
	if got := decodeData[Deleted](t, bob.expect(EventMessageDeleted)); got.ID != msg.ID || got.DeletedBy != rf.alice.ID {
		t.Errorf("deleted = %+v", got)
	}

	alice.send("create_poll", "", map[string]any{
		"household_id": rf.home.ID,
		"question":     "Movie night?",
		"options":      []string{"yes", "no"},
	})
	created := decodeData[poll.View](t, bob.expect(EventNewPoll))
	bob.send("vote_poll", "v1", map[string]string{"poll_id": created.ID, "option": "yes"})
	update := decodeData[PollUpdate](t, alice.expect(EventPollUpdate))
	if update.Voter != rf.bob.ID || update.Options["yes"] != 1 || update.TotalVotes != 1 {
		t.Errorf("poll update = %+v", update)
	}

	bob.conn.Close(ws.StatusNormalClosure, "")
	if got := decodeData[presenceEvent](t, alice.expect(EventUserOffline)); got.UserID != rf.bob.ID {
		t.Errorf("offline = %+v", got)
	}
}

func TestLeaveHousehold(t *testing.T) {
	rf := newRouterFixture(t)
	ctx := context.Background()

	alice := rf.dial(t, "?token=tok-alice")
	alice.expect(EventAuthenticated)
	alice.send("join_household", "", householdRef{rf.home.ID})
	alice.expect(EventJoined)

	bob := rf.dial(t, "?token=tok-bob")
	bob.expect(EventAuthenticated)
	bob.send("join_household", "", householdRef{rf.home.ID})
	bob.expect(EventJoined)

	bob.send("leave_household", "l", householdRef{rf.home.ID})
	if ack := bob.expect(EventLeft); ack.Ref != "l" {
		t.Errorf("leave ref = %q", ack.Ref)
	}
	if got := decodeData[presenceEvent](t, alice.expect(EventUserLeft)); got.UserID != rf.bob.ID {
		t.Errorf("user_left = %+v", got)
	}
	if in, _ := rf.tracker.InRoom(ctx, rf.bob.ID, rf.home.ID); in {
		t.Error("bob still present in room")
	}
	if ok, _ := rf.tracker.IsOnline(ctx, rf.bob.ID); !ok {
		t.Error("bob should still be connected")
	}
}

func TestRemovedMemberStopsReceiving(t *testing.T) {
	rf := newRouterFixture(t)
	ctx := context.Background()

	alice := rf.dial(t, "?token=tok-alice")
	alice.expect(EventAuthenticated)
	alice.send("join_household", "", householdRef{rf.home.ID})
	alice.expect(EventJoined)

	bob := rf.dial(t, "?token=tok-bob")
	bob.expect(EventAuthenticated)
	bob.send("join_household", "", householdRef{rf.home.ID})
	bob.expect(EventJoined)

	if err := rf.st.Households.RemoveMember(ctx, rf.home.ID, rf.bob.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	rf.router.MemberRemoved(ctx, rf.home.ID, rf.bob.ID)

	if got := decodeData[householdRef](t, bob.expect(EventLeft)); got.HouseholdID != rf.home.ID {
		t.Errorf("left = %+v", got)
	}
	if got := decodeData[presenceEvent](t, alice.expect(EventUserLeft)); got.UserID != rf.bob.ID {
		t.Errorf("user_left = %+v", got)
	}
	online, err := rf.tracker.Online(ctx, rf.home.ID)
	if err != nil {
		t.Fatalf("online: %v", err)
	}
	if slices.Contains(online, rf.bob.ID) {
		t.Errorf("online = %v, bob still listed", online)
	}

	alice.send("send_message", "m", map[string]string{"household_id": rf.home.ID, "content": "after removal"})
	alice.expect(EventNewMessage)
	alice.send("typing_start", "", householdRef{rf.home.ID})
	bob.expectQuiet(200 * time.Millisecond)
}

func TestDeletedHouseholdClosesRoom(t *testing.T) {
	rf := newRouterFixture(t)
	ctx := context.Background()

	alice := rf.dial(t, "?token=tok-alice")
	alice.expect(EventAuthenticated)
	alice.send("join_household", "", householdRef{rf.home.ID})
	alice.expect(EventJoined)

	rf.router.HouseholdDeleted(ctx, rf.home.ID)

	alice.expect(EventLeft)
	if in, _ := rf.tracker.InRoom(ctx, rf.alice.ID, rf.home.ID); in {
		t.Error("alice still present in deleted household")
	}
	if ok, _ := rf.tracker.IsOnline(ctx, rf.alice.ID); !ok {
		t.Error("alice should still be connected")
	}
}

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"VibeMelody/core/player"
	"VibeMelody/core/realtime"
	"VibeMelody/model"
)

type fakeRemote struct {
	users         []model.User
	history       []model.Message
	notifications []model.Notification
	usersErr      error
	userCalls     int
	fetchedFor    []string // user ids passed to FetchUsers and FetchNotifications
}

func (f *fakeRemote) FetchUsers(ctx context.Context, userID string) ([]model.User, error) {
	f.userCalls++
	f.fetchedFor = append(f.fetchedFor, userID)
	return f.users, f.usersErr
}

func (f *fakeRemote) FetchMessages(ctx context.Context, userID, peerID string) ([]model.Message, error) {
	return f.history, nil
}

func (f *fakeRemote) FetchNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	f.fetchedFor = append(f.fetchedFor, userID)
	return f.notifications, nil
}

func (f *fakeRemote) AskAssistant(ctx context.Context, prompt string) (string, error) {
	return "ok", nil
}

func newSession(t *testing.T, remote Remote) (*Session, *realtime.MemoryChannel) {
	t.Helper()
	ch := realtime.NewMemoryChannel()
	s := New(ch, remote, Options{PendingTimeout: time.Second})
	t.Cleanup(func() { s.Close() })
	return s, ch
}

func TestConnectLoadsPeersAndNotificationsOnce(t *testing.T) {
	remote := &fakeRemote{
		users:         []model.User{{ID: "peer1"}},
		notifications: []model.Notification{{ID: "n1"}, {ID: "n2", IsRead: true}},
	}
	s, ch := newSession(t, remote)
	ctx := context.Background()

	if err := s.Connect(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Connect(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if remote.userCalls != 1 {
		t.Fatalf("FetchUsers called %d times", remote.userCalls)
	}
	if len(ch.SentOfType(realtime.EventUserConnected)) != 1 {
		t.Fatal("user_connected not announced exactly once")
	}
	if len(s.Peers()) != 1 || s.Unread() != 1 {
		t.Fatalf("peers %v unread %d", s.Peers(), s.Unread())
	}
}

func TestConnectAsAnotherUserIsRejected(t *testing.T) {
	remote := &fakeRemote{users: []model.User{{ID: "peer"}}}
	s, ch := newSession(t, remote)
	ctx := context.Background()

	if err := s.Connect(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Connect(ctx, "u2"); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("Connect as u2 = %v, want ErrAlreadyConnected", err)
	}
	if user, _ := ch.UserID(); user != "u1" {
		t.Fatalf("channel user = %q", user)
	}
	for _, id := range remote.fetchedFor {
		if id != "u1" {
			t.Fatalf("fetched for %v", remote.fetchedFor)
		}
	}

	if err := s.SignOut(); err != nil {
		t.Fatal(err)
	}
	remote.fetchedFor = nil
	if err := s.Connect(ctx, "u2"); err != nil {
		t.Fatalf("Connect after SignOut: %v", err)
	}
	if user, ok := ch.UserID(); !ok || user != "u2" {
		t.Fatalf("channel user = %q connected=%v", user, ok)
	}
	if len(remote.fetchedFor) != 2 || remote.fetchedFor[0] != "u2" || remote.fetchedFor[1] != "u2" {
		t.Fatalf("fetched for %v", remote.fetchedFor)
	}
}

type recordStore struct{ rec *model.PersistentPlayback }

func (r *recordStore) Load(ctx context.Context) (*model.PersistentPlayback, error) { return r.rec, nil }

func (r *recordStore) Save(ctx context.Context, p *model.PersistentPlayback) error {
	cp := *p
	r.rec = &cp
	return nil
}

func TestConnectAnnouncesRestoredPlayback(t *testing.T) {
	track := model.Track{ID: "a", Title: "A", Artist: "X"}
	store := &recordStore{rec: &model.PersistentPlayback{
		CurrentTrack: &track,
		Queue:        []model.Track{track},
		CurrentIndex: 0,
		IsPlaying:    true,
	}}
	ch := realtime.NewMemoryChannel()
	s := New(ch, nil, Options{Store: store})
	t.Cleanup(func() { s.Close() })

	if err := s.Connect(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	sent := ch.SentOfType(realtime.EventUpdateActivity)
	if len(sent) != 1 {
		t.Fatalf("update_activity sent %d times", len(sent))
	}
	var d realtime.ActivityData
	sent[0].Decode(&d)
	if d.UserID != "u1" || d.Activity != "Playing A by X" {
		t.Fatalf("activity = %+v", d)
	}
}

func TestConnectFailureLeavesPlaybackUntouched(t *testing.T) {
	s, ch := newSession(t, &fakeRemote{})
	s.Player().LoadQueue([]model.Track{{ID: "a", Title: "A", Artist: "X"}}, 0)
	before := s.Playback()

	ch.FailConnect(errors.New("refused"))
	err := s.Connect(context.Background(), "u1")
	var chErr *realtime.ChannelError
	if !errors.As(err, &chErr) {
		t.Fatalf("Connect = %v", err)
	}
	after := s.Playback()
	if after.CurrentIndex != before.CurrentIndex || after.IsPlaying != before.IsPlaying {
		t.Fatal("connect failure changed playback")
	}
}

func TestLoadQueueThenNextPublishesActivity(t *testing.T) {
	s, ch := newSession(t, nil)
	if err := s.Connect(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	q := []model.Track{
		{ID: "a", Title: "A", Artist: "X"},
		{ID: "b", Title: "B", Artist: "Y"},
		{ID: "c", Title: "C", Artist: "Z"},
	}
	s.Player().LoadQueue(q, 0)
	for i := 0; i < 3; i++ {
		s.Player().Advance(player.Next)
	}

	if idx := s.Playback().CurrentIndex; idx != 2 {
		t.Fatalf("index = %d, want 2", idx)
	}
	var labels []string
	for _, evt := range ch.SentOfType(realtime.EventUpdateActivity) {
		var d realtime.ActivityData
		evt.Decode(&d)
		labels = append(labels, d.Activity)
	}
	want := []string{"Playing A by X", "Playing B by Y", "Playing C by Z", model.IdleActivity}
	if len(labels) != len(want) {
		t.Fatalf("labels = %v", labels)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("labels = %v, want %v", labels, want)
		}
	}
}

func TestPresenceScenario(t *testing.T) {
	s, ch := newSession(t, nil)
	s.Connect(context.Background(), "u1")

	ch.Deliver(realtime.MustEvent(realtime.EventUsersOnline, []string{"u1", "u2"}))
	ch.Deliver(realtime.MustEvent(realtime.EventUserDisconnected, "u2"))

	got := s.OnlineUsers()
	if len(got) != 1 || got[0] != "u1" {
		t.Fatalf("online = %v", got)
	}
}

func TestSendEchoScenario(t *testing.T) {
	s, ch := newSession(t, &fakeRemote{})
	ctx := context.Background()
	s.Connect(ctx, "u1")
	if err := s.SelectPeer(ctx, "peer1"); err != nil {
		t.Fatal(err)
	}

	clientID, err := s.Send("peer1", "hi")
	if err != nil {
		t.Fatal(err)
	}
	echo := realtime.MessageData{ID: "srv-1", SenderID: "u1", ReceiverID: "peer1", Content: "hi", ClientID: clientID}
	ch.Deliver(realtime.MustEvent(realtime.EventMessageSent, echo))
	echo.ClientID = ""
	ch.Deliver(realtime.MustEvent(realtime.EventReceiveMessage, echo))

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Content != "hi" {
		t.Fatalf("messages = %+v", msgs)
	}
	if expired := s.ExpirePending(time.Now().Add(time.Hour)); len(expired) != 0 {
		t.Fatalf("acknowledged send expired: %+v", expired)
	}
}

func TestDisconnectKeepsProjectionsSignOutClears(t *testing.T) {
	s, ch := newSession(t, &fakeRemote{})
	ctx := context.Background()
	s.Connect(ctx, "u1")
	ch.Deliver(realtime.MustEvent(realtime.EventUsersOnline, []string{"u1", "u2"}))
	ch.Deliver(realtime.MustEvent(realtime.EventNewNotification, model.Notification{ID: "n"}))
	s.Player().LoadQueue([]model.Track{{ID: "a"}}, 0)

	s.Disconnect()
	if len(s.OnlineUsers()) != 2 || s.Unread() != 1 {
		t.Fatal("Disconnect cleared projections")
	}
	if err := s.RefreshPresence(); !errors.Is(err, realtime.ErrNotConnected) {
		t.Fatalf("RefreshPresence offline = %v", err)
	}

	s.SignOut()
	if len(s.OnlineUsers()) != 0 || s.Unread() != 0 || s.Playback().CurrentTrack != nil {
		t.Fatal("SignOut left state behind")
	}
}

func TestRefreshPresenceAndAssistant(t *testing.T) {
	s, ch := newSession(t, &fakeRemote{})
	s.Connect(context.Background(), "u1")

	if err := s.RefreshPresence(); err != nil {
		t.Fatal(err)
	}
	if len(ch.SentOfType(realtime.EventRequestPresence)) != 1 {
		t.Fatal("request_presence not emitted")
	}

	reply, err := s.AskAssistant(context.Background(), "suggest something")
	if err != nil || reply.Content != "ok" {
		t.Fatalf("AskAssistant = %+v, %v", reply, err)
	}
	if len(s.AssistantMessages()) != 2 {
		t.Fatalf("assistant buffer = %+v", s.AssistantMessages())
	}
}

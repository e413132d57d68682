package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ssloxford/current-affairs/internal/config"
	"github.com/ssloxford/current-affairs/internal/waiter"
	"github.com/ssloxford/current-affairs/internal/wire"
)

func TestSendPostsForm(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		w.Write([]byte(`{"status":1,"request":"r1"}`))
	}))
	defer srv.Close()

	p := New(config.PushoverConfig{UserKey: "u", AppToken: "a"})
	p.APIURL = srv.URL
	err := p.Send(context.Background(), Message{Title: strings.Repeat("t", 300), Body: "b", Priority: PriorityHigh})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if form["user"] != "u" || form["token"] != "a" || form["priority"] != "1" {
		t.Fatalf("form = %v", form)
	}
	if len(form["title"]) != MaxTitleLen {
		t.Fatalf("title len = %d, want %d", len(form["title"]), MaxTitleLen)
	}
}

func TestSendReportsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":0,"errors":["user key is invalid"]}`))
	}))
	defer srv.Close()

	p := New(config.PushoverConfig{UserKey: "u", AppToken: "a"})
	p.APIURL = srv.URL
	if err := p.Send(context.Background(), Message{}); err == nil || !strings.Contains(err.Error(), "user key is invalid") {
		t.Fatalf("Send err = %v", err)
	}
	if err := New(config.PushoverConfig{}).Send(context.Background(), Message{}); err == nil {
		t.Fatal("Send without credentials succeeded")
	}
}

func TestCheckpointMessage(t *testing.T) {
	v := waiter.View{
		Kind:        wire.MsgWaiterStart,
		Outcomes:    waiter.Standard[0].Outcomes,
		AutoID:      waiter.OutcomeStartAll,
		AutoChecked: true,
	}
	msg := CheckpointMessage("bench-3", v)
	if msg.Title != "bench-3 Waiting: start" {
		t.Fatalf("title = %q", msg.Title)
	}
	if msg.Body != "Options: Start All, Start Manual, Exit\nAuto Start All is on." {
		t.Fatalf("body = %q", msg.Body)
	}
}

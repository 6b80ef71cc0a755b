package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/wesm/wahistory/internal/chat"
	"github.com/wesm/wahistory/internal/store"
	"github.com/wesm/wahistory/internal/testutil"
)

func TestSearchMessages(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	ann := chat.New("+15550001", "Ann", []chat.Message{
		message(chat.SenderClient, 0, "Lunch at noon?"),
		message(chat.SenderUser, time.Minute, "sure, 100% in"),
		message(chat.SenderClient, 2*time.Minute, "see you at LUNCH"),
	})
	ann.Messages[0].SenderName = "Ann"
	bob := sampleChat("+15550002", "Bob", time.Hour)
	testutil.MustNoErr(t, st.SaveChats(ctx, []chat.Chat{ann, bob}), "SaveChats")

	after := base.Add(time.Minute)
	tests := []struct {
		name   string
		filter store.MessageFilter
		want   []string
	}{
		{name: "case-insensitive, newest first", filter: store.MessageFilter{Text: "lunch"}, want: []string{"see you at LUNCH", "Lunch at noon?"}},
		{name: "percent is literal", filter: store.MessageFilter{Text: "100%"}, want: []string{"sure, 100% in"}},
		{name: "underscore is literal", filter: store.MessageFilter{Text: "_"}, want: nil},
		{name: "sender name", filter: store.MessageFilter{Text: "ann"}, want: []string{"Lunch at noon?"}},
		{name: "chat scope", filter: store.MessageFilter{Text: "hello", ChatID: ann.ID}, want: nil},
		{name: "after", filter: store.MessageFilter{ChatID: ann.ID, After: &after}, want: []string{"see you at LUNCH", "sure, 100% in"}},
		{name: "before", filter: store.MessageFilter{ChatID: ann.ID, Before: &after}, want: []string{"Lunch at noon?"}},
		{name: "limit and offset", filter: store.MessageFilter{ChatID: ann.ID, Limit: 1, Offset: 1}, want: []string{"sure, 100% in"}},
		{name: "attachments", filter: store.MessageFilter{HasAttachment: true}, want: []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := st.SearchMessages(ctx, tt.filter)
			testutil.MustNoErr(t, err, "SearchMessages")
			var got []string
			for _, h := range hits {
				got = append(got, h.Message.Content)
			}
			testutil.AssertStrings(t, got, tt.want...)
		})
	}
}

func TestSearchMessagesCarriesChat(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()
	c := sampleChat("+15550003", "Cy", 0)
	testutil.MustNoErr(t, st.SaveChats(ctx, []chat.Chat{c}), "SaveChats")

	hits, err := st.SearchMessages(ctx, store.MessageFilter{Text: "hello"})
	testutil.MustNoErr(t, err, "SearchMessages")
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}
	if hits[0].ChatID != c.ID || hits[0].PhoneNumber != "+15550003" || hits[0].ChatName != "Cy" {
		t.Errorf("hit = %+v", hits[0])
	}
}

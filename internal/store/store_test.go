package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/wesm/wahistory/internal/chat"
	"github.com/wesm/wahistory/internal/store"
	"github.com/wesm/wahistory/internal/testutil"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func message(sender chat.Sender, offset time.Duration, content string) chat.Message {
	typ := chat.TypeText
	if sender == chat.SenderSystem {
		typ = chat.TypeSystem
	}
	return chat.Message{
		ID:        chat.NewMessageID(),
		Timestamp: base.Add(offset),
		Sender:    sender,
		Content:   content,
		Type:      typ,
		IsRead:    true,
	}
}

func sampleChat(phoneNumber, name string, offset time.Duration) chat.Chat {
	img := message(chat.SenderUser, offset+2*time.Minute, "")
	img.Type = chat.TypeImage
	img.AttachmentURL = "/api/media/x/abc.jpg"
	return chat.New(phoneNumber, name, []chat.Message{
		message(chat.SenderSystem, offset, "Messages are end-to-end encrypted."),
		message(chat.SenderClient, offset+time.Minute, "hello"),
		img,
		message(chat.SenderSystem, offset+3*time.Minute, "You blocked this contact."),
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	st := testutil.NewTestStore(t)
	res, err := st.Migrate()
	testutil.MustNoErr(t, err, "second Migrate")
	if res.Changed {
		t.Error("second Migrate should report Changed=false")
	}
	if res.Version != 1 || res.Dirty {
		t.Errorf("version = %d dirty = %v", res.Version, res.Dirty)
	}
}

func TestSaveAndGetChat(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()
	c := sampleChat("+447700900001", "Bob", 0)

	testutil.MustNoErr(t, st.SaveChats(ctx, []chat.Chat{c}), "SaveChats")

	got, err := st.GetChat(ctx, c.ID)
	testutil.MustNoErr(t, err, "GetChat")
	if diff := cmp.Diff(c, *got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if got.LastMessage.Type != chat.TypeImage {
		t.Errorf("LastMessage should skip trailing system message, got %+v", got.LastMessage)
	}

	byPhone, err := st.GetChatByPhone(ctx, "+447700900001")
	testutil.MustNoErr(t, err, "GetChatByPhone")
	if byPhone.ID != c.ID {
		t.Errorf("GetChatByPhone ID = %q, want %q", byPhone.ID, c.ID)
	}

	if _, err := st.GetChat(ctx, "chat_missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing chat err = %v", err)
	}
	if _, err := st.GetChatByPhone(ctx, "+1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing phone err = %v", err)
	}
}

func TestSaveChatsDuplicatePhone(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()
	testutil.MustNoErr(t, st.SaveChats(ctx, []chat.Chat{sampleChat("+15550001", "", 0)}), "first save")

	batch := []chat.Chat{sampleChat("+15550002", "", 0), sampleChat("+15550001", "", 0)}
	err := st.SaveChats(ctx, batch)
	if !errors.Is(err, store.ErrDuplicatePhone) {
		t.Fatalf("err = %v, want ErrDuplicatePhone", err)
	}

	phones, err := st.PhoneNumbers(ctx)
	testutil.MustNoErr(t, err, "PhoneNumbers")
	if diff := cmp.Diff(map[string]bool{"+15550001": true}, phones); diff != "" {
		t.Errorf("failed batch left rows behind (-want +got):\n%s", diff)
	}

	inBatch := []chat.Chat{sampleChat("+15550003", "", 0), sampleChat("+15550003", "", 0)}
	if err := st.SaveChats(ctx, inBatch); !errors.Is(err, store.ErrDuplicatePhone) {
		t.Errorf("duplicate within batch err = %v", err)
	}
}

func TestListChatsOrder(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()
	older := sampleChat("+15550001", "Older", 0)
	newer := sampleChat("+15550002", "", 48*time.Hour)
	newer.Messages[1].IsRead = false
	newer = newer.WithMessages(newer.Messages)
	testutil.MustNoErr(t, st.SaveChats(ctx, []chat.Chat{older, newer}), "SaveChats")

	list, err := st.ListChats(ctx)
	testutil.MustNoErr(t, err, "ListChats")
	if len(list) != 2 {
		t.Fatalf("len = %d", len(list))
	}
	if list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Errorf("order = %s, %s", list[0].DisplayName(), list[1].DisplayName())
	}
	if list[0].UnreadCount != 1 || list[0].MessageCount != 4 {
		t.Errorf("newer summary = %+v", list[0])
	}
	if list[0].DisplayName() != "+15550002" || list[1].DisplayName() != "Older" {
		t.Errorf("display names = %q, %q", list[0].DisplayName(), list[1].DisplayName())
	}
	if list[1].LastMessage.ID != older.LastMessage.ID {
		t.Errorf("LastMessage = %+v, want %+v", list[1].LastMessage, older.LastMessage)
	}
}

func TestListChatsSystemOnly(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()
	c := chat.New("+15550009", "", []chat.Message{message(chat.SenderSystem, 0, "created group")})
	testutil.MustNoErr(t, st.SaveChats(ctx, []chat.Chat{c}), "SaveChats")

	list, err := st.ListChats(ctx)
	testutil.MustNoErr(t, err, "ListChats")
	if len(list) != 1 || list[0].LastMessage.Content != "created group" {
		t.Errorf("list = %+v", list)
	}
}

func TestMarkRead(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()
	c := sampleChat("+15550001", "", 0)
	msgs := c.Messages
	msgs[1].IsRead = false
	c = c.WithMessages(msgs)
	testutil.MustNoErr(t, st.SaveChats(ctx, []chat.Chat{c}), "SaveChats")

	n, err := st.MarkRead(ctx, c.ID)
	testutil.MustNoErr(t, err, "MarkRead")
	if n != 1 {
		t.Errorf("MarkRead changed %d, want 1", n)
	}
	got, err := st.GetChat(ctx, c.ID)
	testutil.MustNoErr(t, err, "GetChat")
	if got.UnreadCount != 0 {
		t.Errorf("UnreadCount = %d", got.UnreadCount)
	}

	if _, err := st.MarkRead(ctx, "chat_missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing chat err = %v", err)
	}
}

func TestUpdateChatNameByPhone(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()
	c := sampleChat("+15550001", "", 0)
	testutil.MustNoErr(t, st.SaveChats(ctx, []chat.Chat{c}), "SaveChats")

	ok, err := st.UpdateChatNameByPhone(ctx, "+15550001", "Chidi")
	testutil.MustNoErr(t, err, "UpdateChatNameByPhone")
	if !ok {
		t.Error("expected match")
	}
	got, err := st.GetChat(ctx, c.ID)
	testutil.MustNoErr(t, err, "GetChat")
	if got.Name != "Chidi" {
		t.Errorf("Name = %q", got.Name)
	}

	ok, err = st.UpdateChatNameByPhone(ctx, "+19999999", "Nobody")
	testutil.MustNoErr(t, err, "UpdateChatNameByPhone missing")
	if ok {
		t.Error("unknown phone should not match")
	}
}

func TestDeleteChatCascades(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()
	c := sampleChat("+15550001", "", 0)
	testutil.MustNoErr(t, st.SaveChats(ctx, []chat.Chat{c}), "SaveChats")

	testutil.MustNoErr(t, st.DeleteChat(ctx, c.ID), "DeleteChat")
	stats, err := st.Stats(ctx)
	testutil.MustNoErr(t, err, "Stats")
	if stats.ChatCount != 0 || stats.MessageCount != 0 {
		t.Errorf("after delete: %+v", stats)
	}
	if err := st.DeleteChat(ctx, c.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestStats(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()
	a := sampleChat("+15550001", "", 0)
	b := sampleChat("+15550002", "", time.Hour)
	msgs := b.Messages
	msgs[1].IsRead = false
	b = b.WithMessages(msgs)
	testutil.MustNoErr(t, st.SaveChats(ctx, []chat.Chat{a, b}), "SaveChats")

	stats, err := st.Stats(ctx)
	testutil.MustNoErr(t, err, "Stats")
	want := store.Stats{ChatCount: 2, MessageCount: 8, AttachmentCount: 2, UnreadCount: 1}
	if diff := cmp.Diff(want, *stats, cmpopts.IgnoreFields(store.Stats{}, "DatabaseSize")); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if stats.DatabaseSize == 0 {
		t.Error("DatabaseSize should be non-zero")
	}
}

func TestSettings(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	if _, ok, err := st.GetSetting(ctx, "vault.fingerprint"); err != nil || ok {
		t.Fatalf("unset setting: ok=%v err=%v", ok, err)
	}
	testutil.MustNoErr(t, st.SetSetting(ctx, "vault.fingerprint", "abc"), "SetSetting")
	testutil.MustNoErr(t, st.SetSetting(ctx, "vault.fingerprint", "def"), "SetSetting again")

	v, ok, err := st.GetSetting(ctx, "vault.fingerprint")
	testutil.MustNoErr(t, err, "GetSetting")
	if !ok || v != "def" {
		t.Errorf("GetSetting = %q, %v", v, ok)
	}
}

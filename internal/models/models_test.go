package models

import (
	"testing"
)

func TestKVEntry_TableName(t *testing.T) {
	if got := (KVEntry{}).TableName(); got != "kv_entries" {
		t.Errorf("expected table name kv_entries, got %s", got)
	}
}

func TestStreamRef_URL(t *testing.T) {
	tests := []struct {
		ref      StreamRef
		expected string
	}{
		{StreamRef{Kind: StreamAcestream, AceID: "abc"}, "acestream://abc"},
		{StreamRef{Kind: StreamMedia, MediaURL: "http://x/a.m3u8"}, "http://x/a.m3u8"},
		{StreamRef{Kind: StreamExternal, ExternalURL: "rtmp://x/live"}, "rtmp://x/live"},
	}

	for _, tt := range tests {
		if got := tt.ref.URL(); got != tt.expected {
			t.Errorf("URL() = %s, want %s", got, tt.expected)
		}
	}
}

func TestChannel_Groups(t *testing.T) {
	ch := Channel{
		GroupTitle:  "Sports",
		ExtraGroups: []string{"Football", "Sports"},
		Streams: []StreamRef{
			{GroupTitle: "Sports"},
			{GroupTitle: "UK", ExtraGroups: []string{"Football"}},
		},
	}

	got := ch.Groups()
	want := []string{"Sports", "Football", "UK"}
	if len(got) != len(want) {
		t.Fatalf("Groups() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Groups()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestChannel_GroupsEmpty(t *testing.T) {
	if got := (Channel{}).Groups(); len(got) != 0 {
		t.Errorf("expected no groups, got %v", got)
	}
}

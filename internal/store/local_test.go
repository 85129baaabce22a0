package store

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"archon/internal/config"
	"archon/internal/conversation"
)

func testStore(t *testing.T, limit int) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "archon.db"), limit)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadHistory_RoundTrip(t *testing.T) {
	s := testStore(t, 10)

	msgs := []conversation.Message{
		conversation.User("How do I center a div?"),
		conversation.Reasoning("Flexbox is the simplest route."),
		conversation.Answer("Use display:flex with justify-content and align-items."),
	}
	if err := s.SaveHistory("sess-1", msgs); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}

	got, err := s.LoadHistory("sess-1")
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("loaded %d entries, want 3", len(got))
	}
	for i := range msgs {
		if got[i].Kind != msgs[i].Kind || got[i].Text != msgs[i].Text {
			t.Errorf("entry %d = kind %v text %q, want kind %v text %q",
				i, got[i].Kind, got[i].Text, msgs[i].Kind, msgs[i].Text)
		}
	}
}

func TestSaveHistory_CapsToMostRecent(t *testing.T) {
	s := testStore(t, 5)

	var msgs []conversation.Message
	for i := 0; i < 8; i++ {
		msgs = append(msgs, conversation.User("question "+string(rune('a'+i))))
	}
	if err := s.SaveHistory("sess-cap", msgs); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}

	got, err := s.LoadHistory("sess-cap")
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("loaded %d entries, want 5", len(got))
	}
	if got[0].Text != "question d" || got[4].Text != "question h" {
		t.Fatalf("cap kept wrong window: first %q last %q", got[0].Text, got[4].Text)
	}
}

func TestSaveHistory_IdempotentWithinCap(t *testing.T) {
	s := testStore(t, 5)

	msgs := []conversation.Message{
		conversation.User("q"),
		conversation.Answer("a"),
	}
	if err := s.SaveHistory("sess-idem", msgs); err != nil {
		t.Fatalf("first save: %v", err)
	}
	loaded, err := s.LoadHistory("sess-idem")
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if err := s.SaveHistory("sess-idem", loaded); err != nil {
		t.Fatalf("resave: %v", err)
	}

	again, err := s.LoadHistory("sess-idem")
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if len(again) != len(loaded) {
		t.Fatalf("resave changed count: %d -> %d", len(loaded), len(again))
	}
	for i := range loaded {
		if again[i].Text != loaded[i].Text || again[i].Kind != loaded[i].Kind {
			t.Errorf("entry %d changed across save(load())", i)
		}
	}
}

func TestLoadHistory_UnknownSessionIsEmpty(t *testing.T) {
	s := testStore(t, 5)

	got, err := s.LoadHistory("never-seen")
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("loaded %d entries for unknown session", len(got))
	}
}

func TestHistory_PreservesMarkers(t *testing.T) {
	s := testStore(t, 10)

	msgs := []conversation.Message{
		conversation.User("q"),
		conversation.System(conversation.MarkerRevision, "Revision Attempt #1"),
		conversation.ReviewAnswer("reviewed solution"),
	}
	if err := s.SaveHistory("sess-markers", msgs); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	got, err := s.LoadHistory("sess-markers")
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if got[1].Marker != conversation.MarkerRevision {
		t.Errorf("system marker = %v, want revision", got[1].Marker)
	}
	if got[2].Marker != conversation.MarkerReview {
		t.Errorf("answer marker = %v, want review", got[2].Marker)
	}
}

func TestRevisionCount_RoundTripAndDefault(t *testing.T) {
	s := testStore(t, 5)

	n, err := s.LoadRevisionCount("fresh")
	if err != nil {
		t.Fatalf("LoadRevisionCount: %v", err)
	}
	if n != 1 {
		t.Fatalf("fresh session count = %d, want 1", n)
	}

	if err := s.SaveRevisionCount("sess-rev", 4); err != nil {
		t.Fatalf("SaveRevisionCount: %v", err)
	}
	n, err = s.LoadRevisionCount("sess-rev")
	if err != nil {
		t.Fatalf("LoadRevisionCount: %v", err)
	}
	if n != 4 {
		t.Fatalf("count = %d, want 4", n)
	}
}

func TestCredentials_RoundTrip(t *testing.T) {
	s := testStore(t, 5)

	creds := map[config.Provider]string{
		config.ProviderReasoner: "gsk_valid_reasoner_key_123",
		config.ProviderSpeech:   "abcdefgh12345678abcdefgh12345678",
	}
	if err := s.SaveCredentials(creds); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}

	got, err := s.LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if got[config.ProviderReasoner] != creds[config.ProviderReasoner] {
		t.Errorf("reasoner credential = %q", got[config.ProviderReasoner])
	}
	if got[config.ProviderSpeech] != creds[config.ProviderSpeech] {
		t.Errorf("speech credential = %q", got[config.ProviderSpeech])
	}
}

func TestSaveCredentials_RejectsBadFormat(t *testing.T) {
	s := testStore(t, 5)

	err := s.SaveCredentials(map[config.Provider]string{
		config.ProviderSpeech: "too-short",
	})
	if err == nil {
		t.Fatal("malformed speech key accepted")
	}
	var formatErr *config.CredentialFormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("err = %v, want CredentialFormatError", err)
	}

	// Nothing from the batch lands.
	got, loadErr := s.LoadCredentials()
	if loadErr != nil {
		t.Fatalf("LoadCredentials: %v", loadErr)
	}
	if len(got) != 0 {
		t.Fatalf("rejected batch still stored %d credentials", len(got))
	}
}

func TestSaveCredentials_Overwrites(t *testing.T) {
	s := testStore(t, 5)

	first := map[config.Provider]string{config.ProviderReasoner: "original_key_0001"}
	second := map[config.Provider]string{config.ProviderReasoner: "replaced_key_0002"}
	if err := s.SaveCredentials(first); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := s.SaveCredentials(second); err != nil {
		t.Fatalf("second save: %v", err)
	}
	got, err := s.LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if got[config.ProviderReasoner] != "replaced_key_0002" {
		t.Fatalf("credential = %q, want replacement", got[config.ProviderReasoner])
	}
}

func TestSessions_Listing(t *testing.T) {
	s := testStore(t, 10)

	if err := s.SaveHistory("sess-a", []conversation.Message{
		conversation.User("q1"), conversation.Answer("a1"),
	}); err != nil {
		t.Fatalf("SaveHistory a: %v", err)
	}
	if err := s.SaveHistory("sess-b", []conversation.Message{
		conversation.User("q2"),
	}); err != nil {
		t.Fatalf("SaveHistory b: %v", err)
	}

	infos, err := s.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("listed %d sessions, want 2", len(infos))
	}
	counts := map[string]int{}
	for _, info := range infos {
		counts[info.ID] = info.MessageCount
		if info.StartedAt.IsZero() {
			t.Errorf("session %s has zero start time", info.ID)
		}
	}
	if counts["sess-a"] != 2 || counts["sess-b"] != 1 {
		t.Fatalf("message counts = %v", counts)
	}
}

func TestNewLocalStore_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "archon.db")
	s, err := NewLocalStore(path, 0)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	defer s.Close()
	if s.historyLimit != DefaultHistoryLimit {
		t.Fatalf("historyLimit = %d, want default %d", s.historyLimit, DefaultHistoryLimit)
	}
	if !strings.HasSuffix(s.dbPath, "archon.db") {
		t.Fatalf("dbPath = %q", s.dbPath)
	}
}

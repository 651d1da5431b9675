package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/luckystar-app/luckystar"
	"github.com/luckystar-app/luckystar/astro"
	"github.com/luckystar-app/luckystar/llm"
	"github.com/luckystar-app/luckystar/server"
	"github.com/luckystar-app/luckystar/store"
)

// stubAssistant records the last call and returns a canned reply.
type stubAssistant struct {
	reply       string
	err         error
	lastPrompt  string
	lastProfile *store.Profile
	lastHistory []llm.Message
}

func (s *stubAssistant) Ask(_ context.Context, prompt string, profile *store.Profile, history []llm.Message) (string, error) {
	s.lastPrompt = prompt
	s.lastProfile = profile
	s.lastHistory = history
	return s.reply, s.err
}

func (s *stubAssistant) AskStream(ctx context.Context, prompt string, profile *store.Profile, history []llm.Message, onChunk func(string)) error {
	reply, err := s.Ask(ctx, prompt, profile, history)
	if err != nil {
		return err
	}
	half := len(reply) / 2
	onChunk(reply[:half])
	onChunk(reply[half:])
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *stubAssistant) {
	t.Helper()

	gaz := gazetteer.New(gazetteer.WithDataset([]gazetteer.CityRecord{
		{Name: "北京", Country: "China", AlternateNames: "Beijing,Peking", Latitude: 39.9042, Longitude: 116.4074},
		{Name: "Sanya", Country: "China", Latitude: 18.2528, Longitude: 109.5119},
		{Name: "Paris", Country: "France", Latitude: 48.8566, Longitude: 2.3522},
	}))

	st, err := store.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	assistant := &stubAssistant{reply: "✨ 今日运势不错。"}
	ts := httptest.NewServer(server.NewBackend(gaz, st, assistant).Routes())
	t.Cleanup(ts.Close)
	return ts, assistant
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body, out any) int {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestCitySearchEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	var results []gazetteer.CityRecord
	if code := getJSON(t, ts.URL+"/cities/search?query=beijing", &results); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(results) == 0 || results[0].Name != "北京" {
		t.Errorf("results = %+v, want 北京 first", results)
	}

	// Empty query is an empty JSON array, not null.
	resp, err := http.Get(ts.URL + "/cities/search?query=")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if got := string(bytes.TrimSpace(body)); got != "[]" {
		t.Errorf("empty query body = %q, want []", got)
	}

	if code := getJSON(t, ts.URL+"/cities/search?query=x&limit=abc", nil); code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", code)
	}
}

func TestCityResolveEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	var city gazetteer.CityRecord
	if code := getJSON(t, ts.URL+"/cities/resolve?query=sanya", &city); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if city.Name != "Sanya" {
		t.Errorf("resolved %q, want Sanya", city.Name)
	}

	if code := getJSON(t, ts.URL+"/cities/resolve?query=zzzznothing", nil); code != http.StatusNotFound {
		t.Errorf("no-match status = %d, want 404", code)
	}
}

func TestCityNearestEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	var city gazetteer.CityRecord
	if code := getJSON(t, ts.URL+"/cities/nearest?lat=39.9&lng=116.4", &city); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if city.Name != "北京" {
		t.Errorf("nearest = %q, want 北京", city.Name)
	}

	if code := getJSON(t, ts.URL+"/cities/nearest?lat=abc&lng=1", nil); code != http.StatusBadRequest {
		t.Errorf("bad lat status = %d, want 400", code)
	}
	if code := getJSON(t, ts.URL+"/cities/nearest?lat=-50&lng=-150", nil); code != http.StatusNotFound {
		t.Errorf("remote point status = %d, want 404", code)
	}
}

func TestSignsAndFortuneEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	var signs []astro.Sign
	if code := getJSON(t, ts.URL+"/signs", &signs); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(signs) != 12 {
		t.Errorf("%d signs, want 12", len(signs))
	}

	for _, sign := range []string{"白羊座", "Aries"} {
		var fortune astro.Fortune
		if code := getJSON(t, ts.URL+"/fortune/"+sign, &fortune); code != http.StatusOK {
			t.Fatalf("fortune %s: status %d", sign, code)
		}
		if fortune.Summary < 60 || fortune.Summary > 99 {
			t.Errorf("fortune %s: summary %d", sign, fortune.Summary)
		}
		if fortune.LuckyColor == "" {
			t.Errorf("fortune %s: empty lucky color", sign)
		}
	}

	if code := getJSON(t, ts.URL+"/fortune/Ophiuchus", nil); code != http.StatusBadRequest {
		t.Errorf("unknown sign status = %d, want 400", code)
	}
}

func TestTransitsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	var outlook astro.TransitOutlook
	if code := getJSON(t, ts.URL+"/transits/Leo?span=month", &outlook); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(outlook.Trend) != 10 {
		t.Errorf("%d trend points for month, want 10", len(outlook.Trend))
	}
	if len(outlook.Events) == 0 {
		t.Error("no transit events")
	}

	// Default span is a week.
	if code := getJSON(t, ts.URL+"/transits/Leo", &outlook); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(outlook.Trend) != 7 {
		t.Errorf("%d trend points for default span, want 7", len(outlook.Trend))
	}

	if code := getJSON(t, ts.URL+"/transits/Leo?span=decade", nil); code != http.StatusBadRequest {
		t.Errorf("bad span status = %d, want 400", code)
	}
}

func TestProfileEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	req := map[string]any{
		"nickname":      "小明",
		"birthDate":     "1990-03-25",
		"birthTime":     "08:30",
		"birthLocation": "beijing",
	}
	var created store.Profile
	if code := postJSON(t, ts.URL+"/profiles/", req, &created); code != http.StatusOK {
		t.Fatalf("create status %d", code)
	}
	if created.ID == "" {
		t.Fatal("no id assigned")
	}
	if created.SunSign != "双子座" {
		t.Errorf("sun sign = %q, want 双子座", created.SunSign)
	}
	// Location typed without coordinates resolves through the gazetteer.
	if created.BirthInfo.BirthLocation != "北京" || created.BirthInfo.Latitude != 39.9042 {
		t.Errorf("birth info = %+v, want resolved 北京", created.BirthInfo)
	}

	// First profile becomes current.
	var current store.Profile
	if code := getJSON(t, ts.URL+"/profiles/current", &current); code != http.StatusOK {
		t.Fatalf("current status %d", code)
	}
	if current.ID != created.ID {
		t.Errorf("current = %s, want %s", current.ID, created.ID)
	}

	var listed []store.Profile
	if code := getJSON(t, ts.URL+"/profiles/", &listed); code != http.StatusOK {
		t.Fatalf("list status %d", code)
	}
	if len(listed) != 1 {
		t.Errorf("%d profiles, want 1", len(listed))
	}

	// Update rebuilds the profile under the same id.
	req["nickname"] = "小红"
	var updated store.Profile
	if code := putJSON(t, ts.URL+"/profiles/"+created.ID, req, &updated); code != http.StatusOK {
		t.Fatalf("update status %d", code)
	}
	if updated.ID != created.ID || updated.Nickname != "小红" {
		t.Errorf("updated = %+v", updated)
	}

	if code := postJSON(t, ts.URL+"/profiles/"+created.ID+"/activate", struct{}{}, nil); code != http.StatusOK {
		t.Errorf("activate status %d", code)
	}

	if code := deleteReq(t, ts.URL+"/profiles/"+created.ID); code != http.StatusOK {
		t.Fatalf("delete status %d", code)
	}
	if code := getJSON(t, ts.URL+"/profiles/"+created.ID, nil); code != http.StatusNotFound {
		t.Errorf("deleted profile status = %d, want 404", code)
	}
}

func TestProfileValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	noNickname := map[string]any{"birthDate": "1990-03-25", "birthTime": "08:30"}
	if code := postJSON(t, ts.URL+"/profiles/", noNickname, nil); code != http.StatusBadRequest {
		t.Errorf("missing nickname status = %d, want 400", code)
	}

	badDate := map[string]any{"nickname": "x", "birthDate": "whenever", "birthTime": "08:30"}
	if code := postJSON(t, ts.URL+"/profiles/", badDate, nil); code != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want 400", code)
	}

	resp, err := http.Post(ts.URL+"/profiles/", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", resp.StatusCode)
	}
}

func TestChatEndpoint(t *testing.T) {
	ts, assistant := newTestServer(t)

	var first server.ChatResponse
	if code := postJSON(t, ts.URL+"/chat/", server.ChatRequest{Prompt: "今天运势如何？"}, &first); code != http.StatusOK {
		t.Fatalf("chat status %d", code)
	}
	if first.Reply != assistant.reply {
		t.Errorf("reply = %q", first.Reply)
	}
	if first.ConversationID == "" {
		t.Fatal("no conversation id")
	}
	if len(assistant.lastHistory) != 0 {
		t.Errorf("fresh conversation carried %d history messages", len(assistant.lastHistory))
	}

	// Continuing the conversation feeds the prior turns back as history.
	second := server.ChatRequest{Prompt: "那明天呢？", ConversationID: first.ConversationID}
	var followUp server.ChatResponse
	if code := postJSON(t, ts.URL+"/chat/", second, &followUp); code != http.StatusOK {
		t.Fatalf("follow-up status %d", code)
	}
	if followUp.ConversationID != first.ConversationID {
		t.Errorf("conversation changed: %s -> %s", first.ConversationID, followUp.ConversationID)
	}
	if len(assistant.lastHistory) != 2 {
		t.Errorf("follow-up carried %d history messages, want 2", len(assistant.lastHistory))
	}

	if code := postJSON(t, ts.URL+"/chat/", server.ChatRequest{}, nil); code != http.StatusBadRequest {
		t.Errorf("empty prompt status = %d, want 400", code)
	}
	if code := postJSON(t, ts.URL+"/chat/", server.ChatRequest{Prompt: "hi", ProfileID: "missing"}, nil); code != http.StatusNotFound {
		t.Errorf("unknown profile status = %d, want 404", code)
	}

	assistant.err = errors.New("model offline")
	if code := postJSON(t, ts.URL+"/chat/", server.ChatRequest{Prompt: "hi"}, nil); code != http.StatusBadGateway {
		t.Errorf("assistant failure status = %d, want 502", code)
	}
}

func TestChatUsesCurrentProfile(t *testing.T) {
	ts, assistant := newTestServer(t)

	req := map[string]any{
		"nickname":  "小明",
		"birthDate": "1990-03-25",
		"birthTime": "08:30",
	}
	var created store.Profile
	if code := postJSON(t, ts.URL+"/profiles/", req, &created); code != http.StatusOK {
		t.Fatalf("create status %d", code)
	}

	if code := postJSON(t, ts.URL+"/chat/", server.ChatRequest{Prompt: "hi"}, nil); code != http.StatusOK {
		t.Fatalf("chat status %d", code)
	}
	if assistant.lastProfile == nil || assistant.lastProfile.ID != created.ID {
		t.Errorf("assistant profile = %+v, want current profile", assistant.lastProfile)
	}
}

// panickyAssistant stands in for a buggy collaborator.
type panickyAssistant struct{}

func (panickyAssistant) Ask(context.Context, string, *store.Profile, []llm.Message) (string, error) {
	panic("assistant blew up")
}

func (panickyAssistant) AskStream(context.Context, string, *store.Profile, []llm.Message, func(string)) error {
	panic("assistant blew up")
}

func TestHandlerPanicReturns500(t *testing.T) {
	gaz := gazetteer.New(gazetteer.WithDataset([]gazetteer.CityRecord{
		{Name: "Sanya", Country: "China"},
	}))
	st, err := store.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	ts := httptest.NewServer(server.NewBackend(gaz, st, panickyAssistant{}).Routes())
	t.Cleanup(ts.Close)

	// The recoverer turns the panic into a 500 instead of dropping the
	// connection.
	code := postJSON(t, ts.URL+"/chat/", server.ChatRequest{Prompt: "hi"}, nil)
	if code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", code)
	}
}

func TestChatStreamEndpoint(t *testing.T) {
	ts, assistant := newTestServer(t)

	payload, _ := json.Marshal(server.ChatRequest{Prompt: "今天运势如何？"})
	resp, err := http.Post(ts.URL+"/chat/stream", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != assistant.reply {
		t.Errorf("streamed body = %q, want %q", body, assistant.reply)
	}

	// The header carries the id of the conversation created for this stream,
	// and that id continues the same conversation.
	conversationID := resp.Header.Get("X-Conversation-Id")
	if conversationID == "" {
		t.Fatal("no X-Conversation-Id header on a new conversation")
	}
	var followUp server.ChatResponse
	second := server.ChatRequest{Prompt: "继续说。", ConversationID: conversationID}
	if code := postJSON(t, ts.URL+"/chat/", second, &followUp); code != http.StatusOK {
		t.Fatalf("follow-up status %d", code)
	}
	if followUp.ConversationID != conversationID {
		t.Errorf("follow-up conversation = %s, want %s", followUp.ConversationID, conversationID)
	}
	if len(assistant.lastHistory) != 2 {
		t.Errorf("follow-up carried %d history messages, want 2", len(assistant.lastHistory))
	}
}

func putJSON(t *testing.T, url string, body, out any) int {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func deleteReq(t *testing.T, url string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE %s: %v", url, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

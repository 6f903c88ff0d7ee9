package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"callbridge/internal/agents"
	"callbridge/internal/clientstate"
	"callbridge/internal/conversations"
	"callbridge/internal/routing"
)

type controlCall struct {
	action        string
	callControlID string
	clientState   string
	stream        StreamingRequest
}

type fakeControl struct {
	mu    sync.Mutex
	calls []controlCall
	err   error
}

func (f *fakeControl) Answer(ctx context.Context, callControlID, clientState string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, controlCall{action: "answer", callControlID: callControlID, clientState: clientState})
	return f.err
}

func (f *fakeControl) StartStreaming(ctx context.Context, callControlID string, req StreamingRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, controlCall{action: "streaming_start", callControlID: callControlID, stream: req})
	return f.err
}

type fakeDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (f *fakeDeduper) FirstDelivery(ctx context.Context, provider, eventID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	key := provider + ":" + eventID
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type telnyxFixture struct {
	repo    *conversations.MemoryRepo
	control *fakeControl
	router  *gin.Engine
}

func newTelnyxFixture(t *testing.T, dedupe EventDeduper, agentList ...agents.Agent) telnyxFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := telnyxFixture{repo: conversations.NewMemoryRepo(), control: &fakeControl{}}
	h := TelnyxWebhookHandler{
		Conversations:  f.repo,
		Resolver:       routing.NewAgentResolver(agents.NewMemoryRepo(agentList...)),
		Control:        f.control,
		Dedupe:         dedupe,
		MediaStreamURL: "wss://relay.example.com/media/telnyx",
		Now:            func() time.Time { return fixedNow },
		NewID:          func() string { return "conv-new" },
	}
	f.router = gin.New()
	f.router.POST("/webhooks/telnyx", h.Handle)
	return f
}

func (f telnyxFixture) post(t *testing.T, query, body string) *httptest.ResponseRecorder {
	t.Helper()
	target := "/webhooks/telnyx"
	if query != "" {
		target += "?" + query
	}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func telnyxBody(id, eventType, callControlID, clientState, direction string) string {
	payload := map[string]any{
		"call_control_id": callControlID,
		"from":            "+15550001111",
		"to":              "+15552223333",
	}
	if clientState != "" {
		payload["client_state"] = clientState
	}
	if direction != "" {
		payload["direction"] = direction
	}
	raw, _ := json.Marshal(map[string]any{
		"data": map[string]any{"id": id, "event_type": eventType, "payload": payload},
	})
	return string(raw)
}

func seedConversation(t *testing.T, repo *conversations.MemoryRepo, status conversations.Status) {
	t.Helper()
	if _, err := repo.Create(context.Background(), conversations.Conversation{
		ID:             "conv-1",
		AgentID:        "agent-1",
		OrganizationID: "org-1",
		CustomerPhone:  "+15550001111",
		Direction:      conversations.DirectionOutbound,
		Provider:       ProviderTelnyx,
		Status:         status,
		StartedAt:      fixedNow.Add(-2 * time.Minute),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestTelnyxWebhook_InboundWithoutAgentTakesNoAction(t *testing.T) {
	f := newTelnyxFixture(t, nil)

	w := f.post(t, "", telnyxBody("ev-1", TelnyxCallInitiated, "v3:call", "", TelnyxDirectionIncoming))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(f.control.calls) != 0 {
		t.Fatalf("expected no provider actions, got %+v", f.control.calls)
	}
	if f.repo.Len() != 0 {
		t.Fatalf("expected no conversation")
	}
}

func TestTelnyxWebhook_InboundRoutedIsAnsweredWithClientState(t *testing.T) {
	f := newTelnyxFixture(t, nil, agents.Agent{ID: "agent-9", OrganizationID: "org-9", PhoneNumber: "+1 (555) 222-3333"})

	w := f.post(t, "", telnyxBody("ev-1", TelnyxCallInitiated, "v3:call", "", TelnyxDirectionIncoming))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	conv, err := f.repo.Get(context.Background(), "org-9", "conv-new")
	if err != nil {
		t.Fatalf("expected inbound conversation: %v", err)
	}
	if conv.Status != conversations.StatusRinging || conv.Direction != conversations.DirectionInbound || conv.Provider != ProviderTelnyx {
		t.Fatalf("unexpected conversation %+v", conv)
	}
	if conv.ProviderCallID != "v3:call" || conv.AgentID != "agent-9" {
		t.Fatalf("unexpected conversation %+v", conv)
	}

	if len(f.control.calls) != 1 || f.control.calls[0].action != "answer" {
		t.Fatalf("expected one answer, got %+v", f.control.calls)
	}
	ids, ok := clientstate.DecodeIDs(f.control.calls[0].clientState)
	if !ok || ids.ConversationID != "conv-new" || ids.OrganizationID != "org-9" {
		t.Fatalf("unexpected client state ids %+v ok=%v", ids, ok)
	}
}

func TestTelnyxWebhook_OutgoingInitiatedIsIgnored(t *testing.T) {
	f := newTelnyxFixture(t, nil, agents.Agent{ID: "agent-9", OrganizationID: "org-9", PhoneNumber: "+15552223333"})

	w := f.post(t, "", telnyxBody("ev-1", TelnyxCallInitiated, "v3:call", "", TelnyxDirectionOutgoing))
	if w.Code != http.StatusOK || len(f.control.calls) != 0 || f.repo.Len() != 0 {
		t.Fatalf("expected no-op, got code=%d calls=%+v rows=%d", w.Code, f.control.calls, f.repo.Len())
	}
}

func TestTelnyxWebhook_AnsweredStartsStreaming(t *testing.T) {
	f := newTelnyxFixture(t, nil)
	state := clientstate.EncodeIDs(clientstate.CallIDs{ConversationID: "conv-1", OrganizationID: "org-1"})

	w := f.post(t, "", telnyxBody("ev-2", TelnyxCallAnswered, "v3:call", state, ""))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(f.control.calls) != 1 || f.control.calls[0].action != "streaming_start" {
		t.Fatalf("expected streaming_start, got %+v", f.control.calls)
	}
	got := f.control.calls[0].stream
	if got.StreamTrack != "both_tracks" || got.StreamBidirectionalMode != "rtp" {
		t.Fatalf("unexpected stream options %+v", got)
	}
	u, err := url.Parse(got.StreamURL)
	if err != nil {
		t.Fatalf("stream url: %v", err)
	}
	if u.Host != "relay.example.com" || u.Path != "/media/telnyx" {
		t.Fatalf("unexpected stream url %s", got.StreamURL)
	}
	if u.Query().Get("conversationId") != "conv-1" || u.Query().Get("organizationId") != "org-1" {
		t.Fatalf("stream url missing ids: %s", got.StreamURL)
	}
}

func TestTelnyxWebhook_AnsweredFallsBackToQueryIDs(t *testing.T) {
	f := newTelnyxFixture(t, nil)

	f.post(t, "conversationId=conv-1&organizationId=org-1", telnyxBody("ev-2", TelnyxCallAnswered, "v3:call", "garbage", ""))
	if len(f.control.calls) != 1 || !strings.Contains(f.control.calls[0].stream.StreamURL, "conversationId=conv-1") {
		t.Fatalf("expected streaming_start with query ids, got %+v", f.control.calls)
	}
}

func TestTelnyxWebhook_AnsweredWithoutStreamURLDoesNothing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	control := &fakeControl{}
	h := TelnyxWebhookHandler{Conversations: conversations.NewMemoryRepo(), Control: control}
	r := gin.New()
	r.POST("/webhooks/telnyx", h.Handle)

	state := clientstate.EncodeIDs(clientstate.CallIDs{ConversationID: "conv-1", OrganizationID: "org-1"})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx", strings.NewReader(telnyxBody("ev", TelnyxCallAnswered, "v3:call", state, "")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK || len(control.calls) != 0 {
		t.Fatalf("expected 200 without actions, got %d %+v", w.Code, control.calls)
	}
}

func TestTelnyxWebhook_StreamingStartedMarksConnected(t *testing.T) {
	f := newTelnyxFixture(t, nil)
	seedConversation(t, f.repo, conversations.StatusRinging)
	state := clientstate.EncodeIDs(clientstate.CallIDs{ConversationID: "conv-1", OrganizationID: "org-1"})

	f.post(t, "", telnyxBody("ev-3", TelnyxStreamingStarted, "v3:call", state, ""))
	conv, _ := f.repo.Get(context.Background(), "org-1", "conv-1")
	if conv.Status != conversations.StatusConnected {
		t.Fatalf("expected CONNECTED, got %s", conv.Status)
	}
}

func TestTelnyxWebhook_ReplayedHangupEndsOnce(t *testing.T) {
	f := newTelnyxFixture(t, nil)
	seedConversation(t, f.repo, conversations.StatusConnected)
	state := clientstate.EncodeIDs(clientstate.CallIDs{ConversationID: "conv-1", OrganizationID: "org-1"})

	for i := 0; i < 3; i++ {
		w := f.post(t, "", telnyxBody("ev-4", TelnyxCallHangup, "v3:call", state, ""))
		if w.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i, w.Code)
		}
	}

	conv, _ := f.repo.Get(context.Background(), "org-1", "conv-1")
	if conv.Status != conversations.StatusEnded {
		t.Fatalf("expected ENDED, got %s", conv.Status)
	}
	if conv.Duration != 120 {
		t.Fatalf("expected 120s duration, got %d", conv.Duration)
	}
	if n := f.repo.Transitions("conv-1"); n != 1 {
		t.Fatalf("expected exactly one transition, got %d", n)
	}
}

func TestTelnyxWebhook_HangupIsOrganizationScoped(t *testing.T) {
	f := newTelnyxFixture(t, nil)
	seedConversation(t, f.repo, conversations.StatusConnected)
	state := clientstate.EncodeIDs(clientstate.CallIDs{ConversationID: "conv-1", OrganizationID: "org-other"})

	f.post(t, "", telnyxBody("ev-5", TelnyxCallHangup, "v3:call", state, ""))
	conv, _ := f.repo.Get(context.Background(), "org-1", "conv-1")
	if conv.Status != conversations.StatusConnected {
		t.Fatalf("foreign organization must not end the call, got %s", conv.Status)
	}
}

func TestTelnyxWebhook_DuplicateDeliverySkipped(t *testing.T) {
	f := newTelnyxFixture(t, &fakeDeduper{}, agents.Agent{ID: "agent-9", OrganizationID: "org-9", PhoneNumber: "+15552223333"})
	body := telnyxBody("ev-dup", TelnyxCallInitiated, "v3:call", "", TelnyxDirectionIncoming)

	f.post(t, "", body)
	w := f.post(t, "", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", w.Code)
	}
	if len(f.control.calls) != 1 {
		t.Fatalf("expected a single answer, got %+v", f.control.calls)
	}
}

func TestTelnyxWebhook_DedupeFailureStillProcesses(t *testing.T) {
	f := newTelnyxFixture(t, &fakeDeduper{err: errors.New("redis down")})
	seedConversation(t, f.repo, conversations.StatusConnected)
	state := clientstate.EncodeIDs(clientstate.CallIDs{ConversationID: "conv-1", OrganizationID: "org-1"})

	f.post(t, "", telnyxBody("ev-6", TelnyxCallHangup, "v3:call", state, ""))
	conv, _ := f.repo.Get(context.Background(), "org-1", "conv-1")
	if conv.Status != conversations.StatusEnded {
		t.Fatalf("expected ENDED, got %s", conv.Status)
	}
}

func TestTelnyxWebhook_ValidationErrors(t *testing.T) {
	f := newTelnyxFixture(t, nil)

	if w := f.post(t, "", `{"data":`); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed json: expected 400, got %d", w.Code)
	}
	if w := f.post(t, "", telnyxBody("ev", TelnyxCallHangup, "", "", "")); w.Code != http.StatusBadRequest {
		t.Fatalf("missing call_control_id: expected 400, got %d", w.Code)
	}
}

func TestTelnyxWebhook_UnknownEventAcknowledged(t *testing.T) {
	f := newTelnyxFixture(t, nil)
	w := f.post(t, "", telnyxBody("ev", "call.speak.ended", "v3:call", "", ""))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"received":true`) {
		t.Fatalf("expected 200 received, got %d %s", w.Code, w.Body.String())
	}
}

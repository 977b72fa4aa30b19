package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lexi-tutor/lexi-api/internal/audiostream"
	"github.com/lexi-tutor/lexi-api/internal/llm"
	"github.com/lexi-tutor/lexi-api/internal/model"
	"github.com/lexi-tutor/lexi-api/internal/service"
	"github.com/lexi-tutor/lexi-api/internal/store"
	"github.com/lexi-tutor/lexi-api/internal/store/storetest"
	"github.com/lexi-tutor/lexi-api/pkg/logger"
)

const testSecret = "handler-test-secret"

type stubLLM struct {
	mu    sync.Mutex
	reply string
	err   error
}

func (s *stubLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.reply, Model: "stub"}, nil
}

func (s *stubLLM) Name() string { return "stub" }

type stubSpeech struct {
	transcript string
	synthErr   error
	uploaded   []byte
}

func (s *stubSpeech) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", err
	}
	s.uploaded = data
	return s.transcript, nil
}

func (s *stubSpeech) Synthesize(ctx context.Context, text string) (*llm.Speech, error) {
	if s.synthErr != nil {
		return nil, s.synthErr
	}
	return &llm.Speech{Audio: []byte("mp3:" + text), ContentType: "audio/mpeg"}, nil
}

type testServer struct {
	handler http.Handler
	db      *gorm.DB
	model   *stubLLM
	speech  *stubSpeech
	convs   *store.ConversationStore
	msgs    *store.MessageStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	log := logger.NewNop()

	db := storetest.DB(t)
	storetest.SeedProfile(t, ctx, db, "kid-1", "Maya")
	storetest.SeedProfile(t, ctx, db, "kid-2", "Leo")

	msgs := store.NewMessageStore(db)
	convs := store.NewConversationStore(db)
	profiles := store.NewProfileStore(db)

	lm := &stubLLM{reply: "Great question, Maya!"}
	speech := &stubSpeech{transcript: "what is a noun"}

	sessions := service.NewSessionService(convs, log)
	turns := service.NewTurnService(msgs, convs, profiles, lm, service.DefaultTurnConfig(), log)
	stats := service.NewStatsService(convs, profiles, log)
	retention := service.NewRetentionService(convs, profiles, 15, log)
	registry := audiostream.NewRegistry(time.Minute, log)

	h := NewRouter(Handlers{
		Health:        NewHealthHandler(db, nil),
		Conversations: NewConversationHandler(sessions, log),
		Turns:         NewTurnHandler(turns, log),
		Voice:         NewVoiceHandler(turns, speech, speech, registry, log),
		Stats:         NewStatsHandler(stats, retention, true, log),
	}, RouterConfig{
		JWTSecret:         testSecret,
		RateLimitRequests: 1000,
		RateLimitWindow:   time.Minute,
	}, log)

	return &testServer{handler: h, db: db, model: lm, speech: speech, convs: convs, msgs: msgs}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func (s *testServer) do(t *testing.T, method, path, userID string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(data)
	}
	return s.do(t, method, path, userID, r, "application/json")
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func (s *testServer) startConversation(t *testing.T, userID string) *model.Conversation {
	t.Helper()
	rec := s.doJSON(t, http.MethodPost, "/api/v1/conversations", userID, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: want=201 got=%d body=%s", rec.Code, rec.Body.String())
	}
	conv := decode[model.Conversation](t, rec)
	return &conv
}

func TestRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	rec := s.doJSON(t, http.MethodPost, "/api/v1/conversations", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: want=401 got=%d", rec.Code)
	}
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestServer(t)
	conv := s.startConversation(t, "kid-1")
	if conv.OwnerID != "kid-1" {
		t.Fatalf("owner: got=%s", conv.OwnerID)
	}

	rec := s.doJSON(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/turns", "kid-1", model.SubmitTurnRequest{Text: "What is a verb?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("turn: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	turn := decode[model.TurnResponse](t, rec)
	if turn.Reply != "Great question, Maya!" || turn.UserMessage == nil || turn.AssistantMessage == nil {
		t.Fatalf("turn response: %+v", turn)
	}

	rec = s.doJSON(t, http.MethodGet, "/api/v1/conversations/"+conv.ID, "kid-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: want=200 got=%d", rec.Code)
	}
	got := decode[model.Conversation](t, rec)
	if len(got.Messages) != 2 || got.Messages[0].Role != model.RoleUser || got.Messages[1].Role != model.RoleAssistant {
		t.Fatalf("messages: %+v", got.Messages)
	}

	if rec := s.doJSON(t, http.MethodGet, "/api/v1/conversations/"+conv.ID, "kid-2", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign get: want=404 got=%d", rec.Code)
	}
	if rec := s.doJSON(t, http.MethodGet, "/api/v1/conversations/not-a-uuid", "kid-1", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: want=400 got=%d", rec.Code)
	}
	if rec := s.doJSON(t, http.MethodGet, "/api/v1/conversations/"+uuid.NewString(), "kid-1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id: want=404 got=%d", rec.Code)
	}
}

func TestSubmitTurnErrors(t *testing.T) {
	s := newTestServer(t)
	conv := s.startConversation(t, "kid-1")
	path := "/api/v1/conversations/" + conv.ID + "/turns"

	rec := s.doJSON(t, http.MethodPost, path, "kid-1", model.SubmitTurnRequest{Text: strings.Repeat("a", service.MaxInputChars+1)})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("too long: want=400 got=%d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, path, "kid-1", strings.NewReader(`{"text":`), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed: want=400 got=%d", rec.Code)
	}

	s.model.err = errors.New("overloaded")
	rec = s.doJSON(t, http.MethodPost, path, "kid-1", model.SubmitTurnRequest{Text: "Are you there?"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("model failure: want=502 got=%d", rec.Code)
	}
	body := decode[ErrorResponse](t, rec)
	if body.Error != service.ReplyFailedMessage || body.Detail != "overloaded" {
		t.Fatalf("error body: %+v", body)
	}

	rec = s.doJSON(t, http.MethodGet, "/api/v1/conversations/"+conv.ID, "kid-1", nil)
	got := decode[model.Conversation](t, rec)
	if len(got.Messages) != 1 || got.Messages[0].Text() != "Are you there?" {
		t.Fatalf("only the unanswered user turn should be stored: %+v", got.Messages)
	}
}

func voiceUpload(t *testing.T, audio []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("audio", "question.webm")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fw.Write(audio)
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestVoiceTurnAndAudio(t *testing.T) {
	s := newTestServer(t)
	conv := s.startConversation(t, "kid-1")

	body, ct := voiceUpload(t, []byte("webm-bytes"))
	rec := s.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/voice", "kid-1", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("voice: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	if string(s.speech.uploaded) != "webm-bytes" {
		t.Fatalf("upload not passed to the transcriber: %q", s.speech.uploaded)
	}
	resp := decode[model.VoiceTurnResponse](t, rec)
	if resp.Transcript != "what is a noun" || resp.Reply != "Great question, Maya!" {
		t.Fatalf("voice response: %+v", resp)
	}
	if !strings.HasPrefix(resp.AudioURL, AudioPathPrefix) {
		t.Fatalf("audio url: %q", resp.AudioURL)
	}
	if resp.AudioExpiresAt == nil || !resp.AudioExpiresAt.After(time.Now()) {
		t.Fatalf("audio expiry should be in the future: %v", resp.AudioExpiresAt)
	}

	rec = s.do(t, http.MethodGet, resp.AudioURL, "kid-1", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("audio: want=200 got=%d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "audio/mpeg" || rec.Body.String() != "mp3:Great question, Maya!" {
		t.Fatalf("audio body: %s %q", rec.Header().Get("Content-Type"), rec.Body.String())
	}

	if rec := s.do(t, http.MethodGet, resp.AudioURL, "kid-2", nil, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign audio: want=403 got=%d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, AudioPathPrefix+uuid.NewString(), "kid-1", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown audio: want=404 got=%d", rec.Code)
	}
}

func TestVoiceTurnSurvivesSynthesisFailure(t *testing.T) {
	s := newTestServer(t)
	s.speech.synthErr = errors.New("tts down")
	conv := s.startConversation(t, "kid-1")

	body, ct := voiceUpload(t, []byte("webm-bytes"))
	rec := s.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/voice", "kid-1", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("voice: want=200 got=%d", rec.Code)
	}
	resp := decode[model.VoiceTurnResponse](t, rec)
	if resp.AudioURL != "" || resp.AssistantMessage == nil {
		t.Fatalf("reply should be returned without audio: %+v", resp)
	}
	if strings.Contains(rec.Body.String(), "audio_expires_at") {
		t.Fatalf("expiry should be omitted without audio: %s", rec.Body.String())
	}
}

func TestVoiceRequiresAudio(t *testing.T) {
	s := newTestServer(t)
	conv := s.startConversation(t, "kid-1")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("note", "no file")
	mw.Close()

	rec := s.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/voice", "kid-1", &buf, mw.FormDataContentType())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing audio: want=400 got=%d", rec.Code)
	}

	s.speech.transcript = "   "
	body, ct := voiceUpload(t, []byte("silence"))
	rec = s.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/voice", "kid-1", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("silence: want=400 got=%d", rec.Code)
	}
}

func TestStatsPrunesExpiredConversations(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	// A substantive session today.
	storetest.SeedConversation(t, ctx, s.convs, s.msgs, "kid-1", 6)

	// An old session, written through stores with a clock in the past.
	old := time.Now().AddDate(0, 0, -40)
	oldClock := store.WithClock(func() time.Time { return old })
	oldConvs := store.NewConversationStore(s.db, oldClock)
	oldMsgs := store.NewMessageStore(s.db, oldClock)
	expired := storetest.SeedConversation(t, ctx, oldConvs, oldMsgs, "kid-1", 8)

	if rec := s.doJSON(t, http.MethodGet, "/api/v1/stats", "kid-1", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing offset: want=400 got=%d", rec.Code)
	}

	rec := s.doJSON(t, http.MethodGet, "/api/v1/stats?tz_offset=0", "kid-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	resp := decode[model.StatsResponse](t, rec)
	if resp.Targets.Daily != 2 || resp.Targets.Weekly != 7 {
		t.Fatalf("targets: %+v", resp.Targets)
	}
	if resp.Stats.Today != 1 || resp.Stats.CurrentWeek != 1 {
		t.Fatalf("stats: %+v", resp.Stats)
	}
	if resp.Pruned != 1 {
		t.Fatalf("pruned: want=1 got=%d", resp.Pruned)
	}

	if rec := s.doJSON(t, http.MethodGet, "/api/v1/conversations/"+expired.ID, "kid-1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expired conversation should be gone, got %d", rec.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/health", "/ready"} {
		if rec := s.do(t, http.MethodGet, path, "", nil, ""); rec.Code != http.StatusOK {
			t.Fatalf("%s: want=200 got=%d", path, rec.Code)
		}
	}
}

func TestStatusForKinds(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	writeServiceError(rec, req, logger.NewNop(), errors.New("boom"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unclassified: want=500 got=%d", rec.Code)
	}
	if body := decode[ErrorResponse](t, rec); body.Detail != "" {
		t.Fatalf("internal detail must not leak: %+v", body)
	}
}

package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/checksum"
	"github.com/starford/intentmarket/internal/ledger"
	"github.com/starford/intentmarket/internal/models"
	"github.com/starford/intentmarket/internal/program"
	"github.com/starford/intentmarket/internal/testutil"
)

// testEnv sets up a ledger over an in-memory store and a router for
// testing. An empty token means disabled auth.
func testEnv(t *testing.T, authToken string) (*ledger.Ledger, http.Handler) {
	t.Helper()
	auth := AuthSettings{Mode: AuthModeDisabled}
	if authToken != "" {
		auth = AuthSettings{Mode: AuthModeToken, Token: authToken}
	}
	return testEnvFull(t, auth, nil)
}

func testEnvFull(t *testing.T, auth AuthSettings, sseHandler http.Handler) (*ledger.Ledger, http.Handler) {
	t.Helper()
	l, _ := testutil.TestLedger(t)
	return l, NewRouter(l, auth, sseHandler)
}

func submit(t *testing.T, router http.Handler, tx *ledger.Transaction, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	wire, err := tx.Encode()
	if err != nil {
		t.Fatal(err)
	}
	body, _ := json.Marshal(SubmitTransactionRequest{Transaction: wire})
	req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewReader(body))
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func registerTx(t *testing.T, l *ledger.Ledger, key ed25519.PrivateKey, title string) *ledger.Transaction {
	t.Helper()
	cat := "data"
	tx, err := ledger.RegisterIntentTx(l.ProgramID(), key, program.RegisterIntentArgs{Title: title, Description: "d", Category: &cat})
	if err != nil {
		t.Fatal(err)
	}
	return tx
}

// matchEnv registers alice and bob and proposes a match from alice.
func matchEnv(t *testing.T) (l *ledger.Ledger, router http.Handler, alice, bob ed25519.PrivateKey, intentA, match address.Pubkey) {
	t.Helper()
	l, router = testEnv(t, "")
	alice, _ = testutil.TestKey(t, "alice")
	bob, _ = testutil.TestKey(t, "bob")
	var receipts []Receipt
	for _, k := range []ed25519.PrivateKey{alice, bob} {
		w := submit(t, router, registerTx(t, l, k, "intent"))
		if w.Code != http.StatusCreated {
			t.Fatalf("register = %d, body = %s", w.Code, w.Body.String())
		}
		var r Receipt
		_ = json.Unmarshal(w.Body.Bytes(), &r)
		receipts = append(receipts, r)
	}
	intentA = receipts[0].Event.Address
	tx, err := ledger.ProposeMatchTx(l.ProgramID(), alice, intentA, receipts[1].Event.Address, 9000)
	if err != nil {
		t.Fatal(err)
	}
	w := submit(t, router, tx)
	if w.Code != http.StatusCreated {
		t.Fatalf("propose = %d, body = %s", w.Code, w.Body.String())
	}
	var r Receipt
	_ = json.Unmarshal(w.Body.Bytes(), &r)
	return l, router, alice, bob, intentA, r.Event.Address
}

func TestSubmitAndGetIntent(t *testing.T) {
	l, router := testEnv(t, "")
	key, agent := testutil.TestKey(t, "alice")

	w := submit(t, router, registerTx(t, l, key, "Need GPUs"))
	if w.Code != http.StatusCreated {
		t.Fatalf("submit status = %d, body = %s", w.Code, w.Body.String())
	}
	var receipt Receipt
	if err := json.Unmarshal(w.Body.Bytes(), &receipt); err != nil {
		t.Fatal(err)
	}
	if receipt.Slot != 1 || receipt.Event.Type != program.EventIntentRegistered {
		t.Errorf("receipt = %+v", receipt)
	}

	w = get(router, "/intents/"+receipt.Event.Address.String())
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var intent IntentView
	_ = json.Unmarshal(w.Body.Bytes(), &intent)
	if intent.Title != "Need GPUs" || intent.Agent != agent || intent.Status != models.IntentActive {
		t.Errorf("intent = %+v", intent.Intent)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	req := httptest.NewRequest(http.MethodGet, "/intents/"+receipt.Event.Address.String(), nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional get = %d, want 304", w.Code)
	}

	w = get(router, "/agents/"+agent.String()+"/intent")
	if w.Code != http.StatusOK {
		t.Errorf("agent intent = %d", w.Code)
	}

	w = get(router, "/agents/"+agent.String()+"/intent-address")
	var derived DerivedAddressResponse
	_ = json.Unmarshal(w.Body.Bytes(), &derived)
	if derived.Address != receipt.Event.Address.String() {
		t.Errorf("derived = %+v, want %s", derived, receipt.Event.Address)
	}
}

func TestSubmitDuplicate(t *testing.T) {
	l, router := testEnv(t, "")
	key, _ := testutil.TestKey(t, "alice")

	if w := submit(t, router, registerTx(t, l, key, "first")); w.Code != http.StatusCreated {
		t.Fatalf("first submit = %d", w.Code)
	}
	if w := submit(t, router, registerTx(t, l, key, "second")); w.Code != http.StatusConflict {
		t.Errorf("duplicate register = %d, want 409", w.Code)
	}
}

func TestSubmitReplayedTransaction(t *testing.T) {
	_, router, alice, _, _, match := matchEnv(t)
	accept, _ := ledger.UpdateMatchStatusTx(alice, match, uint8(models.MatchAccepted))
	reject, _ := ledger.UpdateMatchStatusTx(alice, match, uint8(models.MatchRejected))
	for _, tx := range []*ledger.Transaction{accept, reject} {
		if w := submit(t, router, tx); w.Code != http.StatusCreated {
			t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
		}
	}

	if w := submit(t, router, accept); w.Code != http.StatusConflict {
		t.Fatalf("replayed update = %d, want 409", w.Code)
	}
	var m MatchView
	_ = json.Unmarshal(get(router, "/matches/"+match.String()).Body.Bytes(), &m)
	if m.Status != models.MatchRejected {
		t.Errorf("status after replay = %v, want rejected", m.Status)
	}
}

func TestSubmitBadSignature(t *testing.T) {
	l, router := testEnv(t, "")
	key, _ := testutil.TestKey(t, "alice")
	tx := registerTx(t, l, key, "t")
	tx.Signature[0] ^= 0xff

	if w := submit(t, router, tx); w.Code != http.StatusUnauthorized {
		t.Errorf("tampered submit = %d, want 401", w.Code)
	}
}

func TestSubmitMalformed(t *testing.T) {
	_, router := testEnv(t, "")
	for _, body := range []string{`not json`, `{}`, `{"transaction":"%%%"}`} {
		req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewReader([]byte(body)))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q = %d, want 400", body, w.Code)
		}
	}
}

func TestSubmitFieldTooLong(t *testing.T) {
	l, router := testEnv(t, "")
	key, _ := testutil.TestKey(t, "alice")
	long := make([]byte, models.MaxTitleLen+1)
	for i := range long {
		long[i] = 'x'
	}
	if w := submit(t, router, registerTx(t, l, key, string(long))); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("oversize title = %d, want 422", w.Code)
	}
}

func TestUpdateMatchStatusErrors(t *testing.T) {
	_, router, alice, bob, _, match := matchEnv(t)

	tx, _ := ledger.UpdateMatchStatusTx(alice, match, 9)
	w := submit(t, router, tx)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid status = %d, want 422", w.Code)
	}
	var e errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &e)
	if e.Code != 6000 || e.Name != "InvalidStatus" {
		t.Errorf("error body = %+v", e)
	}

	tx, _ = ledger.UpdateMatchStatusTx(bob, match, 1)
	w = submit(t, router, tx)
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-owner update = %d, want 403", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &e)
	if e.Code != 6001 {
		t.Errorf("error code = %d, want 6001", e.Code)
	}

	tx, _ = ledger.UpdateMatchStatusTx(alice, match, uint8(models.MatchAccepted))
	if w := submit(t, router, tx); w.Code != http.StatusCreated {
		t.Fatalf("owner update = %d, body = %s", w.Code, w.Body.String())
	}
	w = get(router, "/matches/"+match.String())
	var m MatchView
	_ = json.Unmarshal(w.Body.Bytes(), &m)
	if m.Status != models.MatchAccepted || m.ScorePercent != 90 {
		t.Errorf("match = %+v", m)
	}
}

func TestUpdateIntentStatusEndpoint(t *testing.T) {
	l, router, alice, _, intentA, _ := matchEnv(t)

	tx, _ := ledger.UpdateIntentStatusTx(l.ProgramID(), alice, 7)
	if w := submit(t, router, tx); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid intent status = %d, want 422", w.Code)
	}
	tx, _ = ledger.UpdateIntentStatusTx(l.ProgramID(), alice, uint8(models.IntentFulfilled))
	if w := submit(t, router, tx); w.Code != http.StatusCreated {
		t.Fatalf("intent status = %d, body = %s", w.Code, w.Body.String())
	}

	var list IntentListResponse
	_ = json.Unmarshal(get(router, "/intents?status=fulfilled").Body.Bytes(), &list)
	if list.Total != 1 || list.Intents[0].Address != intentA {
		t.Errorf("fulfilled intents = %+v", list)
	}
}

func TestListAndMatchesEndpoints(t *testing.T) {
	_, router, _, _, intentA, match := matchEnv(t)

	w := get(router, "/intents?status=active&category=data&limit=1")
	var list IntentListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if w.Code != http.StatusOK || list.Total != 2 || len(list.Intents) != 1 {
		t.Errorf("list = %d, %+v", w.Code, list)
	}
	if w := get(router, "/intents?status=open"); w.Code != http.StatusBadRequest {
		t.Errorf("bad status filter = %d, want 400", w.Code)
	}

	w = get(router, "/intents/"+intentA.String()+"/matches")
	var matches MatchListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &matches)
	if len(matches.Matches) != 1 || matches.Matches[0].Address != match {
		t.Errorf("matches = %+v", matches)
	}

	w = get(router, "/journal?limit=2")
	var journal JournalResponse
	_ = json.Unmarshal(w.Body.Bytes(), &journal)
	if len(journal.Entries) != 2 || journal.Entries[0].Instruction != program.InstructionProposeMatch {
		t.Errorf("journal = %+v", journal)
	}
}

func TestGetIntent_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	if w := get(router, "/intents/"+address.Pubkey{9}.String()); w.Code != http.StatusNotFound {
		t.Errorf("missing intent = %d, want 404", w.Code)
	}
	if w := get(router, "/intents/zz"); w.Code != http.StatusBadRequest {
		t.Errorf("bad address = %d, want 400", w.Code)
	}
}

func TestGetAccountOfOtherKind(t *testing.T) {
	_, router, _, _, intentA, match := matchEnv(t)
	if w := get(router, "/intents/"+match.String()); w.Code != http.StatusNotFound {
		t.Errorf("intent lookup of a match = %d, want 404", w.Code)
	}
	if w := get(router, "/matches/"+intentA.String()); w.Code != http.StatusNotFound {
		t.Errorf("match lookup of an intent = %d, want 404", w.Code)
	}
}

// committingService commits once between decoding a Match and the
// response being written.
type committingService struct {
	*ledger.Ledger
	between func()
}

func (s *committingService) Match(ctx context.Context, addr address.Pubkey) (*ledger.MatchView, error) {
	v, err := s.Ledger.Match(ctx, addr)
	if s.between != nil {
		s.between()
		s.between = nil
	}
	return v, err
}

func TestMatchETagDescribesBody(t *testing.T) {
	l, _, alice, _, _, match := matchEnv(t)
	acct, err := l.Account(context.Background(), match)
	if err != nil {
		t.Fatal(err)
	}
	served := acct.Data

	svc := &committingService{Ledger: l, between: func() {
		tx, _ := ledger.UpdateMatchStatusTx(alice, match, uint8(models.MatchAccepted))
		if _, err := l.Submit(context.Background(), tx); err != nil {
			t.Errorf("concurrent update: %v", err)
		}
	}}
	w := get(NewRouter(svc, AuthSettings{Mode: AuthModeDisabled}, nil), "/matches/"+match.String())
	if w.Code != http.StatusOK {
		t.Fatalf("get match = %d", w.Code)
	}
	var m MatchView
	_ = json.Unmarshal(w.Body.Bytes(), &m)
	if m.Status != models.MatchPending {
		t.Fatalf("body status = %v, want pending", m.Status)
	}
	if got, want := w.Header().Get("ETag"), checksum.ETag(served); got != want {
		t.Errorf("ETag = %s, want %s (the version in the body)", got, want)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	l, router := testEnv(t, "secret123")
	key, _ := testutil.TestKey(t, "alice")
	if w := submit(t, router, registerTx(t, l, key, "t"), "Authorization", "Bearer secret123"); w.Code != http.StatusCreated {
		t.Errorf("authed submit = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	if w := get(router, "/intents"); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	req := httptest.NewRequest(http.MethodGet, "/intents", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	if w := get(router, "/intents"); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

func signedJWT(t *testing.T, secret []byte, method jwt.SigningMethod, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.MapClaims{
		"sub": "matcher-1",
		"exp": exp.Unix(),
		"iat": time.Now().Unix(),
	})
	s, err := token.SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAuthMiddleware_JWT(t *testing.T) {
	secret := []byte("jwt-secret")
	_, router := testEnvFull(t, AuthSettings{Mode: AuthModeJWT, JWTSecret: secret}, nil)

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"valid", signedJWT(t, secret, jwt.SigningMethodHS256, time.Now().Add(time.Hour)), http.StatusOK},
		{"expired", signedJWT(t, secret, jwt.SigningMethodHS256, time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"wrong secret", signedJWT(t, []byte("other"), jwt.SigningMethodHS256, time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"HS384", signedJWT(t, secret, jwt.SigningMethodHS384, time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"HS512", signedJWT(t, secret, jwt.SigningMethodHS512, time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"garbage", "not.a.jwt", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/intents", nil)
			req.Header.Set("Authorization", "Bearer "+tc.token)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestAuthMiddleware_JWTSubject(t *testing.T) {
	secret := []byte("jwt-secret")
	var got string
	h := AuthMiddleware(AuthSettings{Mode: AuthModeJWT, JWTSecret: secret})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = Subject(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signedJWT(t, secret, jwt.SigningMethodHS256, time.Now().Add(time.Hour)))
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "matcher-1" {
		t.Errorf("subject = %q, want matcher-1", got)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvFull(t, AuthSettings{Mode: AuthModeToken, Token: "secret"}, blockingSSE)
	if w := get(router, "/events"); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvFull(t, AuthSettings{Mode: AuthModeToken, Token: "tok"}, blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

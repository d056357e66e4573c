package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/nao1215/pushkin/pkg/fcm"
)

// fakeFirebase はInstance ID APIとFCM送信APIを模したテスト用サーバー。
type fakeFirebase struct {
	mu sync.Mutex
	// imports はbatchImportで受け取ったAPNsトークン（呼び出しごと）。
	imports [][]string
	// importSandbox はbatchImportで受け取ったsandboxの値（呼び出しごと）。
	importSandbox []bool
	// webBodies は/v1/web/iidで受け取ったボディ。
	webBodies []map[string]any
	// topics は登録トークンごとの購読トピック。
	topics map[string]map[string]bool
	// batches はbatchAdd/batchRemoveで受け取ったトークン数（呼び出しごと）。
	batches []int
	// sent はmessages:sendで受け取ったメッセージ。
	sent []fcm.Message
	// invalidTokens はInvalidTokenとして拒否する登録トークン。
	invalidTokens map[string]bool
	// batchErrors はbatchAdd/batchRemoveでトークンごとに返すエラー。
	batchErrors map[string]string
}

// newFakeFirebase はfakeFirebaseを起動し、そのURLを返す。
func newFakeFirebase(t *testing.T) (*fakeFirebase, string) {
	t.Helper()

	f := &fakeFirebase{
		topics:        make(map[string]map[string]bool),
		invalidTokens: map[string]bool{"invalid-token": true},
		batchErrors:   map[string]string{"bad": "NOT_FOUND"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /iid/v1:batchImport", f.handleBatchImport)
	mux.HandleFunc("POST /v1/web/iid", f.handleWeb)
	mux.HandleFunc("POST /iid/v1/{token}/rel/topics/{topic}", f.handleRelation)
	mux.HandleFunc("DELETE /iid/v1/{token}/rel/topics/{topic}", f.handleRelation)
	mux.HandleFunc("POST /iid/v1:batchAdd", f.handleBatch)
	mux.HandleFunc("POST /iid/v1:batchRemove", f.handleBatch)
	mux.HandleFunc("GET /iid/info/{token}", f.handleInfo)
	mux.HandleFunc("POST /v1/projects/{project}/messages:send", f.handleSend)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func writeFakeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeFirebase) handleBatchImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Application string   `json:"application"`
		Sandbox     bool     `json:"sandbox"`
		APNsTokens  []string `json:"apns_tokens"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.imports = append(f.imports, req.APNsTokens)
	f.importSandbox = append(f.importSandbox, req.Sandbox)
	f.mu.Unlock()

	if req.Application == "com.example.unauthorized" {
		writeFakeJSON(w, http.StatusOK, map[string]any{
			"error": map[string]any{"code": 401, "status": "UNAUTHENTICATED", "message": "invalid server key"},
		})
		return
	}

	results := make([]map[string]string, 0, len(req.APNsTokens))
	for _, token := range req.APNsTokens {
		if token == "bad-device" {
			results = append(results, map[string]string{"status": "INVALID_ARGUMENT", "apns_token": token})
			continue
		}
		results = append(results, map[string]string{
			"status":             "OK",
			"apns_token":         token,
			"registration_token": "fcm-" + token,
		})
	}
	writeFakeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (f *fakeFirebase) handleWeb(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.webBodies = append(f.webBodies, body)
	f.mu.Unlock()

	writeFakeJSON(w, http.StatusOK, map[string]string{"token": "web-token"})
}

func (f *fakeFirebase) handleRelation(w http.ResponseWriter, r *http.Request) {
	token, topic := r.PathValue("token"), r.PathValue("topic")
	if f.invalidTokens[token] {
		writeFakeJSON(w, http.StatusBadRequest, map[string]string{"error": "InvalidToken"})
		return
	}

	f.mu.Lock()
	if r.Method == http.MethodPost {
		if f.topics[token] == nil {
			f.topics[token] = make(map[string]bool)
		}
		f.topics[token][topic] = true
	} else {
		delete(f.topics[token], topic)
	}
	f.mu.Unlock()

	writeFakeJSON(w, http.StatusOK, map[string]any{})
}

func (f *fakeFirebase) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To                 string   `json:"to"`
		RegistrationTokens []string `json:"registration_tokens"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.batches = append(f.batches, len(req.RegistrationTokens))
	f.mu.Unlock()

	results := make([]map[string]string, 0, len(req.RegistrationTokens))
	for _, token := range req.RegistrationTokens {
		if e, ok := f.batchErrors[token]; ok {
			results = append(results, map[string]string{"error": e})
			continue
		}
		results = append(results, map[string]string{})
	}
	writeFakeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (f *fakeFirebase) handleInfo(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	f.mu.Lock()
	topics := make(map[string]any)
	for topic := range f.topics[token] {
		topics[topic] = map[string]string{"addDate": "2024-01-01"}
	}
	f.mu.Unlock()

	if len(topics) == 0 {
		writeFakeJSON(w, http.StatusOK, map[string]any{"application": "com.example.app"})
		return
	}
	writeFakeJSON(w, http.StatusOK, map[string]any{"rel": map[string]any{"topics": topics}})
}

func (f *fakeFirebase) handleSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message fcm.Message `json:"message"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	if req.Message.Token == "unknown-token" {
		writeFakeJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]any{"code": 404, "status": "NOT_FOUND", "message": "Requested entity was not found."},
		})
		return
	}

	f.mu.Lock()
	f.sent = append(f.sent, req.Message)
	f.mu.Unlock()

	writeFakeJSON(w, http.StatusOK, map[string]string{"name": "projects/" + r.PathValue("project") + "/messages/1"})
}

// sentMessages は送信されたメッセージのコピーを返す。
func (f *fakeFirebase) sentMessages() []fcm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fcm.Message(nil), f.sent...)
}

// subscribedTo は登録トークンがトピックを購読しているかを返す。
func (f *fakeFirebase) subscribedTo(token, topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.topics[token][topic]
}

package fcm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"golang.org/x/oauth2"
)

// newTestClient はhandlerをFirebaseのAPIとして扱うClientを生成する。
func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	opts = append([]Option{WithIIDBaseURL(ts.URL), WithFCMBaseURL(ts.URL), WithProject("test-project")}, opts...)
	return New("server-key", opts...)
}

// writeJSON はテストサーバーからJSONを返す。
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// TestBatchImport はAPNsトークンの一括登録を検証する。
func TestBatchImport(t *testing.T) {
	t.Parallel()

	t.Run("リクエスト内容とトークンごとの結果が正しいこと", func(t *testing.T) {
		t.Parallel()

		var gotAuth string
		var gotBody batchImportRequest
		mux := http.NewServeMux()
		mux.HandleFunc("POST /iid/v1:batchImport", func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			json.NewDecoder(r.Body).Decode(&gotBody)
			writeJSON(w, http.StatusOK, map[string]any{
				"results": []map[string]string{
					{"status": "OK", "registration_token": "fcm-a", "apns_token": "a"},
					{"status": "INVALID_ARGUMENT", "apns_token": "b"},
				},
			})
		})
		client := newTestClient(t, mux)

		results, err := client.BatchImport(context.Background(), "com.example.app", true, []string{"a", "b"})
		if err != nil {
			t.Fatalf("BatchImport()でエラーが発生: %v", err)
		}

		if gotAuth != "key=server-key" {
			t.Errorf("Authorization = %q, want %q", gotAuth, "key=server-key")
		}
		if gotBody.Application != "com.example.app" || !gotBody.Sandbox {
			t.Errorf("リクエストボディ = %+v", gotBody)
		}
		if !reflect.DeepEqual(gotBody.APNsTokens, []string{"a", "b"}) {
			t.Errorf("apns_tokens = %v, want [a b]", gotBody.APNsTokens)
		}

		want := []ImportResult{
			{Status: StatusOK, RegistrationToken: "fcm-a", APNsToken: "a"},
			{Status: "INVALID_ARGUMENT", APNsToken: "b"},
		}
		if !reflect.DeepEqual(results, want) {
			t.Errorf("results = %+v, want %+v", results, want)
		}
	})

	t.Run("エラーステータスの全体エラーがAPIErrorになること", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("POST /iid/v1:batchImport", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error": map[string]any{"code": 401, "message": "bad key", "status": "UNAUTHENTICATED"},
			})
		})
		client := newTestClient(t, mux)

		_, err := client.BatchImport(context.Background(), "com.example.app", false, []string{"a"})
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("エラーが*APIErrorではない: %v", err)
		}
		if apiErr.Code != 401 || apiErr.Message != "bad key" || apiErr.Status != "UNAUTHENTICATED" {
			t.Errorf("APIError = %+v", apiErr)
		}
		if !IsClientError(err) {
			t.Error("401はクライアントエラーと判定されるべき")
		}
	})

	t.Run("200応答に含まれる全体エラーもAPIErrorになること", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("POST /iid/v1:batchImport", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"error": map[string]any{"code": 400, "message": "invalid application", "status": "INVALID_ARGUMENT"},
			})
		})
		client := newTestClient(t, mux)

		_, err := client.BatchImport(context.Background(), "com.example.app", false, []string{"a"})
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("エラーが*APIErrorではない: %v", err)
		}
		if apiErr.Message != "invalid application" {
			t.Errorf("Message = %q, want %q", apiErr.Message, "invalid application")
		}
	})

	t.Run("接続できない場合はAPIError以外のエラーになること", func(t *testing.T) {
		t.Parallel()

		client := New("server-key", WithIIDBaseURL("http://127.0.0.1:1"))
		_, err := client.BatchImport(context.Background(), "com.example.app", false, []string{"a"})
		if err == nil {
			t.Fatal("BatchImport()がエラーを返すべきだが、nilが返った")
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			t.Errorf("通信エラーが*APIErrorとして返った: %v", err)
		}
	})
}

// TestRegisterWeb はWeb Push購読の登録を検証する。
func TestRegisterWeb(t *testing.T) {
	t.Parallel()

	sub := WebSubscription{
		Endpoint: "https://push.example.com/abc",
		Keys:     WebSubscriptionKeys{P256DH: "p256", Auth: "auth"},
	}

	t.Run("登録トークンが返ること", func(t *testing.T) {
		t.Parallel()

		var gotBody map[string]any
		mux := http.NewServeMux()
		mux.HandleFunc("POST /v1/web/iid", func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&gotBody)
			writeJSON(w, http.StatusOK, map[string]string{"token": "web-token"})
		})
		client := newTestClient(t, mux)

		token, err := client.RegisterWeb(context.Background(), sub)
		if err != nil {
			t.Fatalf("RegisterWeb()でエラーが発生: %v", err)
		}
		if token != "web-token" {
			t.Errorf("token = %q, want %q", token, "web-token")
		}
		if len(gotBody) != 2 {
			t.Errorf("送信されたキー = %v, want endpointとkeysのみ", gotBody)
		}
	})

	t.Run("トークンもエラーも無い応答はエラーになること", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("POST /v1/web/iid", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{})
		})
		client := newTestClient(t, mux)

		if _, err := client.RegisterWeb(context.Background(), sub); err == nil {
			t.Fatal("RegisterWeb()がエラーを返すべきだが、nilが返った")
		}
	})
}

// TestSubscribe はトピック購読と購読解除を検証する。
func TestSubscribe(t *testing.T) {
	t.Parallel()

	t.Run("購読と購読解除が正しいメソッドとパスで送信されること", func(t *testing.T) {
		t.Parallel()

		var calls []string
		mux := http.NewServeMux()
		mux.HandleFunc("/iid/v1/token-1/rel/topics/__p__test__news", func(w http.ResponseWriter, r *http.Request) {
			calls = append(calls, r.Method)
			writeJSON(w, http.StatusOK, map[string]string{})
		})
		client := newTestClient(t, mux)

		if err := client.Subscribe(context.Background(), "token-1", "__p__test__news"); err != nil {
			t.Fatalf("Subscribe()でエラーが発生: %v", err)
		}
		if err := client.Unsubscribe(context.Background(), "token-1", "__p__test__news"); err != nil {
			t.Fatalf("Unsubscribe()でエラーが発生: %v", err)
		}
		if !reflect.DeepEqual(calls, []string{http.MethodPost, http.MethodDelete}) {
			t.Errorf("calls = %v, want [POST DELETE]", calls)
		}
	})

	t.Run("InvalidTokenがErrInvalidTokenになること", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/iid/v1/bad/rel/topics/news", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "InvalidToken"})
		})
		client := newTestClient(t, mux)

		err := client.Subscribe(context.Background(), "bad", "news")
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("err = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("その他の文字列エラーはAPIErrorになること", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/iid/v1/tok/rel/topics/news", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "InternalServerError"})
		})
		client := newTestClient(t, mux)

		err := client.Unsubscribe(context.Background(), "tok", "news")
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("エラーが*APIErrorではない: %v", err)
		}
		if apiErr.Status != "InternalServerError" {
			t.Errorf("Status = %q, want %q", apiErr.Status, "InternalServerError")
		}
		if IsClientError(err) {
			t.Error("500はクライアントエラーと判定されるべきではない")
		}
	})
}

// TestBatchAdd は一括購読操作を検証する。
func TestBatchAdd(t *testing.T) {
	t.Parallel()

	t.Run("結果がトークンと対応付けられること", func(t *testing.T) {
		t.Parallel()

		var gotBody batchRequest
		mux := http.NewServeMux()
		mux.HandleFunc("POST /iid/v1:batchAdd", func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&gotBody)
			writeJSON(w, http.StatusOK, map[string]any{
				"results": []map[string]string{{}, {"error": "NOT_FOUND"}},
			})
		})
		client := newTestClient(t, mux)

		results, err := client.BatchAdd(context.Background(), "news", []string{"t1", "t2"})
		if err != nil {
			t.Fatalf("BatchAdd()でエラーが発生: %v", err)
		}
		if gotBody.To != "/topics/news" {
			t.Errorf("to = %q, want %q", gotBody.To, "/topics/news")
		}
		want := []BatchResult{{Token: "t1"}, {Token: "t2", Error: "NOT_FOUND"}}
		if !reflect.DeepEqual(results, want) {
			t.Errorf("results = %+v, want %+v", results, want)
		}
	})

	t.Run("結果件数が一致しない場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("POST /iid/v1:batchRemove", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"results": []map[string]string{{}}})
		})
		client := newTestClient(t, mux)

		if _, err := client.BatchRemove(context.Background(), "news", []string{"t1", "t2"}); err == nil {
			t.Fatal("BatchRemove()がエラーを返すべきだが、nilが返った")
		}
	})
}

// TestTopics は購読トピック一覧の取得を検証する。
func TestTopics(t *testing.T) {
	t.Parallel()

	t.Run("トピック名が昇順で返ること", func(t *testing.T) {
		t.Parallel()

		var gotDetails string
		mux := http.NewServeMux()
		mux.HandleFunc("GET /iid/info/tok", func(w http.ResponseWriter, r *http.Request) {
			gotDetails = r.URL.Query().Get("details")
			writeJSON(w, http.StatusOK, map[string]any{
				"rel": map[string]any{"topics": map[string]any{
					"b": map[string]string{"addDate": "2024-01-01"},
					"a": map[string]string{"addDate": "2024-01-02"},
				}},
			})
		})
		client := newTestClient(t, mux)

		topics, err := client.Topics(context.Background(), "tok")
		if err != nil {
			t.Fatalf("Topics()でエラーが発生: %v", err)
		}
		if gotDetails != "true" {
			t.Errorf("details = %q, want %q", gotDetails, "true")
		}
		if !reflect.DeepEqual(topics, []string{"a", "b"}) {
			t.Errorf("topics = %v, want [a b]", topics)
		}
	})

	t.Run("購読が無い場合は空スライスが返ること", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("GET /iid/info/tok", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"application": "com.example"})
		})
		client := newTestClient(t, mux)

		topics, err := client.Topics(context.Background(), "tok")
		if err != nil {
			t.Fatalf("Topics()でエラーが発生: %v", err)
		}
		if topics == nil || len(topics) != 0 {
			t.Errorf("topics = %#v, want empty slice", topics)
		}
	})
}

// TestSend はメッセージ送信を検証する。
func TestSend(t *testing.T) {
	t.Parallel()

	t.Run("アクセストークンで認証して送信できること", func(t *testing.T) {
		t.Parallel()

		var gotAuth string
		var gotBody sendRequest
		mux := http.NewServeMux()
		mux.HandleFunc("POST /v1/projects/test-project/messages:send", func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			json.NewDecoder(r.Body).Decode(&gotBody)
			writeJSON(w, http.StatusOK, map[string]string{"name": "projects/test-project/messages/1"})
		})
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "access", TokenType: "Bearer"})
		client := newTestClient(t, mux, WithTokenSource(ts))

		name, err := client.Send(context.Background(), Message{
			Token:        "tok",
			Notification: &Notification{Title: "hello"},
		})
		if err != nil {
			t.Fatalf("Send()でエラーが発生: %v", err)
		}
		if name != "projects/test-project/messages/1" {
			t.Errorf("name = %q", name)
		}
		if gotAuth != "Bearer access" {
			t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer access")
		}
		if gotBody.Message.Token != "tok" || gotBody.ValidateOnly {
			t.Errorf("リクエストボディ = %+v", gotBody)
		}
	})

	t.Run("認証情報が無い場合はErrNoCredentialsが返ること", func(t *testing.T) {
		t.Parallel()

		client := New("server-key")
		if _, err := client.Send(context.Background(), Message{Token: "tok"}); !errors.Is(err, ErrNoCredentials) {
			t.Fatalf("err = %v, want ErrNoCredentials", err)
		}
	})

	t.Run("FCMのエラー応答がAPIErrorになること", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("POST /v1/projects/test-project/messages:send", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": map[string]any{"code": 400, "message": "invalid token", "status": "INVALID_ARGUMENT"},
			})
		})
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "access"})
		client := newTestClient(t, mux, WithTokenSource(ts))

		_, err := client.Send(context.Background(), Message{Token: "tok"})
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("エラーが*APIErrorではない: %v", err)
		}
		if apiErr.HTTPStatus != http.StatusBadRequest {
			t.Errorf("HTTPStatus = %d, want %d", apiErr.HTTPStatus, http.StatusBadRequest)
		}
	})
}

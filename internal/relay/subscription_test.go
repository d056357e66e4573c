package relay

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"testing"
)

// countRows はテスト用にテーブルの行数を数える。
func countRows(t *testing.T, s *Server, query string, args ...any) int {
	t.Helper()
	var n int
	if err := s.db.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("行数の取得に失敗: %v", err)
	}
	return n
}

// TestHandleSubscription は単一の登録トークンの購読と購読解除を検証する。
func TestHandleSubscription(t *testing.T) {
	t.Parallel()

	const topic = "__pushkin__test__news"

	t.Run("購読するとFirebaseとデータベースに反映されること", func(t *testing.T) {
		t.Parallel()

		s, fake := setupTestServer(t)
		w := doRequest(s, http.MethodPost, "/topics/news/subscribers/tok-1", testUserKey, nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
		}
		if got := decodeBody[map[string]bool](t, w)["subscribed"]; !got {
			t.Error("subscribed = false, want true")
		}
		if !fake.subscribedTo("tok-1", topic) {
			t.Errorf("Firebase上で %s を購読していません", topic)
		}
		if n := countRows(t, s, "SELECT COUNT(*) FROM currently_subscribed WHERE firebase_id = ? AND topic_id = ?", "tok-1", topic); n != 1 {
			t.Errorf("currently_subscribedの行数 = %d, want 1", n)
		}
	})

	t.Run("購読を解除すると記録が消え履歴が残ること", func(t *testing.T) {
		t.Parallel()

		s, fake := setupTestServer(t)
		doRequest(s, http.MethodPost, "/topics/news/subscribers/tok-1", testUserKey, nil)
		w := doRequest(s, http.MethodDelete, "/topics/news/subscribers/tok-1", testUserKey, nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if got := decodeBody[map[string]bool](t, w)["subscribed"]; got {
			t.Error("subscribed = true, want false")
		}
		if fake.subscribedTo("tok-1", topic) {
			t.Error("Firebase上の購読が解除されていません")
		}
		if n := countRows(t, s, "SELECT COUNT(*) FROM currently_subscribed"); n != 0 {
			t.Errorf("currently_subscribedの行数 = %d, want 0", n)
		}
		if n := countRows(t, s, "SELECT COUNT(*) FROM subscription_log WHERE topic_id = ?", topic); n != 2 {
			t.Errorf("subscription_logの行数 = %d, want 2", n)
		}
	})

	t.Run("同じ購読を2回行っても記録は1件であること", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t)
		for range 2 {
			if w := doRequest(s, http.MethodPost, "/topics/news/subscribers/tok-1", testUserKey, nil); w.Code != http.StatusOK {
				t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
			}
		}
		if n := countRows(t, s, "SELECT COUNT(*) FROM currently_subscribed"); n != 1 {
			t.Errorf("currently_subscribedの行数 = %d, want 1", n)
		}
		if n := countRows(t, s, "SELECT COUNT(*) FROM subscription_log"); n != 1 {
			t.Errorf("subscription_logの行数 = %d, want 1", n)
		}
	})

	t.Run("確認メッセージが登録トークン宛てに送られること", func(t *testing.T) {
		t.Parallel()

		s, fake := setupTestServer(t)
		w := doRequest(s, http.MethodPost, "/topics/news/subscribers/tok-1", testUserKey, map[string]any{
			"confirmation": map[string]any{
				"topic":        "ignored",
				"notification": map[string]string{"title": "購読しました", "body": "ニュースを配信します"},
			},
		})

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
		}
		sent := fake.sentMessages()
		if len(sent) != 1 {
			t.Fatalf("送信件数 = %d, want 1", len(sent))
		}
		if sent[0].Token != "tok-1" || sent[0].Topic != "" {
			t.Errorf("送信先 = token:%q topic:%q, want token:%q", sent[0].Token, sent[0].Topic, "tok-1")
		}
		if sent[0].Notification == nil || sent[0].Notification.Title != "購読しました" {
			t.Errorf("notification = %+v", sent[0].Notification)
		}
	})

	t.Run("確認メッセージが不正な場合は購読せずに400が返ること", func(t *testing.T) {
		t.Parallel()

		s, fake := setupTestServer(t)
		w := doRequest(s, http.MethodPost, "/topics/news/subscribers/tok-1", testUserKey, map[string]any{
			"confirmation": map[string]any{
				"notification": map[string]string{"image": "not a url"},
			},
		})

		if w.Code != http.StatusBadRequest {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if fake.subscribedTo("tok-1", topic) {
			t.Error("検証に失敗したのに購読されています")
		}
	})

	t.Run("Firebaseがトークンを認識できない場合は400が返ること", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t)
		w := doRequest(s, http.MethodPost, "/topics/news/subscribers/invalid-token", testUserKey, nil)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if n := countRows(t, s, "SELECT COUNT(*) FROM currently_subscribed"); n != 0 {
			t.Errorf("currently_subscribedの行数 = %d, want 0", n)
		}
	})
}

type bulkResult struct {
	Errors   []bulkFailure `json:"errors"`
	Warnings []string      `json:"warnings"`
}

// TestHandleBulk は一括購読と一括購読解除を検証する。
func TestHandleBulk(t *testing.T) {
	t.Parallel()

	const topic = "__pushkin__test__news"

	t.Run("重複は警告になり失敗したIDはエラーとして返ること", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t)
		w := doRequest(s, http.MethodPost, "/topics/news/subscribers", testAdminKey, map[string]any{
			"ids": []string{"a", "b", "a", "bad"},
		})

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
		}
		body := decodeBody[bulkResult](t, w)
		if len(body.Errors) != 1 || body.Errors[0].ID != "bad" || body.Errors[0].Error != "NOT_FOUND" {
			t.Errorf("errors = %+v, want [{bad NOT_FOUND}]", body.Errors)
		}
		if len(body.Warnings) != 1 {
			t.Errorf("warnings = %v, want 1件", body.Warnings)
		}

		ids, err := s.queries.ListSubscribersByTopic(context.Background(), listParams(topic))
		if err != nil {
			t.Fatalf("購読者の取得に失敗: %v", err)
		}
		if !slices.Equal(ids, []string{"a", "b"}) {
			t.Errorf("購読者 = %v, want [a b]", ids)
		}
	})

	t.Run("一括購読解除で記録が消えること", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t)
		doRequest(s, http.MethodPost, "/topics/news/subscribers", testAdminKey, map[string]any{"ids": []string{"a", "b", "c"}})
		w := doRequest(s, http.MethodDelete, "/topics/news/subscribers", testAdminKey, map[string]any{"ids": []string{"a", "c"}})

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		body := decodeBody[bulkResult](t, w)
		if len(body.Errors) != 0 || len(body.Warnings) != 0 {
			t.Errorf("errors = %v, warnings = %v, want empty", body.Errors, body.Warnings)
		}

		ids, err := s.queries.ListSubscribersByTopic(context.Background(), listParams(topic))
		if err != nil {
			t.Fatalf("購読者の取得に失敗: %v", err)
		}
		if !slices.Equal(ids, []string{"b"}) {
			t.Errorf("購読者 = %v, want [b]", ids)
		}
	})

	t.Run("1000件を超えるIDは分割して送られること", func(t *testing.T) {
		t.Parallel()

		s, fake := setupTestServer(t)
		ids := make([]string, 2500)
		for i := range ids {
			ids[i] = fmt.Sprintf("tok-%04d", i)
		}
		w := doRequest(s, http.MethodPost, "/topics/news/subscribers", testAdminKey, map[string]any{"ids": ids})

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		fake.mu.Lock()
		batches := slices.Clone(fake.batches)
		fake.mu.Unlock()
		if !slices.Equal(batches, []int{1000, 1000, 500}) {
			t.Errorf("分割 = %v, want [1000 1000 500]", batches)
		}
		if n := countRows(t, s, "SELECT COUNT(*) FROM currently_subscribed WHERE topic_id = ?", topic); n != 2500 {
			t.Errorf("currently_subscribedの行数 = %d, want 2500", n)
		}
	})

	t.Run("IDが空または不正な場合は400が返ること", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t)
		bodies := []any{
			map[string]any{},
			map[string]any{"ids": []string{}},
			map[string]any{"ids": []string{"a", ""}},
			map[string]any{"ids": []int{1, 2}},
		}
		for i, body := range bodies {
			w := doRequest(s, http.MethodPost, "/topics/news/subscribers", testAdminKey, body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("case %d: ステータスコード = %d, want %d", i, w.Code, http.StatusBadRequest)
			}
		}
	})
}

package relay

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	relaydb "github.com/nao1215/pushkin/internal/relay/db"
	"github.com/nao1215/pushkin/pkg/fcm"
	"github.com/nao1215/pushkin/pkg/logging"
)

// bulkChunkSize はbatchAdd/batchRemoveの1回の呼び出しで送る登録トークンの上限。
const bulkChunkSize = 1000

// 購読操作の種類。ログに出力する。
const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
)

// subscriptionRequest は購読と購読解除のリクエストのJSON構造。ボディは省略できる。
type subscriptionRequest struct {
	// Confirmation は操作の成功後に登録トークンへ送る確認メッセージ。
	Confirmation *fcm.Message `json:"confirmation" binding:"-"`
}

// handleSubscribe は登録トークンをトピックに購読させるハンドラ。
func (s *Server) handleSubscribe() gin.HandlerFunc {
	return s.handleSubscription(actionSubscribe)
}

// handleUnsubscribe は登録トークンのトピック購読を解除するハンドラ。
func (s *Server) handleUnsubscribe() gin.HandlerFunc {
	return s.handleSubscription(actionUnsubscribe)
}

func (s *Server) handleSubscription(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("registration_id")
		topic := s.ns.Topic(c.Param("topic_name"))
		log := logging.FromContext(ctx).With("action", action, "topic", topic, "id", id)

		var req subscriptionRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, bindError(err), "購読の更新に失敗しました")
				return
			}
		}

		var confirmation *fcm.Message
		if req.Confirmation != nil {
			msg := *req.Confirmation
			msg.Token = id
			msg.Topic = ""
			msg.Condition = ""
			if err := s.validate.Struct(msg); err != nil {
				respondError(c, err, "購読の更新に失敗しました")
				return
			}
			confirmation = &msg
		}

		if err := s.updateSubscription(ctx, action, id, topic); err != nil {
			respondError(c, err, "購読の更新に失敗しました")
			return
		}
		log.Infow("購読を更新しました")

		if confirmation != nil {
			name, err := s.firebase.Send(ctx, *confirmation)
			if err != nil {
				respondError(c, err, "確認メッセージの送信に失敗しました")
				return
			}
			log.Infow("確認メッセージを送信しました", "name", name)
		}

		c.JSON(http.StatusOK, gin.H{"subscribed": action == actionSubscribe})
	}
}

// updateSubscription はFirebase上の購読を更新し、結果をデータベースに記録する。
func (s *Server) updateSubscription(ctx context.Context, action, id, topic string) error {
	if action == actionSubscribe {
		if err := s.firebase.Subscribe(ctx, id, topic); err != nil {
			return err
		}
		if err := s.queries.AddSubscription(ctx, relaydb.AddSubscriptionParams{FirebaseID: id, TopicID: topic}); err != nil {
			return fmt.Errorf("購読の記録に失敗: %w", err)
		}
		return nil
	}

	if err := s.firebase.Unsubscribe(ctx, id, topic); err != nil {
		return err
	}
	if err := s.queries.RemoveSubscription(ctx, relaydb.RemoveSubscriptionParams{FirebaseID: id, TopicID: topic}); err != nil {
		return fmt.Errorf("購読解除の記録に失敗: %w", err)
	}
	return nil
}

// bulkRequest は一括購読リクエストのJSON構造。
type bulkRequest struct {
	// IDs は対象の登録トークン。
	IDs []string `json:"ids" binding:"required,min=1,dive,required"`
}

// bulkFailure は一括操作で失敗した登録トークン1件。
type bulkFailure struct {
	// ID は失敗した登録トークン。
	ID string `json:"id"`
	// Error はFirebaseが返したエラー。
	Error string `json:"error"`
}

// bulkResponse は一括操作のレスポンス。
type bulkResponse struct {
	// Errors はFirebaseが拒否した登録トークン。
	Errors []bulkFailure `json:"errors"`
	// Warnings は処理を継続した上での注意事項（重複したIDなど）。
	Warnings []string `json:"warnings"`
}

// handleBulkSubscribe は複数の登録トークンをトピックに購読させるハンドラ。
func (s *Server) handleBulkSubscribe() gin.HandlerFunc {
	return s.handleBulk(actionSubscribe)
}

// handleBulkUnsubscribe は複数の登録トークンのトピック購読を解除するハンドラ。
func (s *Server) handleBulkUnsubscribe() gin.HandlerFunc {
	return s.handleBulk(actionUnsubscribe)
}

func (s *Server) handleBulk(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		topic := s.ns.Topic(c.Param("topic_name"))
		log := logging.FromContext(ctx).With("action", action, "topic", topic)

		var req bulkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, bindError(err), "一括操作に失敗しました")
			return
		}

		resp := bulkResponse{Errors: []bulkFailure{}, Warnings: []string{}}
		ids := make([]string, 0, len(req.IDs))
		seen := make(map[string]struct{}, len(req.IDs))
		for _, id := range req.IDs {
			if _, dup := seen[id]; dup {
				resp.Warnings = append(resp.Warnings, "IDが重複しているため1回だけ処理しました: "+id)
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}

		for chunk := range slices.Chunk(ids, bulkChunkSize) {
			failures, err := s.bulkChunk(ctx, action, topic, chunk)
			if err != nil {
				respondError(c, err, "一括操作に失敗しました")
				return
			}
			resp.Errors = append(resp.Errors, failures...)
		}

		if len(resp.Errors) > 0 {
			log.Warnw("一部の登録トークンで一括操作に失敗しました", "ids", len(ids), "failures", len(resp.Errors))
		} else {
			log.Infow("一括操作が完了しました", "ids", len(ids))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// bulkChunk は登録トークンの1まとまりをFirebaseに送り、成功したものをデータベースに記録する。
func (s *Server) bulkChunk(ctx context.Context, action, topic string, ids []string) ([]bulkFailure, error) {
	var (
		results []fcm.BatchResult
		err     error
	)
	if action == actionSubscribe {
		results, err = s.firebase.BatchAdd(ctx, topic, ids)
	} else {
		results, err = s.firebase.BatchRemove(ctx, topic, ids)
	}
	if err != nil {
		return nil, err
	}

	var failures []bulkFailure
	succeeded := make([]string, 0, len(results))
	for _, r := range results {
		if r.Error != "" {
			failures = append(failures, bulkFailure{ID: r.Token, Error: r.Error})
			continue
		}
		succeeded = append(succeeded, r.Token)
	}

	if err := s.recordBulk(ctx, action, topic, succeeded); err != nil {
		return nil, err
	}
	return failures, nil
}

// recordBulk は一括操作の結果を1つのトランザクションで記録する。
func (s *Server) recordBulk(ctx context.Context, action, topic string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := s.queries.WithTx(tx)
	for _, id := range ids {
		if action == actionSubscribe {
			err = q.AddSubscription(ctx, relaydb.AddSubscriptionParams{FirebaseID: id, TopicID: topic})
		} else {
			err = q.RemoveSubscription(ctx, relaydb.RemoveSubscriptionParams{FirebaseID: id, TopicID: topic})
		}
		if err != nil {
			return fmt.Errorf("購読状態の記録に失敗: %w", err)
		}
	}
	return tx.Commit()
}

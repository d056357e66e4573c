package relay

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	relaydb "github.com/nao1215/pushkin/internal/relay/db"
	"github.com/nao1215/pushkin/pkg/logging"
)

// subscribersPageSize は購読者一覧の1ページあたりの件数。
const subscribersPageSize = 1000

// subscriberCounts はトピック詳細の購読者数。
type subscriberCounts struct {
	// Subscribes はこれまでに購読した登録トークンの数。
	Subscribes int64 `json:"subscribes"`
	// Unsubscribes はこれまでに購読を解除した登録トークンの数。
	Unsubscribes int64 `json:"unsubscribes"`
	// CurrentlySubscribed は現在購読している登録トークンの数。
	CurrentlySubscribed int64 `json:"currentlySubscribed"`
}

// handleTopicDetails はトピックの購読者数の集計を返すハンドラ。
func (s *Server) handleTopicDetails() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		topic := s.ns.Topic(c.Param("topic_name"))

		current, err := s.queries.CountCurrentSubscribers(ctx, topic)
		if err != nil {
			respondError(c, err, "購読者数の取得に失敗しました")
			return
		}
		actions, err := s.queries.CountSubscriptionActions(ctx, topic)
		if err != nil {
			respondError(c, err, "購読履歴の集計に失敗しました")
			return
		}

		counts := subscriberCounts{CurrentlySubscribed: current}
		for _, a := range actions {
			switch a.Action {
			case actionSubscribe:
				counts.Subscribes = a.Total
			case actionUnsubscribe:
				counts.Unsubscribes = a.Total
			}
		}

		c.JSON(http.StatusOK, gin.H{"subscribers": counts})
	}
}

// handleTopicSubscribers はトピックを現在購読している登録トークンを返すハンドラ。
// pageまたはskipで取得位置を指定できる。両方の指定はできない。
func (s *Server) handleTopicSubscribers() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		topic := s.ns.Topic(c.Param("topic_name"))

		offset, err := subscribersOffset(c)
		if err != nil {
			respondError(c, err, "購読者一覧の取得に失敗しました")
			return
		}

		ids, err := s.queries.ListSubscribersByTopic(ctx, relaydb.ListSubscribersByTopicParams{
			TopicID: topic,
			Limit:   subscribersPageSize,
			Offset:  offset,
		})
		if err != nil {
			respondError(c, err, "購読者一覧の取得に失敗しました")
			return
		}
		if ids == nil {
			ids = []string{}
		}

		logging.FromContext(ctx).Infow("購読者一覧を取得しました", "topic", topic, "offset", offset, "count", len(ids))
		c.JSON(http.StatusOK, ids)
	}
}

// subscribersOffset はクエリパラメータのpageまたはskipから取得開始位置を求める。
func subscribersOffset(c *gin.Context) (int64, error) {
	page, hasPage := c.GetQuery("page")
	skip, hasSkip := c.GetQuery("skip")

	switch {
	case hasPage && hasSkip:
		return 0, badRequest("pageとskipは同時に指定できません")
	case hasPage:
		n, err := strconv.ParseInt(page, 10, 64)
		if err != nil || n < 1 {
			return 0, badRequest("pageを解析できません: %s", page)
		}
		if n-1 > math.MaxInt64/subscribersPageSize {
			return 0, badRequest("pageが大きすぎます: %s", page)
		}
		return (n - 1) * subscribersPageSize, nil
	case hasSkip:
		n, err := strconv.ParseInt(skip, 10, 64)
		if err != nil || n < 0 {
			return 0, badRequest("skipを解析できません: %s", skip)
		}
		return n, nil
	default:
		return 0, nil
	}
}

package relay

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/pushkin/pkg/fcm"
	"github.com/nao1215/pushkin/pkg/logging"
)

// sendRequest はメッセージ送信リクエストのJSON構造。
// 送信先はURLまたは条件式から決まるため、バインド時には検証せず送信先を設定してから検証する。
type sendRequest struct {
	// Message は送信するメッセージ。
	Message *fcm.Message `json:"message" binding:"-"`
}

// sendMessage はリクエストのメッセージにtargetで送信先を設定してから検証し、送信する。
func (s *Server) sendMessage(c *gin.Context, target func(msg *fcm.Message) error) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err), "メッセージの送信に失敗しました")
		return
	}
	if req.Message == nil {
		respondError(c, badRequest("messageを指定してください"), "メッセージの送信に失敗しました")
		return
	}

	msg := *req.Message
	if err := target(&msg); err != nil {
		respondError(c, err, "メッセージの送信に失敗しました")
		return
	}
	if err := s.validate.Struct(msg); err != nil {
		respondError(c, err, "メッセージの送信に失敗しました")
		return
	}

	log := logging.FromContext(c.Request.Context()).With("token", msg.Token, "topic", msg.Topic, "condition", msg.Condition)
	name, err := s.firebase.Send(c.Request.Context(), msg)
	if err != nil {
		respondError(c, err, "メッセージの送信に失敗しました")
		return
	}

	log.Infow("メッセージを送信しました", "name", name)
	c.JSON(http.StatusOK, gin.H{"success": true, "name": name})
}

// handleSendToTopic はトピックの購読者にメッセージを送信するハンドラ。
func (s *Server) handleSendToTopic() gin.HandlerFunc {
	return func(c *gin.Context) {
		topic := s.ns.Topic(c.Param("topic_name"))
		s.sendMessage(c, func(msg *fcm.Message) error {
			msg.Token, msg.Topic, msg.Condition = "", topic, ""
			return nil
		})
	}
}

// handleSendToRegistration は登録トークン1件にメッセージを送信するハンドラ。
func (s *Server) handleSendToRegistration() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("registration_id")
		s.sendMessage(c, func(msg *fcm.Message) error {
			msg.Token, msg.Topic, msg.Condition = token, "", ""
			return nil
		})
	}
}

// handleSendToCondition はトピックの条件式に一致する購読者にメッセージを送信するハンドラ。
// 条件式中のトピック名は名前空間化してから送信する。
func (s *Server) handleSendToCondition() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.sendMessage(c, func(msg *fcm.Message) error {
			if msg.Condition == "" {
				return badRequest("message.conditionに送信先の条件式を指定してください")
			}
			msg.Token, msg.Topic, msg.Condition = "", "", s.ns.Condition(msg.Condition)
			return nil
		})
	}
}

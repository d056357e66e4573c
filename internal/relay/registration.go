package relay

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/pushkin/pkg/fcm"
	"github.com/nao1215/pushkin/pkg/logging"
)

// platformIOS はiOSの購読情報を表すplatformの値。
const platformIOS = "iOS"

// registrationRequest は登録トークン取得リクエストのJSON構造。
type registrationRequest struct {
	// Subscription はクライアントの購読情報。
	Subscription *subscription `json:"subscription" binding:"required"`
}

// subscription はWeb PushまたはiOSの購読情報。platformが空の場合はWeb Pushとして扱う。
type subscription struct {
	// Platform は購読元のプラットフォーム。
	Platform string `json:"platform"`
	// Endpoint はWeb Pushのエンドポイント。
	Endpoint string `json:"endpoint"`
	// Keys はWeb Pushの暗号化鍵。
	Keys *fcm.WebSubscriptionKeys `json:"keys"`
	// BundleName はiOSアプリのバンドル名。
	BundleName string `json:"bundle_name"`
	// DeviceID はAPNsのデバイストークン。
	DeviceID string `json:"device_id"`
	// Sandbox はAPNsのサンドボックス環境かどうか。
	Sandbox *bool `json:"sandbox"`
}

// handleRegister は購読情報をFirebaseの登録トークンに変換するハンドラ。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registrationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, bindError(err), "登録トークンの取得に失敗しました")
			return
		}
		log := logging.FromContext(c.Request.Context())

		sub := req.Subscription
		var (
			id  string
			err error
		)
		switch sub.Platform {
		case "":
			id, err = s.registerWeb(c, sub)
		case platformIOS:
			id, err = s.registerIOS(c, sub)
		default:
			err = badRequest("対応していないプラットフォームです: %s", sub.Platform)
		}
		if err != nil {
			respondError(c, err, "登録トークンの取得に失敗しました")
			return
		}

		log.Infow("登録トークンを取得しました", "platform", sub.Platform, "id", id)
		c.JSON(http.StatusOK, gin.H{"id": id})
	}
}

// registerWeb はWeb Push購読をFirebaseに登録する。
// FirebaseはexpirationTimeなど未知のキーを拒否するため、endpointとkeysのみ送る。
func (s *Server) registerWeb(c *gin.Context, sub *subscription) (string, error) {
	web := fcm.WebSubscription{Endpoint: sub.Endpoint}
	if sub.Keys != nil {
		web.Keys = *sub.Keys
	}
	if err := s.validate.Struct(web); err != nil {
		return "", err
	}
	return s.firebase.RegisterWeb(c.Request.Context(), web)
}

// registerIOS はAPNsトークンの登録をcoalescerに依頼し、結果を待つ。
func (s *Server) registerIOS(c *gin.Context, sub *subscription) (string, error) {
	if sub.BundleName == "" {
		return "", badRequest("bundle_nameにiOSのバンドル名を指定してください")
	}
	if sub.DeviceID == "" {
		return "", badRequest("device_idにAPNsのデバイストークンを指定してください")
	}
	if sub.Sandbox == nil {
		return "", badRequest("iOSの購読情報にはsandboxを指定してください")
	}
	if !s.cfg.IOSBundlePermitted(sub.BundleName) {
		return "", forbidden("このバンドル名は登録が許可されていません: " + sub.BundleName)
	}

	future := s.registrations.Register(*sub.Sandbox, sub.BundleName, sub.DeviceID)
	return future.Wait(c.Request.Context())
}

// handleRegistrationTopics は登録トークンがこの環境で購読しているトピック一覧を返すハンドラ。
func (s *Server) handleRegistrationTopics() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("registration_id")
		log := logging.FromContext(c.Request.Context())

		namespaced, err := s.firebase.Topics(c.Request.Context(), id)
		if err != nil {
			respondError(c, err, "購読トピックの取得に失敗しました")
			return
		}

		topics := make([]string, 0, len(namespaced))
		for _, t := range namespaced {
			if topic, ok := s.ns.Owns(t); ok {
				topics = append(topics, topic)
			}
		}

		log.Infow("購読トピックを取得しました", "id", id, "topics", len(topics))
		c.JSON(http.StatusOK, topics)
	}
}

package fcm

import (
	"context"
	"fmt"
	"net/url"
)

// Message はFCM HTTP v1 APIで送信するメッセージ。
// 送信先はToken、Topic、Conditionのいずれか1つを指定する。
type Message struct {
	Name         string            `json:"name,omitempty"`
	Token        string            `json:"token,omitempty" binding:"required_without_all=Topic Condition,excluded_with=Topic Condition"`
	Topic        string            `json:"topic,omitempty" binding:"excluded_with=Condition"`
	Condition    string            `json:"condition,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Notification *Notification     `json:"notification,omitempty"`
	Android      *AndroidConfig    `json:"android,omitempty"`
	Webpush      *WebpushConfig    `json:"webpush,omitempty"`
	APNS         *APNSConfig       `json:"apns,omitempty"`
}

// Notification は全プラットフォーム共通の通知内容。
type Notification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Image string `json:"image,omitempty" binding:"omitempty,url"`
}

// AndroidConfig はAndroid向けの送信設定。
type AndroidConfig struct {
	CollapseKey           string               `json:"collapse_key,omitempty"`
	Priority              string               `json:"priority,omitempty" binding:"omitempty,oneof=normal high NORMAL HIGH"`
	TTL                   string               `json:"ttl,omitempty"`
	RestrictedPackageName string               `json:"restricted_package_name,omitempty"`
	Data                  map[string]string    `json:"data,omitempty"`
	Notification          *AndroidNotification `json:"notification,omitempty"`
}

// AndroidNotification はAndroid向けの通知内容。
type AndroidNotification struct {
	Title       string `json:"title,omitempty"`
	Body        string `json:"body,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Color       string `json:"color,omitempty" binding:"omitempty,hexcolor"`
	Sound       string `json:"sound,omitempty"`
	Tag         string `json:"tag,omitempty"`
	ClickAction string `json:"click_action,omitempty"`
}

// WebpushConfig はWeb Push向けの送信設定。
type WebpushConfig struct {
	Headers      map[string]string `json:"headers,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Notification map[string]any    `json:"notification,omitempty"`
	FCMOptions   *WebpushOptions   `json:"fcm_options,omitempty"`
}

// WebpushOptions はWeb Push向けのFCMオプション。
type WebpushOptions struct {
	Link string `json:"link,omitempty" binding:"omitempty,url"`
}

// APNSConfig はAPNs向けの送信設定。payloadはAPNsのペイロードをそのまま渡す。
type APNSConfig struct {
	Headers map[string]string `json:"headers,omitempty"`
	Payload map[string]any    `json:"payload,omitempty"`
}

// sendRequest はmessages:sendのリクエストボディ。
type sendRequest struct {
	Message      Message `json:"message"`
	ValidateOnly bool    `json:"validate_only"`
}

// sendResponse はmessages:sendのレスポンスボディ。
type sendResponse struct {
	Name  string       `json:"name"`
	Error *errorDetail `json:"error,omitempty"`
}

// Send はメッセージを送信し、FCMが割り当てたメッセージ名を返す。
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if c.messaging == nil {
		return "", ErrNoCredentials
	}

	var resp sendResponse
	path := "/v1/projects/" + url.PathEscape(c.project) + "/messages:send"
	if err := c.messaging.PostJSON(ctx, path, sendRequest{Message: msg}, &resp); err != nil {
		return "", fmt.Errorf("メッセージ送信に失敗: %w", decodeError(err))
	}
	if resp.Error != nil {
		return "", &APIError{
			HTTPStatus: 200,
			Code:       resp.Error.Code,
			Status:     resp.Error.Status,
			Message:    resp.Error.Message,
		}
	}
	return resp.Name, nil
}

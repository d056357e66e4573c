package fcm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
)

// StatusOK はbatchImportで登録に成功したトークンのステータス。
const StatusOK = "OK"

// ImportResult はAPNsトークン1件分の登録結果。
type ImportResult struct {
	// Status は登録結果のステータス。成功時は "OK"。
	Status string `json:"status"`
	// RegistrationToken は発行されたFirebaseの登録トークン。
	RegistrationToken string `json:"registration_token,omitempty"`
	// APNsToken は登録を要求したAPNsトークン。
	APNsToken string `json:"apns_token"`
}

// batchImportRequest はbatchImportのリクエストボディ。
type batchImportRequest struct {
	Application string   `json:"application"`
	Sandbox     bool     `json:"sandbox"`
	APNsTokens  []string `json:"apns_tokens"`
}

// batchImportResponse はbatchImportのレスポンスボディ。
type batchImportResponse struct {
	Error   *errorDetail   `json:"error,omitempty"`
	Results []ImportResult `json:"results"`
}

// BatchImport はAPNsトークンを一括でFirebaseの登録トークンに変換する。
// 操作全体が拒否された場合は*APIErrorを返す。トークンごとの失敗は結果のStatusで表される。
func (c *Client) BatchImport(ctx context.Context, application string, sandbox bool, apnsTokens []string) ([]ImportResult, error) {
	req := batchImportRequest{
		Application: application,
		Sandbox:     sandbox,
		APNsTokens:  apnsTokens,
	}

	var resp batchImportResponse
	if err := c.iid.PostJSON(ctx, "/iid/v1:batchImport", req, &resp); err != nil {
		return nil, decodeError(err)
	}
	if resp.Error != nil {
		return nil, &APIError{
			HTTPStatus: 200,
			Code:       resp.Error.Code,
			Status:     resp.Error.Status,
			Message:    resp.Error.Message,
		}
	}
	return resp.Results, nil
}

// WebSubscription はブラウザのPush APIが返す購読情報。
type WebSubscription struct {
	// Endpoint はプッシュサービスのエンドポイントURL。
	Endpoint string `json:"endpoint" binding:"required"`
	// Keys は暗号化に使用する鍵。
	Keys WebSubscriptionKeys `json:"keys" binding:"required"`
}

// WebSubscriptionKeys はWeb Push購読の鍵。
type WebSubscriptionKeys struct {
	P256DH string `json:"p256dh" binding:"required"`
	Auth   string `json:"auth" binding:"required"`
}

// webRegistrationResponse はWeb購読登録のレスポンスボディ。
type webRegistrationResponse struct {
	Error *errorDetail `json:"error,omitempty"`
	Token string       `json:"token"`
}

// RegisterWeb はWeb Push購読をFirebaseに登録し、登録トークンを返す。
// 送信するのはendpointとkeysのみ。expirationTimeなど未知のキーはFirebaseが拒否する。
func (c *Client) RegisterWeb(ctx context.Context, sub WebSubscription) (string, error) {
	var resp webRegistrationResponse
	if err := c.iid.PostJSON(ctx, "/v1/web/iid", sub, &resp); err != nil {
		return "", decodeError(err)
	}
	if resp.Error != nil {
		return "", &APIError{
			HTTPStatus: 200,
			Code:       resp.Error.Code,
			Status:     resp.Error.Status,
			Message:    resp.Error.Message,
		}
	}
	if resp.Token == "" {
		return "", errors.New("エラーは返りませんでしたが、トークンも含まれていません")
	}
	return resp.Token, nil
}

// Subscribe は登録トークンをトピックに購読させる。
// トークンが無効な場合はErrInvalidTokenを返す。
func (c *Client) Subscribe(ctx context.Context, token, topic string) error {
	if err := c.iid.PostJSON(ctx, relationPath(token, topic), nil, nil); err != nil {
		return fmt.Errorf("トピック購読に失敗: %w", decodeError(err))
	}
	return nil
}

// Unsubscribe は登録トークンのトピック購読を解除する。
// トークンが無効な場合はErrInvalidTokenを返す。
func (c *Client) Unsubscribe(ctx context.Context, token, topic string) error {
	if err := c.iid.DeleteJSON(ctx, relationPath(token, topic), nil, nil); err != nil {
		return fmt.Errorf("トピック購読解除に失敗: %w", decodeError(err))
	}
	return nil
}

// relationPath はトークンとトピックの関連付けを表すパスを返す。
func relationPath(token, topic string) string {
	return "/iid/v1/" + url.PathEscape(token) + "/rel/topics/" + url.PathEscape(topic)
}

// BatchResult は一括購読操作のトークン1件分の結果。
type BatchResult struct {
	// Token は操作対象の登録トークン。
	Token string `json:"id"`
	// Error は失敗時のエラー種別（例: "NOT_FOUND"）。成功時は空。
	Error string `json:"error,omitempty"`
}

// batchRequest はbatchAdd/batchRemoveのリクエストボディ。
type batchRequest struct {
	To                 string   `json:"to"`
	RegistrationTokens []string `json:"registration_tokens"`
}

// batchResponse はbatchAdd/batchRemoveのレスポンスボディ。
// resultsはリクエストのトークンと同じ順序で返る。
type batchResponse struct {
	Results []struct {
		Error string `json:"error,omitempty"`
	} `json:"results"`
}

// BatchAdd は複数の登録トークンを一括でトピックに購読させる。
func (c *Client) BatchAdd(ctx context.Context, topic string, tokens []string) ([]BatchResult, error) {
	return c.batch(ctx, "batchAdd", topic, tokens)
}

// BatchRemove は複数の登録トークンのトピック購読を一括で解除する。
func (c *Client) BatchRemove(ctx context.Context, topic string, tokens []string) ([]BatchResult, error) {
	return c.batch(ctx, "batchRemove", topic, tokens)
}

// batch はbatchAdd/batchRemoveの共通処理。
func (c *Client) batch(ctx context.Context, operation, topic string, tokens []string) ([]BatchResult, error) {
	req := batchRequest{
		To:                 "/topics/" + topic,
		RegistrationTokens: tokens,
	}

	var resp batchResponse
	if err := c.iid.PostJSON(ctx, "/iid/v1:"+operation, req, &resp); err != nil {
		return nil, fmt.Errorf("%sに失敗: %w", operation, decodeError(err))
	}
	if len(resp.Results) != len(tokens) {
		return nil, fmt.Errorf("%sの結果件数が一致しません: got %d, want %d", operation, len(resp.Results), len(tokens))
	}

	results := make([]BatchResult, len(tokens))
	for i, token := range tokens {
		results[i] = BatchResult{Token: token, Error: resp.Results[i].Error}
	}
	return results, nil
}

// instanceInfo はInstance ID情報のレスポンスボディ。
// 購読しているトピックが無い場合はrelが省略される。
type instanceInfo struct {
	Rel struct {
		Topics map[string]struct {
			AddDate string `json:"addDate"`
		} `json:"topics"`
	} `json:"rel"`
}

// Topics は登録トークンが購読しているトピック名を昇順で返す。
func (c *Client) Topics(ctx context.Context, token string) ([]string, error) {
	var info instanceInfo
	path := "/iid/info/" + url.PathEscape(token) + "?details=true"
	if err := c.iid.GetJSON(ctx, path, &info); err != nil {
		return nil, fmt.Errorf("購読トピックの取得に失敗: %w", decodeError(err))
	}

	topics := make([]string, 0, len(info.Rel.Topics))
	for name := range info.Rel.Topics {
		topics = append(topics, name)
	}
	sort.Strings(topics)
	return topics, nil
}

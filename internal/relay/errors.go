package relay

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/nao1215/pushkin/pkg/fcm"
	"github.com/nao1215/pushkin/pkg/logging"
)

// apiError はHTTPステータスを伴うエラー。ハンドラーで検出した入力の誤りなどに使用する。
type apiError struct {
	// status はレスポンスのHTTPステータスコード。
	status int
	// message はレスポンスのerrorに設定するメッセージ。
	message string
}

// Error はerrorインターフェースを実装する。
func (e *apiError) Error() string {
	return e.message
}

// badRequest は400を返すapiErrorを生成する。
func badRequest(format string, args ...any) *apiError {
	return &apiError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

// forbidden は403を返すapiErrorを生成する。
func forbidden(message string) *apiError {
	return &apiError{status: http.StatusForbidden, message: message}
}

// respondError はエラーの種類に応じたステータスコードでエラーレスポンスを返す。
// 5xxの場合はfallbackをレスポンスに設定し、元のエラーはログにのみ出力する。
func respondError(c *gin.Context, err error, fallback string) {
	log := logging.FromContext(c.Request.Context())

	var apiErr *apiError
	if errors.As(err, &apiErr) {
		log.Warnw(apiErr.message, "status", apiErr.status, "path", c.Request.URL.Path)
		c.JSON(apiErr.status, gin.H{"error": apiErr.message})
		return
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		details := make([]string, 0, len(validationErrs))
		for _, fe := range validationErrs {
			details = append(details, describeFieldError(fe))
		}
		log.Warnw("リクエストの検証に失敗しました", "validation_errors", details)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "リクエストの検証に失敗しました",
			"validation_errors": details,
		})
		return
	}

	if errors.Is(err, fcm.ErrInvalidToken) {
		log.Warnw("FCMがクライアントトークンを認識できません", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": fcm.ErrInvalidToken.Error()})
		return
	}

	if fcm.IsClientError(err) {
		log.Warnw("Firebaseがリクエストを拒否しました", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	log.Errorw(fallback, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
}

// describeFieldError は検証エラー1件を "<フィールド>: <タグ>" の形式で表す。
func describeFieldError(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fmt.Sprintf("%s: %s=%s", fe.Namespace(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag())
}

// newValidator はbindingタグで検証するvalidatorを生成する。
// ginのバインドと同じタグを使用するため、バインド後に内容を書き換えた構造体の再検証に使用する。
func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}

// bindError はリクエストボディのバインドに失敗したエラーを400のエラーに変換する。
// 検証エラーはvalidation_errorsを返すためそのまま返す。
func bindError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return err
	}
	return badRequest("リクエストが不正です: %v", err)
}

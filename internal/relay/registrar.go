package relay

import (
	"context"
	"errors"

	"github.com/nao1215/pushkin/internal/coalescer"
	"github.com/nao1215/pushkin/pkg/fcm"
)

// batchImporter はAPNsトークンを一括でFirebaseの登録トークンに変換する。
type batchImporter interface {
	BatchImport(ctx context.Context, application string, sandbox bool, apnsTokens []string) ([]fcm.ImportResult, error)
}

// apnsRegistrar はInstance IDのbatchImportをcoalescer.Registrarとして使用するためのアダプター。
type apnsRegistrar struct {
	importer batchImporter
}

var _ coalescer.Registrar = (*apnsRegistrar)(nil)

// ExecuteBatch はcoalescer.Registrarインターフェースを実装する。
// Firebaseが返したエラーボディは操作全体の失敗として、それ以外のエラーは呼び出しの失敗として返す。
func (r *apnsRegistrar) ExecuteBatch(ctx context.Context, group string, sandbox bool, itemIDs []string) (*coalescer.BulkResult, error) {
	results, err := r.importer.BatchImport(ctx, group, sandbox, itemIDs)
	if err != nil {
		var apiErr *fcm.APIError
		if errors.As(err, &apiErr) {
			return &coalescer.BulkResult{
				Failure: &coalescer.Failure{
					Code:    apiErr.Code,
					Status:  apiErr.Status,
					Message: apiErr.Message,
				},
			}, nil
		}
		return nil, err
	}

	bulk := &coalescer.BulkResult{Results: make([]coalescer.ItemResult, 0, len(results))}
	for _, res := range results {
		bulk.Results = append(bulk.Results, coalescer.ItemResult{
			ItemID: res.APNsToken,
			Status: res.Status,
			Value:  res.RegistrationToken,
		})
	}
	return bulk, nil
}

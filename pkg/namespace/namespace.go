// Package namespace はFirebaseのトピック名を環境ごとに名前空間化する。
//
// すべての環境が同じFirebaseプロジェクトを共有するため、トピック名に
// プレフィックスと環境名を付与して衝突を防ぐ。形式は "__<prefix>__<env>__<topic>"。
package namespace

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// separator は名前空間の各要素を区切る文字列。
const separator = "__"

// conditionTopic はFCMの条件式に含まれるトピック指定にマッチする。
var conditionTopic = regexp.MustCompile(`'([^']+)' in topics`)

// Namespace はトピック名の名前空間化を行う。
type Namespace struct {
	// prefix はアプリケーション固有のプレフィックス。
	prefix string
	// env は実行環境名（例: "production"）。
	env string
}

// New は新しいNamespaceを生成する。
func New(prefix, env string) *Namespace {
	return &Namespace{prefix: prefix, env: env}
}

// Topic はトピック名を名前空間化する。
func (n *Namespace) Topic(topic string) string {
	return separator + escape(n.prefix) +
		separator + escape(n.env) +
		separator + escape(topic)
}

// escape は要素をパスエスケープし、区切り文字が要素内に現れないよう "_" も "%5F" に置き換える。
// url.PathUnescapeで元に戻せる。
func escape(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), "_", "%5F")
}

// Condition はFCMの条件式中のすべてのトピック名を名前空間化する。
// 例: "'a' in topics || 'b' in topics"
func (n *Namespace) Condition(condition string) string {
	return conditionTopic.ReplaceAllStringFunc(condition, func(m string) string {
		topic := conditionTopic.FindStringSubmatch(m)[1]
		return "'" + n.Topic(topic) + "' in topics"
	})
}

// Extract は名前空間化されたトピック名から環境名と元のトピック名を取り出す。
// プレフィックスが一致しない場合はエラーを返す。
func (n *Namespace) Extract(namespaced string) (env, topic string, err error) {
	rest, ok := strings.CutPrefix(namespaced, separator+escape(n.prefix)+separator)
	if !ok {
		return "", "", fmt.Errorf("名前空間化されたトピックではありません: %s (prefix: %s)", namespaced, n.prefix)
	}

	encodedEnv, encodedTopic, ok := strings.Cut(rest, separator)
	if !ok || encodedTopic == "" {
		return "", "", fmt.Errorf("トピック名を抽出できません: %s (prefix: %s)", namespaced, n.prefix)
	}

	if env, err = url.PathUnescape(encodedEnv); err != nil {
		return "", "", fmt.Errorf("環境名のデコードに失敗: %w", err)
	}
	if topic, err = url.PathUnescape(encodedTopic); err != nil {
		return "", "", fmt.Errorf("トピック名のデコードに失敗: %w", err)
	}
	return env, topic, nil
}

// Owns は名前空間化されたトピックがこのNamespaceの環境に属する場合、元のトピック名を返す。
func (n *Namespace) Owns(namespaced string) (string, bool) {
	env, topic, err := n.Extract(namespaced)
	if err != nil || env != n.env {
		return "", false
	}
	return topic, true
}

// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DescriptionSanitizerService はスクレイプ由来の出品説明文をサニタイズする。
// マーケットプレイスのページから抽出したテキストにはHTML断片や
// スクリプトが混入しうるため、bluemondayの全タグ除去ポリシーで
// プレーンテキストに落としてから永続化する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DescriptionSanitizerService は出品説明文のサニタイズ機能のインターフェースを定義する。
// 出品候補の正規化時（永続化前）に使用される。
type DescriptionSanitizerService interface {
	// Sanitize は説明文からHTMLタグをすべて除去し、プレーンテキストを返す。
	// HTMLエンティティはデコードされ、連続する空白は1つに畳まれる。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// descriptionSanitizer はDescriptionSanitizerServiceの実装。
// bluemondayのStrictPolicy（全タグ除去）を保持し、スレッドセーフに動作する。
type descriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer はDescriptionSanitizerServiceの新しいインスタンスを生成する。
func NewDescriptionSanitizer() *descriptionSanitizer {
	return &descriptionSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は説明文からHTMLタグをすべて除去し、プレーンテキストを返す。
func (s *descriptionSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	stripped := s.policy.Sanitize(raw)

	// StrictPolicyは出力をエンティティエスケープするため、表示用にデコードして戻す
	decoded := html.UnescapeString(stripped)

	// タグ除去で生じた連続空白・改行を1つのスペースに畳む
	return strings.Join(strings.Fields(decoded), " ")
}

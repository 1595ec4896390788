// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// SSRFGuardService はSSRF防止機能のインターフェースを定義する。
// スクレイプ対象URLへのリクエストと候補出品のURL検証の両方で使用される。
// アダプターが組み立てるURLは外部由来の断片（相対リンク等）を含むため、
// 内部ネットワークへ向かうURLを送出しないことをここで保証する。
type SSRFGuardService interface {
	// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
	// safeurlがDialerレベルでDNS解決後のIPアドレスも検証するため、
	// DNS再バインディング攻撃にも対応する。
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client

	// ValidateURL はURLの安全性をDNS解決なしで静的に検証する。
	ValidateURL(rawURL string) error
}

// allowedSchemes はスクレイプ対象として許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks はブロック対象のネットワーク範囲。
// プライベートIP (RFC 1918)、ループバック、リンクローカル
// （クラウドメタデータIP 169.254.169.254を含む）、およびIPv6の同等範囲。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

// blockedHostSuffixes はIPでないホスト名のうちブロック対象のもの。
// localhostそのものと、内部向け名前解決によく使われるサフィックス。
var blockedHostSuffixes = []string{
	"localhost",
	".localhost",
	".local",
	".internal",
}

func mustParseCIDRs(cidrs ...string) []net.IPNet {
	networks := make([]net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR: %s: %v", cidr, err))
		}
		networks = append(networks, *network)
	}
	return networks
}

// ssrfGuard はSSRFGuardServiceの実装。
type ssrfGuard struct{}

// NewSSRFGuard はSSRFGuardServiceの新しいインスタンスを生成する。
func NewSSRFGuard() *ssrfGuard {
	return &ssrfGuard{}
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
// マーケットプレイスとリレーAPIは80/443でしか公開されないため、
// それ以外のポートへの接続は許可しない。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	wrappedClient := safeurl.Client(config)
	return wrappedClient.Client
}

// ValidateURL はURLの安全性をDNS解決なしで静的に検証する。
// 出品候補のURLを永続化・フェッチする前の事前チェックとして使用する。
// DNS再バインディング攻撃はNewSafeClientが生成するクライアント側の
// Dialer検証で防止されるため、ここではスキーム・ホスト・リテラルIPのみを見る。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	// userinfo入りのURLはマーケットプレイスの出品URLには現れない。
	// 認証情報の持ち出しにも使われるため一律拒否する。
	if parsed.User != nil {
		return fmt.Errorf("URL with userinfo rejected: %s", rawURL)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if isBlockedHostname(host) {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func isBlockedHostname(host string) bool {
	lower := strings.ToLower(host)
	for _, blocked := range blockedHostSuffixes {
		if strings.HasPrefix(blocked, ".") {
			if strings.HasSuffix(lower, blocked) {
				return true
			}
		} else if lower == blocked {
			return true
		}
	}
	return false
}

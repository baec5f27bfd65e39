package middleware

import "net/http"

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// /d/配下は描画済みHTMLをそのまま返すため、CSPでスクリプトの実行元を
// 自サイトに限定する。記事本文は著者自身が書くがコメントは第三者由来で、
// サニタイズをすり抜けた場合の第二の防壁になる。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			w.Header().Set("Content-Security-Policy",
				"default-src 'self'; img-src https: data:; style-src 'self' 'unsafe-inline'")
			next.ServeHTTP(w, r)
		})
	}
}

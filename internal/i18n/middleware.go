package i18n

import (
	"net/http"

	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// Middleware injects a localizer for the request language into the
// request context. The Accept-Language header, when present, overrides
// the configured default.
func Middleware(lang string) func(http.Handler) http.Handler {
	fallback := NewLocalizer(lang)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := fallback
			if accept := r.Header.Get("Accept-Language"); accept != "" {
				loc = i18n.NewLocalizer(bundle, accept, lang)
			}
			ctx := WithLocalizer(r.Context(), loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

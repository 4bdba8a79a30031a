package i18n

import "net/http"

// Middleware injects a localizer matching the request's Accept-Language
// header into every request context. fallback is used when the header names
// no supported language.
func Middleware(fallback string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := Match(r.Header.Get("Accept-Language"), fallback)
			w.Header().Set("Content-Language", lang)
			next.ServeHTTP(w, r.WithContext(WithLang(r.Context(), lang)))
		})
	}
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func urlParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

func pathID(r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(urlParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// detailBody mirrors the error envelope clients expect: {"detail": "..."}.
type detailBody struct {
	Detail string `json:"detail"`
}

// WriteDetail writes a JSON error body with the given status. Content-Length
// is set explicitly so encrypted routes can frame error bodies too.
func WriteDetail(w http.ResponseWriter, status int, detail string) {
	data, _ := json.Marshal(detailBody{Detail: detail})
	data = append(data, '\n')
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(status)
	w.Write(data)
}

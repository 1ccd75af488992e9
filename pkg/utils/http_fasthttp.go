package utils

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/valyala/fasthttp"
)

var ErrEmptyBody = errors.New("empty request body")

// JSONErrorFast writes {"error": message} with status.
func JSONErrorFast(ctx *fasthttp.RequestCtx, status int, message string) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	_ = json.NewEncoder(ctx).Encode(map[string]string{"error": message})
}

// JSONWriteFast writes v as JSON. A zero status leaves the current one.
func JSONWriteFast(ctx *fasthttp.RequestCtx, status int, v interface{}) error {
	ctx.SetContentType("application/json")
	if status != 0 {
		ctx.SetStatusCode(status)
	}
	return json.NewEncoder(ctx).Encode(v)
}

// ReadJSONFast decodes the request body into v, rejecting unknown fields.
func ReadJSONFast(ctx *fasthttp.RequestCtx, v interface{}) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return ErrEmptyBody
	}
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(ctx *fasthttp.RequestCtx) string {
	h := strings.TrimSpace(string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization)))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

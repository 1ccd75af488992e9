package utils

import (
	"encoding/json"
	"testing"

	"github.com/valyala/fasthttp"
)

func TestBearerToken(t *testing.T) {
	tests := []struct{ header, want string }{
		{"Bearer abc", "abc"},
		{"bearer  xyz ", "xyz"},
		{"Basic abc", ""},
		{"", ""},
	}
	for _, tc := range tests {
		ctx := &fasthttp.RequestCtx{}
		if tc.header != "" {
			ctx.Request.Header.Set("Authorization", tc.header)
		}
		if got := BearerToken(ctx); got != tc.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestReadJSONFast(t *testing.T) {
	var v struct {
		Text string `json:"text"`
	}
	ctx := &fasthttp.RequestCtx{}
	if err := ReadJSONFast(ctx, &v); err != ErrEmptyBody {
		t.Fatalf("want ErrEmptyBody, got %v", err)
	}
	ctx.Request.SetBodyString(`{"text":"hi"}`)
	if err := ReadJSONFast(ctx, &v); err != nil || v.Text != "hi" {
		t.Fatalf("decode: %v %+v", err, v)
	}
	ctx.Request.SetBodyString(`{"text":"hi","extra":1}`)
	if err := ReadJSONFast(ctx, &v); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestJSONErrorFast(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	JSONErrorFast(ctx, 404, "nope")
	if ctx.Response.StatusCode() != 404 {
		t.Fatalf("status %d", ctx.Response.StatusCode())
	}
	var body map[string]string
	if err := json.Unmarshal(ctx.Response.Body(), &body); err != nil || body["error"] != "nope" {
		t.Fatalf("body %s err %v", ctx.Response.Body(), err)
	}
}

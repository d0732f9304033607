package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/eteu-technologies/hook-deployer/internal/signature"
)

func postWebhook(ctx context.Context, baseURL, app, secret string, body []byte) (reply string, err error) {
	endpoint := strings.TrimRight(baseURL, "/") + "/webhook/" + url.PathEscape(app)

	var req *http.Request
	if req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body)); err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.Header, signature.Sign(body, secret))

	var resp *http.Response
	if resp, err = http.DefaultClient.Do(req); err != nil {
		return
	}
	defer resp.Body.Close()

	var data []byte
	if data, err = io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err != nil {
		return
	}
	reply = strings.TrimSpace(string(data))

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("http %d: %s", resp.StatusCode, reply)
	}
	return
}

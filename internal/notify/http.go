package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var errPanic = errors.New("channel panicked")

func postJSON(ctx context.Context, client *http.Client, endpoint string, payload interface{}) (err error) {
	var body []byte
	if body, err = json.Marshal(payload); err != nil {
		return
	}

	var req *http.Request
	if req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body)); err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	if client == nil {
		client = http.DefaultClient
	}

	var resp *http.Response
	if resp, err = client.Do(req); err != nil {
		return
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = fmt.Errorf("http %d", resp.StatusCode)
	}
	return
}

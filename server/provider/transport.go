package provider

import (
	"bytes"
	"context"
	"io"
	"net/http"
)

// rawBody holds the undecoded response of one upstream call, as sent by the
// API, for error excerpts and the catalog filter.
type rawBody struct {
	status int
	body   []byte
}

type rawBodyKey struct{}

// recordBody makes the recording transport keep the response of requests
// made with the returned context.
func recordBody(ctx context.Context, rb *rawBody) context.Context {
	return context.WithValue(ctx, rawBodyKey{}, rb)
}

// recordingTransport buffers response bodies for requests whose context asks
// for it, then hands go-openai an equivalent body to decode.
type recordingTransport struct {
	base http.RoundTripper
}

func (t *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	rb, ok := req.Context().Value(rawBodyKey{}).(*rawBody)
	if !ok {
		return resp, nil
	}

	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	rb.status = resp.StatusCode
	rb.body = data
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}

// withRecording returns a copy of hc whose transport records bodies.
func withRecording(hc *http.Client) *http.Client {
	if hc == nil {
		hc = &http.Client{}
	}
	clone := *hc
	base := clone.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	clone.Transport = &recordingTransport{base: base}
	return &clone
}

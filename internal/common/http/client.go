// internal/common/http/client.go
package http

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// TokenSource supplies bearer tokens for outgoing requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	userAgent  string
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: "campaign-client/1.0",
	}
}

// NewClientFrom wraps an existing *http.Client, typically an httptest server client.
func NewClientFrom(hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{httpClient: hc, userAgent: "campaign-client/1.0"}
}

// WithTokenSource attaches a bearer token source to every request.
func (c *Client) WithTokenSource(ts TokenSource) *Client {
	c.tokens = ts
	return c
}

// AuthHeader returns the headers needed to authenticate against the backend.
func (c *Client) AuthHeader(ctx context.Context) (http.Header, error) {
	h := http.Header{}
	if c.userAgent != "" {
		h.Set("User-Agent", c.userAgent)
	}
	if c.tokens == nil {
		return h, nil
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire token: %w", err)
	}
	h.Set("Authorization", "Bearer "+token)
	return h, nil
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	headers, err := c.AuthHeader(ctx)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		if req.Header.Get(k) == "" {
			req.Header[k] = v
		}
	}
	return c.httpClient.Do(req)
}

// Form is a multipart/form-data body under construction.
type Form struct {
	parts []formPart
}

type formPart struct {
	name     string
	value    string
	filename string
	file     io.Reader
}

func NewForm() *Form {
	return &Form{}
}

// Field appends a plain text field.
func (f *Form) Field(name, value string) *Form {
	f.parts = append(f.parts, formPart{name: name, value: value})
	return f
}

// File appends a file part read from r.
func (f *Form) File(name, filename string, r io.Reader) *Form {
	f.parts = append(f.parts, formPart{name: name, filename: filename, file: r})
	return f
}

// PostMultipart streams form to url through an io.Pipe so large documents are
// never buffered in memory.
func (c *Client) PostMultipart(ctx context.Context, url string, form *Form) (*http.Response, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		err := writeForm(writer, form)
		if err == nil {
			err = writer.Close()
		}
		pw.CloseWithError(err)
		errCh <- err
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.DoWithContext(ctx, req)
	if err != nil {
		pr.CloseWithError(err)
		return nil, err
	}

	// A server that rejects the request early may stop reading the form; its
	// status is more useful than the resulting write error.
	if writeErr := <-errCh; writeErr != nil && resp.StatusCode < http.StatusBadRequest {
		resp.Body.Close()
		return nil, fmt.Errorf("write form: %w", writeErr)
	}
	return resp, nil
}

func writeForm(w *multipart.Writer, form *Form) error {
	if form == nil {
		return nil
	}
	for _, p := range form.parts {
		if p.file == nil {
			if err := w.WriteField(p.name, p.value); err != nil {
				return fmt.Errorf("write field %s: %w", p.name, err)
			}
			continue
		}
		part, err := w.CreateFormFile(p.name, p.filename)
		if err != nil {
			return fmt.Errorf("create form file %s: %w", p.name, err)
		}
		if _, err := io.Copy(part, p.file); err != nil {
			return fmt.Errorf("copy file %s: %w", p.name, err)
		}
	}
	return nil
}

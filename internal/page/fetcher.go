// internal/page/fetcher.go
package page

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/xkilldash9x/villagebot/api/schemas"
	"github.com/xkilldash9x/villagebot/internal/session"
)

// Fetcher loads pages through a session client and parses them.
type Fetcher struct {
	client *session.Client
	logger *zap.Logger
}

// NewFetcher creates a Fetcher on top of client.
func NewFetcher(client *session.Client, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, logger: logger.Named("fetcher")}
}

// Fetch GETs ref and parses the result. A non-OK status is UNREACHABLE.
// Cookies from the response are already merged into s when Fetch returns,
// including on error.
func (f *Fetcher) Fetch(ctx context.Context, s *session.Session, ref string) (*Document, error) {
	const op = "page.fetch"
	resp, err := f.client.Get(ctx, s, ref)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, schemas.Errorf(schemas.ErrCodeUnreachable, op, nil, "GET %s returned status %d", resp.URL.Path, resp.StatusCode)
	}
	return f.parse(op, resp)
}

// Submit POSTs values to ref as a form and parses the result. A non-OK
// status is SUBMISSION_FAILED.
func (f *Fetcher) Submit(ctx context.Context, s *session.Session, ref string, values url.Values) (*Document, error) {
	const op = "page.submit"
	resp, err := f.client.PostForm(ctx, s, ref, values)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, schemas.Errorf(schemas.ErrCodeSubmissionFailed, op, nil, "POST %s returned status %d", resp.URL.Path, resp.StatusCode)
	}
	return f.parse(op, resp)
}

func (f *Fetcher) parse(op string, resp *session.Response) (*Document, error) {
	doc, err := NewDocument(resp.URL, resp.StatusCode, resp.Body)
	if err != nil {
		return nil, schemas.NewError(schemas.ErrCodeUnreachable, op, fmt.Sprintf("unparseable page %s", resp.URL.Path), err)
	}
	f.logger.Debug("Page parsed.", zap.String("url", resp.URL.Path), zap.Int("bytes", len(resp.Body)))
	return doc, nil
}

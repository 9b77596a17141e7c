// Package opencast is a minimal client for the Opencast series and ingest
// REST endpoints.
package opencast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultIngestTimeout  = 6000 * time.Second
	DefaultWorkflow       = "bbb-upload"
)

// Client talks to one Opencast admin node. Two timeout classes apply: the
// request timeout bounds metadata calls as a whole and connection setup
// for every call; the ingest timeout bounds track uploads and the final
// ingest, whose duration grows with the recording size.
type Client struct {
	baseURL        string
	user           string
	password       string
	requestTimeout time.Duration
	ingestTimeout  time.Duration
	client         *http.Client
}

func NewClient(baseURL, user, password string, requestTimeout, ingestTimeout time.Duration) *Client {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	if ingestTimeout <= 0 {
		ingestTimeout = DefaultIngestTimeout
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		user:           user,
		password:       password,
		requestTimeout: requestTimeout,
		ingestTimeout:  ingestTimeout,
		client:         &http.Client{Transport: newTransport(requestTimeout)},
	}
}

func newTransport(connectTimeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = connectTimeout
	return t
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("opencast %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// upload is a file part sent as the "body" field of a multipart request.
type upload struct {
	filename string
	open     func() (io.ReadCloser, error)
}

func fileUpload(path string) *upload {
	return &upload{
		filename: filepath.Base(path),
		open:     func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

func bytesUpload(filename string, data []byte) *upload {
	return &upload{
		filename: filename,
		open:     func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

func (c *Client) do(ctx context.Context, method, path string, timeout time.Duration, form url.Values, file *upload) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		body        io.Reader
		contentType string
		send        func()
	)
	switch {
	case file != nil:
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		contentType = mw.FormDataContentType()
		body = pr
		send = func() {
			go func() {
				pw.CloseWithError(writeMultipart(mw, form, file))
			}()
		}
	case len(form) > 0:
		body = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if send != nil {
		send()
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("opencast %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return string(respBody), nil
}

func writeMultipart(mw *multipart.Writer, form url.Values, file *upload) error {
	for key, values := range form {
		for _, v := range values {
			if err := mw.WriteField(key, v); err != nil {
				return err
			}
		}
	}

	src, err := file.open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	part, err := mw.CreateFormFile("body", file.filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("copy upload: %w", err)
	}
	return mw.Close()
}

// Series

type seriesList struct {
	Series []struct {
		Identifier string `json:"identifier"`
		Title      string `json:"title"`
	} `json:"series"`
}

// ListSeries returns the identifiers of all known series.
func (c *Client) ListSeries(ctx context.Context) ([]string, error) {
	body, err := c.do(ctx, http.MethodGet, "/series/allSeriesIdTitle.json", c.requestTimeout, nil, nil)
	if err != nil {
		return nil, err
	}
	var list seriesList
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		return nil, fmt.Errorf("unmarshal series list: %w", err)
	}
	ids := make([]string, 0, len(list.Series))
	for _, s := range list.Series {
		ids = append(ids, s.Identifier)
	}
	return ids, nil
}

func (c *Client) CreateSeries(ctx context.Context, dublinCore, acl string) error {
	form := url.Values{
		"series":   {dublinCore},
		"acl":      {acl},
		"override": {"false"},
	}
	_, err := c.do(ctx, http.MethodPost, "/series/", c.requestTimeout, form, nil)
	return err
}

func (c *Client) SeriesACL(ctx context.Context, seriesID string) (string, error) {
	return c.do(ctx, http.MethodGet, "/series/"+url.PathEscape(seriesID)+"/acl.xml", c.requestTimeout, nil, nil)
}

func (c *Client) UpdateSeriesACL(ctx context.Context, seriesID, acl string) error {
	form := url.Values{
		"acl":      {acl},
		"override": {"false"},
	}
	_, err := c.do(ctx, http.MethodPost, "/series/"+url.PathEscape(seriesID)+"/accesscontrol", c.requestTimeout, form, nil)
	return err
}

// Events

// EventExists probes the external API for an event. A 404 means the id
// is free; any other failure is returned to the caller.
func (c *Client) EventExists(ctx context.Context, id string) (bool, error) {
	_, err := c.do(ctx, http.MethodGet, "/api/events/"+url.PathEscape(id), c.requestTimeout, nil, nil)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Ingest. Every call returns the updated media package XML.

func (c *Client) CreateMediaPackage(ctx context.Context) (string, error) {
	return c.do(ctx, http.MethodGet, "/ingest/createMediaPackage", c.requestTimeout, nil, nil)
}

func (c *Client) CreateMediaPackageWithID(ctx context.Context, id string) (string, error) {
	return c.do(ctx, http.MethodPut, "/ingest/createMediaPackageWithID/"+url.PathEscape(id), c.requestTimeout, nil, nil)
}

// AddPartialTrack uploads the file at path, starting startMs into the
// recording. The upload is bounded by the ingest timeout.
func (c *Client) AddPartialTrack(ctx context.Context, mediaPackage, flavor string, startMs int64, path string) (string, error) {
	form := url.Values{
		"flavor":       {flavor},
		"startTime":    {strconv.FormatInt(startMs, 10)},
		"mediaPackage": {mediaPackage},
	}
	return c.do(ctx, http.MethodPost, "/ingest/addPartialTrack", c.ingestTimeout, form, fileUpload(path))
}

func (c *Client) AddDCCatalog(ctx context.Context, mediaPackage, dublinCore string) (string, error) {
	form := url.Values{
		"mediaPackage": {mediaPackage},
		"dublinCore":   {dublinCore},
	}
	return c.do(ctx, http.MethodPost, "/ingest/addDCCatalog", c.requestTimeout, form, nil)
}

func (c *Client) AddCatalog(ctx context.Context, mediaPackage, flavor, filename string, data []byte) (string, error) {
	form := url.Values{
		"mediaPackage": {mediaPackage},
		"flavor":       {flavor},
	}
	return c.do(ctx, http.MethodPost, "/ingest/addCatalog", c.requestTimeout, form, bytesUpload(filename, data))
}

func (c *Client) AddAttachment(ctx context.Context, mediaPackage, flavor, filename string, data []byte) (string, error) {
	form := url.Values{
		"mediaPackage": {mediaPackage},
		"flavor":       {flavor},
	}
	return c.do(ctx, http.MethodPost, "/ingest/addAttachment", c.requestTimeout, form, bytesUpload(filename, data))
}

// Ingest starts the workflow. It uses the long timeout since the server
// inspects every media file before answering.
func (c *Client) Ingest(ctx context.Context, mediaPackage, workflow string) (string, error) {
	if workflow == "" {
		workflow = DefaultWorkflow
	}
	form := url.Values{"mediaPackage": {mediaPackage}}
	return c.do(ctx, http.MethodPost, "/ingest/ingest/"+url.PathEscape(workflow), c.ingestTimeout, form, nil)
}

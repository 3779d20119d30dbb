package usefetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return &bytes.Buffer{}
	},
}

// Response is returned after executing Fetcher.Do
// A response interceptor may replace it or modify its http.Response
type Response struct {
	request    *Request
	response   *http.Response
	body       io.Reader
	copiedBody *bytes.Buffer

	// set through Options
	keepBody bool

	// used by Close()
	bodyClosed bool

	decodeFunc DecodeFunc
}

// NewResponse returns a Response with the given Request and http.Response
func NewResponse(c context.Context, req *Request, resp *http.Response) *Response {
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	if resp.Body == nil {
		resp.Body = http.NoBody
	}
	return &Response{
		request:  req,
		response: resp,
		body:     resp.Body,
	}
}

// Decode decodes the response body into the given object (v) using the specified decoder
// NOTE: v is assumed to be a pointer
func (resp *Response) Decode(c context.Context, v interface{}, opts ...DecodeOption) error {
	// execute all options
	for _, opt := range opts {
		if err := opt(c, resp); err != nil {
			return err
		}
	}

	// auto-set the decoder based on the response header if one hasn't been specified
	if resp.decodeFunc == nil {
		resp.decodeFunc = resp.detectDecoder()
	}

	defer resp.response.Body.Close()

	if resp.decodeFunc == nil {
		return errors.New("no valid decoder specified")
	}

	// the body was already drained by Bytes, decode the copy
	src := resp.body
	if resp.bodyClosed && resp.copiedBody != nil {
		src = bytes.NewReader(resp.copiedBody.Bytes())
	}

	return resp.decodeFunc(src, v)
}

// detectDecoder auto-selects a decoder based on the response header
func (resp *Response) detectDecoder() DecodeFunc {
	ct := resp.response.Header.Get(ContentTypeHeader)
	if strings.HasPrefix(ct, ContentTypeJSON) || strings.HasSuffix(strings.Split(ct, ";")[0], "+json") {
		return jsonDecodeFunc
	}
	return nil
}

// Bytes reads the body into a buffer and then returns the bytes
// returns error based on the body Close()
func (resp *Response) Bytes() ([]byte, error) {
	if resp.copiedBody != nil && (resp.bodyClosed || resp.keepBody) {
		return resp.copiedBody.Bytes(), nil
	}
	buf := bufferPool.Get().(*bytes.Buffer)
	if _, err := buf.ReadFrom(resp.response.Body); err != nil {
		bufferPool.Put(buf)
		return nil, err
	}
	if err := resp.response.Body.Close(); err != nil {
		return nil, err
	}
	resp.bodyClosed = true
	resp.copiedBody = buf
	return buf.Bytes(), nil
}

// Body returns the response body as io.Reader
// NOTE: original io.ReadCloser body is closed when Close is called by the user
func (resp *Response) Body() io.Reader {
	if resp.copiedBody != nil {
		return bytes.NewReader(resp.copiedBody.Bytes())
	}
	return resp.response.Body
}

// Close handles any needed clean-up after the user is done with the Response object
func (resp *Response) Close() error {
	if resp.copiedBody != nil {
		resp.copiedBody.Reset()
		bufferPool.Put(resp.copiedBody)
		resp.copiedBody = nil
	}
	if resp.bodyClosed {
		return nil
	}
	resp.bodyClosed = true
	if err := resp.response.Body.Close(); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// OK reports whether the status code is in the 2xx class
func (resp *Response) OK() bool {
	return resp.response.StatusCode >= 200 && resp.response.StatusCode <= 299
}

func (resp *Response) StatusCode() int {
	return resp.response.StatusCode
}

func (resp *Response) Status() string {
	return resp.response.Status
}

func (resp *Response) Header() http.Header {
	return resp.response.Header
}

// Request returns the Request that produced the response
func (resp *Response) Request() *Request {
	return resp.request
}

// HTTPResponse exposes the underlying http.Response for interceptors
func (resp *Response) HTTPResponse() *http.Response {
	return resp.response
}

package usefetch

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/nozzle/usefetch/internal/json"
)

// DecodeFunc decodes a response body into v
type DecodeFunc func(io.Reader, interface{}) error

var errInvalidJSON = errors.New("body is not valid json")

// jsonDecodeFunc rejects the whole body unless it is exactly one JSON value
func jsonDecodeFunc(r io.Reader, v interface{}) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if !json.Valid(b) {
		return errInvalidJSON
	}
	return json.Unmarshal(b, v)
}

// DecodeOption is a func to configure optional Response settings
type DecodeOption func(c context.Context, resp *Response) error

// DecodeWithJSON json decodes the body of the Response
func DecodeWithJSON() DecodeOption {
	return func(c context.Context, resp *Response) error {
		resp.decodeFunc = jsonDecodeFunc
		return nil
	}
}

// DecodeWithCopiedBody makes a copy of the body available in the response.
// This is helpful if you anticipate the decode failing and want to do a full
// dump of the response.
func DecodeWithCopiedBody() DecodeOption {
	return func(c context.Context, resp *Response) error {
		if resp.bodyClosed {
			return nil
		}
		buf := bufferPool.Get().(*bytes.Buffer)
		resp.body = io.TeeReader(resp.response.Body, buf)
		resp.copiedBody = buf
		resp.keepBody = true
		return nil
	}
}

// DecodeWithCustomFunc uses the provided DecodeFunc to Decode the response
func DecodeWithCustomFunc(decodeFunc DecodeFunc) DecodeOption {
	return func(c context.Context, resp *Response) error {
		resp.decodeFunc = decodeFunc
		return nil
	}
}

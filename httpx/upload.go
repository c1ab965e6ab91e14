package httpx

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"sync"

	"github.com/byte4ever/resilient"
)

// BodySource says where the stream of an upload comes from.
//
// A stream can be read once. Uploads that may be retried therefore take a
// factory ([StreamFactory]) invoked once per attempt, or a stream buffered
// in full before the first attempt ([BufferedStream]). A bare stream
// ([SingleStream]) is only accepted when nothing can retry the call.
type BodySource struct {
	factory  func() (io.ReadCloser, error)
	buffered io.Reader
	single   io.ReadCloser
}

// StreamFactory returns a source that calls open once per attempt,
// retries included. Each stream is owned by its attempt and closed once
// that attempt's payload is finalized, whether the attempt succeeds or not.
// An error or nil stream from open fails the call with [ErrNilStream]
// without retrying.
func StreamFactory(open func() (io.ReadCloser, error)) BodySource {
	return BodySource{factory: open}
}

// BufferedStream returns a source that reads r to the end before the first
// attempt and replays the bytes on every attempt. If r is an [io.Closer] it
// is closed after reading.
func BufferedStream(r io.Reader) BodySource {
	return BodySource{buffered: r}
}

// SingleStream returns a source sending rc as is. Calls using it fail with
// [ErrSingleUseStream] unless the client has no retry budget, since both
// retry layers draw from that budget.
func SingleStream(rc io.ReadCloser) BodySource {
	return BodySource{single: rc}
}

// Upload describes a single-part multipart/form-data upload.
type Upload struct {
	Body BodySource
	// FieldName is the form field of the part. Required.
	FieldName string
	FileName  string
	// ContentType of the part. Empty means application/octet-stream.
	ContentType string
}

// opener resolves the body source into a per-attempt stream factory.
// canRetry reports whether any layer may attempt the call more than once.
func (s BodySource) opener(canRetry bool) (func() (io.ReadCloser, error), error) {
	switch {
	case s.factory != nil:
		return s.factory, nil

	case s.buffered != nil:
		data, err := io.ReadAll(s.buffered)
		if c, ok := s.buffered.(io.Closer); ok {
			_ = c.Close()
		}

		if err != nil {
			return nil, fmt.Errorf("httpx: buffer upload stream: %w", err)
		}

		return func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		}, nil

	case s.single != nil:
		if canRetry {
			_ = s.single.Close()
			return nil, ErrSingleUseStream
		}

		var once sync.Once

		return func() (io.ReadCloser, error) {
			var rc io.ReadCloser
			once.Do(func() { rc = s.single })

			if rc == nil {
				return nil, ErrSingleUseStream
			}

			return rc, nil
		}, nil

	default:
		return nil, fmt.Errorf("%w: no body source", ErrInvalidUpload)
	}
}

// payload turns the upload into a streamed multipart body. The boundary is
// fixed for the whole call so the Content-Type header stays valid for every
// regenerated body.
func (u Upload) payload(canRetry bool) (payload, error) {
	if u.FieldName == "" {
		return payload{}, fmt.Errorf("%w: empty field name", ErrInvalidUpload)
	}

	open, err := u.Body.opener(canRetry)
	if err != nil {
		return payload{}, err
	}

	boundary := multipart.NewWriter(io.Discard).Boundary()

	return payload{
		open:        u.multipartBody(open, boundary),
		contentType: "multipart/form-data; boundary=" + boundary,
	}, nil
}

// multipartBody returns a body factory. Each invocation opens one stream and
// pipes it through a multipart writer; the stream is closed as soon as the
// payload is finalized or the reading side goes away.
func (u Upload) multipartBody(
	open func() (io.ReadCloser, error),
	boundary string,
) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		stream, err := open()
		if err != nil {
			return nil, resilient.Permanent(fmt.Errorf("%w: %w", ErrNilStream, err))
		}

		if stream == nil {
			return nil, resilient.Permanent(ErrNilStream)
		}

		pr, pw := io.Pipe()

		go u.writeMultipart(pw, stream, boundary)

		return pr, nil
	}
}

func (u Upload) writeMultipart(pw *io.PipeWriter, stream io.ReadCloser, boundary string) {
	mw := multipart.NewWriter(pw)

	err := mw.SetBoundary(boundary)
	if err == nil {
		var part io.Writer

		part, err = u.createPart(mw)
		if err == nil {
			_, err = io.Copy(part, stream)
		}
	}

	if err == nil {
		err = mw.Close()
	}

	if closeErr := stream.Close(); err == nil {
		err = closeErr
	}

	_ = pw.CloseWithError(err)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (u Upload) createPart(mw *multipart.Writer) (io.Writer, error) {
	if u.ContentType == "" {
		return mw.CreateFormFile(u.FieldName, u.FileName)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(
		`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(u.FieldName),
		quoteEscaper.Replace(u.FileName),
	))
	h.Set("Content-Type", u.ContentType)

	return mw.CreatePart(h)
}

package usefetch

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/nozzle/usefetch/internal/json"
	"go.uber.org/zap"
)

// File is a single file part of a multipart payload.
type File struct {
	Name        string
	ContentType string
	Data        io.Reader
}

// Form is a multipart/form-data payload. Parts are written in the order they
// were appended. File readers are consumed when the form is sent.
type Form struct {
	parts []formPart
}

type formPart struct {
	field string
	value string
	file  *File
}

// NewForm returns an empty Form.
func NewForm() *Form {
	return &Form{}
}

// Append adds a plain value field.
func (f *Form) Append(field, value string) *Form {
	f.parts = append(f.parts, formPart{field: field, value: value})
	return f
}

// AppendFile adds a file part under field.
func (f *Form) AppendFile(field string, file File) *Form {
	f.parts = append(f.parts, formPart{field: field, file: &file})
	return f
}

// Len returns the number of parts.
func (f *Form) Len() int {
	return len(f.parts)
}

// Fields returns the field name of every part, in order.
func (f *Form) Fields() []string {
	fields := make([]string, len(f.parts))
	for i, p := range f.parts {
		fields[i] = p.field
	}
	return fields
}

// String is a stringer for Form, used when fingerprinting hook options.
func (f *Form) String() string {
	var sb strings.Builder
	for i, p := range f.parts {
		if i > 0 {
			sb.WriteString("&")
		}
		if p.file != nil {
			fmt.Fprintf(&sb, "%s=@%s", p.field, p.file.Name)
			continue
		}
		fmt.Fprintf(&sb, "%s=%s", p.field, p.value)
	}
	return sb.String()
}

// MarshalJSON describes the form's shape. It never reads file data.
func (f *Form) MarshalJSON() ([]byte, error) {
	return json.Marshal("form:" + f.String())
}

// encode streams the form through a pipe and returns the reader together with
// the Content-Type carrying the boundary.
func (f *Form) encode(logger *zap.Logger) (io.Reader, string) {
	pipeReader, pipeWriter := io.Pipe()
	mpw := multipart.NewWriter(pipeWriter)
	contentType := mpw.FormDataContentType()

	go func() {
		err := f.write(mpw)
		if err == nil {
			err = mpw.Close()
		}
		if err != nil {
			logger.Error("multipart encoding failed", zap.Error(err))
		}
		pipeWriter.CloseWithError(err)
	}()

	return pipeReader, contentType
}

func (f *Form) write(mpw *multipart.Writer) error {
	for _, p := range f.parts {
		if p.file == nil {
			if err := mpw.WriteField(p.field, p.value); err != nil {
				return fmt.Errorf("write field %q: %w", p.field, err)
			}
			continue
		}

		part, err := mpw.CreatePart(fileHeader(p.field, p.file))
		if err != nil {
			return fmt.Errorf("create part %q: %w", p.field, err)
		}
		if p.file.Data == nil {
			continue
		}
		if _, err = io.Copy(part, p.file.Data); err != nil {
			return fmt.Errorf("copy file %q: %w", p.file.Name, err)
		}
		if closer, ok := p.file.Data.(io.Closer); ok {
			closer.Close()
		}
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func fileHeader(field string, file *File) textproto.MIMEHeader {
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(file.Name)))
	h.Set(ContentTypeHeader, contentType)
	return h
}

var errNilUploadFile = errors.New("nil file in upload payload")

// newUploadForm builds the payload for Hook.Upload: a *Form passes through,
// a single file or a slice of files is appended under fieldName.
func newUploadForm(files interface{}, fieldName string) (*Form, error) {
	if fieldName == "" {
		fieldName = "file"
	}

	switch v := files.(type) {
	case *Form:
		return v, nil
	case File:
		return NewForm().AppendFile(fieldName, v), nil
	case *File:
		if v == nil {
			return nil, errNilUploadFile
		}
		return NewForm().AppendFile(fieldName, *v), nil
	case []File:
		form := NewForm()
		for _, file := range v {
			form.AppendFile(fieldName, file)
		}
		return form, nil
	case []*File:
		form := NewForm()
		for _, file := range v {
			if file == nil {
				return nil, errNilUploadFile
			}
			form.AppendFile(fieldName, *file)
		}
		return form, nil
	default:
		return nil, fmt.Errorf("unsupported upload payload %T", files)
	}
}

package apiclient

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
)

type formFile struct {
	field       string
	filename    string
	contentType string
	content     []byte
}

type formField struct {
	name  string
	value string
}

// Form is a multipart payload, used for prescription, product and banner uploads.
type Form struct {
	fields []formField
	files  []formFile
}

func NewForm() *Form {
	return &Form{}
}

func (f *Form) AddField(name, value string) *Form {
	f.fields = append(f.fields, formField{name: name, value: value})
	return f
}

func (f *Form) AddFile(field, filename, contentType string, content []byte) *Form {
	f.files = append(f.files, formFile{field: field, filename: filename, contentType: contentType, content: content})
	return f
}

// encode returns the multipart body and its content type, which carries the boundary.
func (f *Form) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, field := range f.fields {
		err := writer.WriteField(field.name, field.value)
		if err != nil {
			return nil, "", err
		}
	}
	for _, file := range f.files {
		header := textproto.MIMEHeader{}
		header.Set(
			"Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, file.field, file.filename),
		)
		contentType := file.contentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		_, err = part.Write(file.content)
		if err != nil {
			return nil, "", err
		}
	}
	err := writer.Close()
	if err != nil {
		return nil, "", err
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

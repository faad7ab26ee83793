package rest

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/jsonld"
)

type fileMetadata struct {
	ID        string `json:"@id"`
	Self      string `json:"_self"`
	Filename  string `json:"_filename"`
	MediaType string `json:"_mediaType"`
	Bytes     int64  `json:"_bytes"`
	Location  string `json:"_location"`
	Digest    struct {
		Algorithm string `json:"_algorithm"`
		Value     string `json:"_value"`
	} `json:"_digest"`
	Storage struct {
		ID   string `json:"@id"`
		Type string `json:"@type"`
	} `json:"_storage"`
}

// dataDownload describes an uploaded file as a distribution.
func (fm *fileMetadata) dataDownload() *jsonld.Object {
	dd := jsonld.NewObject(
		jsonld.P("type", forge.TypeDataDownload),
		jsonld.P("name", fm.Filename),
		jsonld.P("encodingFormat", fm.MediaType),
		jsonld.P("contentSize", jsonld.NewObject(
			jsonld.P("unitCode", "bytes"),
			jsonld.P("value", fm.Bytes),
		)),
	)
	if fm.Digest.Value != "" {
		dd.Set("digest", jsonld.NewObject(
			jsonld.P("algorithm", fm.Digest.Algorithm),
			jsonld.P("value", fm.Digest.Value),
		))
	}

	at := jsonld.NewObject(jsonld.P("type", "Location"))
	if fm.Location != "" {
		at.Set("location", fm.Location)
	}
	if fm.Storage.ID != "" {
		store := jsonld.NewObject(jsonld.P("id", fm.Storage.ID))
		if fm.Storage.Type != "" {
			store.Set("type", fm.Storage.Type)
		}
		at.Set("store", store)
	}
	dd.Set("atLocation", at)

	contentUrl := fm.Self
	if contentUrl == "" {
		contentUrl = fm.ID
	}
	dd.Set("contentUrl", contentUrl)
	return dd
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Attach uploads a file to the bucket.
func (c *client) Attach(ctx context.Context, filePath string, contentType string) (*jsonld.Object, error) {
	if contentType == "" {
		contentType = forge.GuessContentType(filePath)
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		h := make(textproto.MIMEHeader)
		h.Set(
			"Content-Disposition",
			fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filepath.Base(filePath))),
		)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	u := c.apipath("files", c.org, c.project)
	req, err := c.newRequest(ctx, http.MethodPost, u, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.logger.Debugf("POST %s (%s)", u, filePath)
	resp, err := c.httpclient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	fm := new(fileMetadata)
	if err := unmarshalJsonResponse(
		resp, fm,
		MessageFor{
			Status4xx: "cannot upload file: " + filePath,
			Status5xx: "server error",
		},
	); err != nil {
		return nil, err
	}
	return fm.dataDownload(), nil
}

// Download fetches contentUrl of the distribution into dir.
//
// The file is named after the distribution's name,
// or the last segment of contentUrl when it has no name.
func (c *client) Download(ctx context.Context, distribution *jsonld.Object, dir string) (string, error) {
	contentUrl, ok := distribution.GetString("contentUrl")
	if !ok || contentUrl == "" {
		return "", fmt.Errorf("%w: distribution has no contentUrl", forge.ErrValidation)
	}
	name, _ := distribution.GetString("name")
	if name == "" {
		pu, err := url.Parse(contentUrl)
		if err != nil {
			return "", err
		}
		name = path.Base(pu.Path)
	}
	name = filepath.Base(name)

	resp, err := c.get(ctx, contentUrl, "*/*")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", errorResponse(
			resp,
			MessageFor{Status4xx: "file is not found: " + contentUrl},
			fmt.Errorf("%w: %s", forge.ErrNotFound, contentUrl),
		)
	case StatusCodeRangeOf(resp) != Status2xx:
		return "", errorResponse(
			resp,
			MessageFor{Status4xx: "cannot download file: " + contentUrl, Status5xx: "server error"},
			nil,
		)
	}

	if err := os.MkdirAll(dir, os.FileMode(0755)); err != nil {
		return "", err
	}
	dest := filepath.Join(dir, name)
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(dest)
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dest, nil
}

package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"lawdesk.org/internal/apperr"
	"lawdesk.org/internal/obs"
	"lawdesk.org/internal/office"
)

const (
	uploadField     = "file"
	multipartMemory = 1 << 20
)

func (a *API) listDocuments(w http.ResponseWriter, r *http.Request) {
	base, err := listQuery(r)
	q := office.DocumentListQuery{ListQuery: base, CaseID: r.URL.Query().Get("case_id")}
	listWith(w, r, q, err, a.documents.List)
}

// uploadDocument accepts multipart/form-data with a "file" part and optional
// "title" and "case_id" fields.
func (a *API) uploadDocument(w http.ResponseWriter, r *http.Request) {
	limit := a.documents.MaxUploadBytes() + multipartMemory
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAppError(w, r, office.ErrFileTooLarge)
			return
		}
		writeAppError(w, r, apperr.Validation("invalid_multipart", "expected multipart/form-data body"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		writeAppError(w, r, apperr.Validation("missing_file", "file is required"))
		return
	}
	defer file.Close()

	doc, err := a.documents.Upload(r.Context(), office.UploadInput{
		CaseID:      r.FormValue("case_id"),
		Title:       r.FormValue("title"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, doc)
}

func (a *API) getDocument(w http.ResponseWriter, r *http.Request) {
	getWith(w, r, a.documents.Get)
}

func (a *API) updateDocument(w http.ResponseWriter, r *http.Request) {
	updateWith(w, r, a.documents.Update)
}

func (a *API) deleteDocument(w http.ResponseWriter, r *http.Request) {
	deleteWith(w, r, a.documents.Delete)
}

// downloadDocument streams the stored file with its original name.
func (a *API) downloadDocument(w http.ResponseWriter, r *http.Request) {
	doc, body, err := a.documents.Open(r.Context(), pathID(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	defer body.Close()

	h := w.Header()
	h.Set("Content-Type", doc.ContentType)
	h.Set("Content-Disposition", contentDisposition(doc.OriginalName))
	if doc.Size > 0 {
		h.Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		obs.Component("http").WithError(err).WithField("document_id", doc.ID).Warn("download interrupted")
	}
}

func (a *API) summarizeDocument(w http.ResponseWriter, r *http.Request) {
	getWith(w, r, a.documents.Summarize)
}

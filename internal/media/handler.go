package media

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-messenger/internal/apperr"
	"go-messenger/internal/auth"
	"go-messenger/internal/logging"
	"go-messenger/internal/web"
)

// Uploader stores a file on behalf of a user.
type Uploader interface {
	Upload(ctx context.Context, ownerID int64, kind Kind, filename string, r io.Reader) (string, error)
}

type Handler struct {
	uploads  Uploader
	maxBytes int64
}

func NewHandler(uploads Uploader, maxBytes int64) *Handler {
	return &Handler{uploads: uploads, maxBytes: maxBytes}
}

type UploadResponse struct {
	Kind Kind   `json:"kind"`
	URL  string `json:"url"`
}

// Upload accepts one multipart file in the "file" field. The content type
// is sniffed, not taken from the client.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	kind, ok := ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		web.Error(w, r, apperr.Validation("upload kind must be image, video, audio or file"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			web.Error(w, r, apperr.Validation("file is too large"))
			return
		}
		web.Error(w, r, apperr.Validation("multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		web.Error(w, r, apperr.Validation("unreadable file"))
		return
	}
	mime := http.DetectContentType(head[:n])
	if !kind.accepts(mime) {
		web.Error(w, r, apperr.Validation("file type "+mime+" is not allowed for "+string(kind)))
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		web.Error(w, r, apperr.Persistence("rewind upload", err))
		return
	}

	id, _ := auth.FromContext(r.Context())
	url, err := h.uploads.Upload(r.Context(), id.ID, kind, header.Filename, file)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	logging.Debug().Str("kind", string(kind)).Str("url", url).Str("mime", mime).Int64("user_id", id.ID).Msg("file uploaded")

	web.JSON(w, http.StatusCreated, UploadResponse{Kind: kind, URL: url})
}

package http

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/dkeye/Lectern/internal/domain"
	"github.com/gin-gonic/gin"
)

// multipartSlack covers multipart framing around a maximum-size chunk.
const multipartSlack = 64 << 10

var errUnsupportedType = domain.Errorf(domain.KindValidation, "unsupported audio content type")

type startRecordingRequest struct {
	MeetingID domain.MeetingID `json:"meetingId"`
}

func acceptedAudio(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/octet-stream" || strings.HasPrefix(mt, "audio/")
}

// readChunk takes the chunk from the multipart field "audio" or from a raw
// audio body.
func (h *handlers) readChunk(c *gin.Context) ([]byte, error) {
	limit := int64(h.maxChunk)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartSlack)

	var src io.Reader
	if c.ContentType() == "multipart/form-data" {
		fh, err := c.FormFile("audio")
		if err != nil {
			return nil, tooLargeOr(err, domain.ErrMissingField)
		}
		if fh.Size > limit {
			return nil, domain.ErrChunkTooLarge
		}
		if ct := fh.Header.Get("Content-Type"); ct != "" && !acceptedAudio(ct) {
			return nil, errUnsupportedType
		}
		f, err := fh.Open()
		if err != nil {
			return nil, domain.Wrap(domain.KindInternal, "open upload", err)
		}
		defer f.Close()
		src = f
	} else {
		if !acceptedAudio(c.GetHeader("Content-Type")) {
			return nil, errUnsupportedType
		}
		src = c.Request.Body
	}

	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return nil, tooLargeOr(err, domain.Wrap(domain.KindValidation, "read audio chunk", err))
	}
	if int64(len(data)) > limit {
		return nil, domain.ErrChunkTooLarge
	}
	return data, nil
}

func tooLargeOr(err, fallback error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return domain.ErrChunkTooLarge
	}
	return fallback
}

func (h *handlers) startRecording(c *gin.Context) {
	var req startRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.MeetingID == "" {
		abortWithError(c, domain.ErrMissingField)
		return
	}
	rec, err := h.recordings.StartRecording(c.Request.Context(), req.MeetingID, callerOf(c).UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *handlers) streamRecording(c *gin.Context) {
	chunk, err := h.readChunk(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	id := domain.RecordingID(c.Param("id"))
	n, err := h.recordings.WriteChunk(c.Request.Context(), id, callerOf(c).UserID, chunk)
	if err != nil {
		abortWithError(c, err)
		return
	}
	total, _ := h.recordings.BytesWritten(id)
	c.JSON(http.StatusOK, gin.H{"success": true, "bytesWritten": n, "totalBytes": total})
}

func (h *handlers) endRecording(c *gin.Context) {
	rec, err := h.recordings.EndRecording(c.Request.Context(), domain.RecordingID(c.Param("id")), callerOf(c).UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handlers) recordingURL(c *gin.Context) {
	pb, err := h.recordings.GetPlaybackReference(c.Request.Context(), domain.RecordingID(c.Param("id")), callerOf(c).UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, pb)
}

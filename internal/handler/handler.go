package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/S1riyS/vnodefs/internal/models"
	"github.com/S1riyS/vnodefs/internal/pkg/kerrors"
	"github.com/S1riyS/vnodefs/internal/service"
	"github.com/S1riyS/vnodefs/internal/vfs"
	"github.com/S1riyS/vnodefs/pkg/binary"
	"github.com/S1riyS/vnodefs/pkg/logging"
	"github.com/S1riyS/vnodefs/pkg/logging/slogext"
)

// maxIOSize bounds the payload of a single read or write.
const maxIOSize = 1 << 20

type Handler struct {
	service service.FileSystemService
}

func NewHandler(service service.FileSystemService) *Handler {
	return &Handler{service: service}
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// queryUint parses the named parameter. Base prefixes are accepted, so modes
// can be passed as 0755.
func queryUint(r *http.Request, name string, bitSize int) (uint64, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 0, bitSize)
	if err != nil {
		return 0, false
	}
	return v, true
}

// queryOptionalInt parses the named parameter, which defaults to 0.
func queryOptionalInt(r *http.Request, name string) (int64, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := mapErrorToCode(err)
	logging.GetLoggerFromContextWithOp(r.Context(), op).Debug("Request failed",
		slogext.Err(err),
		slog.Int64("code", code),
	)
	binary.WriteResponse(w, code, nil)
}

func (h *Handler) writeNodeMeta(w http.ResponseWriter, r *http.Request, op string, meta *models.NodeMeta) {
	data, err := binary.EncodeNodeMeta(meta)
	if err != nil {
		logging.GetLoggerFromContextWithOp(r.Context(), op).Error("Failed to encode node meta", slogext.Err(err))
		binary.WriteResponse(w, kerrors.ENOMEM_NEG, nil)
		return
	}
	binary.WriteResponse(w, 0, data)
}

func (h *Handler) HandleStat(w http.ResponseWriter, r *http.Request) {
	const op = "handler.HandleStat"

	if !allowGet(w, r) {
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	meta, err := h.service.Stat(r.Context(), path)
	if err != nil {
		h.writeError(w, r, op, err)
		return
	}

	h.writeNodeMeta(w, r, op, meta)
}

func (h *Handler) HandleStatIno(w http.ResponseWriter, r *http.Request) {
	const op = "handler.HandleStatIno"

	if !allowGet(w, r) {
		return
	}

	dev, okDev := queryUint(r, "dev", 64)
	ino, okIno := queryUint(r, "ino", 64)
	if !okDev || !okIno {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	meta, err := h.service.StatIno(r.Context(), dev, ino)
	if err != nil {
		h.writeError(w, r, op, err)
		return
	}

	h.writeNodeMeta(w, r, op, meta)
}

func (h *Handler) HandleMkdir(w http.ResponseWriter, r *http.Request) {
	const op = "handler.HandleMkdir"

	if !allowGet(w, r) {
		return
	}

	path := r.URL.Query().Get("path")
	mode, ok := queryUint(r, "mode", 32)
	if path == "" || !ok {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	if err := h.service.Mkdir(r.Context(), path, uint32(mode)); err != nil {
		h.writeError(w, r, op, err)
		return
	}

	binary.WriteResponse(w, 0, nil)
}

func (h *Handler) HandleUnlink(w http.ResponseWriter, r *http.Request) {
	const op = "handler.HandleUnlink"

	if !allowGet(w, r) {
		return
	}

	path := r.URL.Query().Get("path")
	flags, ok := queryOptionalInt(r, "flags")
	if path == "" || !ok {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	if err := h.service.Unlink(r.Context(), path, int(flags)); err != nil {
		h.writeError(w, r, op, err)
		return
	}

	binary.WriteResponse(w, 0, nil)
}

func (h *Handler) HandleLink(w http.ResponseWriter, r *http.Request) {
	const op = "handler.HandleLink"

	if !allowGet(w, r) {
		return
	}

	oldPath := r.URL.Query().Get("old_path")
	newPath := r.URL.Query().Get("new_path")
	if oldPath == "" || newPath == "" {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	if err := h.service.Link(r.Context(), oldPath, newPath); err != nil {
		h.writeError(w, r, op, err)
		return
	}

	binary.WriteResponse(w, 0, nil)
}

func (h *Handler) HandleRename(w http.ResponseWriter, r *http.Request) {
	const op = "handler.HandleRename"

	if !allowGet(w, r) {
		return
	}

	oldPath := r.URL.Query().Get("old_path")
	newPath := r.URL.Query().Get("new_path")
	if oldPath == "" || newPath == "" {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	if err := h.service.Rename(r.Context(), oldPath, newPath); err != nil {
		h.writeError(w, r, op, err)
		return
	}

	binary.WriteResponse(w, 0, nil)
}

func (h *Handler) HandleReaddir(w http.ResponseWriter, r *http.Request) {
	const op = "handler.HandleReaddir"

	if !allowGet(w, r) {
		return
	}

	path := r.URL.Query().Get("path")
	offset, okOffset := queryUint(r, "offset", 64)
	size, okSize := queryUint(r, "size", 32)
	if path == "" || !okOffset || !okSize || size > maxIOSize {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	data, err := h.service.Readdir(r.Context(), path, offset, int(size))
	if err != nil {
		h.writeError(w, r, op, err)
		return
	}

	binary.WriteResponse(w, 0, data)
}

func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	const op = "handler.HandleOpen"

	if !allowGet(w, r) {
		return
	}

	path := r.URL.Query().Get("path")
	flags, okFlags := queryOptionalInt(r, "flags")
	mode, okMode := queryOptionalInt(r, "mode")
	if path == "" || !okFlags || !okMode {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	fd, err := h.service.Open(r.Context(), path, int(flags), uint32(mode))
	if err != nil {
		h.writeError(w, r, op, err)
		return
	}

	binary.WriteUint64Response(w, 0, fd)
}

func (h *Handler) HandleRead(w http.ResponseWriter, r *http.Request) {
	const op = "handler.HandleRead"

	if !allowGet(w, r) {
		return
	}

	fd, okFD := queryUint(r, "fd", 64)
	length, okLen := queryUint(r, "len", 32)
	offset, okOffset := queryOptionalInt(r, "offset")
	if !okFD || !okLen || !okOffset || offset < 0 || length > maxIOSize {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	buffer := make([]byte, length)
	n, err := h.service.Read(r.Context(), fd, buffer, offset)
	if err != nil {
		h.writeError(w, r, op, err)
		return
	}

	// Only the bytes actually read
	binary.WriteResponse(w, 0, buffer[:n])
}

func (h *Handler) HandleWrite(w http.ResponseWriter, r *http.Request) {
	const op = "handler.HandleWrite"

	if !allowGet(w, r) {
		return
	}

	logger := logging.GetLoggerFromContextWithOp(r.Context(), op)

	fd, okFD := queryUint(r, "fd", 64)
	offset, okOffset := queryOptionalInt(r, "offset")
	if !okFD || !okOffset || offset < 0 {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	encoded := r.URL.Query().Get("data")
	if base64.StdEncoding.DecodedLen(len(encoded)) > maxIOSize {
		logger.Warn("Write payload too large", slog.Int("encoded_len", len(encoded)))
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		logger.Warn("Failed to decode base64 data", slogext.Err(err))
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	written, err := h.service.Write(r.Context(), fd, data, offset)
	if err != nil {
		h.writeError(w, r, op, err)
		return
	}

	binary.WriteInt64Response(w, 0, int64(written))
}

func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	const op = "handler.HandleClose"

	if !allowGet(w, r) {
		return
	}

	fd, ok := queryUint(r, "fd", 64)
	if !ok {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	if err := h.service.Close(r.Context(), fd); err != nil {
		h.writeError(w, r, op, err)
		return
	}

	binary.WriteResponse(w, 0, nil)
}

func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	const op = "handler.HandleEvents"

	if !allowGet(w, r) {
		return
	}

	limit, ok := queryOptionalInt(r, "limit")
	if !ok {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}
	if limit == 0 {
		limit = 100
	}

	events, err := h.service.Events(r.Context(), int(limit))
	if err != nil {
		var vfsErr *vfs.Error
		if errors.As(err, &vfsErr) {
			http.Error(w, vfsErr.Message, http.StatusBadRequest)
			return
		}
		logging.GetLoggerFromContextWithOp(r.Context(), op).Error("Failed to list events", slogext.Err(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok","service":"vnodefs"}`))
}

// mapErrorToCode turns err into the negative errno reported to clients.
func mapErrorToCode(err error) int64 {
	var vfsErr *vfs.Error
	if errors.As(err, &vfsErr) {
		return -vfsErr.GetCode()
	}
	// Anything else is an infrastructure failure
	return kerrors.ENOMEM_NEG
}

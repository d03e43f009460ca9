package binary

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/http"

	"github.com/S1riyS/vnodefs/internal/models"
)

// NodeMetaSize is the encoded size of a NodeMeta.
const NodeMetaSize = 8 + 8 + 2 + 4 + 8 + 8 + 8

func EncodeNodeMeta(meta *models.NodeMeta) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(NodeMetaSize)

	fields := []struct {
		name  string
		value any
	}{
		{"ino", meta.Ino},
		{"dev", meta.Dev},
		{"type", int16(meta.Type)},
		{"mode", meta.Mode},
		{"nlink", meta.Nlink},
		{"rdev", meta.Rdev},
		{"size", meta.Size},
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f.value); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", f.name, err)
		}
	}

	return buf.Bytes(), nil
}

// DecodeNodeMeta is the inverse of EncodeNodeMeta.
func DecodeNodeMeta(data []byte) (*models.NodeMeta, error) {
	if len(data) != NodeMetaSize {
		return nil, fmt.Errorf("node meta: want %d bytes, got %d", NodeMetaSize, len(data))
	}

	le := binary.LittleEndian
	return &models.NodeMeta{
		Ino:   le.Uint64(data[0:]),
		Dev:   le.Uint64(data[8:]),
		Type:  models.NodeType(int16(le.Uint16(data[16:]))),
		Mode:  le.Uint32(data[18:]),
		Nlink: le.Uint64(data[22:]),
		Rdev:  le.Uint64(data[30:]),
		Size:  int64(le.Uint64(data[38:])),
	}, nil
}

// WriteResponse writes code as a little endian int64 followed by data.
func WriteResponse(w http.ResponseWriter, code int64, data []byte) error {
	response := new(bytes.Buffer)

	if err := binary.Write(response, binary.LittleEndian, code); err != nil {
		return fmt.Errorf("failed to write response code: %w", err)
	}

	if data != nil {
		if _, err := response.Write(data); err != nil {
			return fmt.Errorf("failed to write response data: %w", err)
		}
	}

	body := response.Bytes()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
	w.WriteHeader(http.StatusOK)

	_, err := w.Write(body)
	return err
}

func WriteUint64Response(w http.ResponseWriter, code int64, value uint64) error {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, value); err != nil {
		return err
	}
	return WriteResponse(w, code, buf.Bytes())
}

func WriteInt64Response(w http.ResponseWriter, code int64, value int64) error {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, value); err != nil {
		return err
	}
	return WriteResponse(w, code, buf.Bytes())
}

// ReadResponse splits a response body into its code and payload.
func ReadResponse(body []byte) (int64, []byte, error) {
	if len(body) < 8 {
		return 0, nil, fmt.Errorf("response: short body of %d bytes", len(body))
	}
	return int64(binary.LittleEndian.Uint64(body)), body[8:], nil
}

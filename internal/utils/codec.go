package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	// ContentTypeJSON is the default wire format
	ContentTypeJSON = "application/json"
	// ContentTypeMsgpack is accepted and served by the valuation routes
	ContentTypeMsgpack = "application/msgpack"

	maxBodyBytes = 16 << 20
)

// IsMsgpack reports whether a Content-Type or Accept header value asks for
// msgpack
func IsMsgpack(header string) bool {
	for _, part := range strings.Split(header, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if mediaType == ContentTypeMsgpack || mediaType == "application/x-msgpack" {
			return true
		}
	}
	return false
}

// DecodeBody decodes the request body into v using the request Content-Type.
// Msgpack maps are matched by json tag so both formats share one schema.
func DecodeBody(r *http.Request, v interface{}) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if IsMsgpack(r.Header.Get("Content-Type")) {
		dec := msgpack.NewDecoder(body)
		dec.SetCustomStructTag("json")
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("invalid msgpack body: %w", err)
		}
		return nil
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

// WriteResponse encodes v as msgpack when the request accepts it, JSON
// otherwise
func WriteResponse(w http.ResponseWriter, r *http.Request, status int, v interface{}) error {
	if r != nil && IsMsgpack(r.Header.Get("Accept")) {
		w.Header().Set("Content-Type", ContentTypeMsgpack)
		w.WriteHeader(status)
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		return enc.Encode(v)
	}
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

package convert

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/spherical/scan2docx/internal/domain"
)

// Fingerprint identifies the output of a request. Two requests with the same
// fingerprint produce the same document, so a cached result can be reused.
// The source name is included because it becomes the document title.
func Fingerprint(req domain.ConversionRequest) string {
	req = applyDefaults(req)
	params := req.Params()

	h := sha256.New()
	h.Write(req.Source)
	h.Write([]byte{0})
	h.Write([]byte(req.SourceName))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(req.DPI)))
	h.Write([]byte{0})
	h.Write([]byte(params.Language))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(int(params.SegMode))))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(int(params.EngineMode))))
	return hex.EncodeToString(h.Sum(nil))
}

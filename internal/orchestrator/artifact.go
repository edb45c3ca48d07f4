package orchestrator

import (
	"bytes"
	"log/slog"

	"github.com/disintegration/imaging"
)

// maxAttachmentBytes is the platform upload cap for a standard bot.
const maxAttachmentBytes = 8 << 20

// fitAttachment re-encodes an oversized generated image at progressively
// smaller dimensions until it fits the upload cap. On decode failure the
// original bytes are returned and the platform gets to reject them with its
// own error.
func fitAttachment(data []byte) []byte {
	if len(data) <= maxAttachmentBytes {
		return data
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		slog.Warn("oversized image could not be decoded for downscale", "bytes", len(data), "error", err)
		return data
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	best := data
	for i := 0; i < 3; i++ {
		w, h = w/2, h/2
		if w == 0 || h == 0 {
			break
		}
		resized := imaging.Fit(img, w, h, imaging.Lanczos)

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
			slog.Warn("downscaled image encode failed", "error", err)
			return best
		}
		best = buf.Bytes()
		if len(best) <= maxAttachmentBytes {
			slog.Debug("attachment downscaled", "width", w, "height", h, "bytes", len(best))
			return best
		}
	}
	return best
}
